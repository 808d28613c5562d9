// Command regions draws the protocol regions on a video frame and writes the
// region sidecar read by the tracker.
package main

import (
	"flag"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/nvr-ai/go-arena/video"
	"github.com/nvr-ai/go-arena/zones"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gocv.io/x/gocv"
)

func main() {
	var (
		protocolName string
		output       string
		force        bool
	)
	flag.StringVar(&protocolName, "protocol", "OF", "Experiment protocol (OF, EPM)")
	flag.StringVar(&output, "output", "", "Sidecar path (default: <video>.json)")
	flag.BoolVar(&force, "force", false, "Overwrite an existing sidecar")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] <video or frame directory>\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	input := filepath.Clean(flag.Arg(0))

	protocol, err := zones.LookupProtocol(protocolName)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid protocol")
	}
	if output == "" {
		output = zones.SidecarPath(input)
	}
	if _, err := os.Stat(output); err == nil && !force {
		log.Fatal().Str("path", output).Msg("regions already defined, use -force to redraw")
	}

	source, err := video.Open(input, 0)
	if err != nil {
		log.Fatal().Err(err).Msg("cannot open input")
	}
	defer source.Close()

	// The first frame is the background reference; draw on the second one.
	frame := gocv.NewMat()
	defer frame.Close()
	if err := source.Read(&frame); err != nil {
		log.Fatal().Err(err).Msg("cannot read a frame")
	}
	next := gocv.NewMat()
	defer next.Close()
	if err := source.Read(&next); err == nil {
		next.CopyTo(&frame)
	}

	regions := make(zones.Regions, 0, len(protocol.RegionNames))
	for _, name := range protocol.RegionNames {
		title := fmt.Sprintf("%s: select %s and press ENTER", protocol.Name, name)
		rect := gocv.SelectROI(title, frame)
		if rect.Empty() {
			log.Fatal().Str("region", name).Msg("selection cancelled")
		}
		regions = append(regions, toRegion(name, rect))
		log.Info().Str("region", name).Interface("rect", rect).Msg("region selected")
	}

	if err := zones.ValidateRegions(protocol, regions); err != nil {
		log.Fatal().Err(err).Msg("regions rejected")
	}
	if err := zones.SaveRegions(output, regions); err != nil {
		log.Fatal().Err(err).Msg("cannot save regions")
	}
	log.Info().Str("path", output).Strs("regions", regions.Names()).Msg("regions saved")
}

func toRegion(name string, r image.Rectangle) zones.Region {
	return zones.Region{Name: name, X: r.Min.X, Y: r.Min.Y, W: r.Dx(), H: r.Dy()}
}
