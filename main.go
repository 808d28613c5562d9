package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"

	"github.com/nvr-ai/go-arena/config"
	"github.com/nvr-ai/go-arena/controller"
	"github.com/nvr-ai/go-arena/inference"
	"github.com/nvr-ai/go-arena/profiler"
	"github.com/nvr-ai/go-arena/recorder"
	"github.com/nvr-ai/go-arena/trigger"
	"github.com/nvr-ai/go-arena/video"
	"github.com/nvr-ai/go-arena/zones"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gocv.io/x/gocv"
)

const (
	// windowName is the title of the preview window.
	windowName = "Tracker"
	// keyEscape, keyQuit and keyPause are the preview window controls.
	keyEscape = 27
	keyQuit   = 'q'
	keyPause  = ' '
)

// Supported file extensions
var (
	supportedVideoExtensions = []string{".mp4", ".avi", ".mov", ".mkv"}
)

func main() {
	var (
		configPath   string
		protocolName string
		background   string
		regionsPath  string
		detector     string
		modelPath    string
		lower        int
		upper        int
		fps          float64
		maxFrames    int
		saveVideo    bool
		logPosition  bool
		logSpeed     bool
		logStats     bool
		logRegion    bool
		drawAxis     bool
		colorMask    bool
		showWindow   bool
		signalDevice string
		signalRegion string
		signalBaud   int
		outputDir    string
		debug        bool
	)
	flag.StringVar(&configPath, "config", "", "Path to a YAML configuration file")
	flag.StringVar(&protocolName, "protocol", "OF", "Experiment protocol (OF, EPM)")
	flag.StringVar(&background, "background", "", "Static background image (default: first frame)")
	flag.StringVar(&regionsPath, "regions", "", "Region sidecar file (default: <video>.json)")
	flag.StringVar(&detector, "detector", config.DetectorBackground, "Detector front end (background, neural)")
	flag.StringVar(&modelPath, "model", "", "Segmentation model for the neural detector")
	flag.IntVar(&lower, "lower", 100, "Lower color threshold of the difference image (0-255)")
	flag.IntVar(&upper, "upper", 160, "Upper color threshold of the difference image (0-255)")
	flag.Float64Var(&fps, "fps", 0, "Frame rate used for time conversion (default: source frame rate)")
	flag.IntVar(&maxFrames, "max-frames", 0, "Stop after this many frames (0: whole video)")
	flag.BoolVar(&saveVideo, "save-video", false, "Save the annotated video")
	flag.BoolVar(&logPosition, "log-position", false, "Log the subject position to CSV")
	flag.BoolVar(&logSpeed, "log-speed", false, "Log the subject speed to CSV")
	flag.BoolVar(&logStats, "log-stats", false, "Log the session stats to JSON")
	flag.BoolVar(&logRegion, "log-region", true, "Add the region column to the position log")
	flag.BoolVar(&drawAxis, "draw-axis", false, "Draw the principal axes of the subject")
	flag.BoolVar(&colorMask, "color-mask", false, "Tint the foreground mask")
	flag.BoolVar(&showWindow, "show-window", false, "Show the preview window")
	flag.StringVar(&signalDevice, "signal-device", "", "Device receiving the per-frame occupancy signal")
	flag.StringVar(&signalRegion, "signal-region", "", "Region raising the occupancy signal")
	flag.IntVar(&signalBaud, "signal-baud", trigger.DefaultBaudRate, "Baud rate of the occupancy signal port")
	flag.StringVar(&outputDir, "output-dir", "", "Output directory (default: next to the video)")
	flag.BoolVar(&debug, "debug", false, "Enable debug logging")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] <video or frame directory>\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	input := flag.Arg(0)
	if err := validateInput(input); err != nil {
		log.Fatal().Err(err).Msg("invalid input")
	}

	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			log.Fatal().Err(err).Str("path", configPath).Msg("cannot load configuration")
		}
	}

	// Flags given on the command line override the file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "protocol":
			cfg.Protocol, cfg.CustomProtocol = protocolName, nil
		case "background":
			cfg.Background = background
		case "regions":
			cfg.Regions = regionsPath
		case "detector":
			cfg.Detector = detector
		case "model":
			cfg.Neural.ModelPath = modelPath
		case "lower":
			cfg.Lower = config.Channels{uint8(lower), uint8(lower), uint8(lower)}
		case "upper":
			cfg.Upper = config.Channels{uint8(upper), uint8(upper), uint8(upper)}
		case "fps":
			cfg.FPS = fps
		case "max-frames":
			cfg.MaxFrames = maxFrames
		case "save-video":
			cfg.Output.SaveVideo = saveVideo
		case "log-position":
			cfg.Output.LogPosition = logPosition
		case "log-speed":
			cfg.Output.LogSpeed = logSpeed
		case "log-stats":
			cfg.Output.LogStats = logStats
		case "log-region":
			cfg.Output.LogRegion = logRegion
		case "draw-axis":
			cfg.Output.DrawAxis = drawAxis
		case "color-mask":
			cfg.Output.ColorMask = colorMask
		case "show-window":
			cfg.Output.ShowWindow = showWindow
		case "signal-device":
			cfg.Trigger.Device = signalDevice
		case "signal-region":
			cfg.Trigger.Region = signalRegion
		case "signal-baud":
			cfg.Trigger.BaudRate = signalBaud
		case "output-dir":
			cfg.Output.Dir = outputDir
		}
	})
	if lower < 0 || lower > 255 || upper < 0 || upper > 255 {
		log.Fatal().Int("lower", lower).Int("upper", upper).Msg("color thresholds must lie in [0, 255]")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, input, cfg); err != nil {
		log.Fatal().Err(err).Msg("tracking failed")
	}
}

// run tracks the subject through the whole input.
func run(ctx context.Context, input string, cfg config.Config) error {
	protocol, err := cfg.ResolveProtocol()
	if err != nil {
		return err
	}

	source, err := video.Open(input, cfg.FPS)
	if err != nil {
		return err
	}
	defer source.Close()

	fps := cfg.FPS
	if fps <= 0 {
		fps = source.FPS()
	}

	regionsPath := cfg.Regions
	if regionsPath == "" {
		regionsPath = zones.SidecarPath(filepath.Clean(input))
	}
	regions, err := zones.LoadRegions(protocol, regionsPath)
	if err != nil {
		return errors.Wrap(err, "regions (draw them with cmd/regions)")
	}
	log.Info().Str("path", regionsPath).Strs("regions", regions.Names()).Msg("regions loaded")

	// The first frame is the background reference and is not tracked.
	frame := gocv.NewMat()
	defer frame.Close()
	if err := source.Read(&frame); err != nil {
		return errors.Wrap(err, "read first frame")
	}

	det, err := newDetector(cfg, frame)
	if err != nil {
		return err
	}

	prof := profiler.New(profiler.Options{ReportInterval: cfg.ReportInterval, Logger: log.Logger})
	if cfg.ReportInterval > 0 {
		prof.Start()
		defer prof.Stop()
	}

	logger := log.Logger
	session, err := controller.NewSession(controller.Options{
		Detector:            det,
		Protocol:            protocol,
		Regions:             regions,
		EntrySpeedThreshold: cfg.EntrySpeedThreshold,
		Logger:              &logger,
		Profiler:            prof,
	})
	if err != nil {
		det.Close()
		return err
	}
	defer session.Close()

	outDir := cfg.Output.Dir
	if outDir == "" {
		outDir = filepath.Dir(filepath.Clean(input))
	}
	base := recorder.OutputBase(input)
	size := image.Pt(frame.Cols(), frame.Rows())

	rec, err := recorder.New(recorder.Options{
		Dir:         outDir,
		Base:        base,
		FrameHeight: size.Y,
		FPS:         fps,
		LogPosition: cfg.Output.LogPosition,
		LogSpeed:    cfg.Output.LogSpeed,
		LogStats:    cfg.Output.LogStats,
		WithRegion:  cfg.Output.LogRegion,
	})
	if err != nil {
		return err
	}
	defer rec.Close()

	var writer *gocv.VideoWriter
	if cfg.Output.SaveVideo {
		path := filepath.Join(outDir, base+"_result.avi")
		writer, err = gocv.VideoWriterFile(path, "MJPG", fps, size.X, size.Y, true)
		if err != nil {
			return errors.Wrapf(err, "open %s", path)
		}
		defer writer.Close()
		log.Info().Str("path", path).Msg("saving annotated video")
	}

	var occupancy *trigger.Signal
	if cfg.Trigger.Device != "" {
		if occupancy, err = trigger.Open(cfg.Trigger.Device, cfg.Trigger.Region, cfg.Trigger.BaudRate); err != nil {
			return err
		}
		defer occupancy.Close()
	}

	var window *gocv.Window
	if cfg.Output.ShowWindow {
		window = gocv.NewWindow(windowName)
		defer window.Close()
		window.ResizeWindow(640, 360)
	}

	annotate := controller.AnnotateOptions{
		DrawAxis:  cfg.Output.DrawAxis,
		ColorMask: cfg.Output.ColorMask,
		Status:    true,
	}

	log.Info().
		Str("input", input).
		Str("protocol", protocol.Name).
		Str("detector", cfg.Detector).
		Float64("fps", fps).
		Int("width", size.X).
		Int("height", size.Y).
		Msg("tracking started")

	for cfg.MaxFrames == 0 || session.Frames() < cfg.MaxFrames {
		if ctx.Err() != nil {
			log.Info().Msg("interrupted")
			break
		}
		if err := source.Read(&frame); err != nil {
			if errors.Is(err, video.ErrEndOfStream) {
				break
			}
			return err
		}

		res, err := session.ProcessFrame(frame)
		if err != nil {
			return err
		}
		if err := rec.Record(res); err != nil {
			return err
		}
		if occupancy != nil {
			if err := occupancy.Update(res); err != nil {
				return err
			}
		}
		if cfg.Output.LogStats {
			snap, err := session.Snapshot(fps)
			if err != nil {
				return err
			}
			if err := rec.WriteStats(snap); err != nil {
				return err
			}
		}

		if writer == nil && window == nil {
			continue
		}
		session.Annotate(&frame, res, annotate)
		if writer != nil {
			if err := writer.Write(frame); err != nil {
				return errors.Wrap(err, "write video frame")
			}
		}
		if window != nil {
			window.IMShow(frame)
			if quit := handleKey(window, window.WaitKey(1)); quit {
				break
			}
		}
	}

	snap, err := session.Snapshot(fps)
	if err != nil {
		return err
	}
	if err := rec.WriteStats(snap); err != nil {
		return err
	}
	prof.Log(log.Logger)

	log.Info().
		Int("frames", snap.Frames).
		Float64("traveled_distance", snap.TraveledDistance).
		Interface("time_in_regions", snap.TimeInRegions).
		Interface("entries", snap.Entries).
		Msg("tracking finished")
	return nil
}

// newDetector builds the configured front end. reference is the first frame.
func newDetector(cfg config.Config, reference gocv.Mat) (controller.Detector, error) {
	if cfg.Detector == config.DetectorNeural {
		return inference.NewDetector(cfg.Neural, log.Logger)
	}

	var (
		bg  *controller.Background
		err error
	)
	if cfg.Background != "" {
		bg, err = controller.LoadBackground(cfg.Background)
	} else {
		bg, err = controller.NewBackground(reference)
	}
	if err != nil {
		return nil, err
	}

	d, err := controller.NewBackgroundDetector(bg, controller.BackgroundConfig{
		Bounds:    cfg.Bounds(),
		Segmenter: cfg.Segmenter,
		Selector:  cfg.Area,
	})
	if err != nil {
		bg.Close()
		return nil, err
	}
	return &ownedBackground{BackgroundDetector: d, background: bg}, nil
}

// ownedBackground closes the background reference along with the detector.
type ownedBackground struct {
	*controller.BackgroundDetector
	background *controller.Background
}

func (o *ownedBackground) Close() error {
	if err := o.BackgroundDetector.Close(); err != nil {
		return err
	}
	return o.background.Close()
}

// handleKey applies a preview window key press and reports whether to quit.
// Pause blocks until any key is pressed again.
func handleKey(window *gocv.Window, key int) bool {
	switch key {
	case keyEscape, keyQuit:
		return true
	case keyPause:
		key = window.WaitKey(0)
		return key == keyEscape || key == keyQuit
	}
	return false
}

// validateInput checks that the input is a frame directory or a video file
// with a supported extension.
func validateInput(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return errors.Wrapf(err, "input %s", path)
	}
	if info.IsDir() {
		return nil
	}
	ext := strings.ToLower(filepath.Ext(path))
	if !slices.Contains(supportedVideoExtensions, ext) {
		return errors.Errorf("unsupported video extension %q (supported: %s)", ext, strings.Join(supportedVideoExtensions, ", "))
	}
	return nil
}
