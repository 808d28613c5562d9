// Package zones - Regions of interest, experiment protocols and the zone
// classifier that counts occupancy and entries.
package zones

import (
	"encoding/json"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/nvr-ai/go-arena/images"
	"github.com/pkg/errors"
)

var (
	// ErrOverlappingRegions is returned when two regions share interior area.
	ErrOverlappingRegions = errors.New("regions overlap")
	// ErrMissingRegion is returned when a protocol region has no definition.
	ErrMissingRegion = errors.New("missing region definition")
	// ErrUnknownRegion is returned when a definition names a region the protocol does not declare.
	ErrUnknownRegion = errors.New("unknown region")
	// ErrInvalidRegion is returned for a region with a non-positive size.
	ErrInvalidRegion = errors.New("invalid region")
)

// Region is a named axis-aligned rectangle in frame pixel coordinates.
type Region struct {
	Name string
	X    int
	Y    int
	W    int
	H    int
}

// Contains reports whether p lies inside the region. Bounds are inclusive on
// every side, so boundary pixels count as inside.
func (r Region) Contains(p image.Point) bool {
	return r.X <= p.X && p.X <= r.X+r.W && r.Y <= p.Y && p.Y <= r.Y+r.H
}

// Rect returns the region as an images.Rect.
func (r Region) Rect() images.Rect {
	return images.RectFromXYWH(r.X, r.Y, r.W, r.H)
}

// Rectangle returns the region as an image.Rectangle for drawing.
func (r Region) Rectangle() image.Rectangle {
	return r.Rect().Image()
}

// Regions is an ordered set of regions. Order matters: it resolves
// positions lying on a shared edge in favor of the earlier region.
type Regions []Region

// Get returns the region with the given name.
func (rs Regions) Get(name string) (Region, bool) {
	for _, r := range rs {
		if r.Name == name {
			return r, true
		}
	}
	return Region{}, false
}

// Names returns the region names in order.
func (rs Regions) Names() []string {
	names := make([]string, len(rs))
	for i, r := range rs {
		names[i] = r.Name
	}
	return names
}

// SidecarPath returns the region definition path next to a video:
// "videos/clip.mp4" becomes "videos/clip.json".
func SidecarPath(videoPath string) string {
	return strings.TrimSuffix(videoPath, filepath.Ext(videoPath)) + ".json"
}

// LoadRegions reads a region definition file and orders it by the protocol.
//
// The file is a JSON object mapping each region name to [x, y, w, h].
//
// Arguments:
//   - protocol: The protocol whose regions are expected.
//   - path: The definition file.
//
// Returns:
//   - Regions: The validated regions in protocol order.
//   - error: A wrapped read or decode error, or a validation error.
func LoadRegions(protocol Protocol, path string) (Regions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read regions %s", path)
	}

	var raw map[string][]int
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrapf(err, "decode regions %s", path)
	}

	regions := make(Regions, 0, len(protocol.RegionNames))
	for name, v := range raw {
		if !protocol.declares(name) {
			return nil, errors.Wrapf(ErrUnknownRegion, "%q in %s", name, path)
		}
		if len(v) != 4 {
			return nil, errors.Wrapf(ErrInvalidRegion, "%q has %d values, want [x, y, w, h]", name, len(v))
		}
	}
	for _, name := range protocol.RegionNames {
		v, ok := raw[name]
		if !ok {
			return nil, errors.Wrapf(ErrMissingRegion, "%q in %s", name, path)
		}
		regions = append(regions, Region{Name: name, X: v[0], Y: v[1], W: v[2], H: v[3]})
	}

	if err := ValidateRegions(protocol, regions); err != nil {
		return nil, errors.Wrapf(err, "regions %s", path)
	}
	return regions, nil
}

// SaveRegions writes regions as an indented JSON object of name -> [x, y, w, h].
func SaveRegions(path string, regions Regions) error {
	raw := make(map[string][4]int, len(regions))
	for _, r := range regions {
		raw[r.Name] = [4]int{r.X, r.Y, r.W, r.H}
	}
	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode regions")
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return errors.Wrapf(err, "write regions %s", path)
	}
	return nil
}

// ValidateRegions checks a region set against a protocol.
//
// Every declared region must be present exactly once with a positive size, and
// no two regions may share interior area. Touching edges are allowed.
func ValidateRegions(protocol Protocol, regions Regions) error {
	seen := make(map[string]bool, len(regions))
	for _, r := range regions {
		if !protocol.declares(r.Name) {
			return errors.Wrapf(ErrUnknownRegion, "%q", r.Name)
		}
		if seen[r.Name] {
			return errors.Wrapf(ErrInvalidRegion, "%q defined twice", r.Name)
		}
		seen[r.Name] = true
		if r.W <= 0 || r.H <= 0 {
			return errors.Wrapf(ErrInvalidRegion, "%q has size %dx%d", r.Name, r.W, r.H)
		}
	}
	for _, name := range protocol.RegionNames {
		if !seen[name] {
			return errors.Wrapf(ErrMissingRegion, "%q", name)
		}
	}

	for i := range regions {
		for j := i + 1; j < len(regions); j++ {
			a, b := regions[i].Rect(), regions[j].Rect()
			if shared := images.IntersectionArea(a, b); shared > 0 {
				return errors.Wrapf(ErrOverlappingRegions, "%q and %q share %d px (IoU %.3f)",
					regions[i].Name, regions[j].Name, shared, images.CalculateIoU(a, b))
			}
		}
	}
	return nil
}
