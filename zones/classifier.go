package zones

import (
	"image"

	"github.com/pkg/errors"
)

// DefaultEntrySpeedThreshold is the minimum per-frame speed, in pixels, for a
// zone transition to count as an entry.
const DefaultEntrySpeedThreshold = 1.0

// Classification is the outcome of classifying one frame's position.
type Classification struct {
	// Zone is the matched region or the fallback label.
	Zone string
	// Matched is false when the position is in no region and the protocol has
	// no fallback. Zone state and counters are untouched in that case.
	Matched bool
	// Entered reports that this frame counted an entry into Zone.
	Entered bool
}

// Classifier assigns positions to zones and keeps per-zone occupancy and
// entry counters for one session.
//
// The zone state machine starts in the protocol's baseline zone. Each
// classified frame increments the occupancy of the matched zone, evaluates the
// protocol's entry rule against the previous zone, then makes the current zone
// the previous one.
type Classifier struct {
	protocol  Protocol
	regions   Regions
	threshold float64
	previous  string
	current   string
	occupancy map[string]int
	entries   map[string]int
}

// NewClassifier builds a classifier for a protocol and its validated regions.
//
// Arguments:
//   - protocol: The experiment protocol.
//   - regions: The region definitions, validated against the protocol.
//   - entrySpeedThreshold: Minimum speed for a transition to count as an entry.
//
// Returns:
//   - *Classifier: The classifier in its initial state.
//   - error: A protocol or region validation error.
func NewClassifier(protocol Protocol, regions Regions, entrySpeedThreshold float64) (*Classifier, error) {
	if err := protocol.Validate(); err != nil {
		return nil, err
	}
	if err := ValidateRegions(protocol, regions); err != nil {
		return nil, err
	}
	if entrySpeedThreshold < 0 {
		return nil, errors.Errorf("entry speed threshold %v is negative", entrySpeedThreshold)
	}

	// Keep regions in protocol priority order regardless of input order.
	ordered := make(Regions, 0, len(protocol.RegionNames))
	for _, name := range protocol.RegionNames {
		r, _ := regions.Get(name)
		ordered = append(ordered, r)
	}

	c := &Classifier{
		protocol:  protocol,
		regions:   ordered,
		threshold: entrySpeedThreshold,
	}
	c.Reset()
	return c, nil
}

// Locate returns the zone containing p without changing any state.
//
// The first region in protocol order wins for positions on a shared edge.
// Positions in no region resolve to the fallback when the protocol has one.
func (c *Classifier) Locate(p image.Point) (string, bool) {
	for _, r := range c.regions {
		if r.Contains(p) {
			return r.Name, true
		}
	}
	if c.protocol.Fallback != "" {
		return c.protocol.Fallback, true
	}
	return "", false
}

// Classify records one frame at position p moving at the given speed.
//
// Arguments:
//   - p: The subject position for this frame.
//   - speed: The displacement since the previous frame.
//
// Returns:
//   - Classification: The zone and whether an entry was counted.
func (c *Classifier) Classify(p image.Point, speed float64) Classification {
	zone, ok := c.Locate(p)
	if !ok {
		return Classification{}
	}

	c.occupancy[zone]++
	c.current = zone

	entered := speed > c.threshold && c.isEntry(c.previous, zone)
	if entered {
		c.entries[zone]++
	}

	c.previous = c.current
	return Classification{Zone: zone, Matched: true, Entered: entered}
}

func (c *Classifier) isEntry(from, to string) bool {
	if from == to {
		return false
	}
	baseline := c.protocol.Baseline
	switch c.protocol.EntryRule {
	case AdjacentToBaseline:
		return from == baseline || to == baseline
	case LeavesBaseline:
		return from == baseline
	}
	return false
}

// Regions returns the regions in protocol order.
func (c *Classifier) Regions() Regions {
	return append(Regions(nil), c.regions...)
}

// Protocol returns the classifier's protocol.
func (c *Classifier) Protocol() Protocol { return c.protocol }

// Previous returns the zone recorded for the last classified frame.
func (c *Classifier) Previous() string { return c.previous }

// Current returns the zone of the last classified frame.
func (c *Classifier) Current() string { return c.current }

// Occupancy returns a copy of the per-zone frame counters.
func (c *Classifier) Occupancy() map[string]int { return copyCounts(c.occupancy) }

// Entries returns a copy of the per-zone entry counters.
func (c *Classifier) Entries() map[string]int { return copyCounts(c.entries) }

// Reset returns the classifier to the baseline zone with zeroed counters.
func (c *Classifier) Reset() {
	c.previous = c.protocol.Baseline
	c.current = c.protocol.Baseline
	c.occupancy = make(map[string]int)
	c.entries = make(map[string]int)
	for _, z := range c.protocol.Zones() {
		c.occupancy[z] = 0
		c.entries[z] = 0
	}
}

func copyCounts(src map[string]int) map[string]int {
	dst := make(map[string]int, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
