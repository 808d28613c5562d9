package zones

import (
	"strings"

	"github.com/pkg/errors"
)

// ErrUnknownProtocol is returned by LookupProtocol for an unrecognized name.
var ErrUnknownProtocol = errors.New("unknown protocol")

// EntryRule selects how zone transitions are counted as entries.
type EntryRule string

const (
	// AdjacentToBaseline counts a transition into or out of the baseline zone,
	// crediting the destination.
	AdjacentToBaseline EntryRule = "adjacent-to-baseline"
	// LeavesBaseline counts only transitions out of the baseline zone. Moving
	// between two non-baseline zones is not an entry.
	LeavesBaseline EntryRule = "leaves-baseline"
)

// Protocol describes the zone topology of one experiment type.
type Protocol struct {
	// Name is the short protocol identifier, e.g. "OF".
	Name string `yaml:"name"`
	// RegionNames are the regions drawn and loaded for the protocol, in
	// priority order.
	RegionNames []string `yaml:"regions"`
	// Fallback, when set, labels every position that lies in no region.
	Fallback string `yaml:"fallback"`
	// Baseline is the zone the subject starts in and entries are measured against.
	Baseline string `yaml:"baseline"`
	// EntryRule selects the entry-counting rule.
	EntryRule EntryRule `yaml:"entry_rule"`
}

// OpenField has a single drawn center region; everything else is borders.
var OpenField = Protocol{
	Name:        "OF",
	RegionNames: []string{"center"},
	Fallback:    "borders",
	Baseline:    "center",
	EntryRule:   AdjacentToBaseline,
}

// ElevatedPlusMaze has four arms around a center. The arms and center are
// expected to cover every reachable position.
var ElevatedPlusMaze = Protocol{
	Name:        "EPM",
	RegionNames: []string{"top", "bottom", "right", "left", "center"},
	Baseline:    "center",
	EntryRule:   LeavesBaseline,
}

// LookupProtocol returns a built-in protocol by short or long name, case-insensitive.
func LookupProtocol(name string) (Protocol, error) {
	switch strings.ToLower(name) {
	case "of", "open-field":
		return OpenField, nil
	case "epm", "elevated-plus-maze":
		return ElevatedPlusMaze, nil
	}
	return Protocol{}, errors.Wrapf(ErrUnknownProtocol, "%q", name)
}

// Zones returns every label the classifier may report: the regions followed
// by the fallback, if any.
func (p Protocol) Zones() []string {
	zones := append([]string(nil), p.RegionNames...)
	if p.Fallback != "" {
		zones = append(zones, p.Fallback)
	}
	return zones
}

func (p Protocol) declares(name string) bool {
	for _, n := range p.RegionNames {
		if n == name {
			return true
		}
	}
	return false
}

// Validate checks that the protocol is internally consistent.
func (p Protocol) Validate() error {
	if p.Name == "" {
		return errors.New("protocol has no name")
	}
	if len(p.RegionNames) == 0 {
		return errors.Errorf("protocol %s declares no regions", p.Name)
	}
	seen := make(map[string]bool, len(p.RegionNames)+1)
	for _, z := range p.Zones() {
		if z == "" {
			return errors.Errorf("protocol %s has an empty zone name", p.Name)
		}
		if seen[z] {
			return errors.Errorf("protocol %s declares zone %q twice", p.Name, z)
		}
		seen[z] = true
	}
	if !seen[p.Baseline] {
		return errors.Errorf("protocol %s baseline %q is not one of its zones", p.Name, p.Baseline)
	}
	switch p.EntryRule {
	case AdjacentToBaseline, LeavesBaseline:
	default:
		return errors.Errorf("protocol %s has unknown entry rule %q", p.Name, p.EntryRule)
	}
	return nil
}
