package framework

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Properties holds framework-wide boot configuration. SPEC_FULL.md's AMBIENT
// STACK section calls for these to be loaded from a YAML boot file via
// gopkg.in/yaml.v3, the same library the teacher uses for its own
// configuration files.
type Properties struct {
	// TemporalTimeout is a grace period for temporal dependency handlers
	// (spec.md §4.F, §8 scenario S4). It is only loaded and held here:
	// internal/dependency.NewTemporal takes its timeout as an argument, and
	// nothing in this module passes this value to it.
	TemporalTimeout time.Duration `yaml:"temporal_timeout"`

	// WaitingListRetryInterval is a sweep interval for the instantiation
	// waiting list (spec.md §4.H, §8 scenario S5). It is only loaded and held
	// here: internal/ipopo/waiting has no periodic sweep, and List.Sweep runs
	// only when called.
	WaitingListRetryInterval time.Duration `yaml:"waiting_list_retry_interval"`

	// Extra carries any additional boot properties the file supplies. It is
	// only loaded and held here; it is not merged into component properties.
	Extra map[string]any `yaml:"properties"`
}

// DefaultProperties mirrors pelix's own defaults for the handlers it ships
// (a few seconds is enough slack for a dependency to reappear without
// wedging validation indefinitely).
func DefaultProperties() Properties {
	return Properties{
		TemporalTimeout:          10 * time.Second,
		WaitingListRetryInterval: 2 * time.Second,
	}
}

// LoadProperties reads boot properties from a YAML file, falling back to
// DefaultProperties for any field the file leaves zero.
func LoadProperties(path string) (Properties, error) {
	props := DefaultProperties()

	data, err := os.ReadFile(path)
	if err != nil {
		return props, err
	}

	var fromFile Properties
	if err := yaml.Unmarshal(data, &fromFile); err != nil {
		return props, err
	}

	if fromFile.TemporalTimeout > 0 {
		props.TemporalTimeout = fromFile.TemporalTimeout
	}
	if fromFile.WaitingListRetryInterval > 0 {
		props.WaitingListRetryInterval = fromFile.WaitingListRetryInterval
	}
	if fromFile.Extra != nil {
		props.Extra = fromFile.Extra
	}

	return props, nil
}
