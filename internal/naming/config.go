// Package naming derives storage collection names from schema identifiers:
// lowercase, then pluralize with English rules and configured overrides.
package naming

import "strings"

// Config holds naming customization options
type Config struct {
	// PluralOverrides maps singular -> custom plural
	// Example: {"person": "people", "status": "statuses"}
	PluralOverrides map[string]string `mapstructure:"plural_overrides"`

	// SingularOverrides maps plural -> custom singular
	// Example: {"people": "person", "data": "datum"}
	SingularOverrides map[string]string `mapstructure:"singular_overrides"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		PluralOverrides:   make(map[string]string),
		SingularOverrides: make(map[string]string),
	}
}

// normalized returns a copy of c with lowercased, trimmed keys and values.
// Collection names are lowercase, so overrides are matched the same way.
func (c Config) normalized() Config {
	return Config{
		PluralOverrides:   lowerMap(c.PluralOverrides),
		SingularOverrides: lowerMap(c.SingularOverrides),
	}
}

func lowerMap(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		k = strings.ToLower(strings.TrimSpace(k))
		v = strings.ToLower(strings.TrimSpace(v))
		if k == "" || v == "" {
			continue
		}
		out[k] = v
	}
	return out
}
