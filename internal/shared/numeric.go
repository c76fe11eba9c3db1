package shared

import (
	"strconv"
	"strings"
)

// ParseAmount coerces user-supplied numeric input to a float64. Missing or
// unparsable values become 0; monetary fields never fail validation on bad
// numeric input.
func ParseAmount(raw string) float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return value
}

// ParseOptionalAmount behaves like ParseAmount but distinguishes absent
// input from a literal zero. Used for commission overrides where only a
// positive value counts as a manual override.
func ParseOptionalAmount(raw string) *float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	return &value
}
