package model

import (
	"encoding/json"

	"github.com/rotisserie/eris"
)

// HealthCategory is an ordinal vegetation-health bucket derived from an NDVI value.
type HealthCategory int

const (
	HealthPoor HealthCategory = iota
	HealthModerate
	HealthGood
	HealthExcellent
)

// Classification thresholds. A value equal to a threshold belongs to the higher category.
const (
	moderateThreshold  = 0.3
	goodThreshold      = 0.5
	excellentThreshold = 0.7
)

// Classify maps an NDVI value to its health category. It is total: values
// outside [-1,1] (and NaN) still land in a category.
func Classify(value float64) HealthCategory {
	switch {
	case value >= excellentThreshold:
		return HealthExcellent
	case value >= goodThreshold:
		return HealthGood
	case value >= moderateThreshold:
		return HealthModerate
	default:
		return HealthPoor
	}
}

func (h HealthCategory) String() string {
	switch h {
	case HealthPoor:
		return "poor"
	case HealthModerate:
		return "moderate"
	case HealthGood:
		return "good"
	case HealthExcellent:
		return "excellent"
	default:
		return "unknown"
	}
}

// ParseHealthCategory is the inverse of String.
func ParseHealthCategory(s string) (HealthCategory, bool) {
	for h := HealthPoor; h <= HealthExcellent; h++ {
		if h.String() == s {
			return h, true
		}
	}
	return HealthPoor, false
}

// MarshalJSON encodes the category by name.
func (h HealthCategory) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

// UnmarshalJSON decodes a category name.
func (h *HealthCategory) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, ok := ParseHealthCategory(s)
	if !ok {
		return eris.Errorf("model: unknown health category %q", s)
	}
	*h = parsed
	return nil
}
