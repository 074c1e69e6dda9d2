package model

import "time"

// FarmSnapshot is the farm-level NDVI view assembled from every field.
type FarmSnapshot struct {
	FarmID              string                 `json:"farm_id"`
	FarmName            string                 `json:"farm_name"`
	LastUpdated         time.Time              `json:"last_updated"`
	Fields              map[string]FieldRecord `json:"fields"`
	AverageValue        float64                `json:"average_value"`
	UsingRealData       bool                   `json:"using_real_data"`
	UsingRealBoundaries bool                   `json:"using_real_boundaries"`
}

// AverageCurrent returns the mean of the fields' current values rounded to
// two decimals, or 0 for an empty map.
func AverageCurrent(fields map[string]FieldRecord) float64 {
	if len(fields) == 0 {
		return 0
	}
	var sum float64
	for _, f := range fields {
		sum += f.CurrentValue
	}
	return Round2(sum / float64(len(fields)))
}

// AnyReal reports whether at least one field came from the imagery provider.
func AnyReal(fields map[string]FieldRecord) bool {
	for _, f := range fields {
		if f.IsRealData {
			return true
		}
	}
	return false
}
