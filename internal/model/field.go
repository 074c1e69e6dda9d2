package model

import (
	"github.com/rotisserie/eris"
)

// LatLng is a WGS84 vertex in latitude/longitude order.
type LatLng struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

// FieldBoundary is one polygon-bounded sub-area of a farm.
type FieldBoundary struct {
	ID           string   `json:"id" yaml:"id"`
	Name         string   `json:"name" yaml:"name"`
	Polygon      []LatLng `json:"polygon" yaml:"polygon"`
	Crop         string   `json:"crop,omitempty" yaml:"crop,omitempty"`
	AreaHectares *float64 `json:"area_hectares,omitempty" yaml:"area_hectares,omitempty"`
}

// MinPolygonVertices is the smallest ring that encloses an area.
const MinPolygonVertices = 3

// Validate checks that the boundary has an id and a usable polygon.
func (b FieldBoundary) Validate() error {
	if b.ID == "" {
		return eris.New("model: field boundary missing id")
	}
	distinct := make(map[LatLng]struct{}, len(b.Polygon))
	for _, p := range b.Polygon {
		if p.Lat < -90 || p.Lat > 90 || p.Lng < -180 || p.Lng > 180 {
			return eris.Errorf("model: field %s vertex out of range (%v, %v)", b.ID, p.Lat, p.Lng)
		}
		distinct[p] = struct{}{}
	}
	if len(distinct) < MinPolygonVertices {
		return eris.Errorf("model: field %s polygon has %d distinct vertices, need %d",
			b.ID, len(distinct), MinPolygonVertices)
	}
	return nil
}

// FieldRecord is the NDVI history of one field together with its provenance.
// CurrentValue and CurrentHealth mirror the last element of Series.
type FieldRecord struct {
	Boundary      FieldBoundary  `json:"boundary"`
	Series        []NdviPoint    `json:"series"`
	CurrentValue  float64        `json:"current_value"`
	CurrentHealth HealthCategory `json:"current_health"`
	IsRealData    bool           `json:"is_real_data"`
}

// NewFieldRecord builds a record whose current value tracks the series tail.
// The series must be non-empty.
func NewFieldRecord(b FieldBoundary, series []NdviPoint, real bool) FieldRecord {
	last := series[len(series)-1]
	return FieldRecord{
		Boundary:      b,
		Series:        series,
		CurrentValue:  last.Value,
		CurrentHealth: last.Health,
		IsRealData:    real,
	}
}
