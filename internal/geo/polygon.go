// Package geo converts field boundaries to and from the geometry formats used by
// the imagery provider and the import sources.
package geo

import (
	"encoding/json"
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"github.com/twpayne/go-geom/xy"

	"github.com/sells-group/farmndvi/internal/model"
)

// Meters per degree at the equator, used by the local equirectangular projection.
const (
	metersPerDegLat = 110_574.0
	metersPerDegLng = 111_320.0
	sqMetersPerHa   = 10_000.0
)

// Polygon converts a lat/lng ring to a closed go-geom polygon in lng/lat (x/y)
// order with SRID 4326.
func Polygon(ring []model.LatLng) (*geom.Polygon, error) {
	if len(ring) < model.MinPolygonVertices {
		return nil, eris.Errorf("geo: polygon needs %d vertices, got %d", model.MinPolygonVertices, len(ring))
	}

	flat := make([]float64, 0, 2*(len(ring)+1))
	for _, p := range ring {
		flat = append(flat, p.Lng, p.Lat)
	}
	if first, last := ring[0], ring[len(ring)-1]; first != last {
		flat = append(flat, first.Lng, first.Lat)
	}

	return geom.NewPolygonFlat(geom.XY, flat, []int{len(flat)}).SetSRID(4326), nil
}

// GeoJSON encodes a lat/lng ring as a GeoJSON Polygon geometry.
func GeoJSON(ring []model.LatLng) (json.RawMessage, error) {
	poly, err := Polygon(ring)
	if err != nil {
		return nil, err
	}
	data, err := geojson.Marshal(poly, geojson.EncodeGeometryWithMaxDecimalDigits(7))
	if err != nil {
		return nil, eris.Wrap(err, "geo: encode geojson")
	}
	return data, nil
}

// Centroid returns the area-weighted centre of the ring.
func Centroid(ring []model.LatLng) (model.LatLng, error) {
	poly, err := Polygon(ring)
	if err != nil {
		return model.LatLng{}, err
	}
	c, err := xy.Centroid(poly)
	if err != nil {
		return model.LatLng{}, eris.Wrap(err, "geo: centroid")
	}
	return model.LatLng{Lat: c.Y(), Lng: c.X()}, nil
}

// AreaHectares approximates the ring's area by projecting it onto a local
// equirectangular plane centred on its mean latitude. Good to well under 1%
// for field-sized polygons.
func AreaHectares(ring []model.LatLng) (float64, error) {
	if len(ring) < model.MinPolygonVertices {
		return 0, eris.Errorf("geo: polygon needs %d vertices, got %d", model.MinPolygonVertices, len(ring))
	}

	var latSum float64
	for _, p := range ring {
		latSum += p.Lat
	}
	lat0 := latSum / float64(len(ring))
	lng0 := ring[0].Lng
	kx := metersPerDegLng * math.Cos(lat0*math.Pi/180)

	projected := make([]model.LatLng, len(ring))
	for i, p := range ring {
		projected[i] = model.LatLng{Lat: (p.Lat - lat0) * metersPerDegLat, Lng: (p.Lng - lng0) * kx}
	}
	poly, err := Polygon(projected)
	if err != nil {
		return 0, err
	}
	return math.Abs(poly.Area()) / sqMetersPerHa, nil
}

// EnsureArea fills in AreaHectares when the source did not supply one.
func EnsureArea(b model.FieldBoundary) model.FieldBoundary {
	if b.AreaHectares != nil {
		return b
	}
	ha, err := AreaHectares(b.Polygon)
	if err != nil {
		return b
	}
	ha = model.Round2(ha)
	b.AreaHectares = &ha
	return b
}
