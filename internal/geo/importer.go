package geo

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/farmndvi/internal/model"
)

// ReadFile loads field boundaries from a GeoJSON FeatureCollection (.geojson,
// .json), a YAML field list (.yaml, .yml), an ESRI shapefile (.shp) or a
// zipped shapefile (.zip).
func ReadFile(path string) ([]model.FieldBoundary, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".shp":
		return ReadShapefile(path)
	case ".zip":
		return ReadZip(path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "geo: read %s", path)
	}
	switch ext {
	case ".geojson", ".json":
		return ReadFeatureCollection(data)
	case ".yaml", ".yml":
		return ReadYAML(data)
	default:
		return nil, eris.Errorf("geo: unsupported boundary file extension %q", ext)
	}
}

// ReadFeatureCollection parses polygon features. Properties id, name, crop and
// area_hectares are honoured when present; MultiPolygons contribute their first
// polygon's exterior ring.
func ReadFeatureCollection(data []byte) ([]model.FieldBoundary, error) {
	var fc geojson.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, eris.Wrap(err, "geo: parse feature collection")
	}

	out := make([]model.FieldBoundary, 0, len(fc.Features))
	for i, f := range fc.Features {
		ring := exteriorRing(f.Geometry)
		if ring == nil {
			zap.L().Debug("geo: skipping non-polygon feature", zap.Int("index", i))
			continue
		}
		b := model.FieldBoundary{
			ID:      firstNonEmpty(f.ID, stringProp(f.Properties, "id")),
			Name:    stringProp(f.Properties, "name"),
			Crop:    NormalizeCrop(stringProp(f.Properties, "crop")),
			Polygon: ring,
		}
		if ha, ok := floatProp(f.Properties, "area_hectares"); ok {
			b.AreaHectares = &ha
		}
		out = append(out, finish(b, i))
	}
	return out, nil
}

type yamlFields struct {
	Fields []model.FieldBoundary `yaml:"fields"`
}

// ReadYAML parses a `fields:` list of boundaries.
func ReadYAML(data []byte) ([]model.FieldBoundary, error) {
	var doc yamlFields
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrap(err, "geo: parse yaml fields")
	}
	out := make([]model.FieldBoundary, 0, len(doc.Fields))
	for i, b := range doc.Fields {
		b.Crop = NormalizeCrop(b.Crop)
		out = append(out, finish(b, i))
	}
	return out, nil
}

// ReadShapefile loads polygon shapes, using the NAME and CROP attributes when
// the shapefile carries them.
func ReadShapefile(path string) ([]model.FieldBoundary, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "geo: open shapefile")
	}
	defer func() { _ = reader.Close() }()

	nameIdx := fieldIndex(reader, "NAME")
	cropIdx := fieldIndex(reader, "CROP")

	var out []model.FieldBoundary
	for reader.Next() {
		n, shape := reader.Shape()
		poly, ok := shape.(*shp.Polygon)
		if !ok || poly == nil {
			continue
		}
		ring := shapeRing(poly)
		if len(ring) < model.MinPolygonVertices {
			continue
		}
		b := model.FieldBoundary{Polygon: ring}
		if nameIdx >= 0 {
			b.Name = strings.TrimSpace(reader.Attribute(nameIdx))
		}
		if cropIdx >= 0 {
			b.Crop = NormalizeCrop(reader.Attribute(cropIdx))
		}
		out = append(out, finish(b, n))
	}
	return out, nil
}

var cropCaser = cases.Title(language.English)

// NormalizeCrop trims and title-cases a crop name ("winter WHEAT" -> "Winter Wheat").
func NormalizeCrop(s string) string {
	s = strings.TrimSpace(strings.TrimRight(s, "\x00"))
	if s == "" {
		return ""
	}
	return cropCaser.String(strings.ToLower(s))
}

// finish assigns an id and a display name when the source omitted them and
// computes the area.
func finish(b model.FieldBoundary, index int) model.FieldBoundary {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	if b.Name == "" {
		b.Name = fmt.Sprintf("Field %d", index+1)
	}
	return EnsureArea(b)
}

func exteriorRing(g geom.T) []model.LatLng {
	var poly *geom.Polygon
	switch t := g.(type) {
	case *geom.Polygon:
		poly = t
	case *geom.MultiPolygon:
		if t.NumPolygons() == 0 {
			return nil
		}
		poly = t.Polygon(0)
	default:
		return nil
	}
	if poly.NumLinearRings() == 0 {
		return nil
	}
	return openRing(poly.LinearRing(0).Coords())
}

// openRing converts x/y coordinates to lat/lng, dropping the closing vertex.
func openRing(coords []geom.Coord) []model.LatLng {
	ring := make([]model.LatLng, 0, len(coords))
	for _, c := range coords {
		ring = append(ring, model.LatLng{Lat: c.Y(), Lng: c.X()})
	}
	if n := len(ring); n > 1 && ring[0] == ring[n-1] {
		ring = ring[:n-1]
	}
	return ring
}

// shapeRing returns the first part of a shapefile polygon.
func shapeRing(p *shp.Polygon) []model.LatLng {
	if p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}
	end := int32(len(p.Points))
	if p.NumParts > 1 {
		end = p.Parts[1]
	}
	coords := make([]geom.Coord, 0, end-p.Parts[0])
	for j := p.Parts[0]; j < end; j++ {
		coords = append(coords, geom.Coord{p.Points[j].X, p.Points[j].Y})
	}
	return openRing(coords)
}

// fieldIndex returns the index of a named attribute, or -1 if absent.
func fieldIndex(reader *shp.Reader, name string) int {
	for i, f := range reader.Fields() {
		if strings.EqualFold(strings.TrimRight(f.String(), "\x00"), name) {
			return i
		}
	}
	return -1
}

func stringProp(props map[string]interface{}, key string) string {
	if v, ok := props[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func floatProp(props map[string]interface{}, key string) (float64, bool) {
	v, ok := props[key].(float64)
	return v, ok
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
