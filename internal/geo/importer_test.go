package geo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const featureCollection = `{
  "type": "FeatureCollection",
  "features": [
    {
      "type": "Feature",
      "id": "north",
      "properties": {"name": "North Field", "crop": "winter WHEAT", "area_hectares": 12.5},
      "geometry": {"type": "Polygon", "coordinates": [[[-95.0, 40.0], [-94.99, 40.0], [-94.99, 40.01], [-95.0, 40.01], [-95.0, 40.0]]]}
    },
    {
      "type": "Feature",
      "properties": {"id": "south"},
      "geometry": {"type": "MultiPolygon", "coordinates": [[[[-95.0, 39.9], [-94.99, 39.9], [-94.99, 39.91], [-95.0, 39.9]]]]}
    },
    {
      "type": "Feature",
      "properties": {"name": "Well"},
      "geometry": {"type": "Point", "coordinates": [-95.0, 40.0]}
    }
  ]
}`

func TestReadFeatureCollection(t *testing.T) {
	t.Parallel()

	fields, err := ReadFeatureCollection([]byte(featureCollection))
	require.NoError(t, err)
	require.Len(t, fields, 2)

	north := fields[0]
	assert.Equal(t, "north", north.ID)
	assert.Equal(t, "North Field", north.Name)
	assert.Equal(t, "Winter Wheat", north.Crop)
	require.Len(t, north.Polygon, 4)
	assert.Equal(t, 40.0, north.Polygon[0].Lat)
	assert.Equal(t, -95.0, north.Polygon[0].Lng)
	require.NotNil(t, north.AreaHectares)
	assert.Equal(t, 12.5, *north.AreaHectares)

	south := fields[1]
	assert.Equal(t, "south", south.ID)
	assert.Equal(t, "Field 2", south.Name)
	assert.Len(t, south.Polygon, 3)
	require.NotNil(t, south.AreaHectares)
	assert.Positive(t, *south.AreaHectares)
}

func TestReadFeatureCollection_Invalid(t *testing.T) {
	t.Parallel()

	_, err := ReadFeatureCollection([]byte(`{"type":`))
	assert.ErrorContains(t, err, "parse feature collection")
}

func TestReadYAML(t *testing.T) {
	t.Parallel()

	doc := `
fields:
  - id: a
    name: Orchard
    crop: apples
    polygon:
      - {lat: 1.0, lng: 1.0}
      - {lat: 1.0, lng: 1.001}
      - {lat: 1.001, lng: 1.001}
  - polygon:
      - {lat: 2.0, lng: 2.0}
      - {lat: 2.0, lng: 2.001}
      - {lat: 2.001, lng: 2.001}
`
	fields, err := ReadYAML([]byte(doc))
	require.NoError(t, err)
	require.Len(t, fields, 2)
	assert.Equal(t, "a", fields[0].ID)
	assert.Equal(t, "Apples", fields[0].Crop)
	assert.NotEmpty(t, fields[1].ID)
	assert.Equal(t, "Field 2", fields[1].Name)
}

func TestReadShapefile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "fields.shp")
	w, err := shp.Create(path, shp.POLYGON)
	require.NoError(t, err)
	require.NoError(t, w.SetFields([]shp.Field{shp.StringField("NAME", 32), shp.StringField("CROP", 32)}))

	ring := []shp.Point{{X: -95.0, Y: 40.0}, {X: -94.99, Y: 40.0}, {X: -94.99, Y: 40.01}, {X: -95.0, Y: 40.0}}
	poly := shp.Polygon(*shp.NewPolyLine([][]shp.Point{ring}))
	n := w.Write(&poly)
	require.NoError(t, w.WriteAttribute(int(n), 0, "Back Forty"))
	require.NoError(t, w.WriteAttribute(int(n), 1, "corn"))
	w.Close()

	fields, err := ReadFile(path)
	require.NoError(t, err)
	require.Len(t, fields, 1)
	assert.Equal(t, "Back Forty", fields[0].Name)
	assert.Equal(t, "Corn", fields[0].Crop)
	assert.Len(t, fields[0].Polygon, 3)
	assert.NotEmpty(t, fields[0].ID)
}

func TestReadFile_UnsupportedExtension(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "fields.kml")
	require.NoError(t, os.WriteFile(path, []byte("<kml/>"), 0o644))

	_, err := ReadFile(path)
	assert.ErrorContains(t, err, "unsupported boundary file extension")
}

func TestNormalizeCrop(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Soybeans", NormalizeCrop("  SOYBEANS "))
	assert.Equal(t, "", NormalizeCrop("\x00\x00"))
}
