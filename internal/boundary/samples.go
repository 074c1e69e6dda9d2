package boundary

import (
	_ "embed"
	"fmt"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/sells-group/farmndvi/internal/model"
)

//go:embed samples.yaml
var samplesYAML []byte

type sampleField struct {
	ID           string         `yaml:"id"`
	Name         string         `yaml:"name"`
	Crop         string         `yaml:"crop"`
	AreaHectares *float64       `yaml:"area_hectares"`
	Boundary     []model.LatLng `yaml:"boundary"`
}

type sampleSet struct {
	Farms   map[string][]sampleField `yaml:"farms"`
	Default []sampleField            `yaml:"default"`
}

var samples = mustLoadSamples(samplesYAML)

func mustLoadSamples(data []byte) sampleSet {
	var s sampleSet
	if err := yaml.Unmarshal(data, &s); err != nil {
		panic(fmt.Sprintf("boundary: parse embedded samples: %v", err))
	}
	if len(s.Default) == 0 {
		panic("boundary: embedded samples have no default set")
	}
	return s
}

// Samples returns the sample boundaries for farmID, or the default set when
// the farm has none. The result is never empty and is a fresh copy.
func Samples(farmID string) []model.FieldBoundary {
	set, ok := samples.Farms[farmID]
	if !ok || len(set) == 0 {
		set = samples.Default
	}
	out := make([]model.FieldBoundary, 0, len(set))
	for _, f := range set {
		b := model.FieldBoundary{
			ID:      f.ID,
			Name:    f.Name,
			Crop:    f.Crop,
			Polygon: slices.Clone(f.Boundary),
		}
		if f.AreaHectares != nil {
			area := *f.AreaHectares
			b.AreaHectares = &area
		}
		out = append(out, b)
	}
	return out
}
