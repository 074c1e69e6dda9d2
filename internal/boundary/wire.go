package boundary

import (
	"github.com/sells-group/farmndvi/internal/model"
)

// Response is the JSON body served by every boundary HTTP source:
// {"fields":[{"id","name","crop","areaHectares","boundary":[{"lat","lng"}]}]}.
type Response struct {
	Fields []WireField `json:"fields"`
}

// WireField is one field boundary on the wire.
type WireField struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Crop         string         `json:"crop,omitempty"`
	AreaHectares *float64       `json:"areaHectares,omitempty"`
	Boundary     []model.LatLng `json:"boundary"`
}

// Encode converts field boundaries to their wire form.
func Encode(fields []model.FieldBoundary) Response {
	out := Response{Fields: make([]WireField, 0, len(fields))}
	for _, f := range fields {
		out.Fields = append(out.Fields, WireField{
			ID:           f.ID,
			Name:         f.Name,
			Crop:         f.Crop,
			AreaHectares: f.AreaHectares,
			Boundary:     f.Polygon,
		})
	}
	return out
}

// Decode converts a wire response to field boundaries without validating them.
func (r Response) Decode() []model.FieldBoundary {
	out := make([]model.FieldBoundary, 0, len(r.Fields))
	for _, w := range r.Fields {
		out = append(out, model.FieldBoundary{
			ID:           w.ID,
			Name:         w.Name,
			Crop:         w.Crop,
			AreaHectares: w.AreaHectares,
			Polygon:      w.Boundary,
		})
	}
	return out
}
