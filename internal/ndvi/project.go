package ndvi

import (
	"time"

	"github.com/sells-group/farmndvi/internal/model"
)

// Project returns a copy of snap whose fields report their value on target:
// the point dated exactly target, or the latest point when there is none.
// The average is recomputed from the projected values. Series are shared
// with snap, which is never modified. A nil snap projects to nil.
func Project(snap *model.FarmSnapshot, target time.Time) *model.FarmSnapshot {
	if snap == nil {
		return nil
	}
	out := *snap
	out.Fields = make(map[string]model.FieldRecord, len(snap.Fields))

	for id, rec := range snap.Fields {
		if p, ok := SelectPoint(rec.Series, target); ok {
			rec.CurrentValue = p.Value
			rec.CurrentHealth = p.Health
		}
		out.Fields[id] = rec
	}
	out.AverageValue = model.AverageCurrent(out.Fields)
	return &out
}

// SelectPoint returns the point dated on target's calendar day, else the
// last point. ok is false only for an empty series.
func SelectPoint(series []model.NdviPoint, target time.Time) (model.NdviPoint, bool) {
	if len(series) == 0 {
		return model.NdviPoint{}, false
	}
	day := model.Day(target)
	for _, p := range series {
		if p.Date.Equal(day) {
			return p, true
		}
	}
	return series[len(series)-1], true
}
