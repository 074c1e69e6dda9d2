package ndvi

import (
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/farmndvi/internal/model"
)

// ZoneCount is the number of equal-width bands a series is split into.
const ZoneCount = 5

// ErrEmptySeries is returned when there is nothing to summarise.
var ErrEmptySeries = eris.New("ndvi: empty series")

// Zone is one value band of a series.
type Zone struct {
	Min        float64 `json:"min"`
	Max        float64 `json:"max"`
	Average    float64 `json:"average"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// SeriesStats summarises a field series.
type SeriesStats struct {
	From   time.Time            `json:"from"`
	To     time.Time            `json:"to"`
	Count  int                  `json:"count"`
	Min    float64              `json:"min"`
	Max    float64              `json:"max"`
	Mean   float64              `json:"mean"`
	Health model.HealthCategory `json:"health"`
	Zones  []Zone               `json:"zones"`
}

// Summarize computes min, max and mean of series and splits [min, max] into
// ZoneCount equal-width zones. The top zone includes max, empty zones are
// omitted, and a constant series yields one zone. Health classifies the mean.
func Summarize(series []model.NdviPoint) (SeriesStats, error) {
	if len(series) == 0 {
		return SeriesStats{}, ErrEmptySeries
	}

	lo, hi, sum := series[0].Value, series[0].Value, 0.0
	from, to := series[0].Date, series[0].Date
	for _, p := range series {
		lo, hi = min(lo, p.Value), max(hi, p.Value)
		sum += p.Value
		if p.Date.Before(from) {
			from = p.Date
		}
		if p.Date.After(to) {
			to = p.Date
		}
	}
	mean := sum / float64(len(series))

	return SeriesStats{
		From:   from,
		To:     to,
		Count:  len(series),
		Min:    lo,
		Max:    hi,
		Mean:   model.Round2(mean),
		Health: model.Classify(mean),
		Zones:  zones(series, lo, hi),
	}, nil
}

func zones(series []model.NdviPoint, lo, hi float64) []Zone {
	total := float64(len(series))
	if hi == lo {
		return []Zone{{Min: lo, Max: hi, Average: model.Round2(lo), Count: len(series), Percentage: 100}}
	}

	width := (hi - lo) / ZoneCount
	var counts [ZoneCount]int
	var sums [ZoneCount]float64
	for _, p := range series {
		i := min(int((p.Value-lo)/width), ZoneCount-1)
		counts[i]++
		sums[i] += p.Value
	}

	out := make([]Zone, 0, ZoneCount)
	for i := range ZoneCount {
		if counts[i] == 0 {
			continue
		}
		upper := lo + float64(i+1)*width
		if i == ZoneCount-1 {
			upper = hi
		}
		out = append(out, Zone{
			Min:        model.Round2(lo + float64(i)*width),
			Max:        model.Round2(upper),
			Average:    model.Round2(sums[i] / float64(counts[i])),
			Count:      counts[i],
			Percentage: model.Round2(float64(counts[i]) / total * 100),
		})
	}
	return out
}

// Window returns the points of series dated within [from, to]. A zero bound
// is open. The result is a new slice.
func Window(series []model.NdviPoint, from, to time.Time) []model.NdviPoint {
	if !from.IsZero() {
		from = model.Day(from)
	}
	if !to.IsZero() {
		to = model.Day(to)
	}
	out := make([]model.NdviPoint, 0, len(series))
	for _, p := range series {
		if !from.IsZero() && p.Date.Before(from) {
			continue
		}
		if !to.IsZero() && p.Date.After(to) {
			continue
		}
		out = append(out, p)
	}
	return out
}
