// Package ndvi assembles farm NDVI snapshots: per-field imagery with a
// synthetic fallback, a TTL result cache, date projection and series
// summaries.
package ndvi

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/sells-group/farmndvi/internal/model"
)

// DefaultSeriesDays is the length of a synthetic series when none is given.
const DefaultSeriesDays = 91

const (
	seedBase   = 0.6
	seedSpan   = 0.3
	seasonRise = 0.15
	noiseSpan  = 0.05
)

// Entropy supplies uniform values in [0,1). *rand.Rand satisfies it.
type Entropy interface {
	Float64() float64
}

type globalEntropy struct{}

func (globalEntropy) Float64() float64 { return rand.Float64() }

// Generator produces plausible, temporally continuous NDVI series for fields
// with no imagery. Safe for concurrent use.
type Generator struct {
	mu      sync.Mutex
	entropy Entropy
}

// NewGenerator creates a Generator drawing from e, or from the global
// source when e is nil.
func NewGenerator(e Entropy) *Generator {
	if e == nil {
		e = globalEntropy{}
	}
	return &Generator{entropy: e}
}

// Seed draws a fresh seed in [0,1).
func (g *Generator) Seed() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.entropy.Float64()
}

// Generate returns one point per calendar day over [asOf-days+1, asOf],
// oldest first. Each value drifts upward from 0.6+seed*0.3 by up to 0.15
// across the window with ±0.05 daily noise, and becomes the base for the
// next day. days <= 0 means DefaultSeriesDays.
func (g *Generator) Generate(seed float64, days int, asOf time.Time) []model.NdviPoint {
	if days <= 0 {
		days = DefaultSeriesDays
	}
	seed = min(max(seed, 0), 1)
	end := model.Day(asOf)

	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]model.NdviPoint, 0, days)
	base := seedBase + seed*seedSpan
	for ago := days - 1; ago >= 0; ago-- {
		progress := 1.0
		if days > 1 {
			progress = float64(days-1-ago) / float64(days-1)
		}
		noise := (g.entropy.Float64()*2 - 1) * noiseSpan
		value := model.Round2(model.Clamp(base + seasonRise*progress + noise))
		out = append(out, model.NewPoint(end.AddDate(0, 0, -ago), value))
		base = value
	}
	return out
}
