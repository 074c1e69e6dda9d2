// Package boundary resolves a farm's field boundaries through an ordered
// chain of sources, ending in embedded sample boundaries so resolution
// never comes back empty.
package boundary

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/farmndvi/internal/metrics"
	"github.com/sells-group/farmndvi/internal/model"
)

// SourceSamples names the embedded sample rung.
const SourceSamples = "samples"

// ErrNoFields is returned by a provider that answered with no usable fields.
var ErrNoFields = eris.New("boundary: no usable fields")

// ErrUnavailable is returned for a provider that is not configured.
var ErrUnavailable = eris.New("boundary: provider not configured")

// Provider is one rung of the boundary chain.
type Provider interface {
	Name() string
	Fields(ctx context.Context, farmID string) ([]model.FieldBoundary, error)
	Available() bool
}

// Attempt records one rung's outcome.
type Attempt struct {
	Provider string
	Err      error
}

// Resolution is the result of walking the chain.
type Resolution struct {
	Fields []model.FieldBoundary
	// Source is the provider that answered.
	Source string
	// Real is false when the boundaries came from the embedded samples.
	Real     bool
	Attempts []Attempt
}

// BoundaryError reports that every real source failed for a farm. The
// resolver converts it to sample boundaries; it is surfaced only in logs.
type BoundaryError struct {
	FarmID   string
	Attempts []Attempt
}

func (e *BoundaryError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %v", a.Provider, a.Err))
	}
	return fmt.Sprintf("boundary: all sources failed for farm %q: %s", e.FarmID, strings.Join(parts, "; "))
}

// Unwrap exposes the individual rung errors.
func (e *BoundaryError) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		errs = append(errs, a.Err)
	}
	return errs
}

// Resolver tries providers in order and falls back to samples.
type Resolver struct {
	providers []Provider
	timeout   time.Duration
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithRungTimeout bounds each provider call.
func WithRungTimeout(d time.Duration) ResolverOption {
	return func(r *Resolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// NewResolver creates a Resolver over the given providers, tried in order.
func NewResolver(providers []Provider, opts ...ResolverOption) *Resolver {
	r := &Resolver{providers: providers, timeout: 20 * time.Second}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve walks the chain for farmID. It never fails: when every provider
// fails the sample boundaries for farmID, or the default sample set, are
// returned with Real=false.
func (r *Resolver) Resolve(ctx context.Context, farmID string) Resolution {
	var attempts []Attempt

	for _, p := range r.providers {
		if !p.Available() {
			attempts = append(attempts, Attempt{Provider: p.Name(), Err: ErrUnavailable})
			continue
		}
		if ctx.Err() != nil {
			attempts = append(attempts, Attempt{Provider: p.Name(), Err: ctx.Err()})
			break
		}

		fields, err := r.try(ctx, p, farmID)
		if err != nil {
			zap.L().Debug("boundary: provider failed",
				zap.String("farm_id", farmID),
				zap.String("provider", p.Name()),
				zap.Error(err),
			)
			attempts = append(attempts, Attempt{Provider: p.Name(), Err: err})
			continue
		}

		attempts = append(attempts, Attempt{Provider: p.Name()})
		metrics.BoundaryResolutions.WithLabelValues(p.Name()).Inc()
		return Resolution{Fields: fields, Source: p.Name(), Real: true, Attempts: attempts}
	}

	if len(r.providers) > 0 {
		zap.L().Warn("boundary: falling back to sample boundaries",
			zap.String("farm_id", farmID),
			zap.Error(&BoundaryError{FarmID: farmID, Attempts: attempts}),
		)
	}
	attempts = append(attempts, Attempt{Provider: SourceSamples})
	metrics.BoundaryResolutions.WithLabelValues(SourceSamples).Inc()
	return Resolution{Fields: Samples(farmID), Source: SourceSamples, Attempts: attempts}
}

func (r *Resolver) try(ctx context.Context, p Provider, farmID string) ([]model.FieldBoundary, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	fields, err := p.Fields(ctx, farmID)
	if err != nil {
		return nil, err
	}
	fields = Sanitize(farmID, p.Name(), fields)
	if len(fields) == 0 {
		return nil, ErrNoFields
	}
	return fields, nil
}

// Sanitize drops invalid boundaries and repeated field ids, keeping the
// first occurrence and the input order.
func Sanitize(farmID, source string, fields []model.FieldBoundary) []model.FieldBoundary {
	seen := make(map[string]struct{}, len(fields))
	out := make([]model.FieldBoundary, 0, len(fields))
	for _, f := range fields {
		if err := f.Validate(); err != nil {
			zap.L().Warn("boundary: dropping invalid field",
				zap.String("farm_id", farmID),
				zap.String("provider", source),
				zap.String("field_id", f.ID),
				zap.Error(err),
			)
			continue
		}
		if _, dup := seen[f.ID]; dup {
			zap.L().Warn("boundary: dropping duplicate field id",
				zap.String("farm_id", farmID),
				zap.String("provider", source),
				zap.String("field_id", f.ID),
			)
			continue
		}
		seen[f.ID] = struct{}{}
		out = append(out, f)
	}
	return out
}
