package ndvi

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/farmndvi/internal/boundary"
	"github.com/sells-group/farmndvi/internal/metrics"
	"github.com/sells-group/farmndvi/internal/model"
	"github.com/sells-group/farmndvi/pkg/imagery"
)

const (
	defaultWindowDays    = 90
	defaultMaxConcurrent = 8
)

// BoundaryResolver resolves a farm's fields. *boundary.Resolver satisfies it.
type BoundaryResolver interface {
	Resolve(ctx context.Context, farmID string) boundary.Resolution
}

// Aggregator builds a FarmSnapshot from a farm's fields, fetching each
// field's imagery concurrently and substituting synthetic data per field.
type Aggregator struct {
	resolver      BoundaryResolver
	fetcher       imagery.Fetcher
	generator     *Generator
	windowDays    int
	maxConcurrent int
	nowFunc       func() time.Time
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*Aggregator)

// WithWindowDays sets the trailing imagery window in days.
func WithWindowDays(n int) AggregatorOption {
	return func(a *Aggregator) {
		if n > 0 {
			a.windowDays = n
		}
	}
}

// WithMaxConcurrentFields bounds the per-field fan-out.
func WithMaxConcurrentFields(n int) AggregatorOption {
	return func(a *Aggregator) {
		if n > 0 {
			a.maxConcurrent = n
		}
	}
}

// WithGenerator sets the synthetic fallback generator.
func WithGenerator(g *Generator) AggregatorOption {
	return func(a *Aggregator) {
		if g != nil {
			a.generator = g
		}
	}
}

// WithClock overrides the aggregator's notion of now.
func WithClock(now func() time.Time) AggregatorOption {
	return func(a *Aggregator) {
		if now != nil {
			a.nowFunc = now
		}
	}
}

// NewAggregator creates an Aggregator. A nil fetcher makes every field synthetic.
func NewAggregator(resolver BoundaryResolver, fetcher imagery.Fetcher, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		resolver:      resolver,
		fetcher:       fetcher,
		generator:     NewGenerator(nil),
		windowDays:    defaultWindowDays,
		maxConcurrent: defaultMaxConcurrent,
		nowFunc:       time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Aggregate resolves farmID's fields and returns a snapshot with one record
// per field. Field failures never fail the aggregation; the only error is
// ctx being done before the snapshot is complete.
func (a *Aggregator) Aggregate(ctx context.Context, farmID, farmName string) (*model.FarmSnapshot, error) {
	start := time.Now()
	defer func() { metrics.AggregationDuration.Observe(time.Since(start).Seconds()) }()

	if farmName == "" {
		farmName = farmID
	}

	res := a.resolver.Resolve(ctx, farmID)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := a.nowFunc()
	to := model.Day(now)
	from := to.AddDate(0, 0, -a.windowDays)

	var mu sync.Mutex
	records := make(map[string]model.FieldRecord, len(res.Fields))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.maxConcurrent)
	for _, field := range res.Fields {
		g.Go(func() error {
			rec := a.fieldRecord(gctx, farmID, field, from, to)
			mu.Lock()
			records[field.ID] = rec
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	snap := &model.FarmSnapshot{
		FarmID:              farmID,
		FarmName:            farmName,
		LastUpdated:         now,
		Fields:              records,
		AverageValue:        model.AverageCurrent(records),
		UsingRealData:       model.AnyReal(records),
		UsingRealBoundaries: res.Real,
	}

	zap.L().Info("ndvi: farm aggregated",
		zap.String("farm_id", farmID),
		zap.Int("fields", len(records)),
		zap.String("boundary_source", res.Source),
		zap.Bool("using_real_data", snap.UsingRealData),
		zap.Float64("average", snap.AverageValue),
	)
	return snap, nil
}

func (a *Aggregator) fieldRecord(ctx context.Context, farmID string, field model.FieldBoundary, from, to time.Time) model.FieldRecord {
	if a.fetcher != nil {
		series, err := a.fetcher.Fetch(ctx, field.Polygon, from, to)
		if err == nil && len(series) > 0 {
			metrics.FieldSeries.WithLabelValues("imagery").Inc()
			return model.NewFieldRecord(field, series, true)
		}
		zap.L().Warn("ndvi: imagery unavailable, using synthetic series",
			zap.String("farm_id", farmID),
			zap.String("field_id", field.ID),
			zap.Bool("rate_limited", rateLimited(err)),
			zap.Error(err),
		)
	}

	metrics.FieldSeries.WithLabelValues("synthetic").Inc()
	series := a.generator.Generate(a.generator.Seed(), a.windowDays+1, to)
	return model.NewFieldRecord(field, series, false)
}

func rateLimited(err error) bool {
	var pe *imagery.ProviderError
	return errors.As(err, &pe) && pe.RateLimited()
}
