package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/farmndvi/internal/boundary"
	"github.com/sells-group/farmndvi/internal/config"
	"github.com/sells-group/farmndvi/internal/ndvi"
	"github.com/sells-group/farmndvi/internal/resilience"
	"github.com/sells-group/farmndvi/internal/store"
	"github.com/sells-group/farmndvi/pkg/imagery"
)

// ndviEnv holds the store and the NDVI pipeline needed by the serve, ndvi
// and export commands.
type ndviEnv struct {
	Store      store.Store
	Resolver   *boundary.Resolver
	Fetcher    imagery.Fetcher
	Aggregator *ndvi.Aggregator
	Cache      *ndvi.Cache
}

// Close releases resources held by the environment.
func (e *ndviEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initStore opens and migrates the configured field store.
func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// initEnv validates config for mode and wires the store, boundary chain,
// imagery client, aggregator and cache. Callers should defer env.Close().
func initEnv(ctx context.Context, mode string) (*ndviEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	resolver := newResolver(cfg.Boundary, localRung(mode, cfg, st))
	fetcher := newFetcher(cfg.Imagery)
	agg := ndvi.NewAggregator(resolver, fetcher,
		ndvi.WithWindowDays(cfg.NDVI.WindowDays),
		ndvi.WithMaxConcurrentFields(cfg.NDVI.MaxConcurrentFields),
	)

	return &ndviEnv{
		Store:      st,
		Resolver:   resolver,
		Fetcher:    fetcher,
		Aggregator: agg,
		Cache:      ndvi.NewCache(agg),
	}, nil
}

// localRung picks the second boundary source. An explicit boundary.local_url
// wins; otherwise serve calls its own field API on the port it listens on and
// the other commands read the store directly.
func localRung(mode string, c *config.Config, st store.Store) boundary.Provider {
	switch {
	case c.Boundary.LocalURL != "":
		return boundary.NewLocalProvider(c.Boundary.LocalURL, nil)
	case mode == "serve":
		return boundary.NewLocalProvider(fmt.Sprintf("http://127.0.0.1:%d", c.Server.Port), nil)
	default:
		return boundary.NewStoreProvider(st)
	}
}

func newResolver(c config.BoundaryConfig, local boundary.Provider) *boundary.Resolver {
	timeout := time.Duration(c.TimeoutSecs) * time.Second
	geometry := boundary.NewGeometryProvider(c.GeometryURL, c.GeometryKey,
		boundary.WithGeometryRateLimit(c.GeometryRPS),
		boundary.WithGeometryRetry(resilience.RetryFromConfig(c.Retries)),
	)
	return boundary.NewResolver([]boundary.Provider{geometry, local}, boundary.WithRungTimeout(timeout))
}

// newFetcher returns nil when no credentials are configured, which makes
// every field synthetic without a doomed token exchange per field.
func newFetcher(c config.ImageryConfig) imagery.Fetcher {
	if !c.Enabled() {
		zap.L().Warn("imagery credentials not configured; NDVI series will be synthetic")
		return nil
	}
	timeout := time.Duration(c.TimeoutSecs) * time.Second
	tokens := imagery.NewTokenCache(c.TokenURL, c.ClientID, c.ClientSecret, imagery.WithTokenTimeout(timeout))
	return imagery.NewClient(tokens,
		imagery.WithBaseURL(c.BaseURL),
		imagery.WithCollection(c.Collection),
		imagery.WithMaxCloudCoverage(c.MaxCloudCoverage),
		imagery.WithTimeout(timeout),
		imagery.WithBreaker(resilience.BreakerFromConfig(c.BreakerFailures, c.BreakerResetSecs)),
	)
}
