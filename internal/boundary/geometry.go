package boundary

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/farmndvi/internal/model"
	"github.com/sells-group/farmndvi/internal/resilience"
)

// GeometryProvider reads field boundaries from the external geometry
// service at GET {baseURL}/farms/{farmId}/fields.
type GeometryProvider struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
	retry   resilience.RetryConfig
}

// GeometryOption configures a GeometryProvider.
type GeometryOption func(*GeometryProvider)

// WithGeometryHTTPClient sets a custom HTTP client.
func WithGeometryHTTPClient(hc *http.Client) GeometryOption {
	return func(p *GeometryProvider) { p.http = hc }
}

// WithGeometryRateLimit caps requests per second.
func WithGeometryRateLimit(rps float64) GeometryOption {
	return func(p *GeometryProvider) {
		if rps > 0 {
			p.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// WithGeometryRetry sets the retry policy for transient failures.
func WithGeometryRetry(cfg resilience.RetryConfig) GeometryOption {
	return func(p *GeometryProvider) { p.retry = cfg }
}

// NewGeometryProvider creates a geometry service client. An empty baseURL
// leaves the provider unavailable.
func NewGeometryProvider(baseURL, apiKey string, opts ...GeometryOption) *GeometryProvider {
	p := &GeometryProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 20 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(5), 1),
		retry:   resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.retry.OnRetry == nil {
		p.retry.OnRetry = resilience.RetryLogger(p.Name(), "fields")
	}
	return p
}

// Name implements Provider.
func (p *GeometryProvider) Name() string { return "geometry" }

// Available implements Provider.
func (p *GeometryProvider) Available() bool { return p.baseURL != "" }

// Fields implements Provider.
func (p *GeometryProvider) Fields(ctx context.Context, farmID string) ([]model.FieldBoundary, error) {
	endpoint := p.baseURL + "/farms/" + url.PathEscape(farmID) + "/fields"
	header := http.Header{}
	if p.apiKey != "" {
		header.Set("X-API-Key", p.apiKey)
	}

	resp, err := resilience.DoVal(ctx, p.retry, func(ctx context.Context) (Response, error) {
		if err := p.limiter.Wait(ctx); err != nil {
			return Response{}, eris.Wrap(err, "rate limiter wait")
		}
		return getFields(ctx, p.http, endpoint, header)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "boundary: geometry fields for farm %s", farmID)
	}
	return resp.Decode(), nil
}
