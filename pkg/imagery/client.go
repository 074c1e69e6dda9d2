// Package imagery fetches daily NDVI statistics for a field polygon from the
// Sentinel Hub Statistical API.
package imagery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/farmndvi/internal/geo"
	"github.com/sells-group/farmndvi/internal/model"
	"github.com/sells-group/farmndvi/internal/resilience"
)

const (
	defaultBaseURL      = "https://services.sentinel-hub.com"
	defaultCollection   = "sentinel-2-l2a"
	defaultMaxCloud     = 30
	defaultTimeout      = 30 * time.Second
	statisticsPath      = "/api/v1/statistics"
	ndviOutput          = "ndvi"
	ndviBand            = "B0"
	resolutionDegrees   = 0.0001
	maxErrorBodyPreview = 512
)

// Fetcher retrieves an NDVI time series for one polygon.
type Fetcher interface {
	Fetch(ctx context.Context, polygon []model.LatLng, from, to time.Time) ([]model.NdviPoint, error)
}

// Client is the Sentinel Hub statistics implementation of Fetcher.
type Client struct {
	baseURL    string
	tokens     TokenSource
	http       *http.Client
	collection string
	maxCloud   int
	timeout    time.Duration
	breaker    *resilience.CircuitBreaker
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API base URL.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithCollection sets the data collection queried.
func WithCollection(name string) Option {
	return func(c *Client) {
		if name != "" {
			c.collection = name
		}
	}
}

// WithMaxCloudCoverage sets the scene-level cloud filter in percent.
func WithMaxCloudCoverage(pct int) Option {
	return func(c *Client) {
		if pct > 0 && pct <= 100 {
			c.maxCloud = pct
		}
	}
}

// WithTimeout bounds a single statistics request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithBreaker guards requests with a circuit breaker. Only outages (see
// IsOutage) trip it unless cfg.ShouldTrip says otherwise.
func WithBreaker(cfg resilience.CircuitBreakerConfig) Option {
	return func(c *Client) {
		if cfg.ShouldTrip == nil {
			cfg.ShouldTrip = IsOutage
		}
		if cfg.OnStateChange == nil {
			cfg.OnStateChange = func(from, to resilience.CircuitState) {
				zap.L().Warn("imagery: circuit breaker state change",
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			}
		}
		c.breaker = resilience.NewCircuitBreaker(cfg)
	}
}

// NewClient creates a statistics client that authenticates through tokens.
func NewClient(tokens TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		tokens:     tokens,
		http:       &http.Client{},
		collection: defaultCollection,
		maxCloud:   defaultMaxCloud,
		timeout:    defaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch returns one point per usable date in [from, to], ascending and
// de-duplicated by date. Every failure, including an answer with no usable
// dates, is a *ProviderError.
func (c *Client) Fetch(ctx context.Context, polygon []model.LatLng, from, to time.Time) ([]model.NdviPoint, error) {
	if c.breaker == nil {
		return c.fetch(ctx, polygon, from, to)
	}
	points, err := resilience.ExecuteVal(ctx, c.breaker, func(ctx context.Context) ([]model.NdviPoint, error) {
		return c.fetch(ctx, polygon, from, to)
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return nil, &ProviderError{Op: "statistics", Err: err}
	}
	return points, err
}

func (c *Client) fetch(ctx context.Context, polygon []model.LatLng, from, to time.Time) ([]model.NdviPoint, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, &ProviderError{Op: "token", Err: err}
	}

	geometry, err := geo.GeoJSON(polygon)
	if err != nil {
		return nil, &ProviderError{Op: "geometry", Err: err}
	}

	body, err := json.Marshal(c.buildRequest(geometry, from, to))
	if err != nil {
		return nil, &ProviderError{Op: "statistics", Err: eris.Wrap(err, "marshal request")}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+statisticsPath, bytes.NewReader(body))
	if err != nil {
		return nil, &ProviderError{Op: "statistics", Err: eris.Wrap(err, "create request")}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &ProviderError{Op: "statistics", Err: eris.Wrap(err, "send request")}
	}
	defer resp.Body.Close() //nolint:errcheck

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		c.tokens.Invalidate()
		return nil, &ProviderError{
			Op:         "statistics",
			StatusCode: resp.StatusCode,
			Err:        &AuthError{Err: eris.New("token rejected")},
		}
	case resp.StatusCode != http.StatusOK:
		preview, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyPreview))
		return nil, &ProviderError{
			Op:         "statistics",
			StatusCode: resp.StatusCode,
			Err:        eris.Errorf("unexpected response: %s", strings.TrimSpace(string(preview))),
		}
	}

	var parsed statsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, &ProviderError{Op: "statistics", StatusCode: resp.StatusCode, Err: eris.Wrap(err, "decode response")}
	}

	points := parsed.points()
	if len(points) == 0 {
		return nil, &ProviderError{Op: "statistics", StatusCode: resp.StatusCode, Err: ErrNoData}
	}
	return points, nil
}

func (c *Client) buildRequest(geometry json.RawMessage, from, to time.Time) statsRequest {
	var req statsRequest
	req.Input.Bounds.Geometry = geometry
	req.Input.Bounds.Properties.CRS = "http://www.opengis.net/def/crs/OGC/1.3/CRS84"
	req.Input.Data = []dataSource{{
		Type:       c.collection,
		DataFilter: dataFilter{MaxCloudCoverage: c.maxCloud},
	}}
	req.Aggregation.TimeRange.From = model.Day(from).Format(time.RFC3339)
	// The range end is exclusive; include the whole last day.
	req.Aggregation.TimeRange.To = model.Day(to).AddDate(0, 0, 1).Format(time.RFC3339)
	req.Aggregation.AggregationInterval.Of = "P1D"
	req.Aggregation.Evalscript = ndviEvalscript
	req.Aggregation.ResX = resolutionDegrees
	req.Aggregation.ResY = resolutionDegrees
	req.Calculations = map[string]any{"default": map[string]any{}}
	return req
}

type statsRequest struct {
	Input struct {
		Bounds struct {
			Geometry   json.RawMessage `json:"geometry"`
			Properties struct {
				CRS string `json:"crs"`
			} `json:"properties"`
		} `json:"bounds"`
		Data []dataSource `json:"data"`
	} `json:"input"`
	Aggregation struct {
		TimeRange struct {
			From string `json:"from"`
			To   string `json:"to"`
		} `json:"timeRange"`
		AggregationInterval struct {
			Of string `json:"of"`
		} `json:"aggregationInterval"`
		Evalscript string  `json:"evalscript"`
		ResX       float64 `json:"resx"`
		ResY       float64 `json:"resy"`
	} `json:"aggregation"`
	Calculations map[string]any `json:"calculations"`
}

type dataSource struct {
	Type       string     `json:"type"`
	DataFilter dataFilter `json:"dataFilter"`
}

type dataFilter struct {
	MaxCloudCoverage int `json:"maxCloudCoverage"`
}

type statsResponse struct {
	Data   []statsInterval `json:"data"`
	Status string          `json:"status"`
}

type statsInterval struct {
	Interval struct {
		From string `json:"from"`
		To   string `json:"to"`
	} `json:"interval"`
	Outputs map[string]statsOutput `json:"outputs"`
	Error   *struct {
		Type string `json:"type"`
	} `json:"error,omitempty"`
}

type statsOutput struct {
	Bands map[string]statsBand `json:"bands"`
}

type statsBand struct {
	Stats bandStats `json:"stats"`
}

type bandStats struct {
	Mean        statValue `json:"mean"`
	SampleCount int       `json:"sampleCount"`
	NoDataCount int       `json:"noDataCount"`
}

// statValue is a statistic that the provider may report as a JSON number or
// as a string such as "NaN" when every pixel was masked.
type statValue struct {
	value float64
	ok    bool
}

func (s *statValue) UnmarshalJSON(data []byte) error {
	*s = statValue{}
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
		raw = text
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	s.value, s.ok = v, true
	return nil
}

// points extracts usable daily means. Later intervals win on duplicate dates.
func (r statsResponse) points() []model.NdviPoint {
	byDay := make(map[time.Time]model.NdviPoint, len(r.Data))
	for _, iv := range r.Data {
		if iv.Error != nil {
			continue
		}
		band, ok := iv.Outputs[ndviOutput].Bands[ndviBand]
		if !ok || !band.Stats.Mean.ok {
			continue
		}
		if band.Stats.SampleCount > 0 && band.Stats.NoDataCount >= band.Stats.SampleCount {
			continue
		}
		day, err := time.Parse(time.RFC3339, iv.Interval.From)
		if err != nil {
			if day, err = model.ParseDay(iv.Interval.From); err != nil {
				zap.L().Debug("imagery: skipping interval with bad date", zap.String("from", iv.Interval.From))
				continue
			}
		}
		day = model.Day(day)
		byDay[day] = model.NewPoint(day, band.Stats.Mean.value)
	}

	out := make([]model.NdviPoint, 0, len(byDay))
	for _, p := range byDay {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// String is for logs.
func (c *Client) String() string {
	return fmt.Sprintf("imagery.Client{base=%s collection=%s}", c.baseURL, c.collection)
}
