package boundary

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/farmndvi/internal/resilience"
)

const fieldsBody = `{"fields":[{"id":"f1","name":"North","crop":"Corn","areaHectares":12.5,
  "boundary":[{"lat":41.0,"lng":-93.0},{"lat":41.0,"lng":-92.99},{"lat":41.01,"lng":-92.99}]}]}`

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}
}

func TestGeometryProvider_Fields(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/farms/farm-1/fields", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("X-API-Key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(fieldsBody))
	}))
	defer srv.Close()

	p := NewGeometryProvider(srv.URL, "secret", WithGeometryRateLimit(100))
	fields, err := p.Fields(t.Context(), "farm-1")
	require.NoError(t, err)
	require.Len(t, fields, 1)
	assert.Equal(t, "f1", fields[0].ID)
	assert.Equal(t, "Corn", fields[0].Crop)
	require.NotNil(t, fields[0].AreaHectares)
	assert.InDelta(t, 12.5, *fields[0].AreaHectares, 1e-9)
	assert.Len(t, fields[0].Polygon, 3)
}

func TestGeometryProvider_RetriesTransient(t *testing.T) {
	t.Parallel()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(fieldsBody))
	}))
	defer srv.Close()

	p := NewGeometryProvider(srv.URL, "", WithGeometryRetry(fastRetry()), WithGeometryRateLimit(100))
	fields, err := p.Fields(t.Context(), "farm-1")
	require.NoError(t, err)
	assert.Len(t, fields, 1)
	assert.Equal(t, int32(2), hits.Load())
}

func TestGeometryProvider_NoRetryOnNotFound(t *testing.T) {
	t.Parallel()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		http.NotFound(w, nil)
	}))
	defer srv.Close()

	p := NewGeometryProvider(srv.URL, "", WithGeometryRetry(fastRetry()), WithGeometryRateLimit(100))
	_, err := p.Fields(t.Context(), "farm-1")
	require.Error(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestGeometryProvider_LongRetryAfterNotRetried(t *testing.T) {
	t.Parallel()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.Header().Set("Retry-After", "3600")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewGeometryProvider(srv.URL, "", WithGeometryRetry(fastRetry()), WithGeometryRateLimit(100))
	_, err := p.Fields(t.Context(), "farm-1")
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
	assert.Equal(t, int32(1), hits.Load())
}

func TestGeometryProvider_Unavailable(t *testing.T) {
	t.Parallel()
	assert.False(t, NewGeometryProvider("", "").Available())
	assert.True(t, NewGeometryProvider("http://geo", "").Available())
}

func TestLocalProvider_Fields(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/farms/farm 2/fields", r.URL.Path)
		_, _ = w.Write([]byte(fieldsBody))
	}))
	defer srv.Close()

	p := NewLocalProvider(srv.URL+"/", nil)
	fields, err := p.Fields(t.Context(), "farm 2")
	require.NoError(t, err)
	assert.Len(t, fields, 1)
}

func TestLocalProvider_BadJSON(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"fields":`))
	}))
	defer srv.Close()

	_, err := NewLocalProvider(srv.URL, nil).Fields(t.Context(), "farm-1")
	assert.Error(t, err)
}

func TestLocalProvider_ThroughResolver(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(fieldsBody))
	}))
	defer srv.Close()

	r := NewResolver([]Provider{NewGeometryProvider("", ""), NewLocalProvider(srv.URL, nil)})
	res := r.Resolve(t.Context(), "farm-1")
	assert.True(t, res.Real)
	assert.Equal(t, "local", res.Source)
}
