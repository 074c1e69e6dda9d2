package imagery

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tokenServer(t *testing.T, status int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var exchanges atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := exchanges.Add(1)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		assert.Equal(t, "id", r.PostForm.Get("client_id"))
		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":"invalid_client"}`))
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"tok-` + string(rune('0'+n)) + `","token_type":"bearer","expires_in":3600}`))
	}))
	t.Cleanup(srv.Close)
	return srv, &exchanges
}

func TestTokenCache_ReusesValidToken(t *testing.T) {
	t.Parallel()
	srv, exchanges := tokenServer(t, http.StatusOK)
	cache := NewTokenCache(srv.URL, "id", "secret")

	first, err := cache.Token(t.Context())
	require.NoError(t, err)
	second, err := cache.Token(t.Context())
	require.NoError(t, err)

	assert.Equal(t, "tok-1", first)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), exchanges.Load())
}

func TestTokenCache_RefreshesInsideMargin(t *testing.T) {
	t.Parallel()
	srv, exchanges := tokenServer(t, http.StatusOK)
	cache := NewTokenCache(srv.URL, "id", "secret")
	now := time.Now()
	cache.nowFunc = func() time.Time { return now }

	_, err := cache.Token(t.Context())
	require.NoError(t, err)
	cur := cache.held()
	require.NotNil(t, cur)
	assert.WithinDuration(t, now.Add(55*time.Minute), cur.ExpiresAt, 5*time.Second)

	now = now.Add(54 * time.Minute)
	tok, err := cache.Token(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)

	now = now.Add(2 * time.Minute)
	tok, err = cache.Token(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "tok-2", tok)
	assert.Equal(t, int32(2), exchanges.Load())
}

func TestTokenCache_ConcurrentCallersShareExchange(t *testing.T) {
	t.Parallel()
	srv, exchanges := tokenServer(t, http.StatusOK)
	cache := NewTokenCache(srv.URL, "id", "secret")

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, err := cache.Token(t.Context())
			assert.NoError(t, err)
			assert.Equal(t, "tok-1", tok)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), exchanges.Load())
}

func TestTokenCache_FailureLeavesCacheEmpty(t *testing.T) {
	t.Parallel()
	srv, _ := tokenServer(t, http.StatusUnauthorized)
	cache := NewTokenCache(srv.URL, "id", "secret")

	_, err := cache.Token(t.Context())
	require.Error(t, err)
	var authErr *AuthError
	assert.True(t, errors.As(err, &authErr))
	assert.Nil(t, cache.held())
}

func TestTokenCache_MissingCredentials(t *testing.T) {
	t.Parallel()
	cache := NewTokenCache("http://127.0.0.1:0", "", "")

	_, err := cache.Token(t.Context())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestTokenCache_Invalidate(t *testing.T) {
	t.Parallel()
	srv, exchanges := tokenServer(t, http.StatusOK)
	cache := NewTokenCache(srv.URL, "id", "secret")

	_, err := cache.Token(t.Context())
	require.NoError(t, err)
	cache.Invalidate()
	assert.Nil(t, cache.held())

	tok, err := cache.Token(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "tok-2", tok)
	assert.Equal(t, int32(2), exchanges.Load())
}

func TestTokenCache_ExchangeTimeout(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	cache := NewTokenCache(srv.URL, "id", "secret", WithTokenTimeout(100*time.Millisecond))

	start := time.Now()
	_, err := cache.Token(t.Context())
	elapsed := time.Since(start)

	require.Error(t, err)
	var authErr *AuthError
	assert.True(t, errors.As(err, &authErr))
	assert.Nil(t, cache.held())
	assert.Less(t, elapsed, 2*time.Second, "exchange should time out instead of hanging")
}

func TestTokenCache_ExpiryFollowsInjectedClock(t *testing.T) {
	t.Parallel()
	srv, _ := tokenServer(t, http.StatusOK)
	cache := NewTokenCache(srv.URL, "id", "secret")
	now := time.Date(2020, 3, 1, 12, 0, 0, 0, time.UTC)
	cache.nowFunc = func() time.Time { return now }

	_, err := cache.Token(t.Context())
	require.NoError(t, err)

	cur := cache.held()
	require.NotNil(t, cur)
	assert.Equal(t, now.Add(time.Hour-refreshMargin), cur.ExpiresAt)
}
