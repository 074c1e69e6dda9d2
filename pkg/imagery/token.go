package imagery

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/sells-group/farmndvi/internal/metrics"
)

// TokenSource hands out bearer tokens for the imagery provider.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	// Invalidate drops the held token after the provider rejected it.
	Invalidate()
}

// BearerToken is the single access token held by a TokenCache.
type BearerToken struct {
	Value     string
	ExpiresAt time.Time
}

const (
	// refreshMargin keeps a token from expiring in the middle of a request.
	refreshMargin = 5 * time.Minute
	// defaultTokenTTL applies when the provider omits expires_in.
	defaultTokenTTL = time.Hour
)

// TokenCache holds at most one bearer token and refreshes it through an
// OAuth2 client-credentials exchange when it is missing or near expiry.
// Safe for concurrent use; concurrent callers share a single exchange.
type TokenCache struct {
	creds      clientcredentials.Config
	httpClient *http.Client
	timeout    time.Duration

	mu      sync.RWMutex
	current *BearerToken

	nowFunc func() time.Time
}

// TokenOption configures a TokenCache.
type TokenOption func(*TokenCache)

// WithTokenHTTPClient sets the client used for the token exchange.
func WithTokenHTTPClient(hc *http.Client) TokenOption {
	return func(c *TokenCache) { c.httpClient = hc }
}

// WithTokenTimeout bounds a single exchange.
func WithTokenTimeout(d time.Duration) TokenOption {
	return func(c *TokenCache) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// NewTokenCache creates an empty cache for the given client credentials.
func NewTokenCache(tokenURL, clientID, clientSecret string, opts ...TokenOption) *TokenCache {
	c := &TokenCache{
		creds: clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     tokenURL,
			AuthStyle:    oauth2.AuthStyleInParams,
		},
		httpClient: &http.Client{Timeout: 30 * time.Second},
		timeout:    30 * time.Second,
		nowFunc:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Token returns the held token while it is valid, otherwise exchanges the
// client credentials for a new one. A failed exchange leaves the cache empty
// and returns an *AuthError.
func (c *TokenCache) Token(ctx context.Context) (string, error) {
	c.mu.RLock()
	if tok := c.current; tok != nil && c.nowFunc().Before(tok.ExpiresAt) {
		c.mu.RUnlock()
		return tok.Value, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Another caller may have refreshed while we waited for the lock.
	if tok := c.current; tok != nil && c.nowFunc().Before(tok.ExpiresAt) {
		return tok.Value, nil
	}
	c.current = nil

	if c.creds.ClientID == "" || c.creds.ClientSecret == "" {
		return "", &AuthError{Err: ErrNoCredentials}
	}

	ctx, cancel := context.WithTimeout(context.WithValue(ctx, oauth2.HTTPClient, c.httpClient), c.timeout)
	defer cancel()

	raw, err := c.creds.Token(ctx)
	if err != nil {
		metrics.TokenExchanges.WithLabelValues("failure").Inc()
		return "", &AuthError{Err: eris.Wrap(err, "client credentials exchange")}
	}
	if raw.AccessToken == "" {
		metrics.TokenExchanges.WithLabelValues("failure").Inc()
		return "", &AuthError{Err: eris.New("empty access token")}
	}

	ttl := defaultTokenTTL
	switch {
	case raw.ExpiresIn > 0:
		ttl = time.Duration(raw.ExpiresIn) * time.Second
	case !raw.Expiry.IsZero():
		// Expiry is stamped from the wall clock by the oauth2 package.
		ttl = time.Until(raw.Expiry)
	}
	c.current = &BearerToken{
		Value:     raw.AccessToken,
		ExpiresAt: c.nowFunc().Add(ttl - refreshMargin),
	}
	metrics.TokenExchanges.WithLabelValues("success").Inc()
	zap.L().Debug("imagery: token refreshed", zap.Time("expires_at", c.current.ExpiresAt))

	return c.current.Value, nil
}

// Invalidate drops the held token so the next Token call exchanges again.
func (c *TokenCache) Invalidate() {
	c.mu.Lock()
	c.current = nil
	c.mu.Unlock()
}

// held returns a copy of the held token, or nil when empty.
func (c *TokenCache) held() *BearerToken {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current == nil {
		return nil
	}
	tok := *c.current
	return &tok
}
