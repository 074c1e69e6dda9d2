package imagery

import (
	"fmt"
	"net/http"

	"github.com/rotisserie/eris"

	"github.com/sells-group/farmndvi/internal/resilience"
)

// ErrNoData is wrapped by ProviderError when the provider answered but no
// date carried a usable statistic.
var ErrNoData = eris.New("imagery: no usable dates in response")

// ErrNoCredentials is wrapped by AuthError when no client id/secret is configured.
var ErrNoCredentials = eris.New("imagery: client credentials not configured")

// AuthError reports a failed client-credentials exchange or a rejected token.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string { return "imagery: auth: " + e.Err.Error() }
func (e *AuthError) Unwrap() error { return e.Err }

// ProviderError reports any failed imagery fetch. StatusCode is zero when the
// request never produced an HTTP response.
type ProviderError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("imagery: %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("imagery: %s: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// RateLimited reports whether the provider throttled the request.
func (e *ProviderError) RateLimited() bool { return e.StatusCode == http.StatusTooManyRequests }

// HTTPStatus implements resilience.StatusCoder so outages are classified by
// the provider's status rather than the wrapped message.
func (e *ProviderError) HTTPStatus() int { return e.StatusCode }

// IsOutage reports whether err looks like the provider being down or
// throttling, as opposed to a bad request or an empty result. Only outages
// count toward the circuit breaker.
func IsOutage(err error) bool {
	return resilience.IsTransient(err)
}
