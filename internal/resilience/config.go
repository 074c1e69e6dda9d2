package resilience

import (
	"time"
)

// RetryFromConfig builds a RetryConfig from the configured attempt count;
// non-positive values keep the default.
func RetryFromConfig(attempts int) RetryConfig {
	cfg := DefaultRetryConfig()
	if attempts > 0 {
		cfg.MaxAttempts = attempts
	}
	return cfg
}

// BreakerFromConfig builds a CircuitBreakerConfig from config values.
func BreakerFromConfig(failureThreshold, resetSecs int) CircuitBreakerConfig {
	cfg := DefaultCircuitBreakerConfig()
	if failureThreshold > 0 {
		cfg.FailureThreshold = failureThreshold
	}
	if resetSecs > 0 {
		cfg.ResetTimeout = time.Duration(resetSecs) * time.Second
	}
	return cfg
}
