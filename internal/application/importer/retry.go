package importer

import (
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/mohammadpnp/product-import/internal/domain/catalog"
)

const (
	defaultRetryBase = 5 * time.Second
	maxRetryDelay    = 10 * time.Minute
)

// Backoff returns the delay before the attempt following attempt:
// base * 2^(attempt-1), capped at ten minutes. There is no jitter; the delay
// only feeds the task's run_after.
func Backoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = defaultRetryBase
	}
	if attempt < 1 {
		attempt = 1
	}

	policy := &backoff.ExponentialBackOff{
		InitialInterval:     base,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         maxRetryDelay,
		MaxElapsedTime:      0,
		Clock:               backoff.SystemClock,
	}
	policy.Reset()

	delay := policy.NextBackOff()
	for i := 1; i < attempt && delay < maxRetryDelay; i++ {
		delay = policy.NextBackOff()
	}
	return min(delay, maxRetryDelay)
}

// Retryable reports whether another attempt could succeed. Bad input and
// jobs that moved on without this task are final.
func Retryable(err error) bool {
	switch {
	case errors.Is(err, catalog.ErrMalformedInput),
		errors.Is(err, catalog.ErrJobNotFound),
		errors.Is(err, catalog.ErrInvalidTransition),
		errors.Is(err, ErrInvalidTask),
		errors.Is(err, ErrAttemptsExhausted):
		return false
	default:
		return true
	}
}
