package stars

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"time"

	ggh "github.com/google/go-github/v70/github"
)

// RetryConfig controls retrying of failed page requests. The zero value (and
// DefaultRetryConfig) performs no retries, matching the strict abort-on-first
// failure policy of the fetch; transient failures can be retried by raising
// MaxAttempts.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    1,
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2.0,
	}
}

// withRetry runs fn, retrying transient failures with exponential backoff and
// jitter. Non-transient errors (4xx responses) are returned immediately.
func withRetry(ctx context.Context, cfg RetryConfig, logger *slog.Logger, fn func() error) error {
	maxAttempts := max(cfg.MaxAttempts, 1)
	backoff := cfg.InitialBackoff
	if backoff <= 0 {
		backoff = time.Second
	}
	multiplier := cfg.Multiplier
	if multiplier <= 1 {
		multiplier = 2.0
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 1 && logger != nil {
				logger.Info("request succeeded after retry", "attempt", attempt)
			}
			return nil
		}
		lastErr = err

		if !transient(err) || attempt >= maxAttempts {
			break
		}

		// ±20% jitter
		wait := time.Duration(float64(backoff) * (0.8 + 0.4*rand.Float64()))
		if logger != nil {
			logger.Debug("retrying after backoff", "attempt", attempt, "backoff", wait, "err", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		backoff = time.Duration(float64(backoff) * multiplier)
		if cfg.MaxBackoff > 0 && backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
		}
	}

	if maxAttempts > 1 && transient(lastErr) {
		return fmt.Errorf("giving up after %d attempts: %w", maxAttempts, lastErr)
	}
	return lastErr
}

// transient reports whether an error is worth retrying: rate limit or abuse
// responses, 5xx server errors and network timeouts. Other client errors
// (404, 401, ...) never resolve on their own.
func transient(err error) bool {
	var rateLimitErr *ggh.RateLimitError
	var abuseErr *ggh.AbuseRateLimitError
	if errors.As(err, &rateLimitErr) || errors.As(err, &abuseErr) {
		return true
	}
	var respErr *ggh.ErrorResponse
	if errors.As(err, &respErr) {
		return respErr.Response != nil && respErr.Response.StatusCode >= 500
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
