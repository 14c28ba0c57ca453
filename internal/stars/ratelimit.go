package stars

import (
	"context"
	"log/slog"
	"sync"
	"time"

	ggh "github.com/google/go-github/v70/github"
)

const (
	// defaultQuota is the GitHub API limit for authenticated requests.
	defaultQuota = 5000

	// waitThreshold is the remaining quota under which the limiter holds
	// back until the reset time.
	waitThreshold = 50
)

// Limiter tracks the remaining API quota as reported by response headers and
// blocks new batches when the quota is nearly exhausted.
type Limiter struct {
	Logger *slog.Logger

	mu        sync.Mutex
	remaining int
	reset     time.Time
}

func NewLimiter(logger *slog.Logger) *Limiter {
	return &Limiter{
		Logger:    logger,
		remaining: defaultQuota,
		reset:     time.Now().Add(time.Hour),
	}
}

// Wait blocks until it is safe to issue the next round of requests. When the
// remaining quota has dropped under the threshold it sleeps until the
// advertised reset time, honoring context cancellation.
func (l *Limiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	remaining := l.remaining
	reset := l.reset
	l.mu.Unlock()

	if remaining > waitThreshold {
		return nil
	}

	wait := time.Until(reset)
	if wait <= 0 {
		return nil
	}

	if l.Logger != nil {
		l.Logger.Warn("rate limit low, waiting for reset", "remaining", remaining, "wait", wait.Round(time.Second))
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
	}

	l.mu.Lock()
	l.remaining = defaultQuota
	l.reset = time.Now().Add(time.Hour)
	l.mu.Unlock()
	return nil
}

// Update records the quota reported by an API response. Concurrent updates
// from one batch keep the lowest remaining value.
func (l *Limiter) Update(resp *ggh.Response) {
	if resp == nil || resp.Rate.Limit == 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if resp.Rate.Remaining < l.remaining || resp.Rate.Reset.Time.After(l.reset) {
		l.remaining = resp.Rate.Remaining
		l.reset = resp.Rate.Reset.Time
	}
}

// Remaining returns the last observed remaining quota.
func (l *Limiter) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.remaining
}
