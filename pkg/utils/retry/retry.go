package retry

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/remedy/pkg/domain/model/errs"
	"github.com/secmon-lab/remedy/pkg/utils/logging"
)

type config struct {
	maxAttempts  int
	initialDelay time.Duration
	maxDelay     time.Duration
}

type Option func(*config)

func WithMaxAttempts(n int) Option {
	return func(c *config) {
		c.maxAttempts = n
	}
}

func WithInitialDelay(d time.Duration) Option {
	return func(c *config) {
		c.initialDelay = d
	}
}

func WithMaxDelay(d time.Duration) Option {
	return func(c *config) {
		c.maxDelay = d
	}
}

// Do runs fn with bounded exponential backoff: 4 attempts by default,
// starting at 2s and doubling up to a 30s cap. It returns nil on the first
// success, the context error if cancelled while waiting, and the last error
// once attempts are exhausted. Callers degrade gracefully after exhaustion
// rather than aborting the cycle.
func Do(ctx context.Context, name string, fn func(ctx context.Context) error, opts ...Option) error {
	cfg := &config{
		maxAttempts:  4,
		initialDelay: 2 * time.Second,
		maxDelay:     30 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	logger := logging.From(ctx)
	delay := cfg.initialDelay

	var lastErr error
	for attempt := 1; attempt <= cfg.maxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		if attempt == cfg.maxAttempts {
			break
		}

		logger.Warn("operation failed, retrying",
			"operation", name,
			"attempt", attempt,
			"max_attempts", cfg.maxAttempts,
			"delay", delay,
			logging.ErrAttr(lastErr),
		)

		select {
		case <-ctx.Done():
			return goerr.Wrap(ctx.Err(), "cancelled while waiting to retry",
				goerr.V("operation", name))
		case <-time.After(delay):
		}

		delay *= 2
		if delay > cfg.maxDelay {
			delay = cfg.maxDelay
		}
	}

	return goerr.Wrap(lastErr, "retry attempts exhausted",
		goerr.T(errs.TagExternal),
		goerr.V("operation", name),
		goerr.V("attempts", cfg.maxAttempts),
	)
}
