package shutdown

import (
	"context"
	"sync"
	"time"

	"github.com/secmon-lab/remedy/pkg/utils/logging"
)

// Registry holds ordered cleanup callbacks for graceful shutdown. Callbacks
// run in reverse registration order, mirroring defer semantics: the last
// resource acquired is the first released. The run-lock release must be
// registered first so it always runs last.
type Registry struct {
	mu       sync.Mutex
	cleanups []cleanup
	done     bool
}

type cleanup struct {
	name string
	fn   func(ctx context.Context) error
}

func NewRegistry() *Registry {
	return &Registry{}
}

func (r *Registry) Register(name string, fn func(ctx context.Context) error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleanups = append(r.cleanups, cleanup{name: name, fn: fn})
}

// Run executes all registered callbacks in reverse order under one overall
// deadline. Callbacks remaining after the deadline are skipped, not waited
// for. Run is idempotent; the second call is a no-op.
func (r *Registry) Run(ctx context.Context, timeout time.Duration) {
	r.mu.Lock()
	if r.done {
		r.mu.Unlock()
		return
	}
	r.done = true
	cleanups := make([]cleanup, len(r.cleanups))
	copy(cleanups, r.cleanups)
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	logger := logging.From(ctx)
	for i := len(cleanups) - 1; i >= 0; i-- {
		c := cleanups[i]

		if ctx.Err() != nil {
			logger.Warn("shutdown deadline exceeded, skipping remaining cleanups",
				"skipped", i+1,
				"next", c.name,
			)
			return
		}

		if err := c.fn(ctx); err != nil {
			logger.Error("cleanup failed", "name", c.name, logging.ErrAttr(err))
			continue
		}
		logger.Debug("cleanup completed", "name", c.name)
	}
}
