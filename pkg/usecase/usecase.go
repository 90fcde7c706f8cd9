// Package usecase wires the pipeline: diagnosis, issue lifecycle, gated
// remediation and notification for one evaluation cycle.
package usecase

import (
	"context"
	"time"

	"github.com/secmon-lab/remedy/pkg/domain/interfaces"
	"github.com/secmon-lab/remedy/pkg/domain/model/action"
	"github.com/secmon-lab/remedy/pkg/service/executor"
	"github.com/secmon-lab/remedy/pkg/utils/retry"
)

const (
	// DefaultCooldown blocks a repeat of the same (action, target) pair
	// after a successful execution.
	DefaultCooldown = 30 * time.Minute

	// DefaultNormalThreshold is the number of consecutive clean cycles
	// required before a tracked issue is closed.
	DefaultNormalThreshold = 3
)

// ActionRunner runs one remediation request to completion. Satisfied by
// *executor.Executor; tests substitute a recorder.
type ActionRunner interface {
	Run(ctx context.Context, req executor.Request) *action.ExecutionResult
}

type Pipeline struct {
	clients *interfaces.Clients
	runner  ActionRunner

	cooldown          time.Duration
	cooldownOverrides map[string]time.Duration
	normalThreshold   int
	retryOpts         []retry.Option
}

type Option func(*Pipeline)

// WithCooldown overrides the post-success cooldown duration.
func WithCooldown(d time.Duration) Option {
	return func(p *Pipeline) {
		p.cooldown = d
	}
}

// WithCooldownOverrides sets per-action cooldown durations; actions not in
// the map use the default.
func WithCooldownOverrides(overrides map[string]time.Duration) Option {
	return func(p *Pipeline) {
		p.cooldownOverrides = overrides
	}
}

// WithNormalThreshold overrides how many consecutive clean cycles close an
// issue.
func WithNormalThreshold(n int) Option {
	return func(p *Pipeline) {
		p.normalThreshold = n
	}
}

// WithRetryOptions tunes the backoff applied to external collaborator calls
// (tracker, notifier, analyzer).
func WithRetryOptions(opts ...retry.Option) Option {
	return func(p *Pipeline) {
		p.retryOpts = opts
	}
}

func New(clients *interfaces.Clients, runner ActionRunner, opts ...Option) *Pipeline {
	p := &Pipeline{
		clients:         clients,
		runner:          runner,
		cooldown:        DefaultCooldown,
		normalThreshold: DefaultNormalThreshold,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pipeline) cooldownFor(action string) time.Duration {
	if d, ok := p.cooldownOverrides[action]; ok {
		return d
	}
	return p.cooldown
}
