package repository

import (
	"context"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/remedy/pkg/domain/interfaces"
	"github.com/secmon-lab/remedy/pkg/domain/model/errs"
	"github.com/secmon-lab/remedy/pkg/domain/model/issue"
	"github.com/secmon-lab/remedy/pkg/domain/types"
	"github.com/secmon-lab/remedy/pkg/utils/clock"
)

// Memory is the in-memory repository used by tests and one-shot CLI runs.
type Memory struct {
	issueMu    sync.RWMutex
	cooldownMu sync.Mutex

	issues    map[types.IssueKey]*issue.TrackedIssue
	cooldowns map[string]time.Time

	eb *goerr.Builder
}

var _ interfaces.Repository = &Memory{}

func NewMemory() *Memory {
	return &Memory{
		issues:    make(map[types.IssueKey]*issue.TrackedIssue),
		cooldowns: make(map[string]time.Time),
		eb:        goerr.NewBuilder(goerr.TV(errs.RepositoryKey, "memory")),
	}
}

func (r *Memory) GetIssue(ctx context.Context, key types.IssueKey) (*issue.TrackedIssue, error) {
	r.issueMu.RLock()
	defer r.issueMu.RUnlock()

	iss, ok := r.issues[key]
	if !ok {
		return nil, nil
	}

	// Return a copy to prevent external modification
	issCopy := *iss
	return &issCopy, nil
}

func (r *Memory) PutIssue(ctx context.Context, iss *issue.TrackedIssue) error {
	if err := iss.Validate(); err != nil {
		return r.eb.Wrap(err, "invalid tracked issue")
	}

	r.issueMu.Lock()
	defer r.issueMu.Unlock()

	issCopy := *iss
	if existing, ok := r.issues[iss.Key]; ok {
		// created_at is stable across upserts
		issCopy.CreatedAt = existing.CreatedAt
	}
	r.issues[iss.Key] = &issCopy
	return nil
}

func (r *Memory) DeleteIssue(ctx context.Context, key types.IssueKey) error {
	r.issueMu.Lock()
	defer r.issueMu.Unlock()

	delete(r.issues, key)
	return nil
}

func (r *Memory) ListIssues(ctx context.Context, status types.IssueStatus) ([]*issue.TrackedIssue, error) {
	r.issueMu.RLock()
	defer r.issueMu.RUnlock()

	var out []*issue.TrackedIssue
	for _, iss := range r.issues {
		if status != "" && iss.Status != status {
			continue
		}
		issCopy := *iss
		out = append(out, &issCopy)
	}
	return out, nil
}

func (r *Memory) CheckCooldown(ctx context.Context, action, target string) (bool, error) {
	key := cooldownKey(action, target)

	r.cooldownMu.Lock()
	defer r.cooldownMu.Unlock()

	expiry, ok := r.cooldowns[key]
	if !ok {
		return true, nil
	}
	if !clock.Now(ctx).Before(expiry) {
		delete(r.cooldowns, key)
		return true, nil
	}
	return false, nil
}

func (r *Memory) SetCooldown(ctx context.Context, action, target string, ttl time.Duration) error {
	key := cooldownKey(action, target)

	r.cooldownMu.Lock()
	defer r.cooldownMu.Unlock()

	r.cooldowns[key] = clock.Now(ctx).Add(ttl)
	return nil
}

func (r *Memory) RemainingCooldown(ctx context.Context, action, target string) (time.Duration, error) {
	key := cooldownKey(action, target)

	r.cooldownMu.Lock()
	defer r.cooldownMu.Unlock()

	expiry, ok := r.cooldowns[key]
	if !ok {
		return 0, nil
	}
	remaining := expiry.Sub(clock.Now(ctx))
	if remaining <= 0 {
		delete(r.cooldowns, key)
		return 0, nil
	}
	return remaining, nil
}

func (r *Memory) Close() error {
	return nil
}
