package interfaces

import (
	"context"
	"time"

	"github.com/secmon-lab/remedy/pkg/domain/model/issue"
	"github.com/secmon-lab/remedy/pkg/domain/types"
)

// Repository persists the pipeline's shared state: tracked issues and action
// cooldowns. Implementations must provide atomic read-modify-write per
// record and crash-safe recovery; a restart resumes from the last durably
// written state without duplicating open issues or bypassing cooldowns.
//
// A record that cannot be decoded is treated as absent (with a loud log),
// never as a cycle-fatal error.
type Repository interface {
	// Issue lifecycle records.
	GetIssue(ctx context.Context, key types.IssueKey) (*issue.TrackedIssue, error)
	PutIssue(ctx context.Context, iss *issue.TrackedIssue) error
	DeleteIssue(ctx context.Context, key types.IssueKey) error
	ListIssues(ctx context.Context, status types.IssueStatus) ([]*issue.TrackedIssue, error)

	// Cooldown entries keyed by (action, target). CheckCooldown is true
	// when no live entry blocks the pair; expired entries are removed on
	// read. SetCooldown overwrites the expiry unconditionally.
	CheckCooldown(ctx context.Context, action, target string) (bool, error)
	SetCooldown(ctx context.Context, action, target string, ttl time.Duration) error
	RemainingCooldown(ctx context.Context, action, target string) (time.Duration, error)

	Close() error
}
