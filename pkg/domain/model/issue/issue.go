package issue

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/remedy/pkg/domain/types"
	"github.com/secmon-lab/remedy/pkg/utils/clock"
)

// TrackedIssue is the durable record linking a detected-problem key to its
// external tracker entry and lifecycle counters.
//
// CheckCount increments on every cycle the problem is still present.
// NormalCount increments on every cycle the problem is absent and resets to
// zero when it reappears; once it reaches the configured threshold the
// record is deleted and the tracker entry is closed.
type TrackedIssue struct {
	Key         types.IssueKey      `json:"key"`
	Source      types.AlertSource   `json:"source"`
	Title       string              `json:"title"`
	Severity    types.AlertSeverity `json:"severity"`
	TrackerRef  int                 `json:"tracker_ref,omitempty"`
	Status      types.IssueStatus   `json:"status"`
	CheckCount  int                 `json:"check_count"`
	NormalCount int                 `json:"normal_count"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

func New(ctx context.Context, key types.IssueKey, source types.AlertSource, title string, severity types.AlertSeverity) *TrackedIssue {
	now := clock.Now(ctx)
	return &TrackedIssue{
		Key:        key,
		Source:     source,
		Title:      title,
		Severity:   severity,
		Status:     types.IssueStatusOpen,
		CheckCount: 1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func (x *TrackedIssue) Validate() error {
	if err := x.Key.Validate(); err != nil {
		return goerr.Wrap(err, "invalid issue key")
	}
	if err := x.Status.Validate(); err != nil {
		return goerr.Wrap(err, "invalid issue status")
	}
	if x.CheckCount < 0 || x.NormalCount < 0 {
		return goerr.New("negative lifecycle counter",
			goerr.V("check_count", x.CheckCount),
			goerr.V("normal_count", x.NormalCount))
	}
	return nil
}

// Recheck records another cycle in which the problem is still present.
func (x *TrackedIssue) Recheck(ctx context.Context, severity types.AlertSeverity) {
	x.CheckCount++
	x.NormalCount = 0
	x.Severity = severity
	x.UpdatedAt = clock.Now(ctx)
}

// MarkNormal records one clean cycle and reports whether the issue has now
// been absent for threshold consecutive cycles.
func (x *TrackedIssue) MarkNormal(ctx context.Context, threshold int) bool {
	x.NormalCount++
	x.UpdatedAt = clock.Now(ctx)
	return x.NormalCount >= threshold
}

// HasTrackerRef reports whether an external tracker entry exists for this
// issue.
func (x *TrackedIssue) HasTrackerRef() bool {
	return x.TrackerRef > 0
}
