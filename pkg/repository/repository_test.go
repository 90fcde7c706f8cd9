package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/remedy/pkg/domain/interfaces"
	"github.com/secmon-lab/remedy/pkg/domain/model/issue"
	"github.com/secmon-lab/remedy/pkg/domain/types"
	"github.com/secmon-lab/remedy/pkg/repository"
	"github.com/secmon-lab/remedy/pkg/utils/clock"
)

func runTest(t *testing.T, name string, fn func(t *testing.T, repo interfaces.Repository)) {
	t.Run(name+"/memory", func(t *testing.T) {
		fn(t, repository.NewMemory())
	})
	t.Run(name+"/badger", func(t *testing.T) {
		repo := gt.R1(repository.NewBadger("")).NoError(t)
		t.Cleanup(func() {
			gt.NoError(t, repo.Close())
		})
		fn(t, repo)
	})
}

func TestIssueRoundTrip(t *testing.T) {
	runTest(t, "round-trip", func(t *testing.T, repo interfaces.Repository) {
		ctx := t.Context()
		key := types.NewIssueKey(types.SourceSystem, "cpu", "loadavg")

		iss := issue.New(ctx, key, types.SourceSystem, "CPU load high", types.AlertSeverityWarning)
		iss.TrackerRef = 42
		gt.NoError(t, repo.PutIssue(ctx, iss))

		got := gt.R1(repo.GetIssue(ctx, key)).NoError(t)
		gt.NotNil(t, got)
		gt.Equal(t, got.Key, key)
		gt.Equal(t, got.Source, types.SourceSystem)
		gt.Equal(t, got.TrackerRef, 42)
		gt.Equal(t, got.Status, types.IssueStatusOpen)
		gt.Equal(t, got.CheckCount, 1)
		gt.Equal(t, got.NormalCount, 0)
	})
}

func TestIssueCreatedAtStableAcrossUpserts(t *testing.T) {
	runTest(t, "created-at", func(t *testing.T, repo interfaces.Repository) {
		base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
		now := base
		ctx := clock.With(t.Context(), func() time.Time { return now })

		key := types.NewIssueKey(types.SourceSystem, "memory", "available")
		iss := issue.New(ctx, key, types.SourceSystem, "Memory low", types.AlertSeverityMinor)
		gt.NoError(t, repo.PutIssue(ctx, iss))

		now = base.Add(time.Hour)
		iss.Recheck(ctx, types.AlertSeverityWarning)
		gt.NoError(t, repo.PutIssue(ctx, iss))

		got := gt.R1(repo.GetIssue(ctx, key)).NoError(t)
		gt.NotNil(t, got)
		gt.Equal(t, got.CreatedAt.UTC(), base)
		gt.Equal(t, got.UpdatedAt.UTC(), base.Add(time.Hour))
		gt.Equal(t, got.CheckCount, 2)
		gt.Equal(t, got.Severity, types.AlertSeverityWarning)
	})
}

func TestIssueMissingIsNil(t *testing.T) {
	runTest(t, "missing", func(t *testing.T, repo interfaces.Repository) {
		ctx := t.Context()
		got := gt.R1(repo.GetIssue(ctx, types.IssueKey("no_such_key"))).NoError(t)
		gt.Nil(t, got)
	})
}

func TestIssueDelete(t *testing.T) {
	runTest(t, "delete", func(t *testing.T, repo interfaces.Repository) {
		ctx := t.Context()
		key := types.NewIssueKey(types.SourceContainer, "unhealthy", "web-1")

		gt.NoError(t, repo.PutIssue(ctx, issue.New(ctx, key, types.SourceContainer, "container unhealthy", types.AlertSeverityCritical)))
		gt.NoError(t, repo.DeleteIssue(ctx, key))

		got := gt.R1(repo.GetIssue(ctx, key)).NoError(t)
		gt.Nil(t, got)

		// Deleting an absent key is fine
		gt.NoError(t, repo.DeleteIssue(ctx, key))
	})
}

func TestListIssuesByStatus(t *testing.T) {
	runTest(t, "list", func(t *testing.T, repo interfaces.Repository) {
		ctx := t.Context()

		for _, subject := range []string{"a", "b", "c"} {
			key := types.NewIssueKey(types.SourceSystem, "disk", subject)
			gt.NoError(t, repo.PutIssue(ctx, issue.New(ctx, key, types.SourceSystem, "disk "+subject, types.AlertSeverityWarning)))
		}

		open := gt.R1(repo.ListIssues(ctx, types.IssueStatusOpen)).NoError(t)
		gt.A(t, open).Length(3)

		all := gt.R1(repo.ListIssues(ctx, "")).NoError(t)
		gt.A(t, all).Length(3)
	})
}

func TestCooldownGating(t *testing.T) {
	runTest(t, "cooldown", func(t *testing.T, repo interfaces.Repository) {
		base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
		now := base
		ctx := clock.With(t.Context(), func() time.Time { return now })

		// No entry: not blocked
		gt.True(t, gt.R1(repo.CheckCooldown(ctx, "clear-cache", "default")).NoError(t))

		gt.NoError(t, repo.SetCooldown(ctx, "clear-cache", "default", 300*time.Second))
		gt.False(t, gt.R1(repo.CheckCooldown(ctx, "clear-cache", "default")).NoError(t))

		remaining := gt.R1(repo.RemainingCooldown(ctx, "clear-cache", "default")).NoError(t)
		gt.Equal(t, remaining, 300*time.Second)

		// Another target of the same action is not blocked
		gt.True(t, gt.R1(repo.CheckCooldown(ctx, "clear-cache", "other")).NoError(t))

		// Advance past the expiry: entry is gone
		now = base.Add(301 * time.Second)
		gt.True(t, gt.R1(repo.CheckCooldown(ctx, "clear-cache", "default")).NoError(t))
		gt.Equal(t, gt.R1(repo.RemainingCooldown(ctx, "clear-cache", "default")).NoError(t), time.Duration(0))
	})
}

func TestCooldownOverwrite(t *testing.T) {
	runTest(t, "overwrite", func(t *testing.T, repo interfaces.Repository) {
		base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
		now := base
		ctx := clock.With(t.Context(), func() time.Time { return now })

		gt.NoError(t, repo.SetCooldown(ctx, "rotate-logs", "", 60*time.Second))
		gt.NoError(t, repo.SetCooldown(ctx, "rotate-logs", "", 600*time.Second))

		remaining := gt.R1(repo.RemainingCooldown(ctx, "rotate-logs", "")).NoError(t)
		gt.Equal(t, remaining, 600*time.Second)

		// Empty target and "default" share one entry
		gt.False(t, gt.R1(repo.CheckCooldown(ctx, "rotate-logs", "default")).NoError(t))
	})
}

func TestBadgerSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	key := types.NewIssueKey(types.SourceSystem, "cpu", "loadavg")

	repo := gt.R1(repository.NewBadger(dir)).NoError(t)
	gt.NoError(t, repo.PutIssue(ctx, issue.New(ctx, key, types.SourceSystem, "CPU load high", types.AlertSeverityWarning)))
	gt.NoError(t, repo.SetCooldown(ctx, "clear-cache", "default", time.Hour))
	gt.NoError(t, repo.Close())

	reopened := gt.R1(repository.NewBadger(dir)).NoError(t)
	defer func() {
		gt.NoError(t, reopened.Close())
	}()

	got := gt.R1(reopened.GetIssue(ctx, key)).NoError(t)
	gt.NotNil(t, got)
	gt.Equal(t, got.CheckCount, 1)

	// The cooldown still gates after a restart
	gt.False(t, gt.R1(reopened.CheckCooldown(ctx, "clear-cache", "default")).NoError(t))
}
