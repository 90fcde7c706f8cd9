package usecase_test

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/remedy/pkg/domain/interfaces"
	"github.com/secmon-lab/remedy/pkg/domain/model/action"
	"github.com/secmon-lab/remedy/pkg/domain/model/alert"
	"github.com/secmon-lab/remedy/pkg/domain/types"
	"github.com/secmon-lab/remedy/pkg/repository"
	"github.com/secmon-lab/remedy/pkg/service/diagnosis"
	"github.com/secmon-lab/remedy/pkg/service/executor"
	"github.com/secmon-lab/remedy/pkg/service/notifier"
	"github.com/secmon-lab/remedy/pkg/service/safety"
	"github.com/secmon-lab/remedy/pkg/usecase"
	"github.com/secmon-lab/remedy/pkg/utils/clock"
	"github.com/secmon-lab/remedy/pkg/utils/dryrun"
	"github.com/secmon-lab/remedy/pkg/utils/retry"
)

type fakeTracker struct {
	mu      sync.Mutex
	nextNum int
	created map[types.IssueKey]int
	updates int
	closed  []int
	err     error
}

func newFakeTracker() *fakeTracker {
	return &fakeTracker{nextNum: 100, created: map[types.IssueKey]int{}}
}

func (x *fakeTracker) CreateOrUpdateIssue(ctx context.Context, key types.IssueKey, title, body string, severity types.AlertSeverity) (int, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.err != nil {
		return 0, x.err
	}
	if n, ok := x.created[key]; ok {
		x.updates++
		return n, nil
	}
	x.nextNum++
	x.created[key] = x.nextNum
	return x.nextNum, nil
}

func (x *fakeTracker) CloseIssue(ctx context.Context, number int, comment string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.err != nil {
		return x.err
	}
	x.closed = append(x.closed, number)
	return nil
}

func (x *fakeTracker) FindByIssueKey(ctx context.Context, key types.IssueKey) (int, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.created[key], nil
}

type fakeAudit struct {
	mu      sync.Mutex
	records []*action.ExecutionResult
}

func (x *fakeAudit) RecordAudit(ctx context.Context, result *action.ExecutionResult, details map[string]any) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.records = append(x.records, result)
	return nil
}

// noopAction always succeeds without touching the host.
type noopAction struct {
	name     string
	executed int
}

func (a *noopAction) Descriptor() action.Descriptor {
	return action.Descriptor{Name: a.name, Risk: types.RiskLevelLow, AutoExecutable: true}
}

func (a *noopAction) Validate(ctx context.Context, target string, args []string) error {
	return nil
}

func (a *noopAction) Execute(ctx context.Context, target string, args []string) (int, string, error) {
	a.executed++
	return 0, "ok", nil
}

type env struct {
	repo     *repository.Memory
	tracker  *fakeTracker
	audit    *fakeAudit
	out      *bytes.Buffer
	act      *noopAction
	pipeline *usecase.Pipeline
}

func setup(t *testing.T, stable bool, opts ...usecase.Option) *env {
	t.Helper()

	report := &action.StabilityReport{Stable: stable, MemFreePercent: 80}
	if !stable {
		report.Issues = []string{"load ratio 5.00 exceeds 3.0"}
	}
	validator := safety.New(safety.WithProber(&safety.StaticProber{Report: report}))

	registry := executor.NewRegistry()
	act := &noopAction{name: "clear-cache"}
	gt.NoError(t, registry.Register(act))

	repo := repository.NewMemory()
	tracker := newFakeTracker()
	audit := &fakeAudit{}
	var out bytes.Buffer

	clients := interfaces.NewClients(
		interfaces.WithRepository(repo),
		interfaces.WithTracker(tracker),
		interfaces.WithNotifier(notifier.NewConsoleWithWriter(&out)),
		interfaces.WithAnalyzer(diagnosis.NewRuleBased()),
		interfaces.WithAuditSink(audit),
	)

	opts = append([]usecase.Option{
		usecase.WithRetryOptions(retry.WithMaxAttempts(1), retry.WithInitialDelay(time.Millisecond)),
	}, opts...)

	return &env{
		repo:     repo,
		tracker:  tracker,
		audit:    audit,
		out:      &out,
		act:      act,
		pipeline: usecase.New(clients, executor.New(registry, validator), opts...),
	}
}

func memoryAlert(ctx context.Context, severity types.AlertSeverity) *alert.Summary {
	s := alert.New(ctx, "web-01", []alert.Entry{
		{Type: "memory", Severity: severity, Current: 96, Threshold: 90},
	})
	return &s
}

func cleanAlert(ctx context.Context) *alert.Summary {
	s := alert.New(ctx, "web-01", nil)
	return &s
}

func TestIncidentCycleStableSystem(t *testing.T) {
	e := setup(t, true)
	ctx := t.Context()

	summary := memoryAlert(ctx, types.AlertSeverityWarning)
	result := gt.R1(e.pipeline.Process(ctx, summary, map[string]float64{"mem_used_percent": 96}, types.SourceSystem)).NoError(t)

	// issue created locally and on the tracker
	gt.A(t, result.CreatedKeys).Length(1)
	key := result.CreatedKeys[0]
	rec := gt.R1(e.repo.GetIssue(ctx, key)).NoError(t)
	gt.NotNil(t, rec)
	gt.Equal(t, rec.CheckCount, 1)
	gt.True(t, rec.HasTrackerRef())

	// clear-cache ran, cooldown set, audit recorded
	gt.Equal(t, e.act.executed, 1)
	gt.Equal(t, result.Batch.Succeeded, 1)
	free := gt.R1(e.repo.CheckCooldown(ctx, "clear-cache", "")).NoError(t)
	gt.False(t, free)
	gt.A(t, e.audit.records).Length(1).At(0, func(t testing.TB, r *action.ExecutionResult) {
		gt.Equal(t, r.Status, types.ExecStatusSuccess)
	})

	// notification reflects the severity
	gt.S(t, e.out.String()).Contains("Warning")
}

func TestIncidentCycleUnstableSystem(t *testing.T) {
	e := setup(t, false)
	ctx := t.Context()

	summary := memoryAlert(ctx, types.AlertSeverityWarning)
	result := gt.R1(e.pipeline.Process(ctx, summary, nil, types.SourceSystem)).NoError(t)

	// issue is still created even though remediation is rejected
	gt.A(t, result.CreatedKeys).Length(1)
	gt.Equal(t, e.act.executed, 0)
	gt.Equal(t, result.Batch.Rejected, 1)
	gt.A(t, result.Batch.Results).At(0, func(t testing.TB, r *action.ExecutionResult) {
		gt.Equal(t, r.Status, types.ExecStatusRejected)
		gt.S(t, r.Reason).Contains("unstable")
	})

	// no cooldown after a rejection
	free := gt.R1(e.repo.CheckCooldown(ctx, "clear-cache", "")).NoError(t)
	gt.True(t, free)
}

func TestRepeatedIncidentUpdatesInsteadOfDuplicating(t *testing.T) {
	e := setup(t, true)
	ctx := t.Context()

	summary := memoryAlert(ctx, types.AlertSeverityWarning)
	first := gt.R1(e.pipeline.Process(ctx, summary, nil, types.SourceSystem)).NoError(t)
	gt.A(t, first.CreatedKeys).Length(1)

	second := gt.R1(e.pipeline.Process(ctx, summary, nil, types.SourceSystem)).NoError(t)
	gt.A(t, second.CreatedKeys).Length(0)
	gt.A(t, second.UpdatedKeys).Length(1)

	rec := gt.R1(e.repo.GetIssue(ctx, first.CreatedKeys[0])).NoError(t)
	gt.Equal(t, rec.CheckCount, 2)
	gt.Equal(t, rec.NormalCount, 0)
	gt.Equal(t, len(e.tracker.created), 1)
}

func TestDuplicateEntriesInOneCycleCountOnce(t *testing.T) {
	e := setup(t, true)
	ctx := t.Context()

	// two entries resolving to the same issue key in a single summary
	summary := alert.New(ctx, "web-01", []alert.Entry{
		{Type: "memory", Severity: types.AlertSeverityWarning, Current: 96, Threshold: 90},
		{Type: "memory", Severity: types.AlertSeverityWarning, Current: 97, Threshold: 90},
	})
	result := gt.R1(e.pipeline.Process(ctx, &summary, nil, types.SourceSystem)).NoError(t)

	gt.A(t, result.CreatedKeys).Length(1)
	gt.A(t, result.UpdatedKeys).Length(0)

	rec := gt.R1(e.repo.GetIssue(ctx, result.CreatedKeys[0])).NoError(t)
	gt.NotNil(t, rec)
	gt.Equal(t, rec.CheckCount, 1)

	// single tracker entry, no update comment alongside the creation
	gt.Equal(t, len(e.tracker.created), 1)
	gt.Equal(t, e.tracker.updates, 0)
}

func TestCooldownBlocksRepeatExecution(t *testing.T) {
	e := setup(t, true)
	ctx := t.Context()

	summary := memoryAlert(ctx, types.AlertSeverityWarning)
	gt.R1(e.pipeline.Process(ctx, summary, nil, types.SourceSystem)).NoError(t)
	gt.Equal(t, e.act.executed, 1)

	// second cycle inside the cooldown window must not run the action again
	gt.R1(e.pipeline.Process(ctx, summary, nil, types.SourceSystem)).NoError(t)
	gt.Equal(t, e.act.executed, 1)
}

func TestCloseAfterConsecutiveCleanCycles(t *testing.T) {
	e := setup(t, true)

	base := time.Date(2026, 8, 30, 6, 0, 0, 0, time.UTC)
	ctx := clock.With(t.Context(), func() time.Time { return base })

	summary := memoryAlert(ctx, types.AlertSeverityWarning)
	created := gt.R1(e.pipeline.Process(ctx, summary, nil, types.SourceSystem)).NoError(t)
	key := created.CreatedKeys[0]

	// two clean cycles: still open
	for i := 0; i < 2; i++ {
		result := gt.R1(e.pipeline.Process(ctx, cleanAlert(ctx), nil, types.SourceSystem)).NoError(t)
		gt.A(t, result.ClosedKeys).Length(0)
	}
	rec := gt.R1(e.repo.GetIssue(ctx, key)).NoError(t)
	gt.NotNil(t, rec)
	gt.Equal(t, rec.NormalCount, 2)

	// third consecutive clean cycle closes and deletes
	result := gt.R1(e.pipeline.Process(ctx, cleanAlert(ctx), nil, types.SourceSystem)).NoError(t)
	gt.A(t, result.ClosedKeys).Length(1)
	gone := gt.R1(e.repo.GetIssue(ctx, key)).NoError(t)
	gt.Nil(t, gone)
	gt.A(t, e.tracker.closed).Length(1)
}

func TestReappearanceResetsNormalCount(t *testing.T) {
	e := setup(t, true)
	ctx := t.Context()

	summary := memoryAlert(ctx, types.AlertSeverityWarning)
	created := gt.R1(e.pipeline.Process(ctx, summary, nil, types.SourceSystem)).NoError(t)
	key := created.CreatedKeys[0]

	gt.R1(e.pipeline.Process(ctx, cleanAlert(ctx), nil, types.SourceSystem)).NoError(t)
	rec := gt.R1(e.repo.GetIssue(ctx, key)).NoError(t)
	gt.Equal(t, rec.NormalCount, 1)

	// problem comes back: counter resets
	gt.R1(e.pipeline.Process(ctx, summary, nil, types.SourceSystem)).NoError(t)
	rec = gt.R1(e.repo.GetIssue(ctx, key)).NoError(t)
	gt.Equal(t, rec.NormalCount, 0)
	gt.Equal(t, rec.CheckCount, 2)
}

func TestTrackerOutageDegradesToLocalTracking(t *testing.T) {
	e := setup(t, true)
	e.tracker.err = goerr.New("tracker unreachable")
	ctx := t.Context()

	summary := memoryAlert(ctx, types.AlertSeverityWarning)
	result := gt.R1(e.pipeline.Process(ctx, summary, nil, types.SourceSystem)).NoError(t)

	gt.A(t, result.CreatedKeys).Length(1)
	rec := gt.R1(e.repo.GetIssue(ctx, result.CreatedKeys[0])).NoError(t)
	gt.NotNil(t, rec)
	gt.False(t, rec.HasTrackerRef())
}

func TestDryRunMutatesNothing(t *testing.T) {
	e := setup(t, true)
	ctx := dryrun.With(t.Context(), true)

	summary := memoryAlert(ctx, types.AlertSeverityWarning)
	result := gt.R1(e.pipeline.Process(ctx, summary, nil, types.SourceSystem)).NoError(t)

	gt.True(t, result.DryRun)
	gt.A(t, result.CreatedKeys).Length(1)

	// nothing was stored, executed or notified
	open := gt.R1(e.repo.ListIssues(ctx, types.IssueStatusOpen)).NoError(t)
	gt.A(t, open).Length(0)
	gt.Equal(t, e.act.executed, 0)
	gt.Equal(t, len(e.tracker.created), 0)
	gt.A(t, e.audit.records).Length(0)
	gt.Equal(t, e.out.Len(), 0)

	gt.A(t, result.Batch.Results).At(0, func(t testing.TB, r *action.ExecutionResult) {
		gt.Equal(t, r.Status, types.ExecStatusSkipped)
		gt.True(t, r.DryRun)
	})
}

func TestCleanCycleWithNoOpenIssues(t *testing.T) {
	e := setup(t, true)
	ctx := t.Context()

	result := gt.R1(e.pipeline.Process(ctx, cleanAlert(ctx), nil, types.SourceSystem)).NoError(t)
	gt.A(t, result.ClosedKeys).Length(0)
}

func TestProcessRejectsInvalidSummary(t *testing.T) {
	e := setup(t, true)

	_, err := e.pipeline.Process(t.Context(), nil, nil, types.SourceSystem)
	gt.Error(t, err)

	_, err = e.pipeline.Process(t.Context(), &alert.Summary{}, nil, types.SourceSystem)
	gt.Error(t, err)
}
