package executor_test

import (
	"context"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/remedy/pkg/domain/model/action"
	"github.com/secmon-lab/remedy/pkg/domain/types"
	"github.com/secmon-lab/remedy/pkg/service/executor"
	"github.com/secmon-lab/remedy/pkg/service/safety"
	"github.com/secmon-lab/remedy/pkg/utils/dryrun"
)

// fakeAction is a scriptable action for exercising the state machine.
type fakeAction struct {
	name        string
	risk        types.RiskLevel
	validateErr error
	exitCode    int
	execErr     error
	execDelay   time.Duration
	verifyErr   error
	hasVerify   bool
	executed    bool
}

func (a *fakeAction) Descriptor() action.Descriptor {
	return action.Descriptor{Name: a.name, Risk: a.risk, AutoExecutable: a.risk == types.RiskLevelLow}
}

func (a *fakeAction) Validate(ctx context.Context, target string, args []string) error {
	return a.validateErr
}

func (a *fakeAction) Execute(ctx context.Context, target string, args []string) (int, string, error) {
	a.executed = true
	if a.execDelay > 0 {
		select {
		case <-time.After(a.execDelay):
		case <-ctx.Done():
			return -1, "", ctx.Err()
		}
	}
	return a.exitCode, "fake output", a.execErr
}

type verifiedFakeAction struct {
	*fakeAction
}

func (a *verifiedFakeAction) Verify(ctx context.Context, target string) error {
	return a.verifyErr
}

func newExecutor(t *testing.T, stable bool, acts ...*fakeAction) (*executor.Executor, *safety.Validator) {
	t.Helper()

	report := &action.StabilityReport{Stable: stable, MemFreePercent: 80}
	if !stable {
		report.Issues = []string{"load ratio 5.00 exceeds 3.0"}
	}
	validator := safety.New(safety.WithProber(&safety.StaticProber{Report: report}))

	registry := executor.NewRegistry()
	for _, act := range acts {
		if act.hasVerify {
			gt.NoError(t, registry.Register(&verifiedFakeAction{act}))
		} else {
			gt.NoError(t, registry.Register(act))
		}
	}
	return executor.New(registry, validator), validator
}

func TestRunSuccess(t *testing.T) {
	act := &fakeAction{name: "clear-cache", risk: types.RiskLevelLow}
	x, _ := newExecutor(t, true, act)

	result := x.Run(t.Context(), executor.Request{Action: "clear-cache", Target: "default"})
	gt.Equal(t, result.Status, types.ExecStatusSuccess)
	gt.Equal(t, result.ExitCode, 0)
	gt.Equal(t, result.Verify, types.VerifyOutcomeSkipped)
	gt.Equal(t, result.RiskLevel, types.RiskLevelLow)
	gt.True(t, act.executed)
}

func TestRunSuccessWithVerify(t *testing.T) {
	act := &fakeAction{name: "clear-cache", risk: types.RiskLevelLow, hasVerify: true}
	x, _ := newExecutor(t, true, act)

	result := x.Run(t.Context(), executor.Request{Action: "clear-cache"})
	gt.Equal(t, result.Status, types.ExecStatusSuccess)
	gt.Equal(t, result.Verify, types.VerifyOutcomePassed)
}

func TestRunPartialWhenVerifyFails(t *testing.T) {
	act := &fakeAction{
		name: "clear-cache", risk: types.RiskLevelLow,
		hasVerify: true, verifyErr: goerr.New("post-condition not met"),
	}
	x, _ := newExecutor(t, true, act)

	result := x.Run(t.Context(), executor.Request{Action: "clear-cache"})
	gt.Equal(t, result.Status, types.ExecStatusPartial)
	gt.Equal(t, result.Verify, types.VerifyOutcomeFailed)
}

func TestRunFailedOnNonZeroExit(t *testing.T) {
	act := &fakeAction{name: "clear-cache", risk: types.RiskLevelLow, exitCode: 2, hasVerify: true}
	x, _ := newExecutor(t, true, act)

	result := x.Run(t.Context(), executor.Request{Action: "clear-cache"})
	gt.Equal(t, result.Status, types.ExecStatusFailed)
	gt.Equal(t, result.ExitCode, 2)
	// Verify never runs after a failed execute
	gt.Equal(t, result.Verify, types.VerifyOutcomeSkipped)
}

func TestRunRejectedIsNotAnError(t *testing.T) {
	act := &fakeAction{name: "restart-service", risk: types.RiskLevelMedium}
	x, _ := newExecutor(t, true, act)

	result := x.Run(t.Context(), executor.Request{Action: "restart-service", Target: "nginx"})
	gt.Equal(t, result.Status, types.ExecStatusRejected)
	gt.NotEqual(t, result.Reason, "")
	gt.False(t, act.executed)
}

func TestRunRejectedWhenUnstable(t *testing.T) {
	act := &fakeAction{name: "clear-cache", risk: types.RiskLevelLow}
	x, _ := newExecutor(t, false, act)

	result := x.Run(t.Context(), executor.Request{Action: "clear-cache"})
	gt.Equal(t, result.Status, types.ExecStatusRejected)
	gt.S(t, result.Reason).Contains("unstable")
	gt.False(t, act.executed)
}

func TestRunValidationFailed(t *testing.T) {
	act := &fakeAction{
		name: "clear-cache", risk: types.RiskLevelLow,
		validateErr: goerr.New("required tool missing"),
	}
	x, _ := newExecutor(t, true, act)

	result := x.Run(t.Context(), executor.Request{Action: "clear-cache"})
	gt.Equal(t, result.Status, types.ExecStatusValidationFailed)
	gt.False(t, act.executed)
}

func TestRunDryRunShortCircuits(t *testing.T) {
	// Even a rejected action reports skipped in dry-run mode
	act := &fakeAction{name: "kill-process", risk: types.RiskLevelHigh}
	x, _ := newExecutor(t, true, act)

	ctx := dryrun.With(t.Context(), true)
	result := x.Run(ctx, executor.Request{Action: "kill-process", Target: "1234"})
	gt.Equal(t, result.Status, types.ExecStatusSkipped)
	gt.True(t, result.DryRun)
	gt.False(t, act.executed)
}

func TestRunUnknownAction(t *testing.T) {
	x, _ := newExecutor(t, true)

	result := x.Run(t.Context(), executor.Request{Action: "no-such-action"})
	gt.Equal(t, result.Status, types.ExecStatusError)
	gt.Equal(t, result.RiskLevel, types.RiskLevelCritical)
}

func TestRunTimeout(t *testing.T) {
	act := &fakeAction{name: "clear-cache", risk: types.RiskLevelLow, execDelay: 10 * time.Second}
	x, _ := newExecutor(t, true, act)
	x = timeoutExecutor(t, x, act)

	result := x.Run(t.Context(), executor.Request{Action: "clear-cache"})
	gt.Equal(t, result.Status, types.ExecStatusFailed)
	gt.NotEqual(t, result.ExitCode, 0)
}

func timeoutExecutor(t *testing.T, _ *executor.Executor, act *fakeAction) *executor.Executor {
	t.Helper()

	report := &action.StabilityReport{Stable: true, MemFreePercent: 80}
	validator := safety.New(safety.WithProber(&safety.StaticProber{Report: report}))

	registry := executor.NewRegistry()
	gt.NoError(t, registry.Register(act))
	return executor.New(registry, validator, executor.WithTimeout(20*time.Millisecond))
}

func TestRunBatchContinuesPastFailures(t *testing.T) {
	ok := &fakeAction{name: "clear-cache", risk: types.RiskLevelLow}
	bad := &fakeAction{name: "rotate-logs", risk: types.RiskLevelLow, exitCode: 1}
	denied := &fakeAction{name: "kill-process", risk: types.RiskLevelHigh}
	x, _ := newExecutor(t, true, ok, bad, denied)

	batch := x.RunBatch(t.Context(), []executor.Request{
		{Action: "rotate-logs"},
		{Action: "kill-process", Target: "1234"},
		{Action: "clear-cache"},
	})

	gt.A(t, batch.Results).Length(3)
	gt.Equal(t, batch.Succeeded, 1)
	gt.Equal(t, batch.Failed, 1)
	gt.Equal(t, batch.Rejected, 1)
	gt.True(t, ok.executed)
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	registry := executor.NewRegistry()
	act := &fakeAction{name: "clear-cache", risk: types.RiskLevelLow}
	gt.NoError(t, registry.Register(act))
	gt.Error(t, registry.Register(act))
}

func TestRegistryListSorted(t *testing.T) {
	registry := executor.NewRegistry()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		gt.NoError(t, registry.Register(&fakeAction{name: name, risk: types.RiskLevelLow}))
	}

	descs := registry.List()
	gt.A(t, descs).Length(3)
	gt.Equal(t, descs[0].Name, "alpha")
	gt.Equal(t, descs[1].Name, "mid")
	gt.Equal(t, descs[2].Name, "zeta")
}
