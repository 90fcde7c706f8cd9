// Package executor runs named remediation actions through their
// validate/execute/verify phases under the safety gate, a hard wall-clock
// budget, and dry-run semantics.
package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/secmon-lab/remedy/pkg/domain/interfaces"
	"github.com/secmon-lab/remedy/pkg/domain/model/action"
	"github.com/secmon-lab/remedy/pkg/domain/types"
	"github.com/secmon-lab/remedy/pkg/service/safety"
	"github.com/secmon-lab/remedy/pkg/utils/dryrun"
	"github.com/secmon-lab/remedy/pkg/utils/logging"
)

const DefaultTimeout = 300 * time.Second

type Executor struct {
	registry  *Registry
	validator *safety.Validator
	timeout   time.Duration
}

type Option func(*Executor)

// WithTimeout sets the hard wall-clock budget for one action's execute
// phase.
func WithTimeout(d time.Duration) Option {
	return func(x *Executor) {
		x.timeout = d
	}
}

func New(registry *Registry, validator *safety.Validator, opts ...Option) *Executor {
	x := &Executor{
		registry:  registry,
		validator: validator,
		timeout:   DefaultTimeout,
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Request is one (action, target) pair to execute.
type Request struct {
	Action string
	Target string
	Args   []string
}

// Run drives one action through the full state machine:
//
//	Requested → SafetyChecked → (Rejected | DryRunSkipped |
//	    Validating → Executing → Verifying → Reported)
//
// It never returns an error: policy rejections, validation failures,
// timeouts, and panics inside action phases are all captured in the result.
func (x *Executor) Run(ctx context.Context, req Request) *action.ExecutionResult {
	logger := logging.From(ctx)
	started := time.Now()

	result := &action.ExecutionResult{
		ID:     types.NewExecutionID(),
		Action: req.Action,
		Target: req.Target,
		Verify: types.VerifyOutcomeSkipped,
	}
	defer func() {
		result.Duration = time.Since(started)
	}()

	act, ok := x.registry.Get(req.Action)
	if !ok {
		result.Status = types.ExecStatusError
		result.RiskLevel = types.RiskLevelCritical
		result.Reason = fmt.Sprintf("unknown action: %s", req.Action)
		return result
	}

	decision := x.validator.PreExecutionDecision(ctx, req.Action, req.Target)
	result.RiskLevel = decision.RiskLevel

	// Dry-run short-circuits before the approval check so the full
	// decision path is exercisable without side effects.
	if dryrun.From(ctx) {
		result.Status = types.ExecStatusSkipped
		result.DryRun = true
		result.Reason = decision.Reason
		logger.Info("dry-run: skipping action",
			"action", req.Action,
			"target", req.Target,
			"approved", decision.Approved,
			"reason", decision.Reason,
		)
		return result
	}

	if !decision.Approved {
		result.Status = types.ExecStatusRejected
		result.Reason = decision.Reason
		return result
	}

	if err := x.runPhase(ctx, "validate", func(ctx context.Context) error {
		return act.Validate(ctx, req.Target, req.Args)
	}); err != nil {
		result.Status = types.ExecStatusValidationFailed
		result.Reason = err.Error()
		return result
	}

	execCtx, cancel := context.WithTimeout(ctx, x.timeout)
	defer cancel()

	exitCode, output, execErr := x.execute(execCtx, act, req)
	result.ExitCode = exitCode
	result.Output = output
	if execErr != nil {
		// Timeouts and phase panics land here: non-zero exit semantics.
		if exitCode == 0 {
			result.ExitCode = -1
		}
		result.Reason = execErr.Error()
	}

	if result.ExitCode == 0 {
		result.Verify = x.verify(ctx, act, req.Target)
	}

	switch {
	case result.ExitCode == 0 && result.Verify != types.VerifyOutcomeFailed:
		result.Status = types.ExecStatusSuccess
	case result.ExitCode == 0:
		result.Status = types.ExecStatusPartial
		result.Reason = "execution succeeded but verification failed"
	default:
		result.Status = types.ExecStatusFailed
	}

	logger.Info("action executed",
		"action", req.Action,
		"target", req.Target,
		"status", result.Status,
		"exit_code", result.ExitCode,
		"verify", result.Verify,
		"duration", result.Duration,
	)
	return result
}

// RunBatch executes requests sequentially. A single failing action never
// aborts the batch.
func (x *Executor) RunBatch(ctx context.Context, reqs []Request) *action.BatchResult {
	batch := &action.BatchResult{}
	for _, req := range reqs {
		batch.Add(x.Run(ctx, req))
	}
	return batch
}

func (x *Executor) execute(ctx context.Context, act interfaces.RemediationAction, req Request) (exitCode int, output string, err error) {
	defer func() {
		if r := recover(); r != nil {
			exitCode = -1
			err = fmt.Errorf("panic in execute phase: %v", r)
		}
	}()
	return act.Execute(ctx, req.Target, req.Args)
}

func (x *Executor) verify(ctx context.Context, act interfaces.RemediationAction, target string) types.VerifyOutcome {
	verifier, ok := act.(interfaces.ActionVerifier)
	if !ok {
		return types.VerifyOutcomeSkipped
	}

	if err := x.runPhase(ctx, "verify", func(ctx context.Context) error {
		return verifier.Verify(ctx, target)
	}); err != nil {
		logging.From(ctx).Warn("verification failed",
			"action", act.Descriptor().Name,
			"target", target,
			logging.ErrAttr(err),
		)
		return types.VerifyOutcomeFailed
	}
	return types.VerifyOutcomePassed
}

// runPhase shields the executor from panics inside action phases; they
// surface as ordinary failure messages.
func (x *Executor) runPhase(ctx context.Context, phase string, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s phase: %v", phase, r)
		}
	}()
	return fn(ctx)
}
