package executor

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/remedy/pkg/domain/model/errs"
	"github.com/secmon-lab/remedy/pkg/service/safety"
)

// Runner executes child commands for remediation actions. Every command
// line is screened against the deny-list before it runs, and children are
// placed in their own process group so a timeout or shutdown terminates the
// whole tree, not just the direct child.
type Runner struct {
	validator *safety.Validator
	waitDelay time.Duration
}

func NewRunner(validator *safety.Validator) *Runner {
	return &Runner{
		validator: validator,
		waitDelay: 3 * time.Second,
	}
}

// Run executes name with args under the context's deadline. It returns the
// exit code and combined output; err is set only for failures other than a
// non-zero exit (deny-list match, timeout, binary missing).
func (r *Runner) Run(ctx context.Context, name string, args ...string) (int, string, error) {
	line := strings.Join(append([]string{name}, args...), " ")
	if err := r.validator.ValidateCommand(line); err != nil {
		return -1, "", goerr.Wrap(err, "command blocked by deny-list")
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	// On cancellation terminate the whole process group; WaitDelay bounds
	// the escalation to a forced kill.
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
	}
	cmd.WaitDelay = r.waitDelay

	out, err := cmd.CombinedOutput()
	output := string(out)

	if ctx.Err() != nil {
		return -1, output, goerr.Wrap(ctx.Err(), "command timed out",
			goerr.T(errs.TagTimeout),
			goerr.V("command", line))
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), output, nil
		}
		return -1, output, goerr.Wrap(err, "failed to run command",
			goerr.T(errs.TagExecution),
			goerr.V("command", line))
	}

	return 0, output, nil
}

// RunShell executes a raw shell line through `sh -c`, used by operator
// script actions. The line itself is deny-checked, not just the argv.
func (r *Runner) RunShell(ctx context.Context, line string) (int, string, error) {
	if err := r.validator.ValidateCommand(line); err != nil {
		return -1, "", goerr.Wrap(err, "command blocked by deny-list")
	}
	return r.Run(ctx, "sh", "-c", line)
}
