package executor

import (
	"context"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/remedy/pkg/domain/interfaces"
	"github.com/secmon-lab/remedy/pkg/domain/model/action"
	"github.com/secmon-lab/remedy/pkg/domain/types"
)

// RegisterBuiltins installs the built-in remediation actions. Their risk
// tiers mirror the safety validator's fixed table; the table is
// authoritative at execution time either way.
func RegisterBuiltins(registry *Registry, runner *Runner) error {
	builtins := []interfaces.RemediationAction{
		&ClearCacheAction{runner: runner},
		&CleanupDiskAction{runner: runner},
		&RotateLogsAction{runner: runner},
		&RestartServiceAction{runner: runner},
		&RestartContainerAction{runner: runner},
		&KillProcessAction{runner: runner},
	}
	for _, act := range builtins {
		if err := registry.Register(act); err != nil {
			return err
		}
	}
	return nil
}

const dropCachesPath = "/proc/sys/vm/drop_caches"

// ClearCacheAction drops the kernel page cache after a sync.
type ClearCacheAction struct {
	runner *Runner
}

func (a *ClearCacheAction) Descriptor() action.Descriptor {
	return action.Descriptor{
		Name:           "clear-cache",
		Description:    "Sync filesystems and drop the kernel page cache",
		Risk:           types.RiskLevelLow,
		AutoExecutable: true,
	}
}

func (a *ClearCacheAction) Validate(ctx context.Context, target string, args []string) error {
	f, err := os.OpenFile(dropCachesPath, os.O_WRONLY, 0)
	if err != nil {
		return goerr.Wrap(err, "drop_caches is not writable (requires root)")
	}
	return f.Close()
}

func (a *ClearCacheAction) Execute(ctx context.Context, target string, args []string) (int, string, error) {
	if code, out, err := a.runner.Run(ctx, "sync"); err != nil || code != 0 {
		return code, out, err
	}
	if err := os.WriteFile(dropCachesPath, []byte("3\n"), 0o200); err != nil {
		return 1, "", goerr.Wrap(err, "failed to write drop_caches")
	}
	return 0, "page cache dropped", nil
}

// CleanupDiskAction deletes stale files from a scratch directory. The
// directory itself is preserved.
type CleanupDiskAction struct {
	runner *Runner
}

func (a *CleanupDiskAction) Descriptor() action.Descriptor {
	return action.Descriptor{
		Name:           "cleanup-disk",
		Description:    "Delete files older than 7 days from a scratch directory (default /tmp)",
		Risk:           types.RiskLevelLow,
		AutoExecutable: true,
	}
}

func (a *CleanupDiskAction) dir(target string) string {
	if target == "" || target == action.DefaultTarget {
		return "/tmp"
	}
	return target
}

func (a *CleanupDiskAction) Validate(ctx context.Context, target string, args []string) error {
	if _, err := exec.LookPath("find"); err != nil {
		return goerr.Wrap(err, "find is not available")
	}
	info, err := os.Stat(a.dir(target))
	if err != nil {
		return goerr.Wrap(err, "cleanup target does not exist", goerr.V("dir", a.dir(target)))
	}
	if !info.IsDir() {
		return goerr.New("cleanup target is not a directory", goerr.V("dir", a.dir(target)))
	}
	return nil
}

func (a *CleanupDiskAction) Execute(ctx context.Context, target string, args []string) (int, string, error) {
	return a.runner.Run(ctx, "find", a.dir(target), "-mindepth", "1", "-mtime", "+7", "-delete")
}

func (a *CleanupDiskAction) Verify(ctx context.Context, target string) error {
	if _, err := os.Stat(a.dir(target)); err != nil {
		return goerr.Wrap(err, "cleanup directory vanished", goerr.V("dir", a.dir(target)))
	}
	return nil
}

// RotateLogsAction trims the systemd journal.
type RotateLogsAction struct {
	runner *Runner
}

func (a *RotateLogsAction) Descriptor() action.Descriptor {
	return action.Descriptor{
		Name:           "rotate-logs",
		Description:    "Vacuum journald logs older than 7 days",
		Risk:           types.RiskLevelLow,
		AutoExecutable: true,
	}
}

func (a *RotateLogsAction) Validate(ctx context.Context, target string, args []string) error {
	if _, err := exec.LookPath("journalctl"); err != nil {
		return goerr.Wrap(err, "journalctl is not available")
	}
	return nil
}

func (a *RotateLogsAction) Execute(ctx context.Context, target string, args []string) (int, string, error) {
	return a.runner.Run(ctx, "journalctl", "--vacuum-time=7d")
}

// RestartServiceAction restarts one systemd unit.
type RestartServiceAction struct {
	runner *Runner
}

func (a *RestartServiceAction) Descriptor() action.Descriptor {
	return action.Descriptor{
		Name:        "restart-service",
		Description: "Restart a systemd service unit",
		Risk:        types.RiskLevelMedium,
	}
}

func (a *RestartServiceAction) Validate(ctx context.Context, target string, args []string) error {
	if target == "" {
		return goerr.New("service unit name is required")
	}
	if _, err := exec.LookPath("systemctl"); err != nil {
		return goerr.Wrap(err, "systemctl is not available")
	}
	if code, out, err := a.runner.Run(ctx, "systemctl", "cat", target); err != nil || code != 0 {
		return goerr.New("service unit not found",
			goerr.V("unit", target), goerr.V("output", out))
	}
	return nil
}

func (a *RestartServiceAction) Execute(ctx context.Context, target string, args []string) (int, string, error) {
	return a.runner.Run(ctx, "systemctl", "restart", target)
}

func (a *RestartServiceAction) Verify(ctx context.Context, target string) error {
	code, out, err := a.runner.Run(ctx, "systemctl", "is-active", "--quiet", target)
	if err != nil {
		return err
	}
	if code != 0 {
		return goerr.New("service is not active after restart",
			goerr.V("unit", target), goerr.V("output", out))
	}
	return nil
}

// RestartContainerAction restarts one Docker container.
type RestartContainerAction struct {
	runner *Runner
}

func (a *RestartContainerAction) Descriptor() action.Descriptor {
	return action.Descriptor{
		Name:        "restart-container",
		Description: "Restart a Docker container",
		Risk:        types.RiskLevelMedium,
	}
}

func (a *RestartContainerAction) Validate(ctx context.Context, target string, args []string) error {
	if target == "" {
		return goerr.New("container name is required")
	}
	if _, err := exec.LookPath("docker"); err != nil {
		return goerr.Wrap(err, "docker is not available")
	}
	return nil
}

func (a *RestartContainerAction) Execute(ctx context.Context, target string, args []string) (int, string, error) {
	return a.runner.Run(ctx, "docker", "restart", target)
}

func (a *RestartContainerAction) Verify(ctx context.Context, target string) error {
	code, out, err := a.runner.Run(ctx, "docker", "inspect", "-f", "{{.State.Running}}", target)
	if err != nil {
		return err
	}
	if code != 0 || !strings.Contains(out, "true") {
		return goerr.New("container is not running after restart",
			goerr.V("container", target), goerr.V("output", out))
	}
	return nil
}

// KillProcessAction sends SIGTERM to one process.
type KillProcessAction struct {
	runner *Runner
}

func (a *KillProcessAction) Descriptor() action.Descriptor {
	return action.Descriptor{
		Name:        "kill-process",
		Description: "Send SIGTERM to a process by PID",
		Risk:        types.RiskLevelHigh,
	}
}

func (a *KillProcessAction) parsePID(target string) (int, error) {
	pid, err := strconv.Atoi(target)
	if err != nil || pid <= 1 {
		return 0, goerr.New("target must be a PID greater than 1", goerr.V("target", target))
	}
	return pid, nil
}

func (a *KillProcessAction) Validate(ctx context.Context, target string, args []string) error {
	pid, err := a.parsePID(target)
	if err != nil {
		return err
	}
	if err := syscall.Kill(pid, 0); err != nil {
		return goerr.Wrap(err, "process does not exist", goerr.V("pid", pid))
	}
	return nil
}

func (a *KillProcessAction) Execute(ctx context.Context, target string, args []string) (int, string, error) {
	pid, err := a.parsePID(target)
	if err != nil {
		return 1, "", err
	}
	return a.runner.Run(ctx, "kill", "-TERM", strconv.Itoa(pid))
}

func (a *KillProcessAction) Verify(ctx context.Context, target string) error {
	pid, err := a.parsePID(target)
	if err != nil {
		return err
	}
	if err := syscall.Kill(pid, 0); err == nil {
		return goerr.New("process is still alive", goerr.V("pid", pid))
	}
	return nil
}
