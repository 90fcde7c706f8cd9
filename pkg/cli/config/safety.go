package config

import (
	"log/slog"
	"time"

	"github.com/secmon-lab/remedy/pkg/service/safety"
	"github.com/urfave/cli/v3"
)

// Safety configures the risk gates and execution budgets.
type Safety struct {
	maxLoadRatio    float64
	minMemFree      float64
	maxRootDisk     float64
	execTimeout     time.Duration
	cooldown        time.Duration
	normalThreshold int
	lockTimeout     time.Duration
	dryRun          bool
}

func (x *Safety) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.Float64Flag{
			Name:        "max-load-ratio",
			Usage:       "Load average per CPU above which the system counts as unstable",
			Category:    "Safety",
			Value:       3.0,
			Sources:     cli.EnvVars("REMEDY_MAX_LOAD_RATIO"),
			Destination: &x.maxLoadRatio,
		},
		&cli.Float64Flag{
			Name:        "min-mem-free-percent",
			Usage:       "Available memory percentage below which the system counts as unstable",
			Category:    "Safety",
			Value:       5.0,
			Sources:     cli.EnvVars("REMEDY_MIN_MEM_FREE_PERCENT"),
			Destination: &x.minMemFree,
		},
		&cli.Float64Flag{
			Name:        "max-root-disk-percent",
			Usage:       "Root filesystem usage percentage above which the system counts as unstable",
			Category:    "Safety",
			Value:       98.0,
			Sources:     cli.EnvVars("REMEDY_MAX_ROOT_DISK_PERCENT"),
			Destination: &x.maxRootDisk,
		},
		&cli.DurationFlag{
			Name:        "exec-timeout",
			Usage:       "Hard wall-clock budget for one remediation action",
			Category:    "Safety",
			Value:       300 * time.Second,
			Sources:     cli.EnvVars("REMEDY_EXEC_TIMEOUT"),
			Destination: &x.execTimeout,
		},
		&cli.DurationFlag{
			Name:        "cooldown",
			Usage:       "Block repeat of the same (action, target) pair for this long after success",
			Category:    "Safety",
			Value:       30 * time.Minute,
			Sources:     cli.EnvVars("REMEDY_COOLDOWN"),
			Destination: &x.cooldown,
		},
		&cli.IntFlag{
			Name:        "normal-threshold",
			Usage:       "Consecutive clean cycles required before closing a tracked issue",
			Category:    "Safety",
			Value:       3,
			Sources:     cli.EnvVars("REMEDY_NORMAL_THRESHOLD"),
			Destination: &x.normalThreshold,
		},
		&cli.DurationFlag{
			Name:        "lock-timeout",
			Usage:       "How long a cycle waits for the run lock before skipping",
			Category:    "Safety",
			Value:       10 * time.Second,
			Sources:     cli.EnvVars("REMEDY_LOCK_TIMEOUT"),
			Destination: &x.lockTimeout,
		},
		&cli.BoolFlag{
			Name:        "dry-run",
			Usage:       "Decide everything, mutate nothing",
			Category:    "Safety",
			Sources:     cli.EnvVars("REMEDY_DRY_RUN"),
			Destination: &x.dryRun,
		},
	}
}

func (x Safety) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Float64("max_load_ratio", x.maxLoadRatio),
		slog.Float64("min_mem_free_percent", x.minMemFree),
		slog.Float64("max_root_disk_percent", x.maxRootDisk),
		slog.Duration("exec_timeout", x.execTimeout),
		slog.Duration("cooldown", x.cooldown),
		slog.Int("normal_threshold", x.normalThreshold),
		slog.Bool("dry_run", x.dryRun),
	)
}

func (x *Safety) Thresholds() safety.Thresholds {
	t := safety.DefaultThresholds()
	t.MaxLoadRatio = x.maxLoadRatio
	t.MinMemFreePercent = x.minMemFree
	t.MaxRootDiskPercent = x.maxRootDisk
	return t
}

func (x *Safety) ExecTimeout() time.Duration { return x.execTimeout }
func (x *Safety) Cooldown() time.Duration    { return x.cooldown }
func (x *Safety) NormalThreshold() int       { return x.normalThreshold }
func (x *Safety) LockTimeout() time.Duration { return x.lockTimeout }
func (x *Safety) DryRun() bool               { return x.dryRun }
