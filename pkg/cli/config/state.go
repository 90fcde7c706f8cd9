package config

import (
	"log/slog"
	"path/filepath"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/remedy/pkg/adapter/audit"
	"github.com/secmon-lab/remedy/pkg/repository"
	"github.com/secmon-lab/remedy/pkg/service/runlock"
	"github.com/urfave/cli/v3"
)

// State configures the durable side of the pipeline: issue/cooldown records,
// the audit log and the cross-process run lock. All live under one base
// directory by default.
type State struct {
	baseDir  string
	inMemory bool
}

func (x *State) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "state-dir",
			Usage:       "Directory for durable state (issue records, cooldowns, audit log, run lock)",
			Category:    "State",
			Value:       "/var/lib/remedy",
			Sources:     cli.EnvVars("REMEDY_STATE_DIR"),
			Destination: &x.baseDir,
		},
		&cli.BoolFlag{
			Name:        "state-in-memory",
			Usage:       "Keep state in memory only (testing; nothing survives a restart)",
			Category:    "State",
			Sources:     cli.EnvVars("REMEDY_STATE_IN_MEMORY"),
			Destination: &x.inMemory,
		},
	}
}

func (x State) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("base_dir", x.baseDir),
		slog.Bool("in_memory", x.inMemory),
	)
}

func (x *State) Repository() (*repository.Badger, error) {
	dir := ""
	if !x.inMemory {
		if x.baseDir == "" {
			return nil, goerr.New("state directory is required")
		}
		dir = filepath.Join(x.baseDir, "db")
	}
	return repository.NewBadger(dir)
}

func (x *State) AuditSink() (*audit.JSONLSink, error) {
	if x.inMemory {
		return audit.NewJSONLSink(filepath.Join("/tmp", "remedy-audit.jsonl"))
	}
	return audit.NewJSONLSink(filepath.Join(x.baseDir, "audit.jsonl"))
}

func (x *State) RunLock() *runlock.Lock {
	if x.inMemory {
		return runlock.New(filepath.Join("/tmp", "remedy.lock"))
	}
	return runlock.New(filepath.Join(x.baseDir, "remedy.lock"))
}
