// Package audit records every remediation decision and outcome as one JSON
// line per event in an append-only file. The file is the forensic record of
// what the loop did to the host and why.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/remedy/pkg/domain/interfaces"
	"github.com/secmon-lab/remedy/pkg/domain/model/action"
	"github.com/secmon-lab/remedy/pkg/domain/model/errs"
	"github.com/secmon-lab/remedy/pkg/domain/types"
	"github.com/secmon-lab/remedy/pkg/utils/clock"
)

// Record is one audit line.
type Record struct {
	Timestamp time.Time           `json:"timestamp"`
	Execution types.ExecutionID   `json:"execution_id"`
	Action    string              `json:"action"`
	Target    string              `json:"target,omitempty"`
	Status    types.ExecStatus    `json:"status"`
	ExitCode  int                 `json:"exit_code"`
	Risk      types.RiskLevel     `json:"risk_level"`
	Verify    types.VerifyOutcome `json:"verify,omitempty"`
	Reason    string              `json:"reason,omitempty"`
	DryRun    bool                `json:"dry_run,omitempty"`
	Details   map[string]any      `json:"details,omitempty"`
}

// JSONLSink appends records to a single JSONL file, safe for concurrent use
// within one process. Cross-process exclusion comes from the run lock.
type JSONLSink struct {
	path string
	mu   sync.Mutex
	f    *os.File
}

var _ interfaces.AuditSink = &JSONLSink{}

func NewJSONLSink(path string) (*JSONLSink, error) {
	if path == "" {
		return nil, goerr.New("audit log path is required", goerr.Tag(errs.TagConfiguration))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, goerr.Wrap(err, "failed to create audit log directory",
			goerr.V("path", path), goerr.Tag(errs.TagConfiguration))
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open audit log",
			goerr.V("path", path), goerr.Tag(errs.TagConfiguration))
	}
	return &JSONLSink{path: path, f: f}, nil
}

func (x *JSONLSink) RecordAudit(ctx context.Context, result *action.ExecutionResult, details map[string]any) error {
	if result == nil {
		return nil
	}

	record := Record{
		Timestamp: clock.Now(ctx),
		Execution: result.ID,
		Action:    result.Action,
		Target:    result.Target,
		Status:    result.Status,
		ExitCode:  result.ExitCode,
		Risk:      result.RiskLevel,
		Verify:    result.Verify,
		Reason:    result.Reason,
		DryRun:    result.DryRun,
		Details:   details,
	}

	data, err := json.Marshal(record)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal audit record")
	}
	data = append(data, '\n')

	x.mu.Lock()
	defer x.mu.Unlock()
	if _, err := x.f.Write(data); err != nil {
		return goerr.Wrap(err, "failed to append audit record", goerr.V("path", x.path))
	}
	return nil
}

// Query reads back all records matching the filter. Linear scan, intended
// for operator inspection and tests, not hot paths.
func (x *JSONLSink) Query(ctx context.Context, match func(*Record) bool) ([]*Record, error) {
	x.mu.Lock()
	_ = x.f.Sync()
	x.mu.Unlock()

	data, err := os.ReadFile(x.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, goerr.Wrap(err, "failed to read audit log", goerr.V("path", x.path))
	}

	var out []*Record
	for _, line := range bytes.Split(data, []byte{'\n'}) {
		if len(line) == 0 {
			continue
		}
		var r Record
		if err := json.Unmarshal(line, &r); err != nil {
			// a torn tail line from a crash is tolerated
			continue
		}
		if match == nil || match(&r) {
			out = append(out, &r)
		}
	}
	return out, nil
}

func (x *JSONLSink) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.f.Close()
}
