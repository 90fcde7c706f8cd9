package action

import (
	"time"

	"github.com/secmon-lab/remedy/pkg/domain/types"
)

// DefaultTarget is the cooldown key component used when an action runs
// without an explicit target.
const DefaultTarget = "default"

// Descriptor describes a registered remediation action: its fixed risk tier
// and whether the policy ever allows it to run unattended. Risk tiers are
// declared, not computed.
type Descriptor struct {
	Name           string          `json:"name"`
	Description    string          `json:"description"`
	Risk           types.RiskLevel `json:"risk"`
	Target         string          `json:"target,omitempty"`
	AutoExecutable bool            `json:"auto_executable"`
}

// StabilityReport is the outcome of the system stability probe. Issues lists
// every check that contributed; Stable is the gate for unattended execution.
type StabilityReport struct {
	Stable              bool     `json:"stable"`
	Issues              []string `json:"issues,omitempty"`
	LoadRatio           float64  `json:"load_ratio"`
	MemFreePercent      float64  `json:"mem_free_percent"`
	RootDiskUsedPercent float64  `json:"root_disk_used_percent"`
	OOMKillCount        int      `json:"oom_kill_count"`
	FailedServiceCount  int      `json:"failed_service_count"`
}

// Decision is the pre-execution verdict for one (action, target) pair.
// Approved is true only for a low-risk action on a stable system; otherwise
// Reason explains what kind of sign-off is required.
type Decision struct {
	Action       string           `json:"action"`
	Target       string           `json:"target"`
	RiskLevel    types.RiskLevel  `json:"risk_level"`
	SystemStable bool             `json:"system_stable"`
	Approved     bool             `json:"approved"`
	Reason       string           `json:"reason"`
	Stability    *StabilityReport `json:"stability,omitempty"`
}

// ExecutionResult is the structured outcome of one remediation attempt.
type ExecutionResult struct {
	ID        types.ExecutionID   `json:"id"`
	Action    string              `json:"action"`
	Target    string              `json:"target"`
	Status    types.ExecStatus    `json:"status"`
	ExitCode  int                 `json:"exit_code"`
	Duration  time.Duration       `json:"duration"`
	Output    string              `json:"output,omitempty"`
	Verify    types.VerifyOutcome `json:"verify"`
	RiskLevel types.RiskLevel     `json:"risk_level"`
	Reason    string              `json:"reason,omitempty"`
	DryRun    bool                `json:"dry_run,omitempty"`
}

// Succeeded reports whether the attempt should (re)set the action cooldown.
func (r *ExecutionResult) Succeeded() bool {
	return r.Status == types.ExecStatusSuccess
}

// BatchResult accumulates sequential execution of several actions. One
// failing action never aborts the batch.
type BatchResult struct {
	Results   []*ExecutionResult `json:"results"`
	Succeeded int                `json:"succeeded"`
	Failed    int                `json:"failed"`
	Rejected  int                `json:"rejected"`
}

func (b *BatchResult) Add(r *ExecutionResult) {
	b.Results = append(b.Results, r)
	switch r.Status {
	case types.ExecStatusSuccess, types.ExecStatusSkipped:
		b.Succeeded++
	case types.ExecStatusRejected:
		b.Rejected++
	default:
		b.Failed++
	}
}
