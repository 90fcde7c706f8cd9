package types

import (
	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

// ExecutionID identifies one invocation of the remediation executor, used to
// correlate audit entries with notifications.
type ExecutionID string

func (x ExecutionID) String() string {
	return string(x)
}

func NewExecutionID() ExecutionID {
	return ExecutionID(uuid.New().String())
}

// RiskLevel is the fixed classification of a remediation action. Only
// low-risk actions may ever run unattended; anything unclassified is treated
// as critical.
type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "low"
	RiskLevelMedium   RiskLevel = "medium"
	RiskLevelHigh     RiskLevel = "high"
	RiskLevelCritical RiskLevel = "critical"
)

var riskLevelLabels = map[RiskLevel]string{
	RiskLevelLow:      "🟢 Low",
	RiskLevelMedium:   "🟡 Medium",
	RiskLevelHigh:     "🔴 High",
	RiskLevelCritical: "🚨 Critical",
}

func (r RiskLevel) String() string {
	return string(r)
}

func (r RiskLevel) Label() string {
	return riskLevelLabels[r]
}

func (r RiskLevel) Validate() error {
	switch r {
	case RiskLevelLow, RiskLevelMedium, RiskLevelHigh, RiskLevelCritical:
		return nil
	}
	return goerr.New("invalid risk level", goerr.V("risk", r))
}

// ExecStatus is the final status of one remediation attempt.
type ExecStatus string

const (
	// ExecStatusSuccess: exit 0 and verification passed or was skipped.
	ExecStatusSuccess ExecStatus = "success"
	// ExecStatusPartial: exit 0 but the post-condition check failed.
	ExecStatusPartial ExecStatus = "partial"
	// ExecStatusFailed: non-zero exit or timeout.
	ExecStatusFailed ExecStatus = "failed"
	// ExecStatusRejected: the safety gate declined the action. Expected
	// policy outcome, not an error.
	ExecStatusRejected ExecStatus = "rejected"
	// ExecStatusValidationFailed: the action's pre-flight check declined.
	ExecStatusValidationFailed ExecStatus = "validation_failed"
	// ExecStatusError: the executor itself failed before a verdict.
	ExecStatusError ExecStatus = "error"
	// ExecStatusSkipped: dry-run mode, nothing was invoked.
	ExecStatusSkipped ExecStatus = "skipped"
)

func (s ExecStatus) String() string {
	return string(s)
}

func (s ExecStatus) Validate() error {
	switch s {
	case ExecStatusSuccess, ExecStatusPartial, ExecStatusFailed, ExecStatusRejected,
		ExecStatusValidationFailed, ExecStatusError, ExecStatusSkipped:
		return nil
	}
	return goerr.New("invalid execution status", goerr.V("status", s))
}

// VerifyOutcome is the result of an action's post-condition check.
type VerifyOutcome string

const (
	VerifyOutcomePassed  VerifyOutcome = "passed"
	VerifyOutcomeFailed  VerifyOutcome = "failed"
	VerifyOutcomeSkipped VerifyOutcome = "skipped"
)

func (v VerifyOutcome) String() string {
	return string(v)
}
