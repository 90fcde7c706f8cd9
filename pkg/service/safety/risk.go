// Package safety gates unattended remediation. It classifies actions into
// fixed risk tiers, probes host stability, and screens raw commands against
// a deny-list.
//
// The deny-list is defense in depth, not a security boundary: it is a fixed,
// non-exhaustive pattern set and cannot be made complete against adversarial
// input. The real guarantee is the fail-closed risk table: anything not
// explicitly classified is critical and never auto-executes.
package safety

import (
	"context"
	"fmt"
	"sync"

	"github.com/secmon-lab/remedy/pkg/domain/model/action"
	"github.com/secmon-lab/remedy/pkg/domain/types"
)

// Prober reports current host stability. The production prober reads /proc
// and systemd; tests inject static reports.
type Prober interface {
	Probe(ctx context.Context) *action.StabilityReport
}

// Validator decides whether a named action may run without human sign-off.
type Validator struct {
	mu        sync.RWMutex
	riskTable map[string]types.RiskLevel
	denyList  []denyPattern
	prober    Prober
}

var defaultRiskTable = map[string]types.RiskLevel{
	// low: reversible, no service interruption
	"clear-cache":  types.RiskLevelLow,
	"cleanup-disk": types.RiskLevelLow,
	"rotate-logs":  types.RiskLevelLow,

	// medium: brief interruption of one service or container
	"restart-service":   types.RiskLevelMedium,
	"restart-container": types.RiskLevelMedium,

	// high: kills workloads
	"kill-process": types.RiskLevelHigh,
}

type Option func(*Validator)

// WithProber replaces the host stability probe.
func WithProber(p Prober) Option {
	return func(v *Validator) {
		v.prober = p
	}
}

// WithRiskOverride adds or overrides one risk classification, used by
// operators registering custom actions.
func WithRiskOverride(name string, risk types.RiskLevel) Option {
	return func(v *Validator) {
		v.riskTable[name] = risk
	}
}

func New(opts ...Option) *Validator {
	v := &Validator{
		riskTable: make(map[string]types.RiskLevel, len(defaultRiskTable)),
		denyList:  defaultDenyList(),
		prober:    NewSystemProber(),
	}
	for name, risk := range defaultRiskTable {
		v.riskTable[name] = risk
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// RiskLevel returns the declared tier of an action. Unclassified actions are
// critical: fail closed.
func (v *Validator) RiskLevel(name string) types.RiskLevel {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if risk, ok := v.riskTable[name]; ok {
		return risk
	}
	return types.RiskLevelCritical
}

// IsLowRisk reports membership in the low-risk set only.
func (v *Validator) IsLowRisk(name string) bool {
	return v.RiskLevel(name) == types.RiskLevelLow
}

// AddLowRisk appends an action to the low-risk set at runtime.
func (v *Validator) AddLowRisk(name string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.riskTable[name] = types.RiskLevelLow
}

// SystemStable runs the five stability checks and returns the full report.
func (v *Validator) SystemStable(ctx context.Context) *action.StabilityReport {
	v.mu.RLock()
	prober := v.prober
	v.mu.RUnlock()
	return prober.Probe(ctx)
}

// CanAutoExecute is true only for a low-risk action on a stable system.
func (v *Validator) CanAutoExecute(ctx context.Context, name, target string) bool {
	return v.IsLowRisk(name) && v.SystemStable(ctx).Stable
}

// PreExecutionDecision computes the full approval verdict for one
// (action, target) pair, with a human-readable reason on denial.
func (v *Validator) PreExecutionDecision(ctx context.Context, name, target string) *action.Decision {
	risk := v.RiskLevel(name)
	stability := v.SystemStable(ctx)

	decision := &action.Decision{
		Action:       name,
		Target:       target,
		RiskLevel:    risk,
		SystemStable: stability.Stable,
		Stability:    stability,
	}

	switch {
	case !stability.Stable:
		decision.Reason = fmt.Sprintf("system unstable: %v", stability.Issues)
	case risk == types.RiskLevelLow:
		decision.Approved = true
		decision.Reason = "low risk action on stable system"
	case risk == types.RiskLevelMedium:
		decision.Reason = "medium risk action requires AI confirmation"
	default:
		decision.Reason = fmt.Sprintf("%s risk action requires human confirmation", risk)
	}

	return decision
}
