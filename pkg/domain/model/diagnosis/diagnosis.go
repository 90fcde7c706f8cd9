package diagnosis

import (
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/remedy/pkg/domain/types"
)

// Urgency indicates how quickly a human should look at the incident.
type Urgency string

const (
	UrgencyLow       Urgency = "low"
	UrgencyMedium    Urgency = "medium"
	UrgencyHigh      Urgency = "high"
	UrgencyImmediate Urgency = "immediate"
)

// Recommendation is one suggested remediation produced by an analyzer. The
// analyzer's risk opinion is advisory only; the safety validator's fixed
// table is authoritative at execution time.
type Recommendation struct {
	Action         string          `json:"action"`
	Target         string          `json:"target,omitempty"`
	Description    string          `json:"description"`
	RiskLevel      types.RiskLevel `json:"risk_level"`
	AutoExecutable bool            `json:"auto_executable"`
}

// Diagnosis is the analyzer's assessment of one alert summary. Both the
// AI-backed and the rule-based analyzer produce this shape; the pipeline is
// indifferent to which one did.
type Diagnosis struct {
	Severity        types.AlertSeverity `json:"severity"`
	Diagnosis       string              `json:"diagnosis"`
	Recommendations []Recommendation    `json:"recommendations"`
	RequiresHuman   bool                `json:"requires_human"`
	Urgency         Urgency             `json:"urgency"`
	// RuleBased is true when the diagnosis came from the fallback rule
	// engine rather than an LLM.
	RuleBased bool `json:"rule_based,omitempty"`
}

func (d *Diagnosis) Validate() error {
	if err := d.Severity.Validate(); err != nil {
		return goerr.Wrap(err, "invalid diagnosis severity")
	}
	if d.Diagnosis == "" {
		return goerr.New("diagnosis text is required")
	}
	return nil
}

// SuggestedActions returns the (action, target) pairs the analyzer marked as
// candidates for unattended execution.
func (d *Diagnosis) SuggestedActions() []Recommendation {
	var out []Recommendation
	for _, r := range d.Recommendations {
		if r.AutoExecutable {
			out = append(out, r)
		}
	}
	return out
}
