// Package diagnosis turns an alert summary into a Diagnosis, either by
// asking an LLM or by a fixed rule table. The rule engine also serves as
// fallback when the LLM is unreachable, so an outage of the AI backend never
// stops the remediation loop.
package diagnosis

import (
	"context"
	"fmt"
	"strings"

	"github.com/secmon-lab/remedy/pkg/domain/interfaces"
	"github.com/secmon-lab/remedy/pkg/domain/model/alert"
	"github.com/secmon-lab/remedy/pkg/domain/model/diagnosis"
	"github.com/secmon-lab/remedy/pkg/domain/types"
)

// RuleBased maps well-known issue types to remediations without any
// external dependency.
type RuleBased struct{}

var _ interfaces.Analyzer = &RuleBased{}

func NewRuleBased() *RuleBased {
	return &RuleBased{}
}

func (x *RuleBased) Diagnose(ctx context.Context, summary *alert.Summary, metrics map[string]float64) (*diagnosis.Diagnosis, error) {
	d := &diagnosis.Diagnosis{
		Severity:  summary.MaxSeverity,
		Urgency:   urgencyFor(summary.MaxSeverity),
		RuleBased: true,
	}

	var lines []string
	for _, entry := range summary.Issues {
		lines = append(lines, entry.Title())
		recs, needsHuman := recommendFor(entry)
		d.Recommendations = append(d.Recommendations, recs...)
		if needsHuman {
			d.RequiresHuman = true
		}
	}

	if len(lines) == 0 {
		d.Diagnosis = "no active issues detected"
	} else {
		d.Diagnosis = fmt.Sprintf("%d active issue(s): %s",
			len(summary.Issues), strings.Join(lines, "; "))
	}

	d.Recommendations = dedupe(d.Recommendations)
	return d, nil
}

func recommendFor(entry alert.Entry) ([]diagnosis.Recommendation, bool) {
	critical := entry.Severity == types.AlertSeverityCritical

	switch entry.Type {
	case "disk":
		return []diagnosis.Recommendation{
			{
				Action:         "cleanup-disk",
				Description:    "remove aged temporary files",
				RiskLevel:      types.RiskLevelLow,
				AutoExecutable: true,
			},
			{
				Action:         "rotate-logs",
				Description:    "vacuum journald logs older than 7 days",
				RiskLevel:      types.RiskLevelLow,
				AutoExecutable: true,
			},
		}, critical

	case "memory":
		recs := []diagnosis.Recommendation{
			{
				Action:         "clear-cache",
				Description:    "drop kernel page cache to reclaim memory",
				RiskLevel:      types.RiskLevelLow,
				AutoExecutable: true,
			},
		}
		if critical {
			recs = append(recs, diagnosis.Recommendation{
				Action:      "kill-process",
				Target:      entry.Subject,
				Description: "terminate the top memory consumer",
				RiskLevel:   types.RiskLevelHigh,
			})
		}
		return recs, critical

	case "oom":
		return []diagnosis.Recommendation{
			{
				Action:         "clear-cache",
				Description:    "relieve memory pressure after OOM kill",
				RiskLevel:      types.RiskLevelLow,
				AutoExecutable: true,
			},
		}, true

	case "service":
		return []diagnosis.Recommendation{
			{
				Action:      "restart-service",
				Target:      entry.Subject,
				Description: fmt.Sprintf("restart failed unit %s", entry.Subject),
				RiskLevel:   types.RiskLevelMedium,
			},
		}, critical

	case "container":
		return []diagnosis.Recommendation{
			{
				Action:      "restart-container",
				Target:      entry.Subject,
				Description: fmt.Sprintf("restart unhealthy container %s", entry.Subject),
				RiskLevel:   types.RiskLevelMedium,
			},
		}, critical

	case "load", "cpu":
		// no safe unattended action for raw load, a human decides
		return nil, critical

	default:
		return nil, critical
	}
}

func urgencyFor(severity types.AlertSeverity) diagnosis.Urgency {
	switch severity {
	case types.AlertSeverityCritical:
		return diagnosis.UrgencyImmediate
	case types.AlertSeverityWarning:
		return diagnosis.UrgencyHigh
	case types.AlertSeverityMinor:
		return diagnosis.UrgencyMedium
	default:
		return diagnosis.UrgencyLow
	}
}

func dedupe(recs []diagnosis.Recommendation) []diagnosis.Recommendation {
	seen := make(map[string]bool, len(recs))
	var out []diagnosis.Recommendation
	for _, r := range recs {
		key := r.Action + "/" + r.Target
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r)
	}
	return out
}
