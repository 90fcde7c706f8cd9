package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/remedy/pkg/domain/types"
	"github.com/secmon-lab/remedy/pkg/utils/clock"
)

// Summary is the normalized, severity-ranked view of one evaluation cycle.
// Collectors produce a fresh Summary per cycle; it is immutable once handed
// to the pipeline.
type Summary struct {
	Timestamp   time.Time           `json:"timestamp"`
	Hostname    string              `json:"hostname"`
	IssueCount  int                 `json:"issue_count"`
	MaxSeverity types.AlertSeverity `json:"max_severity"`
	Summary     string              `json:"summary"`
	Issues      []Entry             `json:"issues"`
}

// Entry is one detected problem within a Summary. Subject fields vary by
// type (a mount point, a container name, a service unit); Subject holds the
// identifier used for issue keying and remediation targeting.
type Entry struct {
	Type      string              `json:"type"`
	Severity  types.AlertSeverity `json:"severity"`
	Subject   string              `json:"subject,omitempty"`
	Current   float64             `json:"current,omitempty"`
	Threshold float64             `json:"threshold,omitempty"`
	Message   string              `json:"message,omitempty"`
}

// Key returns the deterministic issue key for this entry under the given
// source.
func (e Entry) Key(source types.AlertSource) types.IssueKey {
	return types.NewIssueKey(source, e.Type, e.Subject)
}

// Title renders a short human-readable description of the entry.
func (e Entry) Title() string {
	if e.Subject != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Severity, e.Type, e.Subject)
	}
	return fmt.Sprintf("[%s] %s", e.Severity, e.Type)
}

func New(ctx context.Context, hostname string, entries []Entry) Summary {
	return Summary{
		Timestamp:   clock.Now(ctx),
		Hostname:    hostname,
		IssueCount:  len(entries),
		MaxSeverity: maxSeverityOf(entries),
		Issues:      entries,
	}
}

func maxSeverityOf(entries []Entry) types.AlertSeverity {
	severities := make([]types.AlertSeverity, 0, len(entries))
	for _, e := range entries {
		severities = append(severities, e.Severity)
	}
	return types.MaxSeverity(severities...)
}

// Clean reports whether the cycle detected no problems.
func (s *Summary) Clean() bool {
	return s.IssueCount == 0
}

func (s *Summary) Validate() error {
	if s.Timestamp.IsZero() {
		return goerr.New("summary timestamp is required")
	}
	if err := s.MaxSeverity.Validate(); err != nil {
		return goerr.Wrap(err, "invalid max severity")
	}
	if s.IssueCount != len(s.Issues) {
		return goerr.New("issue_count does not match issues",
			goerr.V("issue_count", s.IssueCount),
			goerr.V("issues", len(s.Issues)))
	}
	for _, e := range s.Issues {
		if e.Type == "" {
			return goerr.New("issue entry type is required")
		}
		if err := e.Severity.Validate(); err != nil {
			return goerr.Wrap(err, "invalid issue entry severity", goerr.V("type", e.Type))
		}
	}
	return nil
}

// Decode parses a Summary from its canonical JSON form and validates it at
// the boundary so the pipeline only ever sees well-formed input.
func Decode(r io.Reader) (*Summary, error) {
	var s Summary
	if err := json.NewDecoder(r).Decode(&s); err != nil {
		return nil, goerr.Wrap(err, "failed to decode alert summary")
	}
	if err := s.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid alert summary")
	}
	return &s, nil
}
