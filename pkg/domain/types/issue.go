package types

import (
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

// IssueKey is the deterministic identity of a tracked issue, derived from
// (source, issue type, subject). The same logical problem always maps to the
// same key regardless of casing or punctuation in the inputs.
type IssueKey string

func (x IssueKey) String() string {
	return string(x)
}

const EmptyIssueKey IssueKey = ""

func (x IssueKey) Validate() error {
	if x == EmptyIssueKey {
		return goerr.New("empty issue key")
	}
	return nil
}

// NewIssueKey normalizes (source, issueType, subject) into a stable key:
// lower-cased, with every run of characters outside [a-z0-9_] collapsed to a
// single underscore.
func NewIssueKey(source AlertSource, issueType, subject string) IssueKey {
	raw := strings.ToLower(source.String() + "_" + issueType + "_" + subject)

	var sb strings.Builder
	sb.Grow(len(raw))
	pendingSep := false
	for _, r := range raw {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			if pendingSep && sb.Len() > 0 {
				sb.WriteByte('_')
			}
			pendingSep = false
			sb.WriteRune(r)
		} else {
			pendingSep = true
		}
	}
	return IssueKey(sb.String())
}

// IssueStatus is the lifecycle state of a tracked issue. A record is created
// as open and stays open until enough consecutive clean cycles delete it;
// absence of a record means the problem is resolved.
type IssueStatus string

const (
	IssueStatusOpen IssueStatus = "open"
)

func (s IssueStatus) String() string {
	return string(s)
}

func (s IssueStatus) Validate() error {
	switch s {
	case IssueStatusOpen:
		return nil
	}
	return goerr.New("invalid issue status", goerr.V("status", s))
}
