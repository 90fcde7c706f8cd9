package types

import (
	"github.com/m-mizutani/goerr/v2"
)

// AlertSource identifies which collector produced an alert summary. The
// source is part of every issue key, so keys from different sources never
// collide.
type AlertSource string

const (
	SourceSystem    AlertSource = "system"
	SourceContainer AlertSource = "container"
	SourceFeed      AlertSource = "feed"
	SourceManual    AlertSource = "manual"
)

func (x AlertSource) String() string {
	return string(x)
}

// AlertSeverity is the severity of a detected problem. Severities are
// ordered: ok < minor < warning < critical.
type AlertSeverity string

const (
	AlertSeverityOK       AlertSeverity = "ok"
	AlertSeverityMinor    AlertSeverity = "minor"
	AlertSeverityWarning  AlertSeverity = "warning"
	AlertSeverityCritical AlertSeverity = "critical"
)

var alertSeverityLevels = map[AlertSeverity]int{
	AlertSeverityOK:       0,
	AlertSeverityMinor:    1,
	AlertSeverityWarning:  2,
	AlertSeverityCritical: 3,
}

var alertSeverityLabels = map[AlertSeverity]string{
	AlertSeverityOK:       "✅ OK",
	AlertSeverityMinor:    "🟢 Minor",
	AlertSeverityWarning:  "🟡 Warning",
	AlertSeverityCritical: "🚨 Critical",
}

func (s AlertSeverity) String() string {
	return string(s)
}

func (s AlertSeverity) Label() string {
	return alertSeverityLabels[s]
}

// Level returns the ordering rank of the severity. Unknown severities rank
// below ok so a malformed feed entry never outranks a real problem.
func (s AlertSeverity) Level() int {
	if level, ok := alertSeverityLevels[s]; ok {
		return level
	}
	return -1
}

// AtLeast returns true if s is equal to or more severe than other.
func (s AlertSeverity) AtLeast(other AlertSeverity) bool {
	return s.Level() >= other.Level()
}

func (s AlertSeverity) Validate() error {
	switch s {
	case AlertSeverityOK, AlertSeverityMinor, AlertSeverityWarning, AlertSeverityCritical:
		return nil
	}
	return goerr.New("invalid alert severity", goerr.V("severity", s))
}

// MaxSeverity returns the most severe of the given severities, or ok when
// none are given.
func MaxSeverity(severities ...AlertSeverity) AlertSeverity {
	max := AlertSeverityOK
	for _, s := range severities {
		if s.Level() > max.Level() {
			max = s
		}
	}
	return max
}
