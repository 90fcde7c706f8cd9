package system_test

import (
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/remedy/pkg/adapter/system"
	"github.com/secmon-lab/remedy/pkg/domain/model/action"
	"github.com/secmon-lab/remedy/pkg/domain/model/alert"
	"github.com/secmon-lab/remedy/pkg/domain/types"
	"github.com/secmon-lab/remedy/pkg/service/safety"
)

func collect(t *testing.T, report *action.StabilityReport) *alert.Summary {
	t.Helper()
	c := system.New(
		system.WithProber(&safety.StaticProber{Report: report}),
		system.WithHostname("web-01"),
	)
	return gt.R1(c.Collect(t.Context())).NoError(t)
}

func TestHealthyHostYieldsCleanSummary(t *testing.T) {
	s := collect(t, &action.StabilityReport{
		Stable: true, LoadRatio: 0.3, MemFreePercent: 60, RootDiskUsedPercent: 40,
	})
	gt.True(t, s.Clean())
	gt.Equal(t, s.MaxSeverity, types.AlertSeverityOK)
	gt.Equal(t, s.Hostname, "web-01")
}

func TestDiskWarning(t *testing.T) {
	s := collect(t, &action.StabilityReport{
		Stable: true, MemFreePercent: 60, RootDiskUsedPercent: 93,
	})
	gt.A(t, s.Issues).Length(1).At(0, func(t testing.TB, e alert.Entry) {
		gt.Equal(t, e.Type, "disk")
		gt.Equal(t, e.Severity, types.AlertSeverityWarning)
		gt.Equal(t, e.Subject, "/")
	})
}

func TestDiskCriticalBeyondStabilityGate(t *testing.T) {
	s := collect(t, &action.StabilityReport{
		MemFreePercent: 60, RootDiskUsedPercent: 99,
	})
	gt.A(t, s.Issues).Length(1).At(0, func(t testing.TB, e alert.Entry) {
		gt.Equal(t, e.Severity, types.AlertSeverityCritical)
	})
	gt.Equal(t, s.MaxSeverity, types.AlertSeverityCritical)
}

func TestMultipleBreaches(t *testing.T) {
	s := collect(t, &action.StabilityReport{
		LoadRatio: 2.5, MemFreePercent: 10, RootDiskUsedPercent: 95,
		OOMKillCount: 1, FailedServiceCount: 2,
	})
	gt.Equal(t, s.IssueCount, 5)
	gt.Equal(t, s.MaxSeverity, types.AlertSeverityCritical)

	kinds := map[string]bool{}
	for _, e := range s.Issues {
		kinds[e.Type] = true
	}
	for _, want := range []string{"disk", "memory", "load", "oom", "service"} {
		gt.True(t, kinds[want])
	}
}
