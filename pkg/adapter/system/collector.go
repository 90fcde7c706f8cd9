// Package system turns host telemetry into alert summaries for the periodic
// metric-check loop.
package system

import (
	"context"
	"fmt"
	"os"

	"github.com/secmon-lab/remedy/pkg/domain/interfaces"
	"github.com/secmon-lab/remedy/pkg/domain/model/alert"
	"github.com/secmon-lab/remedy/pkg/domain/types"
	"github.com/secmon-lab/remedy/pkg/service/safety"
)

// WarnThresholds mark the alerting level. They sit below the stability
// gates, so the loop starts remediating before the host becomes unstable
// enough to block all remediation.
type WarnThresholds struct {
	DiskUsedPercent float64
	MemFreePercent  float64
	LoadRatio       float64
}

func DefaultWarnThresholds() WarnThresholds {
	return WarnThresholds{
		DiskUsedPercent: 90.0,
		MemFreePercent:  15.0,
		LoadRatio:       2.0,
	}
}

type Collector struct {
	prober   safety.Prober
	critical safety.Thresholds
	warn     WarnThresholds
	hostname string
}

var _ interfaces.Collector = &Collector{}

type Option func(*Collector)

func WithProber(p safety.Prober) Option {
	return func(x *Collector) {
		x.prober = p
	}
}

func WithWarnThresholds(t WarnThresholds) Option {
	return func(x *Collector) {
		x.warn = t
	}
}

func WithHostname(name string) Option {
	return func(x *Collector) {
		x.hostname = name
	}
}

func New(opts ...Option) *Collector {
	hostname, _ := os.Hostname()
	x := &Collector{
		prober:   safety.NewSystemProber(),
		critical: safety.DefaultThresholds(),
		warn:     DefaultWarnThresholds(),
		hostname: hostname,
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

func (x *Collector) Source() types.AlertSource {
	return types.SourceSystem
}

func (x *Collector) Collect(ctx context.Context) (*alert.Summary, error) {
	report := x.prober.Probe(ctx)

	var entries []alert.Entry

	if report.RootDiskUsedPercent >= x.warn.DiskUsedPercent {
		severity := types.AlertSeverityWarning
		if report.RootDiskUsedPercent > x.critical.MaxRootDiskPercent {
			severity = types.AlertSeverityCritical
		}
		entries = append(entries, alert.Entry{
			Type:      "disk",
			Severity:  severity,
			Subject:   "/",
			Current:   report.RootDiskUsedPercent,
			Threshold: x.warn.DiskUsedPercent,
			Message:   fmt.Sprintf("root filesystem %.1f%% used", report.RootDiskUsedPercent),
		})
	}

	if report.MemFreePercent <= x.warn.MemFreePercent {
		severity := types.AlertSeverityWarning
		if report.MemFreePercent < x.critical.MinMemFreePercent {
			severity = types.AlertSeverityCritical
		}
		entries = append(entries, alert.Entry{
			Type:      "memory",
			Severity:  severity,
			Current:   report.MemFreePercent,
			Threshold: x.warn.MemFreePercent,
			Message:   fmt.Sprintf("only %.1f%% memory available", report.MemFreePercent),
		})
	}

	if report.LoadRatio >= x.warn.LoadRatio {
		severity := types.AlertSeverityWarning
		if report.LoadRatio > x.critical.MaxLoadRatio {
			severity = types.AlertSeverityCritical
		}
		entries = append(entries, alert.Entry{
			Type:      "load",
			Severity:  severity,
			Current:   report.LoadRatio,
			Threshold: x.warn.LoadRatio,
			Message:   fmt.Sprintf("load per CPU at %.2f", report.LoadRatio),
		})
	}

	if report.OOMKillCount > 0 {
		entries = append(entries, alert.Entry{
			Type:     "oom",
			Severity: types.AlertSeverityCritical,
			Current:  float64(report.OOMKillCount),
			Message:  fmt.Sprintf("%d OOM kill(s) in recent kernel log", report.OOMKillCount),
		})
	}

	if report.FailedServiceCount > 0 {
		entries = append(entries, alert.Entry{
			Type:     "service",
			Severity: types.AlertSeverityWarning,
			Current:  float64(report.FailedServiceCount),
			Message:  fmt.Sprintf("%d systemd unit(s) in failed state", report.FailedServiceCount),
		})
	}

	summary := alert.New(ctx, x.hostname, entries)
	return &summary, nil
}
