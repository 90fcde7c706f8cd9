package safety

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/secmon-lab/remedy/pkg/domain/model/action"
	"github.com/secmon-lab/remedy/pkg/utils/logging"
)

// Thresholds are the stability gates. A probe that cannot run on the current
// platform reports a value that never trips its gate; missing telemetry must
// not block every remediation forever, and must never crash the cycle.
type Thresholds struct {
	MaxLoadRatio       float64
	MinMemFreePercent  float64
	MaxRootDiskPercent float64
	OOMWindow          time.Duration
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		MaxLoadRatio:       3.0,
		MinMemFreePercent:  5.0,
		MaxRootDiskPercent: 98.0,
		OOMWindow:          5 * time.Minute,
	}
}

// SystemProber reads host telemetry from /proc, statfs and systemd.
type SystemProber struct {
	thresholds Thresholds
	procRoot   string
}

type ProberOption func(*SystemProber)

func WithThresholds(t Thresholds) ProberOption {
	return func(p *SystemProber) {
		p.thresholds = t
	}
}

// WithProcRoot redirects /proc reads, used by tests with fixture files.
func WithProcRoot(dir string) ProberOption {
	return func(p *SystemProber) {
		p.procRoot = dir
	}
}

func NewSystemProber(opts ...ProberOption) *SystemProber {
	p := &SystemProber{
		thresholds: DefaultThresholds(),
		procRoot:   "/proc",
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

var _ Prober = &SystemProber{}

// Probe gathers raw host telemetry and evaluates it against the thresholds.
// A probe that is unavailable leaves its raw value at the non-tripping
// default set below.
func (p *SystemProber) Probe(ctx context.Context) *action.StabilityReport {
	report := &action.StabilityReport{
		MemFreePercent: 100,
	}

	if ratio, ok := p.loadRatio(ctx); ok {
		report.LoadRatio = ratio
	}
	if free, ok := p.memFreePercent(ctx); ok {
		report.MemFreePercent = free
	}
	if used, ok := p.rootDiskUsedPercent(ctx); ok {
		report.RootDiskUsedPercent = used
	}
	report.OOMKillCount = p.recentOOMKills(ctx)
	report.FailedServiceCount = p.failedServices(ctx)

	p.Evaluate(report)
	return report
}

// Evaluate applies the five checks to the raw values in report, setting
// Stable and Issues. Load ratio, free memory, root disk usage, and any
// recent OOM kill flip Stable when over their thresholds; failed services
// contribute an issue but do not flip Stable on their own.
func (p *SystemProber) Evaluate(report *action.StabilityReport) {
	report.Stable = true
	report.Issues = nil

	if report.LoadRatio > p.thresholds.MaxLoadRatio {
		report.Stable = false
		report.Issues = append(report.Issues, fmt.Sprintf("load ratio %.2f exceeds %.1f", report.LoadRatio, p.thresholds.MaxLoadRatio))
	}
	if report.MemFreePercent < p.thresholds.MinMemFreePercent {
		report.Stable = false
		report.Issues = append(report.Issues, fmt.Sprintf("available memory %.1f%% below %.1f%%", report.MemFreePercent, p.thresholds.MinMemFreePercent))
	}
	if report.RootDiskUsedPercent > p.thresholds.MaxRootDiskPercent {
		report.Stable = false
		report.Issues = append(report.Issues, fmt.Sprintf("root filesystem %.1f%% full exceeds %.1f%%", report.RootDiskUsedPercent, p.thresholds.MaxRootDiskPercent))
	}
	if report.OOMKillCount > 0 {
		report.Stable = false
		report.Issues = append(report.Issues, fmt.Sprintf("%d OOM kill(s) in the last %s", report.OOMKillCount, p.thresholds.OOMWindow))
	}
	if report.FailedServiceCount > 0 {
		report.Issues = append(report.Issues, fmt.Sprintf("%d failed service unit(s)", report.FailedServiceCount))
	}
}

func (p *SystemProber) loadRatio(ctx context.Context) (float64, bool) {
	raw, err := os.ReadFile(p.procRoot + "/loadavg")
	if err != nil {
		logging.From(ctx).Debug("loadavg probe unavailable", logging.ErrAttr(err))
		return 0, false
	}

	fields := strings.Fields(string(raw))
	if len(fields) == 0 {
		return 0, false
	}
	load1, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, false
	}

	cpus := runtime.NumCPU()
	if cpus == 0 {
		return 0, false
	}
	return load1 / float64(cpus), true
}

func (p *SystemProber) memFreePercent(ctx context.Context) (float64, bool) {
	f, err := os.Open(p.procRoot + "/meminfo")
	if err != nil {
		logging.From(ctx).Debug("meminfo probe unavailable", logging.ErrAttr(err))
		return 0, false
	}
	defer f.Close()

	var total, available float64
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		value, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			continue
		}
		switch fields[0] {
		case "MemTotal:":
			total = value
		case "MemAvailable:":
			available = value
		}
	}
	if total == 0 {
		return 0, false
	}
	return available / total * 100, true
}

func (p *SystemProber) rootDiskUsedPercent(ctx context.Context) (float64, bool) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs("/", &stat); err != nil {
		logging.From(ctx).Debug("statfs probe unavailable", logging.ErrAttr(err))
		return 0, false
	}
	if stat.Blocks == 0 {
		return 0, false
	}
	used := float64(stat.Blocks-stat.Bavail) / float64(stat.Blocks) * 100
	return used, true
}

// recentOOMKills counts OOM killer events in the kernel log within the
// configured window. Platforms without journalctl report zero.
func (p *SystemProber) recentOOMKills(ctx context.Context) int {
	since := fmt.Sprintf("-%dmin", int(p.thresholds.OOMWindow.Minutes()))
	out, err := exec.CommandContext(ctx, "journalctl", "-k", "--since", since, "-o", "cat").Output()
	if err != nil {
		logging.From(ctx).Debug("kernel log probe unavailable", logging.ErrAttr(err))
		return 0
	}

	count := 0
	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.Contains(line, "Out of memory") || strings.Contains(line, "oom-kill") {
			count++
		}
	}
	return count
}

func (p *SystemProber) failedServices(ctx context.Context) int {
	out, err := exec.CommandContext(ctx, "systemctl", "--failed", "--no-legend", "--plain").Output()
	if err != nil {
		logging.From(ctx).Debug("systemd probe unavailable", logging.ErrAttr(err))
		return 0
	}

	count := 0
	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) != "" {
			count++
		}
	}
	return count
}

// StaticProber returns a fixed report, used by tests and by embedders that
// compute stability elsewhere.
type StaticProber struct {
	Report *action.StabilityReport
}

var _ Prober = &StaticProber{}

func (p *StaticProber) Probe(ctx context.Context) *action.StabilityReport {
	return p.Report
}
