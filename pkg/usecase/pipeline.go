package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/remedy/pkg/domain/model/action"
	"github.com/secmon-lab/remedy/pkg/domain/model/alert"
	"github.com/secmon-lab/remedy/pkg/domain/model/diagnosis"
	"github.com/secmon-lab/remedy/pkg/domain/model/errs"
	"github.com/secmon-lab/remedy/pkg/domain/model/issue"
	"github.com/secmon-lab/remedy/pkg/domain/types"
	diagnosisSvc "github.com/secmon-lab/remedy/pkg/service/diagnosis"
	"github.com/secmon-lab/remedy/pkg/service/executor"
	"github.com/secmon-lab/remedy/pkg/utils/dryrun"
	"github.com/secmon-lab/remedy/pkg/utils/logging"
	"github.com/secmon-lab/remedy/pkg/utils/retry"
)

// CycleResult summarizes what one pipeline cycle did.
type CycleResult struct {
	Diagnosis    *diagnosis.Diagnosis `json:"diagnosis,omitempty"`
	Batch        *action.BatchResult  `json:"batch,omitempty"`
	CreatedKeys  []types.IssueKey     `json:"created_keys,omitempty"`
	UpdatedKeys  []types.IssueKey     `json:"updated_keys,omitempty"`
	ClosedKeys   []types.IssueKey     `json:"closed_keys,omitempty"`
	DryRun       bool                 `json:"dry_run,omitempty"`
}

// Process runs one full evaluation cycle for the given alert summary.
//
// Ordering within a cycle is fixed: issue-state updates for all reported
// problems are applied before any remediation is attempted, and remediation
// completes before notification, so a notification always reflects the
// issue state of its own cycle.
func (p *Pipeline) Process(ctx context.Context, summary *alert.Summary, metrics map[string]float64, source types.AlertSource) (*CycleResult, error) {
	if summary == nil {
		return nil, goerr.New("alert summary is required")
	}
	if err := summary.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid alert summary")
	}

	if summary.Clean() {
		return p.processClean(ctx)
	}
	return p.processIncident(ctx, summary, metrics, source)
}

func (p *Pipeline) processIncident(ctx context.Context, summary *alert.Summary, metrics map[string]float64, source types.AlertSource) (*CycleResult, error) {
	logger := logging.From(ctx)
	result := &CycleResult{DryRun: dryrun.From(ctx)}

	diag := p.diagnose(ctx, summary, metrics)
	result.Diagnosis = diag

	p.updateIssues(ctx, summary, source, result)

	result.Batch = p.remediate(ctx, diag, summary)

	p.notifyCycle(ctx, summary, diag, result)

	logger.Info("pipeline cycle done",
		"issues", summary.IssueCount,
		"severity", summary.MaxSeverity,
		"created", len(result.CreatedKeys),
		"updated", len(result.UpdatedKeys),
		"attempted", len(result.Batch.Results),
	)
	return result, nil
}

// diagnose asks the configured analyzer with retry and degrades to the rule
// engine when the analyzer keeps failing. The outer retry stays short because
// the LLM analyzer already retries malformed responses internally.
func (p *Pipeline) diagnose(ctx context.Context, summary *alert.Summary, metrics map[string]float64) *diagnosis.Diagnosis {
	var diag *diagnosis.Diagnosis
	err := retry.Do(ctx, "diagnose", func(ctx context.Context) error {
		d, err := p.clients.Analyzer().Diagnose(ctx, summary, metrics)
		if err != nil {
			return err
		}
		diag = d
		return nil
	}, append([]retry.Option{retry.WithMaxAttempts(2)}, p.retryOpts...)...)

	if err != nil {
		logging.From(ctx).Warn("analyzer unavailable, using rule engine", "error", err)
		diag, _ = diagnosisSvc.NewRuleBased().Diagnose(ctx, summary, metrics)
	}
	return diag
}

func (p *Pipeline) updateIssues(ctx context.Context, summary *alert.Summary, source types.AlertSource, result *CycleResult) {
	logger := logging.From(ctx)
	repo := p.clients.Repository()

	// First-write-wins within a cycle: a key reported by several entries in
	// one summary is still a single check_count increment.
	seen := map[types.IssueKey]struct{}{}

	for _, entry := range summary.Issues {
		key := entry.Key(source)
		if _, ok := seen[key]; ok {
			logger.Debug("duplicate issue key within cycle, skipped", "key", key)
			continue
		}
		seen[key] = struct{}{}

		existing, err := repo.GetIssue(ctx, key)
		if err != nil {
			errs.Handle(ctx, goerr.Wrap(err, "failed to load tracked issue", goerr.V("key", key)))
			continue
		}

		if result.DryRun {
			if existing == nil {
				logger.Info("[dry-run] would create tracked issue", "key", key)
				result.CreatedKeys = append(result.CreatedKeys, key)
			} else {
				logger.Info("[dry-run] would update tracked issue", "key", key, "check_count", existing.CheckCount+1)
				result.UpdatedKeys = append(result.UpdatedKeys, key)
			}
			continue
		}

		if existing == nil {
			rec := issue.New(ctx, key, source, entry.Title(), entry.Severity)
			rec.TrackerRef = p.trackerUpsert(ctx, key, rec.Title, p.issueBody(summary, entry), entry.Severity)
			if err := repo.PutIssue(ctx, rec); err != nil {
				errs.Handle(ctx, goerr.Wrap(err, "failed to store new issue", goerr.V("key", key)))
				continue
			}
			result.CreatedKeys = append(result.CreatedKeys, key)
			continue
		}

		existing.Recheck(ctx, entry.Severity)
		if ref := p.trackerUpsert(ctx, key, existing.Title, p.issueBody(summary, entry), entry.Severity); ref > 0 {
			existing.TrackerRef = ref
		}
		if err := repo.PutIssue(ctx, existing); err != nil {
			errs.Handle(ctx, goerr.Wrap(err, "failed to update issue", goerr.V("key", key)))
			continue
		}
		result.UpdatedKeys = append(result.UpdatedKeys, key)
	}
}

// trackerUpsert calls the external tracker with retry. A tracker outage
// degrades to local-only tracking (returns 0) instead of aborting the cycle.
func (p *Pipeline) trackerUpsert(ctx context.Context, key types.IssueKey, title, body string, severity types.AlertSeverity) int {
	if p.clients.Tracker() == nil {
		return 0
	}
	var number int
	err := retry.Do(ctx, "tracker upsert", func(ctx context.Context) error {
		n, err := p.clients.Tracker().CreateOrUpdateIssue(ctx, key, title, body, severity)
		if err != nil {
			return err
		}
		number = n
		return nil
	}, p.retryOpts...)
	if err != nil {
		logging.From(ctx).Warn("issue tracker unavailable, tracking locally only",
			"key", key, "error", err,
		)
		return 0
	}
	return number
}

func (p *Pipeline) remediate(ctx context.Context, diag *diagnosis.Diagnosis, summary *alert.Summary) *action.BatchResult {
	logger := logging.From(ctx)
	repo := p.clients.Repository()
	batch := &action.BatchResult{}

	for _, rec := range diag.SuggestedActions() {
		free, err := repo.CheckCooldown(ctx, rec.Action, rec.Target)
		if err != nil {
			errs.Handle(ctx, goerr.Wrap(err, "failed to check cooldown",
				goerr.V("action", rec.Action), goerr.V("target", rec.Target)))
			continue
		}
		if !free {
			remaining, _ := repo.RemainingCooldown(ctx, rec.Action, rec.Target)
			logger.Info("action in cooldown, skipped",
				"action", rec.Action, "target", rec.Target, "remaining", remaining,
			)
			continue
		}

		res := p.runner.Run(ctx, executor.Request{Action: rec.Action, Target: rec.Target})
		batch.Add(res)

		switch res.Status {
		case types.ExecStatusSuccess:
			if err := repo.SetCooldown(ctx, res.Action, res.Target, p.cooldownFor(res.Action)); err != nil {
				errs.Handle(ctx, goerr.Wrap(err, "failed to set cooldown",
					goerr.V("action", res.Action)))
			}
			p.audit(ctx, res, summary)
			logger.Info("remediation succeeded",
				"action", res.Action, "target", res.Target, "verify", res.Verify,
			)

		case types.ExecStatusRejected:
			logger.Info("remediation rejected", "action", res.Action, "reason", res.Reason)

		case types.ExecStatusSkipped:
			logger.Info("[dry-run] remediation skipped", "action", res.Action, "reason", res.Reason)

		default:
			logger.Warn("remediation did not succeed",
				"action", res.Action, "target", res.Target,
				"status", res.Status, "exit_code", res.ExitCode,
			)
			p.audit(ctx, res, summary)
		}
	}
	return batch
}

func (p *Pipeline) audit(ctx context.Context, res *action.ExecutionResult, summary *alert.Summary) {
	details := map[string]any{
		"hostname":     summary.Hostname,
		"max_severity": summary.MaxSeverity,
	}
	if err := p.clients.AuditSink().RecordAudit(ctx, res, details); err != nil {
		errs.Handle(ctx, goerr.Wrap(err, "failed to record audit entry",
			goerr.V("action", res.Action)))
	}
}

// notifyCycle is best effort: a failing channel never aborts the cycle.
func (p *Pipeline) notifyCycle(ctx context.Context, summary *alert.Summary, diag *diagnosis.Diagnosis, result *CycleResult) {
	logger := logging.From(ctx)

	if result.DryRun {
		logger.Info("[dry-run] would send notification",
			"severity", diag.Severity, "issues", summary.IssueCount,
		)
		return
	}

	title := fmt.Sprintf("%d issue(s) on %s", summary.IssueCount, summary.Hostname)
	body := p.notificationBody(diag, result)

	err := retry.Do(ctx, "notify", func(ctx context.Context) error {
		return p.clients.Notifier().Notify(ctx, diag.Severity, title, body)
	}, p.retryOpts...)
	if err != nil {
		logger.Warn("notification channel unavailable, cycle continues", "error", err)
	}
}

func (p *Pipeline) notificationBody(diag *diagnosis.Diagnosis, result *CycleResult) string {
	var sb strings.Builder
	sb.WriteString(diag.Diagnosis)

	if diag.RequiresHuman {
		fmt.Fprintf(&sb, "\nHuman attention required (urgency: %s)", diag.Urgency)
	}

	for _, res := range result.Batch.Results {
		fmt.Fprintf(&sb, "\n- %s", res.Action)
		if res.Target != "" && res.Target != action.DefaultTarget {
			fmt.Fprintf(&sb, " (%s)", res.Target)
		}
		fmt.Fprintf(&sb, ": %s", res.Status)
		if res.Status == types.ExecStatusRejected {
			fmt.Fprintf(&sb, " (%s)", res.Reason)
		}
	}
	return sb.String()
}

func (p *Pipeline) issueBody(summary *alert.Summary, entry alert.Entry) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "**Host**: %s\n", summary.Hostname)
	fmt.Fprintf(&sb, "**Detected**: %s (%s)\n",
		summary.Timestamp.Format("2006-01-02 15:04:05 MST"), humanize.Time(summary.Timestamp))
	fmt.Fprintf(&sb, "**Severity**: %s\n", entry.Severity)
	if entry.Subject != "" {
		fmt.Fprintf(&sb, "**Subject**: %s\n", entry.Subject)
	}
	if entry.Threshold != 0 {
		fmt.Fprintf(&sb, "**Current / Threshold**: %.2f / %.2f\n", entry.Current, entry.Threshold)
	}
	if entry.Message != "" {
		fmt.Fprintf(&sb, "\n%s\n", entry.Message)
	}
	return sb.String()
}

// processClean advances normal counters for all open issues and closes those
// that have been absent for the configured number of consecutive cycles.
// This is the only path that ever closes an issue.
func (p *Pipeline) processClean(ctx context.Context) (*CycleResult, error) {
	logger := logging.From(ctx)
	repo := p.clients.Repository()
	result := &CycleResult{DryRun: dryrun.From(ctx), Batch: &action.BatchResult{}}

	open, err := repo.ListIssues(ctx, types.IssueStatusOpen)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list open issues")
	}

	for _, rec := range open {
		if result.DryRun {
			logger.Info("[dry-run] would advance normal count",
				"key", rec.Key, "normal_count", rec.NormalCount+1,
			)
			continue
		}

		if !rec.MarkNormal(ctx, p.normalThreshold) {
			if err := repo.PutIssue(ctx, rec); err != nil {
				errs.Handle(ctx, goerr.Wrap(err, "failed to advance normal count",
					goerr.V("key", rec.Key)))
			}
			continue
		}

		if rec.HasTrackerRef() && p.clients.Tracker() != nil {
			comment := fmt.Sprintf("Resolved: condition absent for %d consecutive checks, first detected %s.",
				rec.NormalCount, humanize.Time(rec.CreatedAt))
			err := retry.Do(ctx, "tracker close", func(ctx context.Context) error {
				return p.clients.Tracker().CloseIssue(ctx, rec.TrackerRef, comment)
			}, p.retryOpts...)
			if err != nil {
				// keep the record so the close is retried next clean cycle
				logger.Warn("failed to close tracker issue, keeping record",
					"key", rec.Key, "tracker_ref", rec.TrackerRef, "error", err,
				)
				if err := repo.PutIssue(ctx, rec); err != nil {
					errs.Handle(ctx, err)
				}
				continue
			}
		}

		if err := repo.DeleteIssue(ctx, rec.Key); err != nil {
			errs.Handle(ctx, goerr.Wrap(err, "failed to delete resolved issue",
				goerr.V("key", rec.Key)))
			continue
		}
		result.ClosedKeys = append(result.ClosedKeys, rec.Key)
		logger.Info("issue resolved and closed", "key", rec.Key, "checks", rec.CheckCount)
	}

	return result, nil
}
