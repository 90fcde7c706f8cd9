package interfaces

import (
	"context"

	"github.com/secmon-lab/remedy/pkg/domain/model/action"
	"github.com/secmon-lab/remedy/pkg/domain/model/alert"
	"github.com/secmon-lab/remedy/pkg/domain/model/diagnosis"
	"github.com/secmon-lab/remedy/pkg/domain/types"
)

// Tracker is the external issue tracker. Bookkeeping is idempotent by issue
// key: CreateOrUpdate with a known key updates the existing entry instead of
// opening a duplicate.
type Tracker interface {
	CreateOrUpdateIssue(ctx context.Context, key types.IssueKey, title, body string, severity types.AlertSeverity) (int, error)
	CloseIssue(ctx context.Context, number int, comment string) error
	FindByIssueKey(ctx context.Context, key types.IssueKey) (int, error)
}

// Notifier delivers a human-facing summary of one pipeline cycle. Delivery
// is best effort; a failing channel must not abort the cycle.
type Notifier interface {
	Notify(ctx context.Context, severity types.AlertSeverity, title, body string) error
}

// Analyzer produces a diagnosis for an alert summary. Implementations may be
// AI-backed or rule-based; the pipeline is indifferent to which.
type Analyzer interface {
	Diagnose(ctx context.Context, summary *alert.Summary, metrics map[string]float64) (*diagnosis.Diagnosis, error)
}

// AuditSink records every remediation decision and outcome.
type AuditSink interface {
	RecordAudit(ctx context.Context, result *action.ExecutionResult, details map[string]any) error
}

// Collector produces a fresh alert summary for one evaluation cycle.
type Collector interface {
	Collect(ctx context.Context) (*alert.Summary, error)
	Source() types.AlertSource
}

type Clients struct {
	repo     Repository
	tracker  Tracker
	notifier Notifier
	analyzer Analyzer
	audit    AuditSink
}

type Option func(*Clients)

func WithRepository(repo Repository) Option {
	return func(c *Clients) {
		c.repo = repo
	}
}

func WithTracker(tracker Tracker) Option {
	return func(c *Clients) {
		c.tracker = tracker
	}
}

func WithNotifier(notifier Notifier) Option {
	return func(c *Clients) {
		c.notifier = notifier
	}
}

func WithAnalyzer(analyzer Analyzer) Option {
	return func(c *Clients) {
		c.analyzer = analyzer
	}
}

func WithAuditSink(audit AuditSink) Option {
	return func(c *Clients) {
		c.audit = audit
	}
}

func NewClients(opts ...Option) *Clients {
	c := &Clients{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Clients) Repository() Repository { return c.repo }
func (c *Clients) Tracker() Tracker       { return c.tracker }
func (c *Clients) Notifier() Notifier     { return c.notifier }
func (c *Clients) Analyzer() Analyzer     { return c.analyzer }
func (c *Clients) AuditSink() AuditSink   { return c.audit }
