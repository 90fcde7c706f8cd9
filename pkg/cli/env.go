package cli

import (
	"context"

	"github.com/secmon-lab/remedy/pkg/cli/config"
	"github.com/secmon-lab/remedy/pkg/domain/interfaces"
	"github.com/secmon-lab/remedy/pkg/domain/model/errs"
	"github.com/secmon-lab/remedy/pkg/service/diagnosis"
	"github.com/secmon-lab/remedy/pkg/service/executor"
	"github.com/secmon-lab/remedy/pkg/service/safety"
	"github.com/secmon-lab/remedy/pkg/usecase"
	"github.com/secmon-lab/remedy/pkg/utils/logging"
)

// pipelineEnv bundles everything a command needs to run pipeline cycles.
type pipelineEnv struct {
	pipeline *usecase.Pipeline
	clients  *interfaces.Clients
	exec     *executor.Executor
	registry *executor.Registry
	prober   *safety.SystemProber

	closers []func() error
}

// probeMetrics snapshots the stability probe for diagnosis context.
func (e *pipelineEnv) probeMetrics(ctx context.Context) map[string]float64 {
	report := e.prober.Probe(ctx)
	return map[string]float64{
		"load_ratio":           report.LoadRatio,
		"mem_free_percent":     report.MemFreePercent,
		"root_disk_used_pct":   report.RootDiskUsedPercent,
		"oom_kill_count":       float64(report.OOMKillCount),
		"failed_service_count": float64(report.FailedServiceCount),
	}
}

func (e *pipelineEnv) Close(ctx context.Context) {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			errs.Handle(ctx, err)
		}
	}
}

type envConfigs struct {
	safety *config.Safety
	state  *config.State
	policy *config.Policy
	github *config.GitHub
	slack  *config.Slack
	gemini *config.GeminiCfg
}

// buildEnv assembles validator, action registry, executor, repository and
// clients from the parsed configuration. The returned env owns the state
// handles; callers must Close it.
func buildEnv(ctx context.Context, cfg envConfigs) (*pipelineEnv, error) {
	logger := logging.From(ctx)

	registry, validator, prober, err := buildRegistry(cfg.safety, cfg.policy)
	if err != nil {
		return nil, err
	}

	exec := executor.New(registry, validator, executor.WithTimeout(cfg.safety.ExecTimeout()))

	env := &pipelineEnv{
		exec:     exec,
		registry: registry,
		prober:   prober,
	}

	repo, err := cfg.state.Repository()
	if err != nil {
		return nil, err
	}
	env.closers = append(env.closers, repo.Close)

	auditSink, err := cfg.state.AuditSink()
	if err != nil {
		env.Close(ctx)
		return nil, err
	}
	env.closers = append(env.closers, auditSink.Close)

	notifier, err := cfg.slack.Configure()
	if err != nil {
		env.Close(ctx)
		return nil, err
	}

	var analyzer interfaces.Analyzer
	if cfg.gemini.Enabled() {
		geminiClient, err := cfg.gemini.Configure(ctx)
		if err != nil {
			env.Close(ctx)
			return nil, err
		}
		analyzer = diagnosis.NewLLM(geminiClient)
	} else {
		logger.Info("no LLM configured, using rule-based diagnosis")
		analyzer = diagnosis.NewRuleBased()
	}

	clientOpts := []interfaces.Option{
		interfaces.WithRepository(repo),
		interfaces.WithNotifier(notifier),
		interfaces.WithAnalyzer(analyzer),
		interfaces.WithAuditSink(auditSink),
	}
	if cfg.github.Enabled() {
		tracker, err := cfg.github.Configure()
		if err != nil {
			env.Close(ctx)
			return nil, err
		}
		clientOpts = append(clientOpts, interfaces.WithTracker(tracker))
	} else {
		logger.Info("no issue tracker configured, tracking issues locally only")
	}

	env.clients = interfaces.NewClients(clientOpts...)
	env.pipeline = usecase.New(env.clients, exec,
		usecase.WithCooldown(cfg.safety.Cooldown()),
		usecase.WithCooldownOverrides(cfg.policy.CooldownOverrides()),
		usecase.WithNormalThreshold(cfg.safety.NormalThreshold()),
	)

	return env, nil
}
