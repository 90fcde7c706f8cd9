package cli

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/secmon-lab/remedy/pkg/adapter/metrics"
	"github.com/secmon-lab/remedy/pkg/adapter/system"
	"github.com/secmon-lab/remedy/pkg/cli/config"
	"github.com/secmon-lab/remedy/pkg/domain/interfaces"
	"github.com/secmon-lab/remedy/pkg/domain/model/errs"
	"github.com/secmon-lab/remedy/pkg/domain/types"
	"github.com/secmon-lab/remedy/pkg/service/runlock"
	"github.com/secmon-lab/remedy/pkg/utils/dryrun"
	"github.com/secmon-lab/remedy/pkg/utils/logging"
	"github.com/secmon-lab/remedy/pkg/utils/shutdown"
	"github.com/urfave/cli/v3"
)

func cmdServe() *cli.Command {
	var (
		checkInterval time.Duration
		metricsAddr   string
		safetyCfg     config.Safety
		stateCfg      config.State
		policyCfg     config.Policy
		sentryCfg     config.Sentry
		githubCfg     config.GitHub
		slackCfg      config.Slack
		geminiCfg     config.GeminiCfg
		feedCfg       config.Feed
	)

	flags := joinFlags(
		[]cli.Flag{
			&cli.DurationFlag{
				Name:        "check-interval",
				Usage:       "Interval between local system checks",
				Sources:     cli.EnvVars("REMEDY_CHECK_INTERVAL"),
				Value:       time.Minute,
				Destination: &checkInterval,
			},
			&cli.StringFlag{
				Name:        "metrics-addr",
				Usage:       "Listen address for Prometheus metrics (empty to disable)",
				Sources:     cli.EnvVars("REMEDY_METRICS_ADDR"),
				Destination: &metricsAddr,
			},
		},
		safetyCfg.Flags(),
		stateCfg.Flags(),
		policyCfg.Flags(),
		sentryCfg.Flags(),
		githubCfg.Flags(),
		slackCfg.Flags(),
		geminiCfg.Flags(),
		feedCfg.Flags(),
	)

	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Run the unattended remediation loop",
		Flags:   flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger := logging.From(ctx)
			logger.Info("starting remediation loop",
				"check-interval", checkInterval,
				"metrics-addr", metricsAddr,
				"safety", safetyCfg,
				"state", stateCfg,
				"policy", policyCfg,
				"sentry", sentryCfg,
				"github", githubCfg,
				"slack", slackCfg,
				"gemini", geminiCfg,
				"feed", feedCfg,
			)

			if err := sentryCfg.Configure(); err != nil {
				return err
			}
			if err := policyCfg.Load(); err != nil {
				return err
			}

			env, err := buildEnv(ctx, envConfigs{
				safety: &safetyCfg,
				state:  &stateCfg,
				policy: &policyCfg,
				github: &githubCfg,
				slack:  &slackCfg,
				gemini: &geminiCfg,
			})
			if err != nil {
				return err
			}

			if safetyCfg.DryRun() {
				logger.Warn("dry-run mode enabled, no side effects will be applied")
				ctx = dryrun.With(ctx, true)
			}

			lock := stateCfg.RunLock()

			cleanups := shutdown.NewRegistry()
			cleanups.Register("run lock", lock.Release)
			cleanups.Register("state", func(ctx context.Context) error {
				env.Close(ctx)
				return nil
			})

			var metricsServer *http.Server
			if metricsAddr != "" {
				if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
					env.Close(ctx)
					return err
				}
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.Handler())
				metricsServer = &http.Server{
					Addr:              metricsAddr,
					Handler:           mux,
					ReadHeaderTimeout: 10 * time.Second,
				}
				go func() {
					if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
						errs.Handle(ctx, goerr.Wrap(err, "metrics server failed"))
					}
				}()
				cleanups.Register("metrics server", metricsServer.Shutdown)
			}

			systemCollector := system.New(
				system.WithProber(env.prober),
			)

			var feedCollector interfaces.Collector
			if feedCfg.Enabled() {
				c, err := feedCfg.Configure()
				if err != nil {
					env.Close(ctx)
					return err
				}
				feedCollector = c
			}

			loop := &serveLoop{
				env:         env,
				lock:        lock,
				lockTimeout: safetyCfg.LockTimeout(),
			}

			checkTicker := time.NewTicker(checkInterval)
			defer checkTicker.Stop()

			var feedCh <-chan time.Time
			if feedCollector != nil {
				feedTicker := time.NewTicker(feedCfg.Interval())
				defer feedTicker.Stop()
				feedCh = feedTicker.C
			}

			loop.runCycle(ctx, systemCollector)

			for {
				select {
				case <-ctx.Done():
					logger.Info("shutting down")
					cleanups.Run(context.Background(), 30*time.Second)
					return nil

				case <-checkTicker.C:
					loop.runCycle(ctx, systemCollector)

				case <-feedCh:
					loop.runCycle(ctx, feedCollector)
				}
			}
		},
	}
}

type serveLoop struct {
	env         *pipelineEnv
	lock        *runlock.Lock
	lockTimeout time.Duration
}

// runCycle runs one full evaluation cycle under the host-wide run lock. A
// cycle that cannot get the lock in time is skipped, never queued.
func (l *serveLoop) runCycle(ctx context.Context, collector interfaces.Collector) {
	logger := logging.From(ctx)
	started := time.Now()

	if err := l.lock.Acquire(ctx, l.lockTimeout); err != nil {
		if goerr.HasTag(err, errs.TagLockContention) {
			logger.Warn("run lock contended, skipping cycle", "source", collector.Source())
			return
		}
		errs.Handle(ctx, err)
		return
	}
	defer func() {
		if err := l.lock.Release(ctx); err != nil {
			errs.Handle(ctx, err)
		}
	}()

	summary, err := collector.Collect(ctx)
	if err != nil {
		metrics.ObserveCycle(time.Since(started), err)
		errs.Handle(ctx, goerr.Wrap(err, "failed to collect alert summary",
			goerr.V("source", collector.Source())))
		return
	}

	result, err := l.env.pipeline.Process(ctx, summary, l.env.probeMetrics(ctx), collector.Source())
	metrics.ObserveCycle(time.Since(started), err)
	if err != nil {
		errs.Handle(ctx, goerr.Wrap(err, "pipeline cycle failed",
			goerr.V("source", collector.Source())))
		return
	}

	if result.Batch != nil {
		for _, r := range result.Batch.Results {
			metrics.ObserveRemediation(r.Action, r.Status)
		}
	}
	if open, err := l.env.clients.Repository().ListIssues(ctx, types.IssueStatusOpen); err == nil {
		metrics.SetTrackedIssues(len(open))
	}
}
