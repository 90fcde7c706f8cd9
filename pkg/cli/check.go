package cli

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/remedy/pkg/adapter/system"
	"github.com/secmon-lab/remedy/pkg/cli/config"
	"github.com/secmon-lab/remedy/pkg/domain/model/alert"
	"github.com/secmon-lab/remedy/pkg/domain/model/errs"
	"github.com/secmon-lab/remedy/pkg/domain/types"
	"github.com/secmon-lab/remedy/pkg/utils/dryrun"
	"github.com/secmon-lab/remedy/pkg/utils/logging"
	"github.com/secmon-lab/remedy/pkg/utils/safe"
	"github.com/urfave/cli/v3"
)

func cmdCheck() *cli.Command {
	var (
		input     string
		safetyCfg config.Safety
		stateCfg  config.State
		policyCfg config.Policy
		sentryCfg config.Sentry
		githubCfg config.GitHub
		slackCfg  config.Slack
		geminiCfg config.GeminiCfg
	)

	flags := joinFlags(
		[]cli.Flag{
			&cli.StringFlag{
				Name:        "input",
				Aliases:     []string{"i"},
				Usage:       "Read the alert summary from a JSON file instead of probing the system ('-' for stdin)",
				Sources:     cli.EnvVars("REMEDY_INPUT"),
				Destination: &input,
			},
		},
		safetyCfg.Flags(),
		stateCfg.Flags(),
		policyCfg.Flags(),
		sentryCfg.Flags(),
		githubCfg.Flags(),
		slackCfg.Flags(),
		geminiCfg.Flags(),
	)

	return &cli.Command{
		Name:  "check",
		Usage: "Run a single evaluation cycle and print the result",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			logger := logging.From(ctx)

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
			defer env.Close(ctx)

			if safetyCfg.DryRun() {
				logger.Warn("dry-run mode enabled, no side effects will be applied")
				ctx = dryrun.With(ctx, true)
			}

			lock := stateCfg.RunLock()
			if err := lock.Acquire(ctx, safetyCfg.LockTimeout()); err != nil {
				if goerr.HasTag(err, errs.TagLockContention) {
					return goerr.New("another remedy process holds the run lock")
				}
				return err
			}
			defer func() {
				if err := lock.Release(ctx); err != nil {
					errs.Handle(ctx, err)
				}
			}()

			summary, source, err := loadSummary(ctx, input, env)
			if err != nil {
				return err
			}

			var probeMetrics map[string]float64
			if input == "" {
				probeMetrics = env.probeMetrics(ctx)
			}

			result, err := env.pipeline.Process(ctx, summary, probeMetrics, source)
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return goerr.Wrap(err, "failed to encode cycle result")
			}
			safe.Write(ctx, os.Stdout, append(out, '\n'))
			return nil
		},
	}
}

func loadSummary(ctx context.Context, input string, env *pipelineEnv) (*alert.Summary, types.AlertSource, error) {
	if input == "" {
		collector := system.New(system.WithProber(env.prober))
		summary, err := collector.Collect(ctx)
		if err != nil {
			return nil, "", err
		}
		return summary, collector.Source(), nil
	}

	var r io.Reader
	if input == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(input)
		if err != nil {
			return nil, "", goerr.Wrap(err, "failed to open input file",
				goerr.V("path", input))
		}
		defer safe.Close(ctx, f)
		r = f
	}

	summary, err := alert.Decode(r)
	if err != nil {
		return nil, "", err
	}
	return summary, types.SourceFeed, nil
}
