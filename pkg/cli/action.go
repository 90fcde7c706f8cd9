package cli

import (
	"context"
	"encoding/json"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/remedy/pkg/cli/config"
	"github.com/secmon-lab/remedy/pkg/service/executor"
	"github.com/secmon-lab/remedy/pkg/service/safety"
	"github.com/secmon-lab/remedy/pkg/utils/dryrun"
	"github.com/secmon-lab/remedy/pkg/utils/logging"
	"github.com/secmon-lab/remedy/pkg/utils/safe"
	"github.com/urfave/cli/v3"
)

func cmdAction() *cli.Command {
	return &cli.Command{
		Name:  "action",
		Usage: "Inspect and run remediation actions",
		Commands: []*cli.Command{
			cmdActionList(),
			cmdActionRun(),
		},
	}
}

func cmdActionList() *cli.Command {
	var policyCfg config.Policy
	var safetyCfg config.Safety

	return &cli.Command{
		Name:  "list",
		Usage: "List registered actions with risk tiers",
		Flags: joinFlags(policyCfg.Flags(), safetyCfg.Flags()),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := policyCfg.Load(); err != nil {
				return err
			}

			registry, _, _, err := buildRegistry(&safetyCfg, &policyCfg)
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(registry.List(), "", "  ")
			if err != nil {
				return goerr.Wrap(err, "failed to encode action list")
			}
			safe.Write(ctx, os.Stdout, append(out, '\n'))
			return nil
		},
	}
}

func cmdActionRun() *cli.Command {
	var policyCfg config.Policy
	var safetyCfg config.Safety

	return &cli.Command{
		Name:      "run",
		Usage:     "Run one action through the safety gate",
		ArgsUsage: "<action> [target]",
		Flags:     joinFlags(policyCfg.Flags(), safetyCfg.Flags()),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			args := cmd.Args()
			if args.Len() < 1 {
				return goerr.New("action name is required")
			}

			if err := policyCfg.Load(); err != nil {
				return err
			}

			registry, validator, _, err := buildRegistry(&safetyCfg, &policyCfg)
			if err != nil {
				return err
			}
			exec := executor.New(registry, validator,
				executor.WithTimeout(safetyCfg.ExecTimeout()))

			if safetyCfg.DryRun() {
				logging.From(ctx).Warn("dry-run mode enabled, no side effects will be applied")
				ctx = dryrun.With(ctx, true)
			}

			result := exec.Run(ctx, executor.Request{
				Action: args.Get(0),
				Target: args.Get(1),
			})

			out, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return goerr.Wrap(err, "failed to encode execution result")
			}
			safe.Write(ctx, os.Stdout, append(out, '\n'))

			if !result.Succeeded() && !result.DryRun {
				return goerr.New("action did not succeed",
					goerr.V("action", result.Action),
					goerr.V("status", result.Status),
					goerr.V("reason", result.Reason))
			}
			return nil
		},
	}
}

func buildRegistry(safetyCfg *config.Safety, policyCfg *config.Policy) (*executor.Registry, *safety.Validator, *safety.SystemProber, error) {
	prober := safety.NewSystemProber(safety.WithThresholds(safetyCfg.Thresholds()))
	validatorOpts := append(policyCfg.ValidatorOptions(), safety.WithProber(prober))
	validator := safety.New(validatorOpts...)

	runner := executor.NewRunner(validator)
	registry := executor.NewRegistry()
	if err := executor.RegisterBuiltins(registry, runner); err != nil {
		return nil, nil, nil, err
	}
	if err := policyCfg.Apply(validator, registry, runner); err != nil {
		return nil, nil, nil, err
	}
	return registry, validator, prober, nil
}
