package cli

import (
	"context"

	"github.com/secmon-lab/remedy/pkg/cli/config"
	"github.com/secmon-lab/remedy/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func joinFlags(flagSets ...[]cli.Flag) []cli.Flag {
	var flags []cli.Flag
	for _, set := range flagSets {
		flags = append(flags, set...)
	}
	return flags
}

func Run(ctx context.Context, args []string) error {
	var loggerCfg config.Logger
	var closer func()
	app := &cli.Command{
		Name:  "remedy",
		Usage: "Unattended incident response for a single host",
		Flags: loggerCfg.Flags(),
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			f, err := loggerCfg.Configure()
			if err != nil {
				return ctx, err
			}
			closer = f

			logging.Default().Info("base options", "logger", loggerCfg)

			return ctx, nil
		},
		After: func(ctx context.Context, c *cli.Command) error {
			if closer != nil {
				closer()
			}
			return nil
		},
		Commands: []*cli.Command{
			cmdServe(),
			cmdCheck(),
			cmdAction(),
		},
	}

	if err := app.Run(ctx, args); err != nil {
		logging.Default().Error("failed to run app", "error", err)
		return err
	}

	return nil
}
