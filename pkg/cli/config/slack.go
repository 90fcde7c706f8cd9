package config

import (
	"log/slog"

	"github.com/secmon-lab/remedy/pkg/domain/interfaces"
	"github.com/secmon-lab/remedy/pkg/service/notifier"
	"github.com/urfave/cli/v3"
)

type Slack struct {
	oauthToken string
	channelID  string
}

func (x *Slack) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "slack-oauth-token",
			Usage:       "Slack OAuth token for notifications",
			Category:    "Slack",
			Sources:     cli.EnvVars("REMEDY_SLACK_OAUTH_TOKEN"),
			Destination: &x.oauthToken,
		},
		&cli.StringFlag{
			Name:        "slack-channel-id",
			Usage:       "Slack channel ID for notifications",
			Category:    "Slack",
			Sources:     cli.EnvVars("REMEDY_SLACK_CHANNEL_ID"),
			Destination: &x.channelID,
		},
	}
}

func (x Slack) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Bool("token_set", x.oauthToken != ""),
		slog.String("channel_id", x.channelID),
	)
}

func (x *Slack) Enabled() bool {
	return x.oauthToken != "" && x.channelID != ""
}

// Configure returns a Slack notifier when credentials are set, otherwise a
// console notifier writing to stdout.
func (x *Slack) Configure() (interfaces.Notifier, error) {
	if !x.Enabled() {
		return notifier.NewConsole(), nil
	}
	return notifier.NewSlack(x.oauthToken, x.channelID)
}
