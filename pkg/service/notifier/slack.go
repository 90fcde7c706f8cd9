package notifier

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/remedy/pkg/domain/interfaces"
	"github.com/secmon-lab/remedy/pkg/domain/model/errs"
	"github.com/secmon-lab/remedy/pkg/domain/types"
	"github.com/secmon-lab/remedy/pkg/utils/logging"
	"github.com/slack-go/slack"
)

var severityAttachmentColors = map[types.AlertSeverity]string{
	types.AlertSeverityOK:       "#2EB886",
	types.AlertSeverityMinor:    "#439FE0",
	types.AlertSeverityWarning:  "#F2C744",
	types.AlertSeverityCritical: "#D50200",
}

// SlackPoster is the subset of *slack.Client the notifier needs. Tests
// inject a recording implementation.
type SlackPoster interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// Slack posts one message per notification to a fixed channel.
type Slack struct {
	client  SlackPoster
	channel string
}

var _ interfaces.Notifier = &Slack{}

func NewSlack(token, channel string) (*Slack, error) {
	if token == "" {
		return nil, goerr.New("slack OAuth token is required", goerr.Tag(errs.TagConfiguration))
	}
	if channel == "" {
		return nil, goerr.New("slack channel is required", goerr.Tag(errs.TagConfiguration))
	}
	return &Slack{
		client:  slack.New(token),
		channel: channel,
	}, nil
}

// NewSlackWithClient is used by tests.
func NewSlackWithClient(client SlackPoster, channel string) *Slack {
	return &Slack{client: client, channel: channel}
}

func (x *Slack) Notify(ctx context.Context, severity types.AlertSeverity, title, body string) error {
	attachment := slack.Attachment{
		Color: severityAttachmentColors[severity],
		Title: severity.Label() + " " + title,
		Text:  body,
	}

	_, ts, err := x.client.PostMessageContext(ctx, x.channel,
		slack.MsgOptionAttachments(attachment),
	)
	if err != nil {
		return goerr.Wrap(err, "failed to post notification to Slack",
			goerr.V("channel", x.channel),
			goerr.Tag(errs.TagExternal),
		)
	}

	logging.From(ctx).Debug("posted notification to Slack",
		"channel", x.channel, "ts", ts, "severity", severity,
	)
	return nil
}
