package notifier_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/remedy/pkg/domain/types"
	"github.com/secmon-lab/remedy/pkg/service/notifier"
	"github.com/slack-go/slack"
)

func TestConsoleNotify(t *testing.T) {
	var buf bytes.Buffer
	n := notifier.NewConsoleWithWriter(&buf)

	gt.NoError(t, n.Notify(t.Context(), types.AlertSeverityCritical,
		"disk usage critical on web-01", "root filesystem at 99%"))

	out := buf.String()
	gt.S(t, out).Contains("disk usage critical on web-01")
	gt.S(t, out).Contains("root filesystem at 99%")
}

func TestConsoleNotifyWithoutBody(t *testing.T) {
	var buf bytes.Buffer
	n := notifier.NewConsoleWithWriter(&buf)

	gt.NoError(t, n.Notify(t.Context(), types.AlertSeverityOK, "all clear", ""))
	gt.S(t, buf.String()).Contains("all clear")
}

type recordingPoster struct {
	channels []string
	err      error
}

func (p *recordingPoster) PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error) {
	p.channels = append(p.channels, channelID)
	return channelID, "1700000000.000100", p.err
}

func TestSlackNotify(t *testing.T) {
	poster := &recordingPoster{}
	n := notifier.NewSlackWithClient(poster, "#incident")

	gt.NoError(t, n.Notify(t.Context(), types.AlertSeverityWarning,
		"memory pressure on db-02", "available memory below 5%"))

	gt.A(t, poster.channels).Length(1).At(0, func(t testing.TB, v string) {
		gt.Equal(t, v, "#incident")
	})
}

func TestSlackNotifyPropagatesError(t *testing.T) {
	poster := &recordingPoster{err: goerr.New("channel_not_found")}
	n := notifier.NewSlackWithClient(poster, "#missing")

	gt.Error(t, n.Notify(t.Context(), types.AlertSeverityMinor, "x", "y"))
}

func TestNewSlackRequiresCredentials(t *testing.T) {
	_, err := notifier.NewSlack("", "#incident")
	gt.Error(t, err)

	_, err = notifier.NewSlack("xoxb-dummy", "")
	gt.Error(t, err)
}
