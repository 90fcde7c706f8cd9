// Package notifier delivers remediation and incident notifications to
// operators, either on the terminal or through Slack.
package notifier

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
	"github.com/secmon-lab/remedy/pkg/domain/interfaces"
	"github.com/secmon-lab/remedy/pkg/domain/types"
	"github.com/secmon-lab/remedy/pkg/utils/clock"
)

var severityColors = map[types.AlertSeverity]*color.Color{
	types.AlertSeverityOK:       color.New(color.FgGreen),
	types.AlertSeverityMinor:    color.New(color.FgCyan),
	types.AlertSeverityWarning:  color.New(color.FgYellow),
	types.AlertSeverityCritical: color.New(color.FgRed, color.Bold),
}

// Console writes human-readable notifications to a terminal. It is the
// default sink when no Slack credentials are configured.
type Console struct {
	mu sync.Mutex
	w  io.Writer
}

var _ interfaces.Notifier = &Console{}

func NewConsole() *Console {
	return &Console{w: os.Stdout}
}

// NewConsoleWithWriter is used by tests to capture output.
func NewConsoleWithWriter(w io.Writer) *Console {
	return &Console{w: w}
}

func (x *Console) Notify(ctx context.Context, severity types.AlertSeverity, title, body string) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	c, ok := severityColors[severity]
	if !ok {
		c = color.New(color.FgWhite)
	}

	ts := clock.Now(ctx).Format("2006-01-02 15:04:05")
	if _, err := fmt.Fprintf(x.w, "%s %s %s\n", ts, c.Sprintf("[%s]", severity.Label()), title); err != nil {
		return err
	}
	if body != "" {
		if _, err := fmt.Fprintf(x.w, "%s\n", body); err != nil {
			return err
		}
	}
	return nil
}
