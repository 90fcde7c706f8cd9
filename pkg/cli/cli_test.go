package cli_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/remedy/pkg/cli"
)

func TestActionListCommand(t *testing.T) {
	gt.NoError(t, cli.Run(context.Background(), []string{
		"remedy", "action", "list",
	}))
}

func TestActionRunRequiresName(t *testing.T) {
	err := cli.Run(context.Background(), []string{
		"remedy", "action", "run",
	})
	gt.Error(t, err)
	gt.S(t, err.Error()).Contains("action name is required")
}

func TestCheckCommandDryRun(t *testing.T) {
	input := filepath.Join(t.TempDir(), "summary.json")
	gt.NoError(t, os.WriteFile(input, []byte(`{
		"timestamp": "2026-08-30T12:00:00Z",
		"hostname": "web-01",
		"issue_count": 1,
		"max_severity": "warning",
		"issues": [
			{"type": "disk", "severity": "warning", "subject": "/", "current": 92, "threshold": 90}
		]
	}`), 0o600))

	gt.NoError(t, cli.Run(context.Background(), []string{
		"remedy", "check",
		"--input", input,
		"--state-dir", t.TempDir(),
		"--dry-run",
	}))
}

func TestCheckCommandRejectsMalformedInput(t *testing.T) {
	input := filepath.Join(t.TempDir(), "summary.json")
	gt.NoError(t, os.WriteFile(input, []byte(`{"issue_count": 2, "issues": []}`), 0o600))

	err := cli.Run(context.Background(), []string{
		"remedy", "check",
		"--input", input,
		"--state-dir", t.TempDir(),
		"--dry-run",
	})
	gt.Error(t, err)
}
