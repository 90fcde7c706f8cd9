package config

import (
	"log/slog"
	"os"

	"github.com/m-mizutani/goerr/v2"
	adapter "github.com/secmon-lab/remedy/pkg/adapter/github"
	"github.com/secmon-lab/remedy/pkg/domain/interfaces"
	"github.com/urfave/cli/v3"
)

// GitHub configures the issue tracker. Either a personal access token or a
// GitHub App credential set selects the tracker; with neither, issues are
// tracked locally only.
type GitHub struct {
	token          string
	appID          int64
	installationID int64
	privateKeyPath string
	owner          string
	repo           string
}

func (x *GitHub) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "github-token",
			Usage:       "GitHub personal access token",
			Category:    "GitHub",
			Sources:     cli.EnvVars("REMEDY_GITHUB_TOKEN"),
			Destination: &x.token,
		},
		&cli.Int64Flag{
			Name:        "github-app-id",
			Usage:       "GitHub App ID",
			Category:    "GitHub",
			Sources:     cli.EnvVars("REMEDY_GITHUB_APP_ID"),
			Destination: &x.appID,
		},
		&cli.Int64Flag{
			Name:        "github-app-installation-id",
			Usage:       "GitHub App Installation ID",
			Category:    "GitHub",
			Sources:     cli.EnvVars("REMEDY_GITHUB_APP_INSTALLATION_ID"),
			Destination: &x.installationID,
		},
		&cli.StringFlag{
			Name:        "github-app-private-key",
			Usage:       "Path to GitHub App private key (PEM format)",
			Category:    "GitHub",
			Sources:     cli.EnvVars("REMEDY_GITHUB_APP_PRIVATE_KEY"),
			Destination: &x.privateKeyPath,
		},
		&cli.StringFlag{
			Name:        "github-owner",
			Usage:       "Repository owner for tracked issues",
			Category:    "GitHub",
			Sources:     cli.EnvVars("REMEDY_GITHUB_OWNER"),
			Destination: &x.owner,
		},
		&cli.StringFlag{
			Name:        "github-repo",
			Usage:       "Repository name for tracked issues",
			Category:    "GitHub",
			Sources:     cli.EnvVars("REMEDY_GITHUB_REPO"),
			Destination: &x.repo,
		},
	}
}

func (x GitHub) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int64("app_id", x.appID),
		slog.String("owner", x.owner),
		slog.String("repo", x.repo),
		slog.Bool("token_set", x.token != ""),
	)
}

// Enabled reports whether any tracker credential is configured.
func (x *GitHub) Enabled() bool {
	return x.token != "" || x.appID != 0
}

func (x *GitHub) Configure() (interfaces.Tracker, error) {
	if x.token != "" {
		return adapter.NewWithToken(x.token, x.owner, x.repo)
	}

	if x.appID == 0 || x.installationID == 0 || x.privateKeyPath == "" {
		return nil, goerr.New("github app requires app id, installation id and private key")
	}
	key, err := os.ReadFile(x.privateKeyPath)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read GitHub App private key",
			goerr.V("path", x.privateKeyPath))
	}
	return adapter.New(x.appID, x.installationID, key, x.owner, x.repo)
}
