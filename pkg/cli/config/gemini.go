package config

import (
	"context"
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem/llm/gemini"
	"github.com/urfave/cli/v3"
)

// GeminiCfg configures the AI diagnosis backend. When no project is given
// the pipeline runs with the rule-based analyzer only.
type GeminiCfg struct {
	model     string
	projectID string
	location  string
}

func (x *GeminiCfg) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "gemini-model",
			Usage:       "Gemini model",
			Destination: &x.model,
			Category:    "Gemini",
			Value:       "gemini-2.0-flash",
			Sources:     cli.EnvVars("REMEDY_GEMINI_MODEL"),
		},
		&cli.StringFlag{
			Name:        "gemini-project-id",
			Usage:       "GCP Project ID for Vertex AI (empty disables AI diagnosis)",
			Destination: &x.projectID,
			Category:    "Gemini",
			Sources:     cli.EnvVars("REMEDY_GEMINI_PROJECT_ID"),
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "GCP Location for Vertex AI",
			Value:       "us-central1",
			Destination: &x.location,
			Category:    "Gemini",
			Sources:     cli.EnvVars("REMEDY_GEMINI_LOCATION"),
		},
	}
}

func (x GeminiCfg) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("model", x.model),
		slog.String("project_id", x.projectID),
		slog.String("location", x.location),
	)
}

// Enabled reports whether an AI backend is configured.
func (x *GeminiCfg) Enabled() bool {
	return x.projectID != ""
}

func (x *GeminiCfg) Configure(ctx context.Context) (*gemini.Client, error) {
	client, err := gemini.New(ctx, x.projectID, x.location, gemini.WithModel(x.model))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create vertex ai client")
	}
	return client, nil
}
