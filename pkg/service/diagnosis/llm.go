package diagnosis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/secmon-lab/remedy/pkg/domain/interfaces"
	"github.com/secmon-lab/remedy/pkg/domain/model/alert"
	"github.com/secmon-lab/remedy/pkg/domain/model/diagnosis"
	"github.com/secmon-lab/remedy/pkg/service/llm"
	"github.com/secmon-lab/remedy/pkg/utils/logging"
)

const diagnosePromptTmpl = `You are an SRE assistant diagnosing a single host.

Alert summary:
%s

Recent metrics:
%s

Respond with a JSON object of this exact shape:
{
  "severity": "ok|minor|warning|critical",
  "diagnosis": "one paragraph root cause assessment",
  "recommendations": [
    {
      "action": "one of: clear-cache, cleanup-disk, rotate-logs, restart-service, restart-container, kill-process",
      "target": "service/container/pid if applicable, else empty",
      "description": "why this action helps",
      "risk_level": "low|medium|high|critical",
      "auto_executable": false
    }
  ],
  "requires_human": false,
  "urgency": "low|medium|high|immediate"
}

Set auto_executable true only for clear-cache, cleanup-disk and rotate-logs.
Recommend nothing when no action would help.`

// LLM asks a language model for a diagnosis and falls back to the rule
// engine when the model is unreachable or keeps returning garbage.
type LLM struct {
	client   gollem.LLMClient
	fallback interfaces.Analyzer
}

var _ interfaces.Analyzer = &LLM{}

func NewLLM(client gollem.LLMClient) *LLM {
	return &LLM{
		client:   client,
		fallback: NewRuleBased(),
	}
}

func (x *LLM) Diagnose(ctx context.Context, summary *alert.Summary, metrics map[string]float64) (*diagnosis.Diagnosis, error) {
	result, err := x.ask(ctx, summary, metrics)
	if err != nil {
		logging.From(ctx).Warn("LLM diagnosis failed, falling back to rule engine",
			"error", err,
		)
		return x.fallback.Diagnose(ctx, summary, metrics)
	}
	return result, nil
}

func (x *LLM) ask(ctx context.Context, summary *alert.Summary, metrics map[string]float64) (*diagnosis.Diagnosis, error) {
	summaryJSON, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal alert summary")
	}
	metricsJSON, err := json.Marshal(metrics)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal metrics")
	}

	prompt := fmt.Sprintf(diagnosePromptTmpl, summaryJSON, metricsJSON)

	return llm.Ask(ctx, x.client, prompt,
		llm.WithValidate[diagnosis.Diagnosis](func(d diagnosis.Diagnosis) error {
			return d.Validate()
		}),
	)
}
