// Package llm wraps gollem sessions with typed JSON prompting.
package llm

import (
	"context"
	"encoding/json"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/secmon-lab/remedy/pkg/domain/model/errs"
	"github.com/secmon-lab/remedy/pkg/utils/logging"
)

type askConfig[T any] struct {
	maxRetry    int
	retryPrompt func(ctx context.Context, err error) string
	validate    func(v T) error
}

type AskOption[T any] func(*askConfig[T])

func WithMaxRetry[T any](maxRetry int) AskOption[T] {
	return func(c *askConfig[T]) {
		c.maxRetry = maxRetry
	}
}

func WithValidate[T any](f func(v T) error) AskOption[T] {
	return func(c *askConfig[T]) {
		c.validate = f
	}
}

// Ask sends a prompt expecting a JSON response that unmarshals into T.
// Malformed responses are retried with an error hint up to maxRetry times.
func Ask[T any](ctx context.Context, client gollem.LLMClient, prompt string, opts ...AskOption[T]) (*T, error) {
	logger := logging.From(ctx)

	config := &askConfig[T]{
		maxRetry: 3,
		retryPrompt: func(ctx context.Context, err error) string {
			return "Invalid response. Please try again: " + err.Error()
		},
	}
	for _, opt := range opts {
		opt(config)
	}

	ssn, err := client.NewSession(ctx, gollem.WithSessionContentType(gollem.ContentTypeJSON))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create LLM session", goerr.Tag(errs.TagExternal))
	}

	var response *T
	for i := 0; i < config.maxRetry && response == nil; i++ {
		resp, err := ssn.GenerateContent(ctx, gollem.Text(prompt))
		if err != nil {
			return nil, goerr.Wrap(err, "failed to generate content", goerr.Tag(errs.TagExternal))
		}

		if len(resp.Texts) == 0 || resp.Texts[0] == "" {
			logger.Warn("empty response from LLM", "attempt", i+1, "max", config.maxRetry)
			prompt = config.retryPrompt(ctx, goerr.New("empty response"))
			continue
		}

		text := resp.Texts[0]
		var result T
		if err := json.Unmarshal([]byte(text), &result); err != nil {
			logger.Debug("failed to unmarshal LLM response", "text", text, "error", err)
			prompt = config.retryPrompt(ctx, err)
			continue
		}

		if config.validate != nil {
			if err := config.validate(result); err != nil {
				logger.Debug("invalid LLM response", "result", result, "error", err)
				prompt = config.retryPrompt(ctx, err)
				continue
			}
		}

		response = &result
	}

	if response == nil {
		return nil, goerr.New("failed to get valid response from LLM", goerr.Tag(errs.TagExternal))
	}

	return response, nil
}
