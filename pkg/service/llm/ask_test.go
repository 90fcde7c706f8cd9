package llm_test

import (
	"context"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/m-mizutani/gollem/mock"
	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/remedy/pkg/service/llm"
)

type greeting struct {
	Message string `json:"message"`
}

func mockClient(texts ...string) *mock.LLMClientMock {
	i := 0
	return &mock.LLMClientMock{
		NewSessionFunc: func(ctx context.Context, opts ...gollem.SessionOption) (gollem.Session, error) {
			return &mock.SessionMock{
				GenerateContentFunc: func(ctx context.Context, input ...gollem.Input) (*gollem.Response, error) {
					if i >= len(texts) {
						return &gollem.Response{}, nil
					}
					text := texts[i]
					i++
					return &gollem.Response{Texts: []string{text}}, nil
				},
			}, nil
		},
	}
}

func TestAsk(t *testing.T) {
	client := mockClient(`{"message": "hello"}`)

	result := gt.R1(llm.Ask[greeting](t.Context(), client, "greet me")).NoError(t)
	gt.Equal(t, result.Message, "hello")
}

func TestAskRetriesMalformedJSON(t *testing.T) {
	client := mockClient(`not json at all`, `{"message": "second try"}`)

	result := gt.R1(llm.Ask[greeting](t.Context(), client, "greet me")).NoError(t)
	gt.Equal(t, result.Message, "second try")
}

func TestAskValidationRetry(t *testing.T) {
	client := mockClient(`{"message": ""}`, `{"message": "ok"}`)

	result := gt.R1(llm.Ask[greeting](t.Context(), client, "greet me",
		llm.WithValidate[greeting](func(v greeting) error {
			if v.Message == "" {
				return goerr.New("message must not be empty")
			}
			return nil
		}),
	)).NoError(t)
	gt.Equal(t, result.Message, "ok")
}

func TestAskExhaustsRetries(t *testing.T) {
	client := mockClient(`bad`, `also bad`, `still bad`)

	_, err := llm.Ask[greeting](t.Context(), client, "greet me")
	gt.Error(t, err)
}
