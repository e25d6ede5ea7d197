package oracle

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/lysyi3m/scripta/app/story"
)

const DefaultOpenAIModel = openai.GPT4oMini

type OpenAI struct {
	client *openai.Client
	model  string
}

// NewOpenAI creates a chat-completion oracle. baseURL may point at any
// OpenAI-compatible endpoint; empty means the public API.
func NewOpenAI(apiKey, model, baseURL string) *OpenAI {
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAI{
		client: newOpenAIClient(apiKey, baseURL),
		model:  model,
	}
}

func newOpenAIClient(apiKey, baseURL string) *openai.Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return openai.NewClientWithConfig(config)
}

func (o *OpenAI) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		Temperature: 0.8,
	})
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.Code == "content_policy_violation" {
		return "", fmt.Errorf("%w: %v", story.ErrOracleRefused, err)
	}
	if err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", errors.New("no choices in OpenAI response")
	}
	if resp.Choices[0].FinishReason == openai.FinishReasonContentFilter {
		return "", fmt.Errorf("%w: content filter", story.ErrOracleRefused)
	}
	return resp.Choices[0].Message.Content, nil
}
