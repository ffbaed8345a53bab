package oracle

import (
	"context"
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAI completes prompts with the chat completions API. BaseURL lets it
// talk to any compatible endpoint.
type OpenAI struct {
	client    *openai.Client
	model     string
	maxTokens int
	system    string
}

// NewOpenAI creates a chat-completions oracle.
func NewOpenAI(cfg Config) *OpenAI {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	model := cfg.Model
	if model == "" {
		model = openai.GPT4o
	}

	return &OpenAI{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     model,
		maxTokens: cfg.MaxTokens,
		system:    cfg.SystemPrompt,
	}
}

// Complete sends the system and user messages and returns the first choice.
func (o *OpenAI) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     o.model,
		MaxTokens: o.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: o.system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", errors.Wrap(err, "chat completion")
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
