// Package oracle is the language-model completion boundary. Callers hand
// in a prompt and get back the raw reply text; parsing is their concern.
package oracle

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
)

// DefaultSystemPrompt steers every backend toward JSON replies.
const DefaultSystemPrompt = "You are a helpful assistant which always returns json."

// Provider names accepted by New.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Providers lists the accepted provider names.
var Providers = []string{ProviderOpenAI, ProviderAnthropic}

// Oracle completes a prompt. Implementations make exactly one attempt.
type Oracle interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Func adapts a function to the Oracle interface.
type Func func(ctx context.Context, prompt string) (string, error)

// Complete calls f.
func (f Func) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// Config selects and configures a backend.
type Config struct {
	Provider     string
	APIKey       string
	Model        string
	BaseURL      string // Optional; OpenAI-compatible gateways such as OpenRouter
	MaxTokens    int
	Timeout      time.Duration
	SystemPrompt string
}

// ErrNoAPIKey is returned when a backend is configured without a key.
var ErrNoAPIKey = errors.New("oracle api key not configured")

// New builds the backend named by cfg.Provider.
func New(cfg Config) (Oracle, error) {
	if cfg.APIKey == "" {
		return nil, errors.WithHint(ErrNoAPIKey, "set oracle.api_key or GPTDIFF_ORACLE_API_KEY")
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 3500
	}

	switch cfg.Provider {
	case ProviderOpenAI, "":
		return NewOpenAI(cfg), nil
	case ProviderAnthropic:
		return NewAnthropic(cfg), nil
	default:
		return nil, errors.Newf("unknown oracle provider %q", cfg.Provider)
	}
}
