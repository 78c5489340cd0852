package llm

import (
	"context"
	"fmt"
	"strings"

	"bizassist/internal/config"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino-ext/components/model/deepseek"
	"github.com/cloudwego/eino-ext/components/model/ollama"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
)

// Supported chat model providers
const (
	ProviderNone     = "none"
	ProviderOpenAI   = "openai"
	ProviderOllama   = "ollama"
	ProviderArk      = "ark"
	ProviderDeepSeek = "deepseek"
)

// NewChatModel builds the configured chat model. Provider "none" returns a nil
// model, which callers treat as "no model available".
func NewChatModel(ctx context.Context, cfg config.LLMConfig) (model.BaseChatModel, error) {
	maxTokens := cfg.MaxTokens
	temperature := float32(cfg.Temperature)

	switch strings.ToLower(cfg.Provider) {
	case ProviderNone, "":
		return nil, nil

	case ProviderOpenAI:
		m, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Timeout:     cfg.Timeout,
			MaxTokens:   &maxTokens,
			Temperature: &temperature,
		})
		if err != nil {
			return nil, fmt.Errorf("error creating openai chat model: %w", err)
		}
		return m, nil

	case ProviderOllama:
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		m, err := ollama.NewChatModel(ctx, &ollama.ChatModelConfig{
			BaseURL: baseURL,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("error creating ollama chat model: %w", err)
		}
		return m, nil

	case ProviderArk:
		m, err := ark.NewChatModel(ctx, &ark.ChatModelConfig{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			MaxTokens:   &maxTokens,
			Temperature: &temperature,
		})
		if err != nil {
			return nil, fmt.Errorf("error creating ark chat model: %w", err)
		}
		return m, nil

	case ProviderDeepSeek:
		m, err := deepseek.NewChatModel(ctx, &deepseek.ChatModelConfig{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			MaxTokens:   maxTokens,
			Temperature: temperature,
			Timeout:     cfg.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("error creating deepseek chat model: %w", err)
		}
		return m, nil
	}

	return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
}

// NewChain compiles the Template -> ChatModel chain used by every prompt in the assistant
func NewChain(ctx context.Context, cm model.BaseChatModel, systemTemplate, userTemplate string) (compose.Runnable[map[string]any, *schema.Message], error) {
	template := prompt.FromMessages(schema.FString,
		schema.SystemMessage(systemTemplate),
		schema.UserMessage(userTemplate),
	)

	chain, err := compose.NewChain[map[string]any, *schema.Message]().
		AppendChatTemplate(template).
		AppendChatModel(cm).
		Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("error creating Eino chain: %w", err)
	}
	return chain, nil
}
