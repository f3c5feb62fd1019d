// Package llms provides thin typed clients for the chat-completion
// endpoints card-engine talks to: OpenAI-compatible chat completions and
// the Anthropic messages API.
package llms

import (
	"context"
	"strings"
)

// Chat roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// DefaultAnthropicModel is used when only an Anthropic key is configured
// and the requested model is not a Claude model.
const DefaultAnthropicModel = "claude-sonnet-4-20250514"

// Message is one turn of a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Provider is a chat-completion backend. Generate sends the system prompt
// plus conversation and returns the assistant's text.
type Provider interface {
	Generate(ctx context.Context, system string, messages []Message) (string, error)
	ModelName() string
}

// ProviderConfig carries the per-instance settings shared by all providers.
type ProviderConfig struct {
	Model       string
	APIKey      string
	Host        string
	Temperature float64
	MaxTokens   int
	Timeout     int // seconds
}

// ForModel selects a provider for the given model name from the available
// API keys. Claude models route to Anthropic when its key is present;
// otherwise OpenAI handles everything; an Anthropic-only deployment falls
// back to the default Claude model. Returns nil when no key is configured.
func ForModel(model, openaiKey, anthropicKey string, temperature float64, maxTokens int) Provider {
	if containsClaude(model) && anthropicKey != "" {
		p, _ := NewAnthropicProvider(ProviderConfig{
			Model: model, APIKey: anthropicKey,
			Temperature: temperature, MaxTokens: maxTokens,
		})
		return p
	}
	if openaiKey != "" {
		p, _ := NewOpenAIProvider(ProviderConfig{
			Model: model, APIKey: openaiKey,
			Temperature: temperature, MaxTokens: maxTokens,
		})
		return p
	}
	if anthropicKey != "" {
		p, _ := NewAnthropicProvider(ProviderConfig{
			Model: DefaultAnthropicModel, APIKey: anthropicKey,
			Temperature: temperature, MaxTokens: maxTokens,
		})
		return p
	}
	return nil
}

func containsClaude(model string) bool {
	return strings.Contains(strings.ToLower(model), "claude")
}
