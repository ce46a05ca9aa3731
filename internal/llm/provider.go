// Package llm provides the provider adapter layer for Archon.
// It supports OpenAI (responses API), OpenRouter (chat completions) and
// Google Gemini (generateContent), each with structured output support.
package llm

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"
)

// MaxErrorBodySize limits how much error response body we read (1MB).
// This prevents memory exhaustion from malformed/malicious error responses.
const MaxErrorBodySize = 1 * 1024 * 1024

// readLimitedBody reads up to maxBytes from r, returning the bytes read.
func readLimitedBody(r io.Reader, maxBytes int64) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r, maxBytes))
}

// Kind identifies a provider family. The normalization layer switches on it.
type Kind string

const (
	KindOpenAI     Kind = "openai"
	KindOpenRouter Kind = "openrouter"
	KindGemini     Kind = "gemini"
)

// Provider defines the interface for LLM provider adapters.
// An adapter performs exactly one network call per Complete, never retries,
// and never interprets the response beyond decoding the wire format.
type Provider interface {
	// Complete sends a completion request and returns the provider-native response.
	Complete(ctx context.Context, req *Request) (*RawResponse, error)

	// Kind returns the provider family identifier.
	Kind() Kind

	// Available returns true if the provider is configured.
	Available() bool
}

// Message represents a conversation message.
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// Request represents a structured completion request.
type Request struct {
	// Model to use (provider-specific).
	Model string `json:"model"`

	// Messages in the conversation. A leading system message is extracted
	// by adapters whose wire format carries it separately.
	Messages []Message `json:"messages"`

	// SchemaName labels the expected output schema.
	SchemaName string `json:"schema_name,omitempty"`

	// TargetSchema is the JSON schema document the response must conform to.
	TargetSchema []byte `json:"target_schema,omitempty"`

	// Tools are provider-dialect capability schemas the backend may invoke.
	Tools [][]byte `json:"tools,omitempty"`

	// ToolChoice controls tool selection ("auto", "required", "none").
	ToolChoice string `json:"tool_choice,omitempty"`

	// PreviousResponseID continues a server-side conversation. Adapters for
	// backends without continuation support ignore it with a logged no-op.
	PreviousResponseID string `json:"previous_response_id,omitempty"`

	// MaxTokens limits response length.
	MaxTokens int `json:"max_tokens,omitempty"`

	// Temperature controls randomness (0.0-1.0).
	Temperature float64 `json:"temperature,omitempty"`
}

// RawResponse carries one provider-native response. Exactly one of the
// per-provider fields is set, matching Kind. Interpretation is left to the
// normalization layer.
type RawResponse struct {
	Kind       Kind                `json:"kind"`
	Duration   time.Duration       `json:"duration"`
	OpenAI     *OpenAIResponse     `json:"openai,omitempty"`
	OpenRouter *OpenRouterResponse `json:"openrouter,omitempty"`
	Gemini     *GeminiResponse     `json:"gemini,omitempty"`
}

// ProviderConfig contains configuration for an LLM provider.
type ProviderConfig struct {
	// Name identifies the provider (openai, openrouter, gemini).
	Name string

	// Endpoint is the API base URL.
	Endpoint string

	// APIKey for authentication.
	APIKey string

	// Model is the default model to use.
	Model string

	// MaxTokens default for responses.
	MaxTokens int

	// Temperature default.
	Temperature float64

	// Timeout for API calls.
	Timeout time.Duration
}

// DefaultConfig returns sensible defaults for a provider.
func DefaultConfig(name string) *ProviderConfig {
	switch name {
	case "openai":
		return &ProviderConfig{
			Name:        "openai",
			Endpoint:    "https://api.openai.com/v1",
			Model:       "gpt-4.1",
			MaxTokens:   4096,
			Temperature: 0.7,
			Timeout:     2 * time.Minute,
		}
	case "openrouter":
		return &ProviderConfig{
			Name:        "openrouter",
			Endpoint:    "https://openrouter.ai/api/v1",
			Model:       "anthropic/claude-sonnet-4",
			MaxTokens:   4096,
			Temperature: 0.7,
			Timeout:     2 * time.Minute,
		}
	case "gemini":
		return &ProviderConfig{
			Name:        "gemini",
			Endpoint:    "https://generativelanguage.googleapis.com/v1beta",
			Model:       "gemini-2.5-flash",
			MaxTokens:   4096,
			Temperature: 0.7,
			Timeout:     2 * time.Minute,
		}
	default:
		return &ProviderConfig{
			Name:        name,
			MaxTokens:   4096,
			Temperature: 0.7,
			Timeout:     2 * time.Minute,
		}
	}
}

// modelFamilies maps model-name prefixes to provider families. Unknown models
// fall back to OpenAI, matching the routing behavior callers rely on.
var modelFamilies = []struct {
	prefix string
	kind   Kind
}{
	{"gpt-", KindOpenAI},
	{"o1", KindOpenAI},
	{"o3", KindOpenAI},
	{"gemini-", KindGemini},
	{"anthropic/", KindOpenRouter},
	{"google/", KindOpenRouter},
	{"x-ai/", KindOpenRouter},
	{"deepseek/", KindOpenRouter},
	{"openai/", KindOpenRouter},
	{"meta-llama/", KindOpenRouter},
}

// KindForModel returns the provider family responsible for a model name.
func KindForModel(model string) Kind {
	for _, f := range modelFamilies {
		if strings.HasPrefix(model, f.prefix) {
			return f.kind
		}
	}
	// vendor/model names are the OpenRouter catalog convention
	if strings.Contains(model, "/") {
		return KindOpenRouter
	}
	return KindOpenAI
}

// ═══════════════════════════════════════════════════════════════════════════════
// BASE PROVIDER (DRY helper for HTTP-based providers)
// ═══════════════════════════════════════════════════════════════════════════════

// baseProvider provides common functionality for HTTP-based LLM providers.
type baseProvider struct {
	config *ProviderConfig
	client *http.Client
}

// newBaseProvider creates a new base provider with defaults applied.
func newBaseProvider(cfg *ProviderConfig, providerName string) baseProvider {
	if cfg == nil {
		cfg = DefaultConfig(providerName)
	}

	defaults := DefaultConfig(providerName)
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaults.Endpoint
	}
	if cfg.Model == "" {
		cfg.Model = defaults.Model
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaults.Timeout
	}
	cfg.Name = providerName

	return baseProvider{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// Available checks if the API key is configured.
func (b *baseProvider) Available() bool {
	return b.config.APIKey != ""
}

// splitSystem extracts a leading system message from the conversation,
// returning it separately for wire formats that carry it out of band.
func splitSystem(messages []Message) (string, []Message) {
	if len(messages) > 0 && messages[0].Role == "system" {
		return messages[0].Content, messages[1:]
	}
	return "", messages
}

// roleBreakdown counts messages per role for diagnostic logging.
func roleBreakdown(messages []Message) map[string]int {
	counts := make(map[string]int, 3)
	for _, msg := range messages {
		counts[msg.Role]++
	}
	return counts
}
