package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// OpenRouterProvider implements the Provider interface for OpenRouter.
// OpenRouter exposes many models through an OpenAI-compatible chat completions
// API; structured output arrives as a JSON string inside the chat message.
type OpenRouterProvider struct {
	baseProvider
}

// NewOpenRouterProvider creates a new OpenRouter provider.
func NewOpenRouterProvider(cfg *ProviderConfig) *OpenRouterProvider {
	return &OpenRouterProvider{
		baseProvider: newBaseProvider(cfg, "openrouter"),
	}
}

// Kind returns the provider family identifier.
func (p *OpenRouterProvider) Kind() Kind {
	return KindOpenRouter
}

// Complete sends a chat completion request to OpenRouter.
func (p *OpenRouterProvider) Complete(ctx context.Context, req *Request) (*RawResponse, error) {
	if p.config.APIKey == "" {
		return nil, fmt.Errorf("OpenRouter API key not configured")
	}

	start := time.Now()

	model := req.Model
	if model == "" {
		model = p.config.Model
	}

	if req.PreviousResponseID != "" {
		// OpenRouter has no server-side conversation state.
		log.Info().Msg("openrouter: previous_response_id ignored (not supported)")
	}

	apiReq := openRouterRequest{
		Model:    model,
		Messages: req.Messages,
	}

	if len(req.TargetSchema) > 0 {
		apiReq.ResponseFormat = &openRouterResponseFormat{
			Type: "json_schema",
			JSONSchema: openRouterJSONSchema{
				Name:   req.SchemaName,
				Schema: json.RawMessage(req.TargetSchema),
				Strict: true,
			},
		}
	}

	for _, tool := range req.Tools {
		apiReq.Tools = append(apiReq.Tools, openRouterTool{
			Type:     "function",
			Function: json.RawMessage(tool),
		})
	}

	apiReq.MaxTokens = req.MaxTokens
	if apiReq.MaxTokens == 0 {
		apiReq.MaxTokens = p.config.MaxTokens
	}
	apiReq.Temperature = req.Temperature
	if apiReq.Temperature == 0 {
		apiReq.Temperature = p.config.Temperature
	}

	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.config.Endpoint+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	httpReq.Header.Set("X-Title", "Archon")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := readLimitedBody(resp.Body, MaxErrorBodySize)
		return nil, fmt.Errorf("OpenRouter error (status %d): %s", resp.StatusCode, string(bodyBytes))
	}

	var apiResp OpenRouterResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	breakdown := roleBreakdown(req.Messages)
	log.Info().
		Str("model", model).
		Int("messages", len(req.Messages)).
		Int("system", breakdown["system"]).
		Int("user", breakdown["user"]).
		Int("assistant", breakdown["assistant"]).
		Int("input_tokens", apiResp.Usage.PromptTokens).
		Int("output_tokens", apiResp.Usage.CompletionTokens).
		Int("total_tokens", apiResp.Usage.TotalTokens).
		Msg("openrouter: completion")

	return &RawResponse{
		Kind:       KindOpenRouter,
		Duration:   time.Since(start),
		OpenRouter: &apiResp,
	}, nil
}

// OpenRouter wire types (OpenAI chat completions compatible).
type openRouterRequest struct {
	Model          string                    `json:"model"`
	Messages       []Message                 `json:"messages"`
	ResponseFormat *openRouterResponseFormat `json:"response_format,omitempty"`
	Tools          []openRouterTool          `json:"tools,omitempty"`
	MaxTokens      int                       `json:"max_tokens,omitempty"`
	Temperature    float64                   `json:"temperature,omitempty"`
}

type openRouterResponseFormat struct {
	Type       string               `json:"type"`
	JSONSchema openRouterJSONSchema `json:"json_schema"`
}

type openRouterJSONSchema struct {
	Name   string          `json:"name"`
	Schema json.RawMessage `json:"schema"`
	Strict bool            `json:"strict"`
}

type openRouterTool struct {
	Type     string          `json:"type"`
	Function json.RawMessage `json:"function"`
}

// OpenRouterResponse is the provider-native chat completions envelope.
type OpenRouterResponse struct {
	ID      string             `json:"id"`
	Model   string             `json:"model"`
	Choices []OpenRouterChoice `json:"choices"`
	Usage   OpenRouterUsage    `json:"usage"`
}

// OpenRouterChoice is one completion choice.
type OpenRouterChoice struct {
	Index        int               `json:"index"`
	Message      OpenRouterMessage `json:"message"`
	FinishReason string            `json:"finish_reason"`
}

// OpenRouterMessage is the assistant message inside a choice.
type OpenRouterMessage struct {
	Role      string               `json:"role"`
	Content   string               `json:"content"`
	ToolCalls []OpenRouterToolCall `json:"tool_calls,omitempty"`
}

// OpenRouterToolCall is a native function-call request.
type OpenRouterToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

// OpenRouterUsage carries token accounting for one call. All detail fields
// are optional on the wire; absent counters decode as zero.
type OpenRouterUsage struct {
	PromptTokens        int     `json:"prompt_tokens"`
	CompletionTokens    int     `json:"completion_tokens"`
	TotalTokens         int     `json:"total_tokens"`
	Cost                float64 `json:"cost"`
	PromptTokensDetails struct {
		CachedTokens int `json:"cached_tokens"`
	} `json:"prompt_tokens_details"`
	CompletionTokensDetails struct {
		ReasoningTokens int `json:"reasoning_tokens"`
	} `json:"completion_tokens_details"`
}
