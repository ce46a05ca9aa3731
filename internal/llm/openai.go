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

// OpenAIProvider implements the Provider interface for the OpenAI responses API.
// This is the schema-reliable backend: when asked for strict JSON it returns a
// typed payload, and function calls arrive as dedicated output items.
type OpenAIProvider struct {
	baseProvider
}

// NewOpenAIProvider creates a new OpenAI provider.
func NewOpenAIProvider(cfg *ProviderConfig) *OpenAIProvider {
	return &OpenAIProvider{
		baseProvider: newBaseProvider(cfg, "openai"),
	}
}

// Kind returns the provider family identifier.
func (p *OpenAIProvider) Kind() Kind {
	return KindOpenAI
}

// Complete sends a structured completion request to the responses API.
func (p *OpenAIProvider) Complete(ctx context.Context, req *Request) (*RawResponse, error) {
	if p.config.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key not configured")
	}

	start := time.Now()

	model := req.Model
	if model == "" {
		model = p.config.Model
	}

	apiReq := openAIRequest{
		Model: model,
		Input: req.Messages,
	}

	if len(req.TargetSchema) > 0 {
		apiReq.Text = &openAITextFormat{
			Format: openAISchemaFormat{
				Type:   "json_schema",
				Name:   req.SchemaName,
				Schema: json.RawMessage(req.TargetSchema),
				Strict: true,
			},
		}
	}

	for _, tool := range req.Tools {
		apiReq.Tools = append(apiReq.Tools, json.RawMessage(tool))
	}
	if req.ToolChoice != "" {
		apiReq.ToolChoice = req.ToolChoice
	}
	if req.PreviousResponseID != "" {
		apiReq.PreviousResponseID = req.PreviousResponseID
		log.Info().Str("previous_response_id", req.PreviousResponseID).Msg("openai: continuing server-side conversation")
	}

	apiReq.MaxOutputTokens = req.MaxTokens
	if apiReq.MaxOutputTokens == 0 {
		apiReq.MaxOutputTokens = p.config.MaxTokens
	}
	apiReq.Temperature = req.Temperature
	if apiReq.Temperature == 0 {
		apiReq.Temperature = p.config.Temperature
	}

	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.config.Endpoint+"/responses", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.config.APIKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := readLimitedBody(resp.Body, MaxErrorBodySize)
		return nil, fmt.Errorf("OpenAI error (status %d): %s", resp.StatusCode, string(bodyBytes))
	}

	var apiResp OpenAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if len(apiResp.Output) == 0 {
		return nil, fmt.Errorf("no output items in response")
	}

	breakdown := roleBreakdown(req.Messages)
	log.Info().
		Str("model", model).
		Int("messages", len(req.Messages)).
		Int("system", breakdown["system"]).
		Int("user", breakdown["user"]).
		Int("assistant", breakdown["assistant"]).
		Int("input_tokens", apiResp.Usage.InputTokens).
		Int("output_tokens", apiResp.Usage.OutputTokens).
		Int("total_tokens", apiResp.Usage.TotalTokens).
		Int("cached_tokens", apiResp.Usage.InputTokensDetails.CachedTokens).
		Msg("openai: completion")

	return &RawResponse{
		Kind:     KindOpenAI,
		Duration: time.Since(start),
		OpenAI:   &apiResp,
	}, nil
}

// OpenAI responses API wire types.
type openAIRequest struct {
	Model              string            `json:"model"`
	Input              []Message         `json:"input"`
	Text               *openAITextFormat `json:"text,omitempty"`
	Tools              []json.RawMessage `json:"tools,omitempty"`
	ToolChoice         string            `json:"tool_choice,omitempty"`
	PreviousResponseID string            `json:"previous_response_id,omitempty"`
	MaxOutputTokens    int               `json:"max_output_tokens,omitempty"`
	Temperature        float64           `json:"temperature,omitempty"`
}

type openAITextFormat struct {
	Format openAISchemaFormat `json:"format"`
}

type openAISchemaFormat struct {
	Type   string          `json:"type"`
	Name   string          `json:"name"`
	Schema json.RawMessage `json:"schema"`
	Strict bool            `json:"strict"`
}

// OpenAIResponse is the provider-native responses API envelope.
type OpenAIResponse struct {
	ID     string             `json:"id"`
	Model  string             `json:"model"`
	Status string             `json:"status"`
	Output []OpenAIOutputItem `json:"output"`
	Usage  OpenAIUsage        `json:"usage"`
}

// OpenAIOutputItem is one entry in the response output list. The Type
// discriminates messages from function calls.
type OpenAIOutputItem struct {
	Type      string              `json:"type"` // "message", "function_call", "web_search_call"
	Name      string              `json:"name,omitempty"`
	Arguments json.RawMessage     `json:"arguments,omitempty"`
	Content   []OpenAIContentPart `json:"content,omitempty"`
}

// OpenAIContentPart is one content block inside a message output item.
type OpenAIContentPart struct {
	Type string `json:"type"` // "output_text"
	Text string `json:"text"`
}

// OpenAIUsage carries token accounting for one call.
type OpenAIUsage struct {
	InputTokens        int `json:"input_tokens"`
	OutputTokens       int `json:"output_tokens"`
	TotalTokens        int `json:"total_tokens"`
	InputTokensDetails struct {
		CachedTokens int `json:"cached_tokens"`
	} `json:"input_tokens_details"`
	OutputTokensDetails struct {
		ReasoningTokens int `json:"reasoning_tokens"`
	} `json:"output_tokens_details"`
}
