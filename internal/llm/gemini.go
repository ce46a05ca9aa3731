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

// GeminiProvider implements the Provider interface for Google Gemini.
// Gemini's generateContent API takes a different message shape (contents with
// user/model roles plus a separate systemInstruction) and frequently returns
// structured output that deviates from the requested schema; callers are
// expected to repair before validating.
type GeminiProvider struct {
	baseProvider
}

// NewGeminiProvider creates a new Gemini provider.
func NewGeminiProvider(cfg *ProviderConfig) *GeminiProvider {
	return &GeminiProvider{
		baseProvider: newBaseProvider(cfg, "gemini"),
	}
}

// Kind returns the provider family identifier.
func (p *GeminiProvider) Kind() Kind {
	return KindGemini
}

// Complete sends a generateContent request to Gemini.
func (p *GeminiProvider) Complete(ctx context.Context, req *Request) (*RawResponse, error) {
	if p.config.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key not configured")
	}

	start := time.Now()

	model := req.Model
	if model == "" {
		model = p.config.Model
	}

	if req.PreviousResponseID != "" {
		// Gemini has no response-chaining; context travels in the messages.
		log.Info().Msg("gemini: previous_response_id ignored (not supported)")
	}

	system, rest := splitSystem(req.Messages)

	apiReq := geminiRequest{}
	if system != "" {
		apiReq.SystemInstruction = &geminiContent{
			Parts: []geminiPart{{Text: system}},
		}
	}
	for _, m := range rest {
		role := "user"
		if m.Role == "assistant" {
			role = "model"
		}
		apiReq.Contents = append(apiReq.Contents, geminiContent{
			Role:  role,
			Parts: []geminiPart{{Text: m.Content}},
		})
	}

	if len(req.TargetSchema) > 0 {
		apiReq.GenerationConfig = &geminiGenerationConfig{
			ResponseMIMEType:   "application/json",
			ResponseJSONSchema: json.RawMessage(req.TargetSchema),
		}
	}
	if apiReq.GenerationConfig == nil && (req.MaxTokens > 0 || req.Temperature > 0) {
		apiReq.GenerationConfig = &geminiGenerationConfig{}
	}
	if apiReq.GenerationConfig != nil {
		apiReq.GenerationConfig.MaxOutputTokens = req.MaxTokens
		if apiReq.GenerationConfig.MaxOutputTokens == 0 {
			apiReq.GenerationConfig.MaxOutputTokens = p.config.MaxTokens
		}
		apiReq.GenerationConfig.Temperature = req.Temperature
	}

	if len(req.Tools) > 0 {
		decls := make([]json.RawMessage, 0, len(req.Tools))
		for _, tool := range req.Tools {
			decls = append(decls, json.RawMessage(tool))
		}
		apiReq.Tools = []geminiToolGroup{{FunctionDeclarations: decls}}
	}

	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", p.config.Endpoint, model)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", p.config.APIKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := readLimitedBody(resp.Body, MaxErrorBodySize)
		return nil, fmt.Errorf("Gemini error (status %d): %s", resp.StatusCode, string(bodyBytes))
	}

	var apiResp GeminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if len(apiResp.Candidates) == 0 {
		return nil, fmt.Errorf("Gemini returned no candidates")
	}

	log.Info().
		Str("model", model).
		Int("contents", len(apiReq.Contents)).
		Str("finish_reason", apiResp.Candidates[0].FinishReason).
		Int("input_tokens", apiResp.UsageMetadata.PromptTokenCount).
		Int("output_tokens", apiResp.UsageMetadata.CandidatesTokenCount).
		Int("total_tokens", apiResp.UsageMetadata.TotalTokenCount).
		Msg("gemini: completion")

	return &RawResponse{
		Kind:     KindGemini,
		Duration: time.Since(start),
		Gemini:   &apiResp,
	}, nil
}

// Gemini wire types.
type geminiRequest struct {
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	Contents          []geminiContent         `json:"contents"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
	Tools             []geminiToolGroup       `json:"tools,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type geminiGenerationConfig struct {
	ResponseMIMEType   string          `json:"response_mime_type,omitempty"`
	ResponseJSONSchema json.RawMessage `json:"response_json_schema,omitempty"`
	MaxOutputTokens    int             `json:"maxOutputTokens,omitempty"`
	Temperature        float64         `json:"temperature,omitempty"`
}

type geminiToolGroup struct {
	FunctionDeclarations []json.RawMessage `json:"functionDeclarations"`
}

// GeminiResponse is the provider-native generateContent envelope.
type GeminiResponse struct {
	Candidates    []GeminiCandidate   `json:"candidates"`
	UsageMetadata GeminiUsageMetadata `json:"usageMetadata"`
	ModelVersion  string              `json:"modelVersion"`
	ResponseID    string              `json:"responseId"`
}

// GeminiCandidate is one generated candidate.
type GeminiCandidate struct {
	Content      GeminiCandidateContent `json:"content"`
	FinishReason string                 `json:"finishReason"`
}

// GeminiCandidateContent holds the candidate's parts.
type GeminiCandidateContent struct {
	Role  string               `json:"role"`
	Parts []GeminiResponsePart `json:"parts"`
}

// GeminiResponsePart is either a text part or a native function call.
type GeminiResponsePart struct {
	Text         string              `json:"text,omitempty"`
	FunctionCall *GeminiFunctionCall `json:"functionCall,omitempty"`
}

// GeminiFunctionCall is a native function-call request with structured args.
type GeminiFunctionCall struct {
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

// GeminiUsageMetadata carries token accounting. Absent counters decode as zero.
type GeminiUsageMetadata struct {
	PromptTokenCount        int `json:"promptTokenCount"`
	CandidatesTokenCount    int `json:"candidatesTokenCount"`
	TotalTokenCount         int `json:"totalTokenCount"`
	CachedContentTokenCount int `json:"cachedContentTokenCount"`
	ThoughtsTokenCount      int `json:"thoughtsTokenCount"`
}
