package schema

import "github.com/normanking/archon/internal/llm"

// UsageTrace is the provider-independent token accounting for one or more
// adapter calls. Counters the provider did not report stay zero.
type UsageTrace struct {
	Model           string  `json:"model"`
	InputTokens     int     `json:"input_tokens"`
	OutputTokens    int     `json:"output_tokens"`
	CachedTokens    int     `json:"cached_tokens"`
	ReasoningTokens int     `json:"reasoning_tokens"`
	TotalTokens     int     `json:"total_tokens"`
	Cost            float64 `json:"cost"`
}

// Add accumulates another trace into this one. The model name of the most
// recent call wins, which is what a turn summary wants.
func (u *UsageTrace) Add(other UsageTrace) {
	if other.Model != "" {
		u.Model = other.Model
	}
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.CachedTokens += other.CachedTokens
	u.ReasoningTokens += other.ReasoningTokens
	u.TotalTokens += other.TotalTokens
	u.Cost += other.Cost
}

func usageFromOpenAI(resp *llm.OpenAIResponse) UsageTrace {
	return UsageTrace{
		Model:           resp.Model,
		InputTokens:     resp.Usage.InputTokens,
		OutputTokens:    resp.Usage.OutputTokens,
		CachedTokens:    resp.Usage.InputTokensDetails.CachedTokens,
		ReasoningTokens: resp.Usage.OutputTokensDetails.ReasoningTokens,
		TotalTokens:     resp.Usage.TotalTokens,
	}
}

func usageFromOpenRouter(resp *llm.OpenRouterResponse) UsageTrace {
	return UsageTrace{
		Model:           resp.Model,
		InputTokens:     resp.Usage.PromptTokens,
		OutputTokens:    resp.Usage.CompletionTokens,
		CachedTokens:    resp.Usage.PromptTokensDetails.CachedTokens,
		ReasoningTokens: resp.Usage.CompletionTokensDetails.ReasoningTokens,
		TotalTokens:     resp.Usage.TotalTokens,
		Cost:            resp.Usage.Cost,
	}
}

func usageFromGemini(resp *llm.GeminiResponse) UsageTrace {
	return UsageTrace{
		Model:           resp.ModelVersion,
		InputTokens:     resp.UsageMetadata.PromptTokenCount,
		OutputTokens:    resp.UsageMetadata.CandidatesTokenCount,
		CachedTokens:    resp.UsageMetadata.CachedContentTokenCount,
		ReasoningTokens: resp.UsageMetadata.ThoughtsTokenCount,
		TotalTokens:     resp.UsageMetadata.TotalTokenCount,
	}
}
