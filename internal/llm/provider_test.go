package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindForModel(t *testing.T) {
	tests := []struct {
		model string
		want  Kind
	}{
		{"gpt-4.1", KindOpenAI},
		{"gpt-4o-mini", KindOpenAI},
		{"o3-mini", KindOpenAI},
		{"gemini-2.5-flash", KindGemini},
		{"anthropic/claude-sonnet-4", KindOpenRouter},
		{"meta-llama/llama-3.3-70b-instruct", KindOpenRouter},
		{"mistralai/mistral-large", KindOpenRouter},
		// unknown models fall back to the default family
		{"some-new-model", KindOpenAI},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, KindForModel(tt.model), "model %s", tt.model)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("gemini")
	require.NotNil(t, cfg)
	assert.Equal(t, "gemini-2.5-flash", cfg.Model)
	assert.Contains(t, cfg.Endpoint, "generativelanguage")

	// unknown names still get sane generic defaults
	generic := DefaultConfig("custom")
	require.NotNil(t, generic)
	assert.Empty(t, generic.Endpoint)
	assert.Equal(t, 4096, generic.MaxTokens)
}

func TestSplitSystem(t *testing.T) {
	system, rest := splitSystem([]Message{
		{Role: "system", Content: "you are helpful"},
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
		{Role: "user", Content: "turn on the lights"},
	})
	assert.Equal(t, "you are helpful", system)
	require.Len(t, rest, 3)
	assert.Equal(t, "user", rest[0].Role)
}

func TestRouterForModel(t *testing.T) {
	r, err := NewRouter(map[Kind]*ProviderConfig{
		KindOpenAI: {APIKey: "test", Model: "gpt-4.1"},
	})
	require.NoError(t, err)

	p, err := r.ForModel("gemini-2.5-flash")
	require.NoError(t, err)
	assert.Equal(t, KindGemini, p.Kind())

	p, err = r.ForModel("gpt-4.1")
	require.NoError(t, err)
	assert.True(t, p.Available())
}
