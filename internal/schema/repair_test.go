package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenameAliases(t *testing.T) {
	r := NewRepairer()
	payload := map[string]any{
		"orchestration": map[string]any{
			"action":         map[string]any{"type": "final_response", "reasoning": "done"},
			"function_calls": []any{},
			"reasoning":      "r",
		},
	}
	applied := r.Repair(payload, TypeDecision)
	assert.Contains(t, applied, "rename_aliases")

	sgr, ok := payload["sgr"].(map[string]any)
	require.True(t, ok, "orchestration should be renamed to sgr")
	_, ok = sgr["tool_calls"]
	assert.True(t, ok, "function_calls should be renamed to tool_calls")
	_, gone := payload["orchestration"]
	assert.False(t, gone)
}

func TestRenameAliasesKeepsExpectedKey(t *testing.T) {
	r := NewRepairer()
	payload := map[string]any{
		"sgr":           map[string]any{"reasoning": "keep me"},
		"orchestration": map[string]any{"reasoning": "drop me"},
	}
	r.Repair(payload, TypeDecision)

	sgr := payload["sgr"].(map[string]any)
	assert.Equal(t, "keep me", sgr["reasoning"])
}

func TestDecodeStringObjectVerification(t *testing.T) {
	r := NewRepairer()
	payload := map[string]any{
		"content": map[string]any{"text": "hi"},
		"sgr": map[string]any{
			"verification": `{"level":"verified","confidence_pct":88}`,
			"ui_reasoning": "ok",
		},
	}
	applied := r.Repair(payload, TypeAnswer)
	assert.Contains(t, applied, "decode_string_objects")

	verification := payload["sgr"].(map[string]any)["verification"].(map[string]any)
	assert.Equal(t, "verified", verification["level"])
}

func TestDecodeStringObjectFallback(t *testing.T) {
	r := NewRepairer()
	payload := map[string]any{
		"content": "just some words",
		"sgr": map[string]any{
			"verification": "pretty sure",
			"ui_reasoning": "ok",
		},
	}
	r.Repair(payload, TypeAnswer)

	content := payload["content"].(map[string]any)
	assert.Equal(t, "just some words", content["text"])

	verification := payload["sgr"].(map[string]any)["verification"].(map[string]any)
	assert.Equal(t, "unverified", verification["level"])
	assert.Equal(t, 0, verification["confidence_pct"])
}

func TestDecodeListElements(t *testing.T) {
	r := NewRepairer()
	payload := map[string]any{
		"content": map[string]any{
			"text": "hi",
			"cards": []any{
				`{"title":"Weather","text":"Sunny, 22C"}`,
				"not json at all",
				map[string]any{"title": "Already fine", "text": "ok"},
			},
		},
		"sgr": map[string]any{
			"evidence": []any{"the forecast said sunny"},
		},
	}
	applied := r.Repair(payload, TypeAnswer)
	assert.Contains(t, applied, "decode_list_elements")

	cards := payload["content"].(map[string]any)["cards"].([]any)
	require.Len(t, cards, 3)
	assert.Equal(t, "Weather", cards[0].(map[string]any)["title"])
	assert.Equal(t, "not json at all", cards[1].(map[string]any)["text"])
	assert.Equal(t, "Already fine", cards[2].(map[string]any)["title"])

	evidence := payload["sgr"].(map[string]any)["evidence"].([]any)
	fallback := evidence[0].(map[string]any)
	assert.Equal(t, "the forecast said sunny", fallback["claim"])
	assert.Equal(t, "uncertain", fallback["support"])
}

func TestRepairerDisabledRule(t *testing.T) {
	r := NewRepairer("decode_list_elements")
	payload := map[string]any{
		"content": map[string]any{
			"text":  "hi",
			"cards": []any{`{"title":"Weather","text":"Sunny"}`},
		},
	}
	applied := r.Repair(payload, TypeAnswer)
	assert.NotContains(t, applied, "decode_list_elements")

	cards := payload["content"].(map[string]any)["cards"].([]any)
	_, stillString := cards[0].(string)
	assert.True(t, stillString)
}

func TestRepairNoChangeOnCleanPayload(t *testing.T) {
	r := NewRepairer()
	payload := map[string]any{
		"content": map[string]any{"text": "hi"},
		"sgr": map[string]any{
			"evidence":              []any{},
			"sources":               []any{},
			"verification":          map[string]any{"level": "verified", "confidence_pct": 100},
			"ui_reasoning":          "fine",
			"orchestration_summary": "",
		},
	}
	applied := r.Repair(payload, TypeAnswer)
	assert.Empty(t, applied)
}
