package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecisionPrompt(t *testing.T) {
	s, err := NewService()
	require.NoError(t, err)

	text, err := s.DecisionPrompt(DecisionData{
		Persona:  "Archon",
		UserName: "Kim",
		Date:     "2026-08-29",
		Locale:   "en-US",
		Catalog: []CatalogEntry{
			{
				Name:        "get_weather",
				Description: "Current weather for a city",
				Params: []CatalogParam{
					{Name: "city", Type: "string", Description: "City name", Required: true},
				},
			},
		},
		PriorResults: []ResultSummary{
			{Name: "get_weather", Success: true, Payload: `{"temperature":"22C"}`},
			{Name: "web_search", Success: false, Error: "timed out"},
		},
	})
	require.NoError(t, err)

	assert.Contains(t, text, "Archon")
	assert.Contains(t, text, "Kim")
	assert.Contains(t, text, "get_weather: Current weather for a city")
	assert.Contains(t, text, "city (string, required)")
	assert.Contains(t, text, `{"temperature":"22C"}`)
	assert.Contains(t, text, "FAILED: timed out")
}

func TestOutputInstructionsPerFormat(t *testing.T) {
	s, err := NewService()
	require.NoError(t, err)

	voice, err := s.OutputInstructions(OutputData{Format: "voice", TraceSummary: "one lookup"})
	require.NoError(t, err)
	assert.Contains(t, voice, "speech")
	assert.Contains(t, voice, "one lookup")

	widget, err := s.OutputInstructions(OutputData{Format: "widget", TraceSummary: "-"})
	require.NoError(t, err)
	assert.Contains(t, widget, "small screen")

	text, err := s.OutputInstructions(OutputData{Format: "text", TraceSummary: "-"})
	require.NoError(t, err)
	assert.Contains(t, text, "complete text answer")
}

func TestContextBlock(t *testing.T) {
	s, err := NewService()
	require.NoError(t, err)

	block, err := s.Context(ContextData{
		UserName:  "Kim",
		Locale:    "de-DE",
		Timezone:  "Europe/Berlin",
		LocalTime: "2026-08-29 14:00",
		Preferences: map[string]string{
			"units": "metric",
		},
	})
	require.NoError(t, err)

	assert.Contains(t, block, "Kim")
	assert.Contains(t, block, "Europe/Berlin")
	assert.Contains(t, block, "units: metric")
}
