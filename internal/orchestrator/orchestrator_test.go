package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/archon/internal/bus"
	"github.com/normanking/archon/internal/capability"
	"github.com/normanking/archon/internal/dispatch"
	"github.com/normanking/archon/internal/llm"
	"github.com/normanking/archon/internal/prompt"
	"github.com/normanking/archon/internal/schema"
)

// fakeProvider replays scripted responses in order.
type fakeProvider struct {
	responses []*llm.RawResponse
	err       error
	requests  []*llm.Request
}

func (f *fakeProvider) Complete(ctx context.Context, req *llm.Request) (*llm.RawResponse, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	idx := len(f.requests) - 1
	if idx >= len(f.responses) {
		return nil, fmt.Errorf("no scripted response for call %d", idx+1)
	}
	return f.responses[idx], nil
}

func (f *fakeProvider) Kind() llm.Kind  { return llm.KindOpenAI }
func (f *fakeProvider) Available() bool { return true }

type fakeResolver struct{ p llm.Provider }

func (r fakeResolver) ForModel(model string) (llm.Provider, error) { return r.p, nil }

func structured(text string, tokens int) *llm.RawResponse {
	resp := &llm.RawResponse{
		Kind: llm.KindOpenAI,
		OpenAI: &llm.OpenAIResponse{
			ID:    "resp_abc",
			Model: "gpt-4.1",
			Output: []llm.OpenAIOutputItem{
				{
					Type:    "message",
					Content: []llm.OpenAIContentPart{{Type: "output_text", Text: text}},
				},
			},
		},
	}
	resp.OpenAI.Usage.InputTokens = tokens
	resp.OpenAI.Usage.TotalTokens = tokens
	return resp
}

const (
	invokeWeatherJSON = `{"sgr":{"action":{"type":"function_call","reasoning":"need the forecast"},"tool_calls":[{"tool_name":"get_weather","arguments":[{"name":"city","value":"Berlin"}],"missing_parameters":[],"is_confirmed":true,"reason":"user asked about weather"}],"reasoning":"weather lookup required"}}`
	respondJSON       = `{"sgr":{"action":{"type":"final_response","reasoning":"have everything"},"tool_calls":[],"reasoning":"data gathered"}}`
	emptyInvokeJSON   = `{"sgr":{"action":{"type":"function_call","reasoning":"hmm"},"tool_calls":[],"reasoning":"indecisive"}}`
	answerJSON        = `{"content":{"text":"It is sunny in Berlin, 22C."},"sgr":{"evidence":[],"sources":[],"verification":{"level":"verified","confidence_pct":95},"ui_reasoning":"weather capability confirmed it","orchestration_summary":"one lookup"}}`
)

func newTestOrchestrator(t *testing.T, provider llm.Provider, maxIterations int, events *bus.Bus) *Orchestrator {
	t.Helper()

	registry, err := capability.NewRegistry(&capability.Descriptor{
		Name:        "get_weather",
		Description: "Current weather for a city",
		Domain:      "weather",
		Params: []capability.Param{
			{Name: "city", Type: "string", Description: "City name", Required: true},
		},
		Invoke: func(ctx context.Context, args map[string]string) (any, error) {
			return map[string]any{"city": args["city"], "temperature": "22C"}, nil
		},
	})
	require.NoError(t, err)

	normalizer, err := schema.NewNormalizer()
	require.NoError(t, err)

	prompts, err := prompt.NewService()
	require.NoError(t, err)

	o, err := New(Config{MaxIterations: maxIterations, DefaultModel: "gpt-4.1"}, Deps{
		Resolver:   fakeResolver{p: provider},
		Normalizer: normalizer,
		Registry:   registry,
		Dispatcher: dispatch.NewCoordinator(registry, events),
		Prompts:    prompts,
		Events:     events,
	})
	require.NoError(t, err)
	return o
}

func userTurn() *TurnRequest {
	return &TurnRequest{
		Messages: []llm.Message{{Role: "user", Content: "What's the weather in Berlin?"}},
	}
}

func TestRunTurnDecideActRespond(t *testing.T) {
	provider := &fakeProvider{responses: []*llm.RawResponse{
		structured(invokeWeatherJSON, 100),
		structured(respondJSON, 120),
		structured(answerJSON, 80),
	}}
	o := newTestOrchestrator(t, provider, 3, nil)

	answer, err := o.RunTurn(context.Background(), userTurn())
	require.NoError(t, err)

	// exactly 2 decision calls plus 1 output call
	assert.Len(t, provider.requests, 3)
	assert.Equal(t, 2, answer.Iterations)
	assert.False(t, answer.Truncated)
	assert.Equal(t, "It is sunny in Berlin, 22C.", answer.Answer.Content.Text)
	assert.Equal(t, 300, answer.Usage.TotalTokens)
	assert.Contains(t, answer.TraceSummary, "get_weather succeeded")

	// decision calls carry capability schemas, the output call does not
	assert.NotEmpty(t, provider.requests[0].Tools)
	assert.Empty(t, provider.requests[2].Tools)
	// capability results are folded into the output conversation
	last := provider.requests[2].Messages[len(provider.requests[2].Messages)-1]
	assert.Contains(t, last.Content, "22C")
}

func TestRunTurnIterationLimit(t *testing.T) {
	provider := &fakeProvider{responses: []*llm.RawResponse{
		structured(invokeWeatherJSON, 0),
		structured(invokeWeatherJSON, 0),
		structured(invokeWeatherJSON, 0),
		structured(answerJSON, 0),
	}}
	o := newTestOrchestrator(t, provider, 3, nil)

	answer, err := o.RunTurn(context.Background(), userTurn())
	require.NoError(t, err)

	// 3 decision calls, then the forced output call: max_iterations + 1
	assert.Len(t, provider.requests, 4)
	assert.Equal(t, 3, answer.Iterations)
	assert.True(t, answer.Truncated)
}

func TestRunTurnEmptyInvocationList(t *testing.T) {
	provider := &fakeProvider{responses: []*llm.RawResponse{
		structured(emptyInvokeJSON, 0),
		structured(answerJSON, 0),
	}}
	o := newTestOrchestrator(t, provider, 3, nil)

	answer, err := o.RunTurn(context.Background(), userTurn())
	require.NoError(t, err)

	assert.Len(t, provider.requests, 2)
	assert.Equal(t, 1, answer.Iterations)
	assert.False(t, answer.Truncated)
}

func TestRunTurnNativeFunctionCallFallsThrough(t *testing.T) {
	native := &llm.RawResponse{
		Kind: llm.KindOpenAI,
		OpenAI: &llm.OpenAIResponse{
			ID:     "resp_fc",
			Model:  "gpt-4.1",
			Output: []llm.OpenAIOutputItem{{Type: "function_call", Name: "get_weather"}},
		},
	}
	provider := &fakeProvider{responses: []*llm.RawResponse{
		native,
		structured(answerJSON, 0),
	}}
	o := newTestOrchestrator(t, provider, 3, nil)

	answer, err := o.RunTurn(context.Background(), userTurn())
	require.NoError(t, err)
	assert.Len(t, provider.requests, 2)
	assert.NotNil(t, answer.Answer)
}

func TestRunTurnTransportErrorAborts(t *testing.T) {
	provider := &fakeProvider{err: errors.New("rate limited")}
	o := newTestOrchestrator(t, provider, 3, nil)

	_, err := o.RunTurn(context.Background(), userTurn())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestRunTurnStructuralErrorAborts(t *testing.T) {
	provider := &fakeProvider{responses: []*llm.RawResponse{
		structured("definitely not the schema", 0),
	}}
	o := newTestOrchestrator(t, provider, 3, nil)

	_, err := o.RunTurn(context.Background(), userTurn())
	require.Error(t, err)
	assert.ErrorIs(t, err, schema.ErrStructural)
}

func TestRunTurnPublishesStatusEvents(t *testing.T) {
	events := bus.NewBus()
	defer events.Close()

	provider := &fakeProvider{responses: []*llm.RawResponse{
		structured(invokeWeatherJSON, 0),
		structured(respondJSON, 0),
		structured(answerJSON, 0),
	}}
	o := newTestOrchestrator(t, provider, 3, events)

	answer, err := o.RunTurn(context.Background(), &TurnRequest{
		TurnID:   "turn-events",
		Messages: []llm.Message{{Role: "user", Content: "weather?"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "turn-events", answer.TurnID)

	history := events.HistoryForTurn("turn-events")
	types := make(map[bus.EventType]int)
	for _, e := range history {
		types[e.Type]++
	}
	assert.Equal(t, 1, types[bus.EventTurnStart])
	assert.Equal(t, 2, types[bus.EventDecisionStart])
	assert.Equal(t, 2, types[bus.EventDecisionComplete])
	assert.Equal(t, 1, types[bus.EventCapabilityStart])
	assert.Equal(t, 1, types[bus.EventCapabilityComplete])
	assert.Equal(t, 1, types[bus.EventOutputStart])
	assert.Equal(t, 1, types[bus.EventOutputComplete])
	assert.Equal(t, 1, types[bus.EventTurnComplete])
}

func TestTraceSummary(t *testing.T) {
	trace := &Trace{}
	assert.Contains(t, trace.Summary(), "directly")

	decision := &schema.DecisionResponse{}
	decision.SGR.Action = schema.DecisionAction{Type: schema.ActionFunctionCall, Reasoning: "needs lookup"}
	trace.Append(0, decision, []capability.Result{
		{Name: "get_weather", Success: true},
		{Name: "web_search", Success: false, Error: "timeout"},
	})

	summary := trace.Summary()
	assert.Contains(t, summary, "1. decided")
	assert.Contains(t, summary, "needs lookup")
	assert.Contains(t, summary, "get_weather succeeded")
	assert.Contains(t, summary, "web_search failed: timeout")
}
