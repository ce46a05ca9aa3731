package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/archon/internal/bus"
	"github.com/normanking/archon/internal/capability"
	"github.com/normanking/archon/internal/dispatch"
	"github.com/normanking/archon/internal/llm"
	"github.com/normanking/archon/internal/orchestrator"
	"github.com/normanking/archon/internal/prompt"
	"github.com/normanking/archon/internal/schema"
)

// scriptedProvider replays canned responses in call order.
type scriptedProvider struct {
	responses []*llm.RawResponse
	calls     int
}

func (p *scriptedProvider) Complete(ctx context.Context, req *llm.Request) (*llm.RawResponse, error) {
	idx := p.calls
	p.calls++
	if idx >= len(p.responses) {
		idx = len(p.responses) - 1
	}
	return p.responses[idx], nil
}

func (p *scriptedProvider) Kind() llm.Kind  { return llm.KindOpenAI }
func (p *scriptedProvider) Available() bool { return true }

type scriptedResolver struct{ p llm.Provider }

func (r scriptedResolver) ForModel(model string) (llm.Provider, error) { return r.p, nil }

func textResponse(text string) *llm.RawResponse {
	return &llm.RawResponse{
		Kind: llm.KindOpenAI,
		OpenAI: &llm.OpenAIResponse{
			ID:    "resp_1",
			Model: "gpt-4.1",
			Output: []llm.OpenAIOutputItem{
				{Type: "message", Content: []llm.OpenAIContentPart{{Type: "output_text", Text: text}}},
			},
		},
	}
}

const (
	directAnswerDecision = `{"sgr":{"action":{"type":"final_response","reasoning":"no capability needed"},"tool_calls":[],"reasoning":"greeting"}}`
	directAnswer         = `{"content":{"text":"Hello! How can I help?"},"sgr":{"evidence":[],"sources":[],"verification":{"level":"unverified","confidence_pct":0},"ui_reasoning":"greeting needs no sources","orchestration_summary":"direct answer"}}`
)

func newTestServer(t *testing.T, events *bus.Bus) *Server {
	t.Helper()

	registry, err := capability.NewRegistry()
	require.NoError(t, err)
	normalizer, err := schema.NewNormalizer()
	require.NoError(t, err)
	prompts, err := prompt.NewService()
	require.NoError(t, err)

	provider := &scriptedProvider{responses: []*llm.RawResponse{
		textResponse(directAnswerDecision),
		textResponse(directAnswer),
	}}

	turns, err := orchestrator.New(orchestrator.Config{MaxIterations: 3, DefaultModel: "gpt-4.1"}, orchestrator.Deps{
		Resolver:   scriptedResolver{p: provider},
		Normalizer: normalizer,
		Registry:   registry,
		Dispatcher: dispatch.NewCoordinator(registry, events),
		Prompts:    prompts,
		Events:     events,
	})
	require.NoError(t, err)

	return New(Config{Addr: ":0"}, turns, events, nil)
}

func TestChatEndpoint(t *testing.T) {
	s := newTestServer(t, nil)

	body, _ := json.Marshal(ChatRequest{
		Messages: []llm.Message{{Role: "user", Content: "hi"}},
	})
	req := httptest.NewRequest("POST", "/v1/chat", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Hello! How can I help?", resp.Answer.Content.Text)
	assert.NotEmpty(t, resp.TurnID)
	assert.Equal(t, 1, resp.Iterations)
	assert.False(t, resp.Truncated)
}

func TestChatEndpointRejectsEmptyMessages(t *testing.T) {
	s := newTestServer(t, nil)

	req := httptest.NewRequest("POST", "/v1/chat", strings.NewReader(`{"messages":[]}`))
	rec := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatEndpointRejectsBadRole(t *testing.T) {
	s := newTestServer(t, nil)

	req := httptest.NewRequest("POST", "/v1/chat",
		strings.NewReader(`{"messages":[{"role":"wizard","content":"hi"}]}`))
	rec := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, nil)

	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestStatusStreamDeliversEvents(t *testing.T) {
	events := bus.NewBus()
	defer events.Close()

	s := newTestServer(t, events)
	s.stream.start()
	defer s.stream.stop()

	srv := httptest.NewServer(s.http.Handler)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/status?turn_id=turn-ws&replay=false"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// give the register channel a moment before publishing
	time.Sleep(100 * time.Millisecond)

	event := bus.NewEvent(bus.EventDecisionStart, "turn-ws")
	event.Step = "decision"
	require.NoError(t, events.Publish(event))

	// an event for another turn must not reach this client
	require.NoError(t, events.Publish(bus.NewEvent(bus.EventDecisionStart, "other-turn")))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var got bus.Event
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "turn-ws", got.TurnID)
	assert.Equal(t, bus.EventDecisionStart, got.Type)

	conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err, "filtered client should not receive other turns")
}

func TestStreamClientEnqueueAfterShutdown(t *testing.T) {
	client := &streamClient{send: make(chan []byte, 1)}
	client.shutdown()
	assert.False(t, client.enqueue([]byte(`{}`)), "closed client must drop events")

	// repeat shutdown is a no-op
	client.shutdown()
}

func TestStreamClientEnqueueShutdownRace(t *testing.T) {
	// A client disconnect must never panic a concurrent event fan-out.
	for i := 0; i < 5000; i++ {
		client := &streamClient{send: make(chan []byte, 1)}
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			client.enqueue([]byte(`{"type":"decision_start"}`))
		}()
		go func() {
			defer wg.Done()
			client.shutdown()
		}()
		wg.Wait()
	}
}

func TestHandleBusEventAfterClientShutdown(t *testing.T) {
	events := bus.NewBus()
	defer events.Close()

	stream := newStatusStream(events)
	client := &streamClient{send: make(chan []byte, 1), turnID: "turn-gone"}
	stream.clientsMu.Lock()
	stream.clients[client] = true
	stream.clientsMu.Unlock()

	// disconnect lands between the fan-out snapshot and the send
	client.shutdown()

	stream.handleBusEvent(bus.Event{Type: bus.EventDecisionStart, TurnID: "turn-gone"})
}
