// Package server exposes the agent over HTTP: a turn endpoint, health and
// metrics, and a WebSocket stream of turn-progress events.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/normanking/archon/internal/bus"
	"github.com/normanking/archon/internal/capability"
	"github.com/normanking/archon/internal/llm"
	"github.com/normanking/archon/internal/orchestrator"
	"github.com/normanking/archon/internal/schema"
	"github.com/normanking/archon/internal/state"
)

// Config holds server settings.
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server is the HTTP/WebSocket surface over the orchestrator.
type Server struct {
	cfg    Config
	turns  *orchestrator.Orchestrator
	events *bus.Bus
	states *state.Store
	http   *http.Server
	stream *statusStream
}

// New wires the server. events may be nil, which disables the status stream.
func New(cfg Config, turns *orchestrator.Orchestrator, events *bus.Bus, states *state.Store) *Server {
	s := &Server{
		cfg:    cfg,
		turns:  turns,
		events: events,
		states: states,
	}
	if events != nil {
		s.stream = newStatusStream(events)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat", s.handleChat)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	if s.stream != nil {
		mux.HandleFunc("GET /v1/status", s.stream.handleWebSocket)
	}

	s.http = &http.Server{
		Addr:         cfg.Addr,
		Handler:      mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Start runs the HTTP server until it is shut down.
func (s *Server) Start() error {
	if s.stream != nil {
		s.stream.start()
	}
	log.Info().Str("addr", s.cfg.Addr).Msg("server listening")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.stream != nil {
		s.stream.stop()
	}
	return s.http.Shutdown(ctx)
}

// ChatRequest is the body of POST /v1/chat.
type ChatRequest struct {
	TurnID             string        `json:"turn_id,omitempty"`
	Messages           []llm.Message `json:"messages"`
	Model              string        `json:"model,omitempty"`
	Format             string        `json:"format,omitempty"`
	ContinuationHandle string        `json:"continuation_handle,omitempty"`
	UserID             string        `json:"user_id,omitempty"`
}

// ChatResponse is the body of a successful turn.
type ChatResponse struct {
	TurnID       string              `json:"turn_id"`
	Answer       *schema.AgentAnswer `json:"answer"`
	Usage        schema.UsageTrace   `json:"usage"`
	TurnHandle   string              `json:"turn_handle,omitempty"`
	TraceSummary string              `json:"trace_summary"`
	Iterations   int                 `json:"iterations"`
	Truncated    bool                `json:"truncated"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "messages must not be empty")
		return
	}
	for _, m := range req.Messages {
		if m.Role != "system" && m.Role != "user" && m.Role != "assistant" {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid role %q", m.Role))
			return
		}
	}

	answer, err := s.turns.RunTurn(r.Context(), &orchestrator.TurnRequest{
		TurnID:             req.TurnID,
		Messages:           req.Messages,
		Model:              req.Model,
		Format:             capability.ResponseFormat(req.Format),
		ContinuationHandle: req.ContinuationHandle,
		UserID:             req.UserID,
	})
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, schema.ErrStructural) {
			status = http.StatusBadGateway
		} else if errors.Is(err, context.Canceled) {
			status = 499 // client closed request
		}
		log.Error().Err(err).Msg("turn failed")
		writeError(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, ChatResponse{
		TurnID:       answer.TurnID,
		Answer:       answer.Answer,
		Usage:        answer.Usage,
		TurnHandle:   answer.TurnHandle,
		TraceSummary: answer.TraceSummary,
		Iterations:   answer.Iterations,
		Truncated:    answer.Truncated,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]any{"status": "healthy"}
	code := http.StatusOK

	if s.states != nil {
		if err := s.states.Health(); err != nil {
			health["status"] = "degraded"
			health["state"] = err.Error()
			code = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, code, health)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("write response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
