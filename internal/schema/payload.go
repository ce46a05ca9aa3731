// Package schema defines the structured payloads exchanged with LLM backends
// and normalizes the three provider-native response shapes into one internal
// representation, repairing known structural drift before validation.
package schema

import (
	"encoding/json"
	"fmt"
)

// Type identifies which structured payload a completion is expected to carry.
type Type string

const (
	// TypeDecision is the orchestration decision payload.
	TypeDecision Type = "decision"
	// TypeAnswer is the final user-facing answer payload.
	TypeAnswer Type = "answer"
)

// ActionType enumerates the decision stage's possible actions.
type ActionType string

const (
	ActionFunctionCall      ActionType = "function_call"
	ActionParametersRequest ActionType = "parameters_request"
	ActionFinalResponse     ActionType = "final_response"
)

// DecisionResponse is the decision stage's structured output: what the agent
// decided to do next and why.
type DecisionResponse struct {
	SGR             DecisionSGR `json:"sgr"`
	HandoverContext string      `json:"handover_context,omitempty"`
}

// DecisionSGR is the schema-guided reasoning block of a decision.
type DecisionSGR struct {
	Action    DecisionAction `json:"action"`
	ToolCalls []ToolCall     `json:"tool_calls"`
	Reasoning string         `json:"reasoning"`
}

// DecisionAction names the chosen action with its rationale.
type DecisionAction struct {
	Type      ActionType `json:"type"`
	Reasoning string     `json:"reasoning"`
}

// ToolCall is one requested capability invocation inside a decision.
type ToolCall struct {
	ToolName          string     `json:"tool_name"`
	Arguments         []Argument `json:"arguments"`
	MissingParameters []string   `json:"missing_parameters"`
	IsConfirmed       bool       `json:"is_confirmed"`
	Reason            string     `json:"reason"`
}

// Argument is a single named string argument.
type Argument struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// AgentAnswer is the output stage's structured final answer.
type AgentAnswer struct {
	Content AnswerContent `json:"content"`
	SGR     AnswerSGR     `json:"sgr"`
}

// AnswerContent is the renderable part of the answer. Cards and buttons are
// only populated for UI-oriented response formats.
type AnswerContent struct {
	Text    string   `json:"text"`
	Cards   []Card   `json:"cards,omitempty"`
	Buttons []Button `json:"buttons,omitempty"`
}

// Card is a compact display element.
type Card struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

// Button is an actionable display element.
type Button struct {
	Label  string `json:"label"`
	Action string `json:"action"`
}

// AnswerSGR is the answer's schema-guided reasoning block: evidence behind
// the answer, a verification judgment, and human-readable summaries.
type AnswerSGR struct {
	Evidence             []Evidence   `json:"evidence"`
	Sources              []string     `json:"sources"`
	Verification         Verification `json:"verification"`
	UIReasoning          string       `json:"ui_reasoning"`
	OrchestrationSummary string       `json:"orchestration_summary"`
	Reasoning            string       `json:"reasoning,omitempty"`
}

// Evidence ties one claim in the answer to its support.
type Evidence struct {
	Claim     string   `json:"claim"`
	Support   string   `json:"support"` // "confirmed", "uncertain", "contradicted"
	SourceIDs []string `json:"source_ids"`
}

// Verification grades how well the answer is backed by evidence.
type Verification struct {
	Level         string `json:"level"` // "verified", "partial", "unverified"
	ConfidencePct int    `json:"confidence_pct"`
}

// DecodeDecision converts a validated payload map into a typed decision.
func DecodeDecision(payload map[string]any) (*DecisionResponse, error) {
	var out DecisionResponse
	if err := roundTrip(payload, &out); err != nil {
		return nil, fmt.Errorf("decode decision: %w", err)
	}
	return &out, nil
}

// DecodeAnswer converts a validated payload map into a typed answer.
func DecodeAnswer(payload map[string]any) (*AgentAnswer, error) {
	var out AgentAnswer
	if err := roundTrip(payload, &out); err != nil {
		return nil, fmt.Errorf("decode answer: %w", err)
	}
	return &out, nil
}

func roundTrip(in any, out any) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
