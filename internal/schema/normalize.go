package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/normanking/archon/internal/llm"
)

// ErrStructural marks a response that failed schema validation even after
// repair. It is never retried here; the caller decides what to do with it.
var ErrStructural = errors.New("structural validation failed")

// FunctionCallRequest is a provider-native function call surfaced by the
// normalizer. Arguments stay a raw blob; decoding them is the dispatcher's
// job.
type FunctionCallRequest struct {
	Name         string
	RawArguments json.RawMessage
}

// CompletedPayload is a parsed, validated structured payload.
type CompletedPayload struct {
	Type    Type
	Payload map[string]any
}

// NormalizedResponse is the single internal response shape. Exactly one of
// FunctionCall and Completed is non-nil.
type NormalizedResponse struct {
	FunctionCall *FunctionCallRequest
	Completed    *CompletedPayload
	Usage        UsageTrace
	TurnHandle   string
	Repaired     []string // names of repair rules that fired, if any
}

// Normalizer converts provider-native responses into NormalizedResponse
// values. It is stateless per call and safe for concurrent use.
type Normalizer struct {
	validators map[Type]*gojsonschema.Schema
	repairer   *Repairer
}

// NewNormalizer compiles the payload schemas and wires the repair pass.
func NewNormalizer() (*Normalizer, error) {
	n := &Normalizer{
		validators: make(map[Type]*gojsonschema.Schema, 2),
		repairer:   NewRepairer(),
	}
	for _, t := range []Type{TypeDecision, TypeAnswer} {
		_, doc := DocumentFor(t)
		compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(doc))
		if err != nil {
			return nil, fmt.Errorf("compile %s schema: %w", t, err)
		}
		n.validators[t] = compiled
	}
	return n, nil
}

// Normalize converts a provider-native response into the internal shape,
// expecting the structured payload to match the given type.
func (n *Normalizer) Normalize(raw *llm.RawResponse, expected Type) (*NormalizedResponse, error) {
	switch raw.Kind {
	case llm.KindOpenAI:
		return n.normalizeOpenAI(raw.OpenAI, expected)
	case llm.KindOpenRouter:
		return n.normalizeOpenRouter(raw.OpenRouter, expected)
	case llm.KindGemini:
		return n.normalizeGemini(raw.Gemini, expected)
	default:
		return nil, fmt.Errorf("unknown provider kind: %s", raw.Kind)
	}
}

// normalizeOpenAI handles the responses API. The payload arrives already
// schema-conformant; only usage re-shaping and output-item inspection happen
// here.
func (n *Normalizer) normalizeOpenAI(resp *llm.OpenAIResponse, expected Type) (*NormalizedResponse, error) {
	out := &NormalizedResponse{
		Usage:      usageFromOpenAI(resp),
		TurnHandle: resp.ID,
	}

	if len(resp.Output) == 0 {
		return nil, fmt.Errorf("%w: empty output", ErrStructural)
	}

	first := resp.Output[0]
	if first.Type == "function_call" {
		out.FunctionCall = &FunctionCallRequest{
			Name:         first.Name,
			RawArguments: first.Arguments,
		}
		return out, nil
	}

	var text strings.Builder
	for _, item := range resp.Output {
		if item.Type != "message" {
			continue
		}
		for _, part := range item.Content {
			if part.Type == "output_text" {
				text.WriteString(part.Text)
			}
		}
	}

	payload, err := n.parseAndValidate(text.String(), expected)
	if err != nil {
		return nil, err
	}
	out.Completed = &CompletedPayload{Type: expected, Payload: payload}
	return out, nil
}

// normalizeOpenRouter handles chat completions. The payload is a JSON string
// inside the assistant message; this provider is treated as schema-reliable
// under strict json_schema mode, so decode failures surface as structural
// errors rather than triggering repair.
func (n *Normalizer) normalizeOpenRouter(resp *llm.OpenRouterResponse, expected Type) (*NormalizedResponse, error) {
	out := &NormalizedResponse{Usage: usageFromOpenRouter(resp)}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices", ErrStructural)
	}
	msg := resp.Choices[0].Message

	if len(msg.ToolCalls) > 0 {
		call := msg.ToolCalls[0]
		out.FunctionCall = &FunctionCallRequest{
			Name:         call.Function.Name,
			RawArguments: json.RawMessage(call.Function.Arguments),
		}
		return out, nil
	}

	payload, err := n.parseAndValidate(msg.Content, expected)
	if err != nil {
		return nil, err
	}
	out.Completed = &CompletedPayload{Type: expected, Payload: payload}
	return out, nil
}

// normalizeGemini handles generateContent. Nested structures frequently come
// back flattened; the repair pass runs before validation, and only residual
// failures surface as structural errors.
func (n *Normalizer) normalizeGemini(resp *llm.GeminiResponse, expected Type) (*NormalizedResponse, error) {
	out := &NormalizedResponse{
		Usage:      usageFromGemini(resp),
		TurnHandle: resp.ResponseID,
	}

	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("%w: no candidates", ErrStructural)
	}
	parts := resp.Candidates[0].Content.Parts

	for _, part := range parts {
		if part.FunctionCall != nil {
			out.FunctionCall = &FunctionCallRequest{
				Name:         part.FunctionCall.Name,
				RawArguments: part.FunctionCall.Args,
			}
			return out, nil
		}
	}

	var text strings.Builder
	for _, part := range parts {
		text.WriteString(part.Text)
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(text.String()), &payload); err != nil {
		return nil, fmt.Errorf("%w: payload is not a JSON object: %v", ErrStructural, err)
	}

	out.Repaired = n.repairer.Repair(payload, expected)

	if err := n.validate(payload, expected); err != nil {
		return nil, err
	}
	out.Completed = &CompletedPayload{Type: expected, Payload: payload}
	return out, nil
}

// parseAndValidate decodes a JSON object from text and validates it.
func (n *Normalizer) parseAndValidate(text string, expected Type) (map[string]any, error) {
	var payload map[string]any
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return nil, fmt.Errorf("%w: payload is not a JSON object: %v", ErrStructural, err)
	}
	if err := n.validate(payload, expected); err != nil {
		return nil, err
	}
	return payload, nil
}

func (n *Normalizer) validate(payload map[string]any, expected Type) error {
	validator, ok := n.validators[expected]
	if !ok {
		return fmt.Errorf("no schema registered for type %s", expected)
	}
	result, err := validator.Validate(gojsonschema.NewGoLoader(payload))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStructural, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("%w: %s", ErrStructural, strings.Join(msgs, "; "))
	}
	return nil
}
