// Package orchestrator drives one conversation turn through the bounded
// decide -> act -> respond state machine: decision calls pick capabilities,
// the dispatcher executes them, and a final output call produces the
// structured answer. The loop makes at most max_iterations decision calls
// plus one output call per turn.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/normanking/archon/internal/bus"
	"github.com/normanking/archon/internal/capability"
	"github.com/normanking/archon/internal/dispatch"
	"github.com/normanking/archon/internal/llm"
	"github.com/normanking/archon/internal/metrics"
	"github.com/normanking/archon/internal/prompt"
	"github.com/normanking/archon/internal/schema"
	"github.com/normanking/archon/internal/state"
)

// DefaultMaxIterations bounds the decision loop when no limit is configured.
const DefaultMaxIterations = 3

// ProviderResolver selects the provider responsible for a model name.
// *llm.Router satisfies it.
type ProviderResolver interface {
	ForModel(model string) (llm.Provider, error)
}

// Config holds the orchestrator's tunables.
type Config struct {
	MaxIterations int
	DefaultModel  string
}

// Deps are the collaborators injected at construction. States and Events
// are optional; everything else is required.
type Deps struct {
	Resolver   ProviderResolver
	Normalizer *schema.Normalizer
	Registry   *capability.Registry
	Dispatcher *dispatch.Coordinator
	Prompts    *prompt.Service
	States     *state.Store
	Events     *bus.Bus
}

// Orchestrator runs turns. It holds no per-turn state and is safe for
// concurrent use.
type Orchestrator struct {
	cfg  Config
	deps Deps
}

// New validates the dependencies and returns an orchestrator.
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	if deps.Resolver == nil || deps.Normalizer == nil || deps.Registry == nil ||
		deps.Dispatcher == nil || deps.Prompts == nil {
		return nil, fmt.Errorf("orchestrator: missing required dependency")
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	return &Orchestrator{cfg: cfg, deps: deps}, nil
}

// TurnRequest is one caller request to process a turn.
type TurnRequest struct {
	TurnID             string // assigned when empty
	Messages           []llm.Message
	Model              string // falls back to the configured default
	Format             capability.ResponseFormat
	ContinuationHandle string // opaque handle from a previous turn
	UserID             string
}

// FinalAnswer is the turn's result.
type FinalAnswer struct {
	TurnID       string
	Answer       *schema.AgentAnswer
	Usage        schema.UsageTrace
	TurnHandle   string // continuation handle for a follow-up turn, if any
	TraceSummary string
	Iterations   int
	// Truncated reports that the iteration limit forced the answer while the
	// decision stage still wanted to act.
	Truncated bool
}

// RunTurn processes one turn end to end. Transport and residual structural
// errors abort the turn; capability failures never do.
func (o *Orchestrator) RunTurn(ctx context.Context, req *TurnRequest) (*FinalAnswer, error) {
	start := time.Now()

	turnID := req.TurnID
	if turnID == "" {
		turnID = uuid.NewString()
	}
	model := req.Model
	if model == "" {
		model = o.cfg.DefaultModel
	}
	format := req.Format
	if format == "" {
		format = capability.FormatText
	}
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("turn %s: no messages", turnID)
	}

	o.publishStep(bus.EventTurnStart, turnID, 0, "turn", "started", "")

	userState, contextBlock, err := o.loadUserContext(ctx, req.UserID)
	if err != nil {
		// state is advisory; run the turn without it
		log.Warn().Str("turn_id", turnID).Err(err).Msg("user state unavailable")
	}

	answer, err := o.runStateMachine(ctx, turnID, model, format, req, userState, contextBlock)

	elapsed := time.Since(start)
	metrics.TurnDuration.Observe(elapsed.Seconds())
	if err != nil {
		metrics.TurnsTotal.WithLabelValues("error").Inc()
		o.publishError(turnID, err)
		return nil, err
	}

	metrics.TurnsTotal.WithLabelValues("ok").Inc()
	metrics.DecisionIterations.Observe(float64(answer.Iterations))
	o.publishStep(bus.EventTurnComplete, turnID, answer.Iterations, "turn", "completed", "")

	log.Info().
		Str("turn_id", turnID).
		Str("model", answer.Usage.Model).
		Int("iterations", answer.Iterations).
		Bool("truncated", answer.Truncated).
		Int("total_tokens", answer.Usage.TotalTokens).
		Dur("duration", elapsed).
		Msg("turn complete")

	return answer, nil
}

func (o *Orchestrator) runStateMachine(
	ctx context.Context,
	turnID, model string,
	format capability.ResponseFormat,
	req *TurnRequest,
	userState *state.Record,
	contextBlock string,
) (*FinalAnswer, error) {
	trace := &Trace{}
	var results []capability.Result
	var usage schema.UsageTrace
	handle := req.ContinuationHandle
	truncated := false
	iterations := 0

	capabilitySchemas, err := o.deps.Registry.SchemasFor(model, format)
	if err != nil {
		return nil, fmt.Errorf("turn %s: render capability schemas: %w", turnID, err)
	}

	// Deciding / Acting
	for iter := 0; iter < o.cfg.MaxIterations; iter++ {
		o.publishStep(bus.EventDecisionStart, turnID, iter+1, "decision", "started", "")

		decision, norm, err := o.decide(ctx, turnID, model, format, req, userState, contextBlock, results, capabilitySchemas, handle)
		if err != nil {
			return nil, err
		}
		usage.Add(norm.Usage)
		o.recordUsage(norm)
		if norm.TurnHandle != "" {
			handle = norm.TurnHandle
		}
		iterations = iter + 1
		o.publishStep(bus.EventDecisionComplete, turnID, iterations, "decision", "completed", string(decisionAction(decision)))

		if decision == nil {
			// provider asked for a native function call with no invocation
			// list attached; nothing actionable, answer with what we have
			log.Warn().Str("turn_id", turnID).Msg("function call without invocation list, responding")
			break
		}

		if decision.SGR.Action.Type != schema.ActionFunctionCall {
			trace.Append(iter, decision, nil)
			break
		}
		if len(decision.SGR.ToolCalls) == 0 {
			log.Warn().Str("turn_id", turnID).Msg("invoke decision with empty call list, responding")
			trace.Append(iter, decision, nil)
			break
		}

		// Acting
		batch := o.deps.Dispatcher.ExecuteMany(ctx, turnID, decision.SGR.ToolCalls)
		results = append(results, batch...)
		trace.Append(iter, decision, batch)

		if iter == o.cfg.MaxIterations-1 {
			truncated = true
			log.Warn().
				Str("turn_id", turnID).
				Int("max_iterations", o.cfg.MaxIterations).
				Msg("iteration limit reached, forcing response")
		}
	}

	// Responding
	o.publishStep(bus.EventOutputStart, turnID, iterations, "output", "started", "")
	summary := trace.Summary()

	answer, norm, err := o.respond(ctx, turnID, model, format, req, contextBlock, results, summary, handle)
	if err != nil {
		return nil, err
	}
	usage.Add(norm.Usage)
	o.recordUsage(norm)
	if norm.TurnHandle != "" {
		handle = norm.TurnHandle
	}
	o.publishStep(bus.EventOutputComplete, turnID, iterations, "output", "completed", "")

	return &FinalAnswer{
		TurnID:       turnID,
		Answer:       answer,
		Usage:        usage,
		TurnHandle:   handle,
		TraceSummary: summary,
		Iterations:   iterations,
		Truncated:    truncated,
	}, nil
}

// decide performs one decision call. A nil decision with a nil error means
// the provider returned a bare function call with no invocation list.
func (o *Orchestrator) decide(
	ctx context.Context,
	turnID, model string,
	format capability.ResponseFormat,
	req *TurnRequest,
	userState *state.Record,
	contextBlock string,
	prior []capability.Result,
	capabilitySchemas [][]byte,
	handle string,
) (*schema.DecisionResponse, *schema.NormalizedResponse, error) {
	data := prompt.DecisionData{
		Date:   time.Now().Format("2006-01-02"),
		Locale: "en-US",
	}
	if userState != nil {
		data.Persona = userState.Persona
		data.Locale = userState.Locale
		data.UserName = req.UserID
	}
	for _, entry := range o.deps.Registry.Catalog(format) {
		converted := prompt.CatalogEntry{Name: entry.Name, Description: entry.Description}
		for _, p := range entry.Params {
			converted.Params = append(converted.Params, prompt.CatalogParam(p))
		}
		data.Catalog = append(data.Catalog, converted)
	}
	for _, res := range prior {
		data.PriorResults = append(data.PriorResults, summarizeResult(res))
	}

	system, err := o.deps.Prompts.DecisionPrompt(data)
	if err != nil {
		return nil, nil, fmt.Errorf("turn %s: %w", turnID, err)
	}

	name, doc := schema.DocumentFor(schema.TypeDecision)
	llmReq := &llm.Request{
		Model:              model,
		Messages:           o.conversation(system, contextBlock, req.Messages),
		SchemaName:         name,
		TargetSchema:       doc,
		Tools:              capabilitySchemas,
		PreviousResponseID: handle,
	}

	provider, err := o.deps.Resolver.ForModel(model)
	if err != nil {
		return nil, nil, fmt.Errorf("turn %s: %w", turnID, err)
	}
	raw, err := provider.Complete(ctx, llmReq)
	if err != nil {
		return nil, nil, fmt.Errorf("turn %s: decision call: %w", turnID, err)
	}

	norm, err := o.deps.Normalizer.Normalize(raw, schema.TypeDecision)
	if err != nil {
		return nil, nil, fmt.Errorf("turn %s: decision response: %w", turnID, err)
	}

	if norm.FunctionCall != nil {
		return nil, norm, nil
	}

	decision, err := schema.DecodeDecision(norm.Completed.Payload)
	if err != nil {
		return nil, nil, fmt.Errorf("turn %s: %w", turnID, err)
	}
	return decision, norm, nil
}

// respond performs the output call and decodes the final answer.
func (o *Orchestrator) respond(
	ctx context.Context,
	turnID, model string,
	format capability.ResponseFormat,
	req *TurnRequest,
	contextBlock string,
	results []capability.Result,
	summary, handle string,
) (*schema.AgentAnswer, *schema.NormalizedResponse, error) {
	system, err := o.deps.Prompts.OutputInstructions(prompt.OutputData{
		Format:       string(format),
		TraceSummary: summary,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("turn %s: %w", turnID, err)
	}

	messages := o.conversation(system, contextBlock, req.Messages)
	if len(results) > 0 {
		blob, err := json.Marshal(results)
		if err != nil {
			return nil, nil, fmt.Errorf("turn %s: marshal results: %w", turnID, err)
		}
		messages = append(messages, llm.Message{
			Role:    "user",
			Content: "Capability results for this turn:\n" + string(blob),
		})
	}

	name, doc := schema.DocumentFor(schema.TypeAnswer)
	llmReq := &llm.Request{
		Model:              model,
		Messages:           messages,
		SchemaName:         name,
		TargetSchema:       doc,
		PreviousResponseID: handle,
	}

	provider, err := o.deps.Resolver.ForModel(model)
	if err != nil {
		return nil, nil, fmt.Errorf("turn %s: %w", turnID, err)
	}
	raw, err := provider.Complete(ctx, llmReq)
	if err != nil {
		return nil, nil, fmt.Errorf("turn %s: output call: %w", turnID, err)
	}

	norm, err := o.deps.Normalizer.Normalize(raw, schema.TypeAnswer)
	if err != nil {
		return nil, nil, fmt.Errorf("turn %s: output response: %w", turnID, err)
	}
	if norm.Completed == nil {
		return nil, nil, fmt.Errorf("turn %s: %w: output stage returned a function call", turnID, schema.ErrStructural)
	}

	answer, err := schema.DecodeAnswer(norm.Completed.Payload)
	if err != nil {
		return nil, nil, fmt.Errorf("turn %s: %w", turnID, err)
	}
	return answer, norm, nil
}

// conversation assembles the message list for one adapter call: system
// prompt first, optional user-context block, then the caller's messages.
func (o *Orchestrator) conversation(system, contextBlock string, messages []llm.Message) []llm.Message {
	if contextBlock != "" {
		system = system + "\n" + contextBlock
	}
	out := make([]llm.Message, 0, len(messages)+1)
	out = append(out, llm.Message{Role: "system", Content: system})
	out = append(out, messages...)
	return out
}

// loadUserContext fetches user state and renders the context block. Both are
// best-effort.
func (o *Orchestrator) loadUserContext(ctx context.Context, userID string) (*state.Record, string, error) {
	if o.deps.States == nil || userID == "" {
		return nil, "", nil
	}
	record, err := o.deps.States.GetUserState(ctx, userID)
	if err != nil {
		return nil, "", err
	}

	loc, locErr := time.LoadLocation(record.Timezone)
	if locErr != nil {
		loc = time.UTC
	}
	block, err := o.deps.Prompts.Context(prompt.ContextData{
		UserName:    userID,
		Locale:      record.Locale,
		Timezone:    record.Timezone,
		LocalTime:   time.Now().In(loc).Format("2006-01-02 15:04"),
		Preferences: record.Preferences,
	})
	if err != nil {
		return record, "", err
	}
	return record, block, nil
}

func (o *Orchestrator) recordUsage(norm *schema.NormalizedResponse) {
	if norm.Usage.Model != "" {
		metrics.ProviderTokens.WithLabelValues(norm.Usage.Model, "input").Add(float64(norm.Usage.InputTokens))
		metrics.ProviderTokens.WithLabelValues(norm.Usage.Model, "output").Add(float64(norm.Usage.OutputTokens))
	}
	for _, rule := range norm.Repaired {
		metrics.SchemaRepairs.WithLabelValues(rule).Inc()
	}
}

func (o *Orchestrator) publishStep(t bus.EventType, turnID string, iteration int, step, status, message string) {
	if o.deps.Events == nil {
		return
	}
	event := bus.NewEvent(t, turnID)
	event.Iteration = iteration
	event.Step = step
	event.Status = status
	event.Message = message
	_ = o.deps.Events.Publish(event)
}

func (o *Orchestrator) publishError(turnID string, err error) {
	if o.deps.Events == nil {
		return
	}
	event := bus.NewEvent(bus.EventTurnError, turnID)
	event.Step = "turn"
	event.Status = "failed"
	event.Error = err.Error()
	_ = o.deps.Events.Publish(event)
}

func decisionAction(d *schema.DecisionResponse) schema.ActionType {
	if d == nil {
		return ""
	}
	return d.SGR.Action.Type
}

func summarizeResult(res capability.Result) prompt.ResultSummary {
	summary := prompt.ResultSummary{
		Name:    res.Name,
		Success: res.Success,
		Error:   res.Error,
	}
	if res.Payload != nil {
		if blob, err := json.Marshal(res.Payload); err == nil {
			summary.Payload = string(blob)
		} else {
			summary.Payload = fmt.Sprintf("%v", res.Payload)
		}
	}
	return summary
}
