// Package dispatch executes capability invocations concurrently with
// per-invocation fault isolation: one failing or panicking invocation is
// converted to a failed result and never affects its siblings.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"

	"github.com/normanking/archon/internal/bus"
	"github.com/normanking/archon/internal/capability"
	"github.com/normanking/archon/internal/metrics"
	"github.com/normanking/archon/internal/schema"
)

// Coordinator fans capability invocations out onto goroutines and collects
// their results in request order. Stateless between calls; safe for
// concurrent turns.
type Coordinator struct {
	registry *capability.Registry
	events   *bus.Bus
}

// NewCoordinator creates a coordinator. events may be nil when no one wants
// progress notifications.
func NewCoordinator(registry *capability.Registry, events *bus.Bus) *Coordinator {
	return &Coordinator{registry: registry, events: events}
}

// ExecuteMany runs every request concurrently and returns one result per
// request, in the same order. A failing invocation yields a failed result in
// its slot; siblings are unaffected and no slot is ever omitted.
func (c *Coordinator) ExecuteMany(ctx context.Context, turnID string, requests []schema.ToolCall) []capability.Result {
	results := make([]capability.Result, len(requests))
	if len(requests) == 0 {
		return results
	}

	var wg conc.WaitGroup
	for i := range requests {
		i := i
		req := requests[i]
		wg.Go(func() {
			recovered := panics.Try(func() {
				results[i] = c.executeOne(ctx, turnID, req)
			})
			if recovered != nil {
				log.Error().
					Str("capability", req.ToolName).
					Interface("panic", recovered.Value).
					Msg("capability panicked")
				results[i] = capability.Result{
					Name:    req.ToolName,
					Success: false,
					Error:   fmt.Sprintf("panic: %v", recovered.Value),
				}
			}
		})
	}
	wg.Wait()

	return results
}

func (c *Coordinator) executeOne(ctx context.Context, turnID string, req schema.ToolCall) capability.Result {
	start := time.Now()
	c.publish(bus.EventCapabilityStart, turnID, req.ToolName, "started", "", 0)

	args := FlattenArguments(req.Arguments)
	result := c.registry.Invoke(ctx, req.ToolName, args)

	elapsed := time.Since(start)
	metrics.CapabilityDuration.WithLabelValues(req.ToolName).Observe(elapsed.Seconds())

	if result.Success {
		metrics.CapabilityInvocations.WithLabelValues(req.ToolName, "ok").Inc()
		c.publish(bus.EventCapabilityComplete, turnID, req.ToolName, "completed", "", elapsed)
	} else {
		metrics.CapabilityInvocations.WithLabelValues(req.ToolName, "error").Inc()
		c.publish(bus.EventCapabilityError, turnID, req.ToolName, "failed", result.Error, elapsed)
	}

	log.Debug().
		Str("capability", req.ToolName).
		Bool("success", result.Success).
		Dur("duration", elapsed).
		Msg("capability executed")

	return result
}

func (c *Coordinator) publish(t bus.EventType, turnID, name, status, errMsg string, d time.Duration) {
	if c.events == nil {
		return
	}
	event := bus.NewEvent(t, turnID)
	event.Capability = name
	event.Step = name
	event.Status = status
	event.Error = errMsg
	event.DurationMs = d.Milliseconds()
	_ = c.events.Publish(event)
}

// FlattenArguments converts the decision stage's ordered argument pairs into
// the flat map capability implementations take. Later duplicates win.
func FlattenArguments(args []schema.Argument) map[string]string {
	out := make(map[string]string, len(args))
	for _, a := range args {
		out[a.Name] = a.Value
	}
	return out
}
