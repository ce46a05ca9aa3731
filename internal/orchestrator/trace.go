package orchestrator

import (
	"fmt"
	"strings"

	"github.com/normanking/archon/internal/capability"
	"github.com/normanking/archon/internal/schema"
)

// Trace is the append-only per-iteration log for one turn. It exists only
// for the duration of the turn; its rendered summary is what the output
// stage sees.
type Trace struct {
	records []traceRecord
}

type traceRecord struct {
	iteration int
	action    schema.ActionType
	rationale string
	outcomes  []string
}

// Append records one decision iteration and the outcomes of any capability
// invocations it triggered.
func (t *Trace) Append(iteration int, decision *schema.DecisionResponse, results []capability.Result) {
	record := traceRecord{
		iteration: iteration,
		action:    decision.SGR.Action.Type,
		rationale: decision.SGR.Action.Reasoning,
	}
	for _, res := range results {
		if res.Success {
			record.outcomes = append(record.outcomes, fmt.Sprintf("%s succeeded", res.Name))
		} else {
			record.outcomes = append(record.outcomes, fmt.Sprintf("%s failed: %s", res.Name, res.Error))
		}
	}
	t.records = append(t.records, record)
}

// Len returns the number of recorded iterations.
func (t *Trace) Len() int {
	return len(t.records)
}

// Summary renders the trace as short numbered lines for the output prompt.
// An empty trace reads as a direct answer with no capability use.
func (t *Trace) Summary() string {
	if len(t.records) == 0 {
		return "Answered directly without invoking any capabilities."
	}

	var sb strings.Builder
	for _, r := range t.records {
		fmt.Fprintf(&sb, "%d. decided %q", r.iteration+1, r.action)
		if r.rationale != "" {
			fmt.Fprintf(&sb, " (%s)", r.rationale)
		}
		if len(r.outcomes) > 0 {
			fmt.Fprintf(&sb, ": %s", strings.Join(r.outcomes, "; "))
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
