// Package capability maps capability names to callable implementations and
// renders their calling-convention schemas in the dialect each provider
// family expects.
package capability

import "context"

// Param describes one capability parameter. Enum and Format are hints only
// rendered in dialects that support them.
type Param struct {
	Name        string
	Type        string // "string", "integer", "number", "boolean"
	Description string
	Required    bool
	Enum        []string
	Format      string
}

// InvokeFunc is the executable behind a capability. Arguments arrive as a
// flat name→value map; the return value must be JSON-serializable.
type InvokeFunc func(ctx context.Context, args map[string]string) (any, error)

// Descriptor is the single source of truth for one capability: its identity,
// parameter schema, domain tag, and implementation. Created at startup and
// never mutated.
type Descriptor struct {
	Name        string
	Description string
	Domain      string // "home", "weather", "search", ...
	Params      []Param
	Invoke      InvokeFunc
}

// Result is the outcome of one invocation. Exactly one of Payload and Error
// is meaningful: success carries a payload, failure a non-empty error.
type Result struct {
	Name    string `json:"name"`
	Success bool   `json:"success"`
	Payload any    `json:"payload,omitempty"`
	Error   string `json:"error,omitempty"`
}
