package schema

import (
	"encoding/json"

	"github.com/rs/zerolog/log"
)

// Schema Repair corrects known structural drift in Gemini structured output
// before validation. The drift is specific to nested schemas: nested objects
// come back collapsed into plain strings, field names appear under aliases,
// and list elements arrive as JSON-encoded strings. Each correction is a
// named rule so it can be tested on its own and disabled per provider.

// RepairRule is one named correction applied to a payload in place.
type RepairRule struct {
	Name  string
	apply func(payload map[string]any, t Type) bool
}

// Repairer applies an ordered set of repair rules.
type Repairer struct {
	rules []RepairRule
}

// NewRepairer builds a repairer with all standard rules except those named
// in disabled.
func NewRepairer(disabled ...string) *Repairer {
	skip := make(map[string]bool, len(disabled))
	for _, name := range disabled {
		skip[name] = true
	}
	all := []RepairRule{
		{Name: "rename_aliases", apply: renameAliases},
		{Name: "decode_string_objects", apply: decodeStringObjects},
		{Name: "decode_list_elements", apply: decodeListElements},
	}
	r := &Repairer{}
	for _, rule := range all {
		if !skip[rule.Name] {
			r.rules = append(r.rules, rule)
		}
	}
	return r
}

// Repair runs every enabled rule against the payload and returns the names
// of the rules that changed it.
func (r *Repairer) Repair(payload map[string]any, t Type) []string {
	var applied []string
	for _, rule := range r.rules {
		if rule.apply(payload, t) {
			applied = append(applied, rule.Name)
		}
	}
	if len(applied) > 0 {
		log.Warn().
			Strs("rules", applied).
			Str("schema", string(t)).
			Msg("schema repair applied")
	}
	return applied
}

// fieldAliases maps observed alternate key names to the expected ones,
// keyed by the parent object path.
var fieldAliases = map[Type]map[string]map[string]string{
	TypeDecision: {
		"":    {"orchestration": "sgr", "handover": "handover_context"},
		"sgr": {"function_calls": "tool_calls", "calls": "tool_calls"},
	},
	TypeAnswer: {
		"":                 {"output": "sgr"},
		"sgr":              {"summary": "orchestration_summary", "reasoning_ui": "ui_reasoning"},
		"sgr.verification": {"confidence": "confidence_pct"},
	},
}

func renameAliases(payload map[string]any, t Type) bool {
	changed := false
	for path, aliases := range fieldAliases[t] {
		obj, ok := objectAt(payload, path)
		if !ok {
			continue
		}
		for alias, expected := range aliases {
			if v, present := obj[alias]; present {
				if _, taken := obj[expected]; !taken {
					obj[expected] = v
					changed = true
				}
				delete(obj, alias)
			}
		}
	}
	return changed
}

// objectFields lists the nested fields expected to be objects, with the
// fallback shape to substitute when the received string is not valid JSON.
// The fallback guarantees validation never fails solely because a nested
// object arrived flattened to text.
var objectFields = map[Type][]struct {
	path     string
	fallback func(raw string) map[string]any
}{
	TypeDecision: {
		{"sgr", func(raw string) map[string]any {
			return map[string]any{
				"action":     map[string]any{"type": "final_response", "reasoning": raw},
				"tool_calls": []any{},
				"reasoning":  raw,
			}
		}},
		{"sgr.action", func(raw string) map[string]any {
			return map[string]any{"type": "final_response", "reasoning": raw}
		}},
	},
	TypeAnswer: {
		{"sgr", func(raw string) map[string]any {
			return map[string]any{
				"evidence":              []any{},
				"sources":               []any{},
				"verification":          unverifiedPlaceholder(),
				"ui_reasoning":          raw,
				"orchestration_summary": "",
			}
		}},
		{"content", func(raw string) map[string]any {
			return map[string]any{"text": raw}
		}},
		{"sgr.verification", func(raw string) map[string]any {
			return unverifiedPlaceholder()
		}},
	},
}

func unverifiedPlaceholder() map[string]any {
	return map[string]any{"level": "unverified", "confidence_pct": 0}
}

func decodeStringObjects(payload map[string]any, t Type) bool {
	changed := false
	for _, field := range objectFields[t] {
		parent, key, ok := parentOf(payload, field.path)
		if !ok {
			continue
		}
		raw, isString := parent[key].(string)
		if !isString {
			continue
		}
		var decoded map[string]any
		if err := json.Unmarshal([]byte(raw), &decoded); err == nil {
			parent[key] = decoded
		} else {
			parent[key] = field.fallback(raw)
		}
		changed = true
	}
	return changed
}

// listFields lists the array fields whose elements may arrive as JSON-encoded
// strings, with a per-element fallback for elements that still fail to parse.
var listFields = map[Type][]struct {
	path     string
	fallback func(raw string) map[string]any
}{
	TypeDecision: {
		{"sgr.tool_calls", nil},
	},
	TypeAnswer: {
		{"content.cards", func(raw string) map[string]any {
			return map[string]any{"title": "card", "text": raw}
		}},
		{"sgr.evidence", func(raw string) map[string]any {
			return map[string]any{"claim": raw, "support": "uncertain", "source_ids": []any{}}
		}},
	},
}

func decodeListElements(payload map[string]any, t Type) bool {
	changed := false
	for _, field := range listFields[t] {
		parent, key, ok := parentOf(payload, field.path)
		if !ok {
			continue
		}
		list, isList := parent[key].([]any)
		if !isList {
			continue
		}
		for i, elem := range list {
			raw, isString := elem.(string)
			if !isString {
				continue
			}
			var decoded map[string]any
			if err := json.Unmarshal([]byte(raw), &decoded); err == nil {
				list[i] = decoded
				changed = true
			} else if field.fallback != nil {
				list[i] = field.fallback(raw)
				changed = true
			}
		}
	}
	return changed
}

// objectAt resolves a dotted path to a nested map. An empty path is the
// payload itself.
func objectAt(payload map[string]any, path string) (map[string]any, bool) {
	if path == "" {
		return payload, true
	}
	current := payload
	for {
		key, rest, more := cutPath(path)
		next, ok := current[key].(map[string]any)
		if !ok {
			return nil, false
		}
		if !more {
			return next, true
		}
		current, path = next, rest
	}
}

// parentOf resolves a dotted path to its parent map and final key.
func parentOf(payload map[string]any, path string) (map[string]any, string, bool) {
	key, rest, more := cutPath(path)
	if !more {
		return payload, key, true
	}
	parent, ok := objectAt(payload, key)
	if !ok {
		return nil, "", false
	}
	return parentOf(parent, rest)
}

func cutPath(path string) (head, rest string, more bool) {
	for i := 0; i < len(path); i++ {
		if path[i] == '.' {
			return path[:i], path[i+1:], true
		}
	}
	return path, "", false
}
