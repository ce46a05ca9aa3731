package capability

import "encoding/json"

// Three schema dialects render the same descriptor for different provider
// families. OpenAI's responses API takes a strict typed function tool,
// Gemini takes a function declaration with enum/format annotations, and the
// chat-completions catalog gets a minimal untyped shape that weaker models
// follow more reliably.

func parameterProperties(d *Descriptor, annotated bool) (map[string]any, []string) {
	props := make(map[string]any, len(d.Params))
	var required []string
	for _, p := range d.Params {
		prop := map[string]any{
			"type":        p.Type,
			"description": p.Description,
		}
		if annotated {
			if len(p.Enum) > 0 {
				prop["enum"] = p.Enum
			}
			if p.Format != "" {
				prop["format"] = p.Format
			}
		}
		props[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return props, required
}

// renderTypedFunction emits the strict typed-function-tool dialect.
func renderTypedFunction(d *Descriptor) ([]byte, error) {
	props, required := parameterProperties(d, false)
	return json.Marshal(map[string]any{
		"type":        "function",
		"name":        d.Name,
		"description": d.Description,
		"strict":      true,
		"parameters": map[string]any{
			"type":                 "object",
			"properties":           props,
			"required":             required,
			"additionalProperties": false,
		},
	})
}

// renderAnnotatedDeclaration emits the enum/format-annotated dialect used in
// functionDeclarations groups.
func renderAnnotatedDeclaration(d *Descriptor) ([]byte, error) {
	props, required := parameterProperties(d, true)
	decl := map[string]any{
		"name":        d.Name,
		"description": d.Description,
		"parameters": map[string]any{
			"type":       "object",
			"properties": props,
		},
	}
	if len(required) > 0 {
		decl["parameters"].(map[string]any)["required"] = required
	}
	return json.Marshal(decl)
}

// renderMinimal emits the minimal untyped dialect: every parameter is a
// plain string with a description, nothing else.
func renderMinimal(d *Descriptor) ([]byte, error) {
	props := make(map[string]any, len(d.Params))
	for _, p := range d.Params {
		props[p.Name] = map[string]any{
			"type":        "string",
			"description": p.Description,
		}
	}
	return json.Marshal(map[string]any{
		"name":        d.Name,
		"description": d.Description,
		"parameters": map[string]any{
			"type":       "object",
			"properties": props,
		},
	})
}
