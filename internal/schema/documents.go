package schema

// JSON Schema documents sent to providers as the structured-output target and
// used locally for post-repair validation. Kept as literal documents rather
// than generated from the Go types so the wire contract is reviewable in one
// place.

const decisionDocument = `{
  "type": "object",
  "required": ["sgr"],
  "additionalProperties": false,
  "properties": {
    "sgr": {
      "type": "object",
      "required": ["action", "tool_calls", "reasoning"],
      "additionalProperties": false,
      "properties": {
        "action": {
          "type": "object",
          "required": ["type", "reasoning"],
          "additionalProperties": false,
          "properties": {
            "type": {
              "type": "string",
              "enum": ["function_call", "parameters_request", "final_response"]
            },
            "reasoning": {"type": "string"}
          }
        },
        "tool_calls": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["tool_name", "arguments"],
            "additionalProperties": false,
            "properties": {
              "tool_name": {"type": "string"},
              "arguments": {
                "type": "array",
                "items": {
                  "type": "object",
                  "required": ["name", "value"],
                  "additionalProperties": false,
                  "properties": {
                    "name": {"type": "string"},
                    "value": {"type": "string"}
                  }
                }
              },
              "missing_parameters": {
                "type": "array",
                "items": {"type": "string"}
              },
              "is_confirmed": {"type": "boolean"},
              "reason": {"type": "string"}
            }
          }
        },
        "reasoning": {"type": "string"}
      }
    },
    "handover_context": {"type": "string"}
  }
}`

const answerDocument = `{
  "type": "object",
  "required": ["content", "sgr"],
  "additionalProperties": false,
  "properties": {
    "content": {
      "type": "object",
      "required": ["text"],
      "additionalProperties": false,
      "properties": {
        "text": {"type": "string"},
        "cards": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["title", "text"],
            "additionalProperties": false,
            "properties": {
              "title": {"type": "string"},
              "text": {"type": "string"}
            }
          }
        },
        "buttons": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["label", "action"],
            "additionalProperties": false,
            "properties": {
              "label": {"type": "string"},
              "action": {"type": "string"}
            }
          }
        }
      }
    },
    "sgr": {
      "type": "object",
      "required": ["verification", "ui_reasoning"],
      "additionalProperties": false,
      "properties": {
        "evidence": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["claim", "support"],
            "additionalProperties": false,
            "properties": {
              "claim": {"type": "string"},
              "support": {"type": "string"},
              "source_ids": {
                "type": "array",
                "items": {"type": "string"}
              }
            }
          }
        },
        "sources": {
          "type": "array",
          "items": {"type": "string"}
        },
        "verification": {
          "type": "object",
          "required": ["level", "confidence_pct"],
          "additionalProperties": false,
          "properties": {
            "level": {"type": "string"},
            "confidence_pct": {"type": "integer", "minimum": 0, "maximum": 100}
          }
        },
        "ui_reasoning": {"type": "string"},
        "orchestration_summary": {"type": "string"},
        "reasoning": {"type": "string"}
      }
    }
  }
}`

// DocumentFor returns the schema name and JSON Schema document for a payload
// type. The name is what providers echo back in structured-output modes.
func DocumentFor(t Type) (string, []byte) {
	switch t {
	case TypeDecision:
		return "decision_response", []byte(decisionDocument)
	case TypeAnswer:
		return "agent_answer", []byte(answerDocument)
	default:
		return "", nil
	}
}
