package usecase

// AnswerSchema is the JSON schema every ask response must satisfy
const AnswerSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["title", "answer", "confidence", "needs_more_context"],
  "properties": {
    "title": {"type": "string", "minLength": 1},
    "answer": {"type": "string"},
    "key_terms": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["term", "definition"],
        "properties": {
          "term": {"type": "string"},
          "definition": {"type": "string"}
        }
      }
    },
    "confidence": {"type": "number", "minimum": 0, "maximum": 1},
    "suggested_followups": {"type": "array", "items": {"type": "string"}},
    "needs_more_context": {"type": "boolean"},
    "suggested_context_tier": {"type": "string", "enum": ["S", "M", "L", ""]},
    "suggested_rewind_time": {"type": ["number", "null"], "minimum": 0}
  }
}`
