package profile

// schemaJSON is the JSON schema every profile document must satisfy.
// Structural rules only; cross-field rules live in Profile.check.
const schemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "name": {"type": "string", "minLength": 1},
    "nameVariants": {
      "type": "array",
      "items": {"type": "string", "minLength": 1},
      "minItems": 1
    },
    "ignoreVariants": {
      "type": "array",
      "items": {"type": "string", "minLength": 1}
    },
    "defaultLanguage": {"type": "string", "minLength": 2, "maxLength": 5},
    "languages": {
      "type": "object",
      "minProperties": 1,
      "additionalProperties": {
        "type": "object",
        "additionalProperties": false,
        "properties": {
          "prompt": {"type": "string", "minLength": 1}
        },
        "required": ["prompt"]
      }
    },
    "replyPrompt": {"type": "string"},
    "models": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "default": {"$ref": "#/$defs/model"},
        "boosted": {"$ref": "#/$defs/model"}
      }
    }
  },
  "$defs": {
    "model": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "name": {"type": "string", "minLength": 1},
        "contextBudget": {"type": "integer", "minimum": 1},
        "triggers": {
          "type": "array",
          "items": {"type": "string", "minLength": 1}
        }
      },
      "required": ["name", "contextBudget"]
    }
  }
}`
