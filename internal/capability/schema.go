package capability

import (
	"fmt"
	"sync"

	"github.com/kaptinlin/jsonschema"
)

var (
	schemaOnce sync.Once
	schemas    map[Capability]*jsonschema.Schema
	schemaErr  error
)

// ValidateOutput checks a model response against the capability's output
// schema. An error here means the generation failed, not that the output
// should be coerced.
func (c Capability) ValidateOutput(output []byte) error {
	schema, err := c.outputSchema()
	if err != nil {
		return err
	}

	result := schema.ValidateJSON(output)
	if !result.IsValid() {
		return fmt.Errorf("output does not match %s schema: %v", c, result.Errors)
	}
	return nil
}

func (c Capability) outputSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(compileSchemas)
	if schemaErr != nil {
		return nil, schemaErr
	}

	schema, ok := schemas[c]
	if !ok {
		return nil, fmt.Errorf("%w: no output schema", ErrUnknown)
	}
	return schema, nil
}

func compileSchemas() {
	compiler := jsonschema.NewCompiler()
	schemas = make(map[Capability]*jsonschema.Schema, len(All()))

	for _, c := range All() {
		schema, err := compiler.Compile([]byte(schemaJSON(c)))
		if err != nil {
			schemaErr = fmt.Errorf("failed to compile %s output schema: %w", c, err)
			return
		}
		schemas[c] = schema
	}
}

func schemaJSON(c Capability) string {
	switch c {
	case MarketBrief:
		return `{
			"type": "object",
			"required": ["summary", "opportunities", "risks", "confidence"],
			"properties": {
				"summary": {"type": "string", "minLength": 1},
				"opportunities": {"type": "array", "items": {"type": "string"}},
				"risks": {"type": "array", "items": {"type": "string"}},
				"confidence": {"type": "number", "minimum": 0, "maximum": 1}
			}
		}`
	case Radar:
		return `{
			"type": "object",
			"required": ["signals"],
			"properties": {
				"signals": {
					"type": "array",
					"items": {
						"type": "object",
						"required": ["term", "movement", "score"],
						"properties": {
							"term": {"type": "string"},
							"movement": {"type": "string", "enum": ["rising", "falling", "stable"]},
							"score": {"type": "number", "minimum": 0, "maximum": 1}
						}
					}
				}
			}
		}`
	case AdInsight:
		return `{
			"type": "object",
			"required": ["recommendations"],
			"properties": {
				"recommendations": {
					"type": "array",
					"minItems": 1,
					"items": {
						"type": "object",
						"required": ["headline", "rationale"],
						"properties": {
							"headline": {"type": "string", "minLength": 1},
							"rationale": {"type": "string", "minLength": 1}
						}
					}
				},
				"budget_note": {"type": "string"}
			}
		}`
	case RiskAlert:
		return `{
			"type": "object",
			"required": ["alerts"],
			"properties": {
				"alerts": {
					"type": "array",
					"items": {
						"type": "object",
						"required": ["severity", "title", "detail"],
						"properties": {
							"severity": {"type": "string", "enum": ["low", "medium", "high", "critical"]},
							"title": {"type": "string", "minLength": 1},
							"detail": {"type": "string", "minLength": 1}
						}
					}
				}
			}
		}`
	case KeywordInsights:
		return `{
			"type": "object",
			"required": ["insights", "summary"],
			"properties": {
				"insights": {
					"type": "array",
					"items": {
						"type": "object",
						"required": ["term", "assessment", "score"],
						"properties": {
							"term": {"type": "string"},
							"assessment": {"type": "string", "minLength": 1},
							"score": {"type": "number", "minimum": 0, "maximum": 1}
						}
					}
				},
				"summary": {"type": "string", "minLength": 1}
			}
		}`
	default:
		return `{"type": "object"}`
	}
}
