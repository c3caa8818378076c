package remote

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// responseSchema constrains the sidecar's recognition response before we
// trust its fields.
func responseSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": true,
		"properties": map[string]any{
			"text":       map[string]any{"type": "string"},
			"confidence": map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
			"engine":     map[string]any{"type": "string"},
			"version":    map[string]any{"type": "string"},
			"spans": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":                 "object",
					"additionalProperties": true,
					"properties": map[string]any{
						"text":       map[string]any{"type": "string"},
						"confidence": map[string]any{"type": "number"},
						"bbox": map[string]any{
							"type":                 "object",
							"additionalProperties": true,
							"properties": map[string]any{
								"x": map[string]any{"type": "integer"},
								"y": map[string]any{"type": "integer"},
								"w": map[string]any{"type": "integer"},
								"h": map[string]any{"type": "integer"},
							},
						},
					},
					"required": []string{"text"},
				},
			},
		},
		"required": []string{"text", "confidence"},
	}
}

var (
	compileOnce sync.Once
	compiled    *jsonschema.Schema
	compileErr  error
)

// validateResponse checks data against the response schema.
func validateResponse(data []byte) error {
	compileOnce.Do(func() {
		b, err := json.Marshal(responseSchema())
		if err != nil {
			compileErr = fmt.Errorf("marshal schema: %w", err)
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("response.json", bytes.NewReader(b)); err != nil {
			compileErr = fmt.Errorf("add schema: %w", err)
			return
		}
		compiled, compileErr = compiler.Compile("response.json")
	})
	if compileErr != nil {
		return compileErr
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	if err := compiled.Validate(v); err != nil {
		return fmt.Errorf("response does not match schema: %w", err)
	}
	return nil
}
