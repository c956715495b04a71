package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ParseError reports a model answer that is not valid JSON for the schema.
type ParseError struct {
	Raw   string
	Cause error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse model output: %v", e.Cause)
}

func (e *ParseError) Unwrap() error { return e.Cause }

// Schema is a compiled JSON schema.
type Schema struct {
	schema *gojsonschema.Schema
}

// NewSchema compiles a JSON schema document.
func NewSchema(src string) (*Schema, error) {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Schema{schema: s}, nil
}

// MustSchema is NewSchema for package-level schemas.
func MustSchema(src string) *Schema {
	s, err := NewSchema(src)
	if err != nil {
		panic(err)
	}
	return s
}

// Decode strips markdown fences from raw, validates it against schema and
// unmarshals it into dst. Any failure is a *ParseError.
func Decode(raw string, schema *Schema, dst any) error {
	text := cleanJSONBlock(raw)
	if text == "" {
		return &ParseError{Raw: raw, Cause: fmt.Errorf("empty output")}
	}
	if schema != nil {
		result, err := schema.schema.Validate(gojsonschema.NewStringLoader(text))
		if err != nil {
			return &ParseError{Raw: raw, Cause: err}
		}
		if !result.Valid() {
			msgs := make([]string, 0, len(result.Errors()))
			for _, desc := range result.Errors() {
				msgs = append(msgs, desc.String())
			}
			return &ParseError{Raw: raw, Cause: fmt.Errorf("schema violation: %s", strings.Join(msgs, "; "))}
		}
	}
	if err := json.Unmarshal([]byte(text), dst); err != nil {
		return &ParseError{Raw: raw, Cause: err}
	}
	return nil
}

// cleanJSONBlock removes markdown code block wrappers from JSON.
func cleanJSONBlock(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```JSON")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}
