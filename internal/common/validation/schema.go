// internal/common/validation/schema.go
package validation

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// GetErrorMessages returns a flat list of "field: message" strings.
func (vr *ValidationResult) GetErrorMessages() []string {
	messages := make([]string, len(vr.Errors))
	for i, err := range vr.Errors {
		messages[i] = fmt.Sprintf("%s: %s", err.Field, err.Message)
	}
	return messages
}

// PayloadValidator checks untrusted JSON documents against a compiled JSON
// Schema. Webhook payload shapes are validated with it before any field is
// trusted.
type PayloadValidator struct {
	schema *gojsonschema.Schema
}

// NewPayloadValidator compiles schemaJSON once; the validator is safe for
// concurrent use afterwards.
func NewPayloadValidator(schemaJSON string) (*PayloadValidator, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &PayloadValidator{schema: schema}, nil
}

// Validate checks a raw JSON document. A document that does not parse is
// reported as a single root-level error rather than a panic.
func (v *PayloadValidator) Validate(doc []byte) *ValidationResult {
	result, err := v.schema.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return &ValidationResult{
			Valid:  false,
			Errors: []ValidationError{{Field: "(root)", Message: err.Error()}},
		}
	}
	if result.Valid() {
		return &ValidationResult{Valid: true}
	}
	out := &ValidationResult{Valid: false}
	for _, resErr := range result.Errors() {
		out.Errors = append(out.Errors, ValidationError{
			Field:   resErr.Field(),
			Message: resErr.Description(),
		})
	}
	return out
}
