package agent

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kaptinlin/jsonschema"

	"github.com/leofalp/mule/internal/utils"
	"github.com/leofalp/mule/providers/ai"
)

// ErrSchemaViolation is returned when a structured response does not match
// the agent output schema.
var ErrSchemaViolation = errors.New("agent: response violates output schema")

// ParseOutput decodes the response that ends history into T. When schema is
// set the decoded value is validated against it first. Malformed JSON is
// repaired before giving up, as small local models often emit it.
func ParseOutput[T any](history ai.ChatHistory, schema json.RawMessage) (T, error) {
	var zero T

	content, ok := history.Response()
	if !ok {
		return zero, ErrNoResponse
	}
	content = utils.StripCodeFences(content)

	if len(schema) > 0 {
		if err := validateOutput(content, schema); err != nil {
			return zero, err
		}
	}

	out, err := utils.ParseStringAs[T](content)
	if err != nil {
		return zero, fmt.Errorf("agent: parse output: %w", err)
	}
	return out, nil
}

// ParseOutput decodes the response of history against the agent schema.
func (a *Agent) ParseOutput(history ai.ChatHistory) (map[string]any, error) {
	return ParseOutput[map[string]any](history, a.OutputSchema)
}

func validateOutput(content string, schema json.RawMessage) error {
	compiled, err := jsonschema.NewCompiler().Compile(schema)
	if err != nil {
		return fmt.Errorf("agent: compile output schema: %w", err)
	}

	var data any
	if err := utils.DecodeJSON(content, &data); err != nil {
		return fmt.Errorf("agent: parse output: %w", err)
	}

	result := compiled.Validate(data)
	if !result.IsValid() {
		return fmt.Errorf("%w: %v", ErrSchemaViolation, result.DetailedErrors())
	}
	return nil
}
