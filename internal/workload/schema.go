package workload

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// summarySchema is the minimal shape of a /payments-summary response. Values
// under the two processor keys are not constrained.
const summarySchema = `{
  "type": "object",
  "required": ["default", "fallback"]
}`

// BodyValidator checks response bodies against a compiled JSON schema.
type BodyValidator struct {
	schema *jsonschema.Schema
}

// NewBodyValidator compiles schemaStr.
func NewBodyValidator(schemaStr string) (*BodyValidator, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", strings.NewReader(schemaStr)); err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}

	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	return &BodyValidator{schema: schema}, nil
}

// NewSummaryValidator returns a validator for /payments-summary bodies.
func NewSummaryValidator() *BodyValidator {
	v, err := NewBodyValidator(summarySchema)
	if err != nil {
		panic(err)
	}
	return v
}

// Validate returns nil when body is JSON matching the schema.
func (v *BodyValidator) Validate(body []byte) error {
	var data interface{}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&data); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	if err := v.schema.Validate(data); err != nil {
		if ve, ok := err.(*jsonschema.ValidationError); ok {
			return fmt.Errorf("schema mismatch: %s", strings.Join(collectMessages(ve), "; "))
		}
		return err
	}
	return nil
}

// collectMessages flattens a jsonschema.ValidationError tree.
func collectMessages(err *jsonschema.ValidationError) []string {
	var msgs []string
	if err.Message != "" {
		msgs = append(msgs, fmt.Sprintf("%s: %s", err.InstanceLocation, err.Message))
	}
	for _, cause := range err.Causes {
		msgs = append(msgs, collectMessages(cause)...)
	}
	return msgs
}
