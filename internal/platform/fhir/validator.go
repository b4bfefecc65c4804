package fhir

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const patientRecordSchemaURL = "urn:intake:schema:patient-record"

//go:embed schemas/patient-record.schema.json
var patientRecordSchema []byte

// PatientRecordSchema returns the raw JSON Schema describing the Patient
// resources produced from intake forms.
func PatientRecordSchema() []byte {
	out := make([]byte, len(patientRecordSchema))
	copy(out, patientRecordSchema)
	return out
}

// ValidationResult holds the results of a schema validation.
type ValidationResult struct {
	Valid  bool
	Issues []OperationOutcomeIssue
}

// ToOperationOutcome converts a ValidationResult into an OperationOutcome.
func (vr *ValidationResult) ToOperationOutcome() *OperationOutcome {
	return &OperationOutcome{
		ResourceType: "OperationOutcome",
		Issue:        vr.Issues,
	}
}

// SchemaValidator checks serialized Patient records against the embedded
// JSON Schema of the intake profile.
type SchemaValidator struct {
	schema *jsonschema.Schema
}

// NewSchemaValidator compiles the embedded schema.
func NewSchemaValidator() (*SchemaValidator, error) {
	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true
	if err := compiler.AddResource(patientRecordSchemaURL, bytes.NewReader(patientRecordSchema)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := compiler.Compile(patientRecordSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &SchemaValidator{schema: schema}, nil
}

// Validate checks raw JSON. Structural problems (invalid JSON) and schema
// violations are both reported as issues rather than errors.
func (v *SchemaValidator) Validate(raw []byte) *ValidationResult {
	result := &ValidationResult{Valid: true}

	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		result.Valid = false
		result.Issues = append(result.Issues, OperationOutcomeIssue{
			Severity:    IssueSeverityError,
			Code:        IssueTypeStructure,
			Diagnostics: "invalid JSON: " + err.Error(),
		})
		return result
	}

	err := v.schema.Validate(payload)
	if err == nil {
		return result
	}
	result.Valid = false

	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		result.Issues = append(result.Issues, OperationOutcomeIssue{
			Severity:    IssueSeverityError,
			Code:        IssueTypeProcessing,
			Diagnostics: err.Error(),
		})
		return result
	}

	for _, leaf := range leafErrors(verr) {
		issue := OperationOutcomeIssue{
			Severity:    IssueSeverityError,
			Code:        IssueTypeInvalid,
			Diagnostics: leaf.Message,
			Expression:  []string{pointerToPath(leaf.InstanceLocation)},
		}
		result.Issues = append(result.Issues, issue)
	}
	return result
}

// ValidateValue marshals v and validates the result.
func (v *SchemaValidator) ValidateValue(value any) (*ValidationResult, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshal resource: %w", err)
	}
	return v.Validate(raw), nil
}

// leafErrors flattens a validation error tree to the causes that carry the
// actual keyword failures.
func leafErrors(ve *jsonschema.ValidationError) []*jsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*jsonschema.ValidationError{ve}
	}
	var out []*jsonschema.ValidationError
	for _, cause := range ve.Causes {
		out = append(out, leafErrors(cause)...)
	}
	return out
}

// pointerToPath turns a JSON pointer such as /telecom/0/value into the
// FHIRPath-like Patient.telecom[0].value used in issue expressions.
func pointerToPath(ptr string) string {
	ptr = strings.TrimPrefix(ptr, "/")
	if ptr == "" {
		return "Patient"
	}
	var b strings.Builder
	b.WriteString("Patient")
	for _, seg := range strings.Split(ptr, "/") {
		if isIndex(seg) {
			b.WriteString("[" + seg + "]")
			continue
		}
		b.WriteString("." + seg)
	}
	return b.String()
}

func isIndex(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
