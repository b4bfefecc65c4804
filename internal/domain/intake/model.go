package intake

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ehr/intake/internal/platform/fhir"
)

// FlatIntake is the single-level record collected from the intake form.
// Every field is a plain string; non-string JSON values, null included, are
// rejected when decoding. Unknown keys are ignored.
type FlatIntake struct {
	FirstName             string `json:"firstName" validate:"notblank"`
	LastName              string `json:"lastName" validate:"notblank"`
	DOB                   string `json:"dob" validate:"notblank,isodate"`
	Gender                string `json:"gender" validate:"notblank,gender"`
	Phone                 string `json:"phone" validate:"omitempty,intake_phone"`
	Email                 string `json:"email" validate:"omitempty,intake_email"`
	AddressLine           string `json:"addressLine"`
	City                  string `json:"city"`
	State                 string `json:"state"`
	PostalCode            string `json:"postalCode"`
	EmergencyName         string `json:"emergencyName"`
	EmergencyRelationship string `json:"emergencyRelationship"`
	EmergencyPhone        string `json:"emergencyPhone" validate:"omitempty,intake_phone"`
}

var jsonNull = []byte("null")

// UnmarshalJSON decodes a FlatIntake, refusing null for any form field.
func (in *FlatIntake) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, field := range FieldOrder {
		if v, ok := raw[field]; ok && bytes.Equal(bytes.TrimSpace(v), jsonNull) {
			return fmt.Errorf("field %s: null is not a string", field)
		}
	}
	type plain FlatIntake
	return json.Unmarshal(data, (*plain)(in))
}

// FieldOrder lists FlatIntake JSON keys in form order.
var FieldOrder = []string{
	"firstName", "lastName", "dob", "gender",
	"phone", "email",
	"addressLine", "city", "state", "postalCode",
	"emergencyName", "emergencyRelationship", "emergencyPhone",
}

// ErrorKind is the locale-independent reason a field failed validation.
type ErrorKind string

const (
	KindRequired     ErrorKind = "required"
	KindInvalidEmail ErrorKind = "invalid_email"
	KindInvalidPhone ErrorKind = "invalid_phone"
	KindInvalidDate  ErrorKind = "invalid_date"
	KindInvalidCode  ErrorKind = "invalid_code"
)

// ValidationResult maps each failing field to its error. Valid is true iff
// Errors (and Kinds) are empty.
type ValidationResult struct {
	Valid  bool                 `json:"valid"`
	Locale string               `json:"locale"`
	Errors map[string]string    `json:"errors"`
	Kinds  map[string]ErrorKind `json:"kinds"`
}

// Fields returns the failing field names in form order.
func (r *ValidationResult) Fields() []string {
	var out []string
	for _, f := range FieldOrder {
		if _, ok := r.Kinds[f]; ok {
			out = append(out, f)
		}
	}
	return out
}

// PatientRecord is the FHIR R4 Patient produced from a FlatIntake. It is
// never modified after Map returns it.
type PatientRecord struct {
	ResourceType string              `json:"resourceType"`
	ID           string              `json:"id"`
	Meta         fhir.Meta           `json:"meta"`
	Text         fhir.Narrative      `json:"text"`
	Identifier   []fhir.Identifier   `json:"identifier"`
	Active       bool                `json:"active"`
	Name         []fhir.HumanName    `json:"name"`
	Telecom      []fhir.ContactPoint `json:"telecom,omitempty"`
	Gender       string              `json:"gender"`
	BirthDate    string              `json:"birthDate"`
	Address      []fhir.Address      `json:"address,omitempty"`
	Contact      []PatientContact    `json:"contact,omitempty"`

	generatedAt time.Time
}

// PatientContact is a Patient.contact entry (the emergency contact).
type PatientContact struct {
	Relationship []fhir.CodeableConcept `json:"relationship"`
	Name         *fhir.HumanName        `json:"name,omitempty"`
	Telecom      []fhir.ContactPoint    `json:"telecom,omitempty"`
}

// GeneratedAt is the instant the record was produced.
func (p *PatientRecord) GeneratedAt() time.Time {
	return p.generatedAt
}

// MRN returns the synthetic medical record number.
func (p *PatientRecord) MRN() string {
	for _, ident := range p.Identifier {
		if ident.System == MRNSystem {
			return ident.Value
		}
	}
	return ""
}
