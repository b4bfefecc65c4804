package intake

import (
	"html"
	"strings"
	"time"

	"github.com/ehr/intake/internal/platform/fhir"
	"github.com/ehr/intake/pkg/fhirmodels"
)

const (
	// SchemaVersion is written to meta.versionId.
	SchemaVersion = "1"
	// MRNSystem namespaces the synthetic medical record number.
	MRNSystem = "urn:intake:mrn"
	// DefaultCountry is the only country the intake form collects.
	DefaultCountry = "US"

	lastUpdatedLayout = "2006-01-02T15:04:05.000Z"
)

// Mapper turns validated FlatIntake values into PatientRecords.
type Mapper struct {
	ids     *IDGenerator
	now     func() time.Time
	profile string
}

func NewMapper(ids *IDGenerator) *Mapper {
	if ids == nil {
		ids = NewIDGenerator(IDStrategyTimestamp)
	}
	return &Mapper{
		ids:     ids,
		now:     time.Now,
		profile: fhirmodels.USCorePatientProfile,
	}
}

// Map builds a new record. It does not re-validate required fields; optional
// structures are included only when their source fields are non-empty.
func (m *Mapper) Map(in FlatIntake) *PatientRecord {
	generated := m.now().UTC()

	rec := &PatientRecord{
		ResourceType: "Patient",
		ID:           m.ids.RecordID(generated),
		Meta: fhir.Meta{
			VersionID:   SchemaVersion,
			LastUpdated: generated.Format(lastUpdatedLayout),
			Profile:     []string{m.profile},
		},
		Text: fhir.Narrative{
			Status: fhirmodels.NarrativeGenerated,
			Div:    narrativeDiv(in.FirstName, in.LastName),
		},
		Identifier: []fhir.Identifier{{
			Use: fhirmodels.UseUsual,
			Type: &fhir.CodeableConcept{Coding: []fhir.Coding{{
				System: fhirmodels.IdentifierTypeSystem,
				Code:   fhirmodels.IdentifierTypeMRN,
			}}},
			System: MRNSystem,
			Value:  m.ids.MRN(),
		}},
		Active: true,
		Name: []fhir.HumanName{{
			Use:    fhirmodels.UseOfficial,
			Family: in.LastName,
			Given:  []string{in.FirstName},
		}},
		Telecom:     mapTelecom(in.Phone, in.Email),
		Gender:      in.Gender,
		BirthDate:   in.DOB,
		generatedAt: generated,
	}

	if addr, ok := mapAddress(in); ok {
		rec.Address = []fhir.Address{addr}
	}
	if contact, ok := mapEmergencyContact(in); ok {
		rec.Contact = []PatientContact{contact}
	}
	return rec
}

func narrativeDiv(first, last string) string {
	return `<div xmlns="` + fhirmodels.XHTMLNamespace + `">Patient: ` +
		html.EscapeString(first) + " " + html.EscapeString(last) + `</div>`
}

// mapTelecom keeps phone before email.
func mapTelecom(phone, email string) []fhir.ContactPoint {
	var out []fhir.ContactPoint
	if phone != "" {
		out = append(out, fhir.ContactPoint{System: fhirmodels.ContactSystemPhone, Value: phone, Use: fhirmodels.UseHome})
	}
	if email != "" {
		out = append(out, fhir.ContactPoint{System: fhirmodels.ContactSystemEmail, Value: email, Use: fhirmodels.UseHome})
	}
	return out
}

func mapAddress(in FlatIntake) (fhir.Address, bool) {
	if in.AddressLine == "" && in.City == "" && in.State == "" && in.PostalCode == "" {
		return fhir.Address{}, false
	}
	addr := fhir.Address{
		Use:        fhirmodels.UseHome,
		City:       in.City,
		State:      in.State,
		PostalCode: in.PostalCode,
		Country:    DefaultCountry,
	}
	if in.AddressLine != "" {
		addr.Line = []string{in.AddressLine}
	}
	return addr, true
}

func mapEmergencyContact(in FlatIntake) (PatientContact, bool) {
	if in.EmergencyName == "" && in.EmergencyPhone == "" {
		return PatientContact{}, false
	}

	contact := PatientContact{
		Relationship: []fhir.CodeableConcept{defaultRelationship()},
	}
	if in.EmergencyRelationship != "" {
		contact.Relationship = []fhir.CodeableConcept{{Text: in.EmergencyRelationship}}
	}
	if in.EmergencyName != "" {
		name := SplitContactName(in.EmergencyName)
		contact.Name = &name
	}
	if in.EmergencyPhone != "" {
		contact.Telecom = []fhir.ContactPoint{{
			System: fhirmodels.ContactSystemPhone,
			Value:  in.EmergencyPhone,
			Use:    fhirmodels.UseHome,
		}}
	}
	return contact, true
}

func defaultRelationship() fhir.CodeableConcept {
	return fhir.CodeableConcept{Coding: []fhir.Coding{{
		System:  fhirmodels.ContactRoleSystem,
		Code:    fhirmodels.ContactRoleEmergencyContact,
		Display: "Emergency Contact",
	}}}
}

// SplitContactName splits on single spaces: the last token is the family
// name and every preceding token is a given name. Consecutive spaces yield
// empty tokens and a single-word name has no given names.
func SplitContactName(full string) fhir.HumanName {
	parts := strings.Split(full, " ")
	return fhir.HumanName{
		Family: parts[len(parts)-1],
		Given:  append([]string{}, parts[:len(parts)-1]...),
	}
}
