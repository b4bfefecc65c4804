package fhirmodels

// Common FHIR value set constants used across the application.

// AdministrativeGender values per FHIR R4.
const (
	GenderMale    = "male"
	GenderFemale  = "female"
	GenderOther   = "other"
	GenderUnknown = "unknown"
)

// Genders lists every AdministrativeGender code in display order.
var Genders = []string{GenderMale, GenderFemale, GenderOther, GenderUnknown}

// ContactPointSystem codes.
const (
	ContactSystemPhone = "phone"
	ContactSystemEmail = "email"
)

// ContactPointUse and AddressUse codes.
const (
	UseHome     = "home"
	UseUsual    = "usual"
	UseOfficial = "official"
)

// NarrativeGenerated is the narrative status of machine-built text.
const NarrativeGenerated = "generated"

// v2-0131 contact role codes.
const (
	ContactRoleSystem = "http://terminology.hl7.org/CodeSystem/v2-0131"

	ContactRoleEmergencyContact = "C"
)

// v2-0203 identifier type codes.
const (
	IdentifierTypeSystem = "http://terminology.hl7.org/CodeSystem/v2-0203"

	IdentifierTypeMRN = "MR"
)

// Profiles.
const (
	USCorePatientProfile = "http://hl7.org/fhir/us/core/StructureDefinition/us-core-patient"
)

// XHTMLNamespace is the namespace required on narrative divs.
const XHTMLNamespace = "http://www.w3.org/1999/xhtml"
