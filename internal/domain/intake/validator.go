package intake

import (
	"errors"
	"reflect"
	"regexp"
	"slices"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/ehr/intake/internal/platform/i18n"
	"github.com/ehr/intake/pkg/fhirmodels"
)

var (
	// emailPattern is deliberately loose: local@domain.tld with exactly one @.
	// Unicode whitespace is rejected separately in IsEmail.
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

	phoneCharsPattern = regexp.MustCompile(`^[0-9 ()-]+$`)
)

const minPhoneDigits = 10

// birthDateLayouts are the calendar date precisions a FHIR date allows.
var birthDateLayouts = []string{time.DateOnly, "2006-01", "2006"}

// tagKinds maps a failing validation tag to the error kind it reports.
var tagKinds = map[string]ErrorKind{
	"notblank":     KindRequired,
	"intake_email": KindInvalidEmail,
	"intake_phone": KindInvalidPhone,
	"isodate":      KindInvalidDate,
	"gender":       KindInvalidCode,
}

// validate is the package-level validator instance used for struct validation.
var validate = newStructValidator()

func newStructValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	must(v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	}))
	must(v.RegisterValidation("intake_email", func(fl validator.FieldLevel) bool {
		return IsEmail(fl.Field().String())
	}))
	must(v.RegisterValidation("intake_phone", func(fl validator.FieldLevel) bool {
		return IsPhone(fl.Field().String())
	}))
	must(v.RegisterValidation("isodate", func(fl validator.FieldLevel) bool {
		return IsBirthDate(fl.Field().String())
	}))
	must(v.RegisterValidation("gender", func(fl validator.FieldLevel) bool {
		return slices.Contains(fhirmodels.Genders, fl.Field().String())
	}))
	return v
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

// IsEmail reports whether s is shaped like local@domain.tld.
func IsEmail(s string) bool {
	if strings.ContainsFunc(s, unicode.IsSpace) {
		return false
	}
	return emailPattern.MatchString(s)
}

// IsBirthDate reports whether s is a real calendar date written as
// YYYY-MM-DD, YYYY-MM or YYYY. The value is passed to birthDate unchanged,
// so the ISO 8601 basic format (YYYYMMDD) is not accepted.
func IsBirthDate(s string) bool {
	for _, layout := range birthDateLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

// IsPhone reports whether s holds only digits, spaces, hyphens and
// parentheses, with at least ten digits.
func IsPhone(s string) bool {
	if !phoneCharsPattern.MatchString(s) {
		return false
	}
	return countDigits(s) >= minPhoneDigits
}

func countDigits(s string) int {
	n := 0
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			n++
		}
	}
	return n
}

// Validator checks a FlatIntake. Every field is checked independently; a
// field reports at most one error (required before format).
type Validator struct {
	catalog *i18n.Catalog
}

// NewValidator returns a Validator that localizes messages through catalog.
// A nil catalog makes the error kind itself the message.
func NewValidator(catalog *i18n.Catalog) *Validator {
	return &Validator{catalog: catalog}
}

// Validate runs every rule and localizes messages for locale.
func (v *Validator) Validate(in FlatIntake, locale string) *ValidationResult {
	if v.catalog != nil && !v.catalog.Has(locale) {
		locale = v.catalog.Match(locale)
	}
	result := &ValidationResult{
		Locale: locale,
		Errors: map[string]string{},
		Kinds:  map[string]ErrorKind{},
	}

	err := validate.Struct(in)
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			kind, ok := tagKinds[fe.Tag()]
			if !ok {
				kind = KindRequired
			}
			result.Kinds[fe.Field()] = kind
			result.Errors[fe.Field()] = v.message(locale, kind)
		}
	}

	result.Valid = len(result.Kinds) == 0
	return result
}

// Kinds validates without localizing; used where only the error kind matters.
func Kinds(in FlatIntake) map[string]ErrorKind {
	return NewValidator(nil).Validate(in, "").Kinds
}

func (v *Validator) message(locale string, kind ErrorKind) string {
	if v.catalog == nil {
		return string(kind)
	}
	return v.catalog.Message(locale, string(kind))
}
