package intake

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ehr/intake/internal/platform/export"
)

// ValidationError is returned by Convert when the intake fails validation.
type ValidationError struct {
	Result *ValidationResult
}

func (e *ValidationError) Error() string {
	fields := e.Result.Fields()
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, fmt.Sprintf("%s (%s)", f, e.Result.Kinds[f]))
	}
	return "intake validation failed: " + strings.Join(parts, ", ")
}

type Service struct {
	validator    *Validator
	mapper       *Mapper
	exportPrefix string
	logger       zerolog.Logger

	mu   sync.RWMutex
	last *PatientRecord
}

func NewService(v *Validator, m *Mapper, exportPrefix string, logger zerolog.Logger) *Service {
	if exportPrefix == "" {
		exportPrefix = export.DefaultPrefix
	}
	return &Service{validator: v, mapper: m, exportPrefix: exportPrefix, logger: logger}
}

func (s *Service) Validate(_ context.Context, in FlatIntake, locale string) *ValidationResult {
	return s.validator.Validate(in, locale)
}

// Convert validates and, when valid, maps the intake. The new record
// replaces whatever record was produced before it.
func (s *Service) Convert(ctx context.Context, in FlatIntake, locale string) (*PatientRecord, error) {
	result := s.Validate(ctx, in, locale)
	if !result.Valid {
		s.logger.Debug().Strs("fields", result.Fields()).Msg("intake rejected")
		return nil, &ValidationError{Result: result}
	}

	rec := s.mapper.Map(in)

	s.mu.Lock()
	s.last = rec
	s.mu.Unlock()

	s.logger.Info().
		Str("record_id", rec.ID).
		Bool("address", len(rec.Address) > 0).
		Bool("contact", len(rec.Contact) > 0).
		Int("telecom", len(rec.Telecom)).
		Msg("patient record generated")
	return rec, nil
}

// Last returns the most recently produced record.
func (s *Service) Last() (*PatientRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last, s.last != nil
}

// Payload serializes rec with the configured filename convention.
func (s *Service) Payload(rec *PatientRecord) (export.Payload, error) {
	return export.NewPayload(rec, s.exportPrefix, rec.GeneratedAt())
}

// Export serializes rec and hands it to exp. A failed export leaves rec and
// the held last record untouched, so the caller may retry.
func (s *Service) Export(ctx context.Context, rec *PatientRecord, exp export.Exporter) (export.Payload, error) {
	p, err := s.Payload(rec)
	if err != nil {
		return export.Payload{}, err
	}
	if err := exp.Export(ctx, p); err != nil {
		s.logger.Warn().Err(err).Str("record_id", rec.ID).Str("target", exp.Name()).Msg("export failed")
		return p, err
	}
	s.logger.Info().Str("record_id", rec.ID).Str("target", exp.Name()).Str("filename", p.Filename).Msg("record exported")
	return p, nil
}
