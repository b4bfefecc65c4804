// Package export turns a converted record into its serialized payload and
// hands that payload to an export target (a file on disk or the system
// clipboard). Export failures never touch the record itself; callers can
// retry with the same payload.
package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// DefaultPrefix is the filename prefix used when none is configured.
const DefaultPrefix = "fhir-patient"

// ContentType is the media type of every payload.
const ContentType = "application/fhir+json"

// ErrClipboardUnsupported is returned when no clipboard utility is available.
var ErrClipboardUnsupported = errors.New("clipboard is not available on this host")

// Payload is an immutable serialized record plus its suggested filename.
type Payload struct {
	Filename string
	Data     []byte
}

// Exporter delivers a payload to an external collaborator.
type Exporter interface {
	Name() string
	Export(ctx context.Context, p Payload) error
}

// Error reports a failed export. It is always recoverable.
type Error struct {
	Target string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("export to %s failed: %v", e.Target, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsExportError reports whether err is (or wraps) an *Error.
func IsExportError(err error) bool {
	var ee *Error
	return errors.As(err, &ee)
}

// Serialize pretty-prints v with two-space indentation and a trailing
// newline. Struct field order fixes key order, so output is byte-stable.
func Serialize(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("serialize record: %w", err)
	}
	return append(data, '\n'), nil
}

// Filename returns <prefix>-<YYYY-MM-DD>.json for the UTC date of t.
func Filename(prefix string, t time.Time) string {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return fmt.Sprintf("%s-%s.json", prefix, t.UTC().Format("2006-01-02"))
}

// NewPayload serializes v and names it after generatedAt.
func NewPayload(v any, prefix string, generatedAt time.Time) (Payload, error) {
	data, err := Serialize(v)
	if err != nil {
		return Payload{}, err
	}
	return Payload{Filename: Filename(prefix, generatedAt), Data: data}, nil
}
