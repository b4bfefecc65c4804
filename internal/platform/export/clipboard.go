package export

import (
	"context"

	"github.com/atotto/clipboard"
)

// Package-level variables to allow mocking in tests.
var (
	clipboardWriteAll    = clipboard.WriteAll
	clipboardUnsupported = func() bool { return clipboard.Unsupported }
)

// ClipboardExporter copies the serialized payload to the system clipboard.
// On headless hosts the clipboard is usually unsupported; the failure is
// reported as an *Error and nothing else is affected.
type ClipboardExporter struct{}

func NewClipboardExporter() *ClipboardExporter {
	return &ClipboardExporter{}
}

func (ClipboardExporter) Name() string { return "clipboard" }

func (c ClipboardExporter) Export(ctx context.Context, p Payload) error {
	if err := ctx.Err(); err != nil {
		return &Error{Target: c.Name(), Err: err}
	}
	if clipboardUnsupported() {
		return &Error{Target: c.Name(), Err: ErrClipboardUnsupported}
	}
	if err := clipboardWriteAll(string(p.Data)); err != nil {
		return &Error{Target: c.Name(), Err: err}
	}
	return nil
}
