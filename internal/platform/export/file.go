package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FileExporter writes payloads into a directory, the server-side analogue of
// a browser download.
type FileExporter struct {
	Dir string
}

func NewFileExporter(dir string) *FileExporter {
	return &FileExporter{Dir: dir}
}

func (f *FileExporter) Name() string { return "file" }

// Export writes the payload atomically: a temp file in the same directory
// is renamed over the target.
func (f *FileExporter) Export(ctx context.Context, p Payload) error {
	if err := ctx.Err(); err != nil {
		return &Error{Target: f.Name(), Err: err}
	}
	if p.Filename == "" || filepath.Base(p.Filename) != p.Filename {
		return &Error{Target: f.Name(), Err: fmt.Errorf("invalid filename %q", p.Filename)}
	}

	dir := f.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return &Error{Target: f.Name(), Err: fmt.Errorf("create export dir: %w", err)}
	}

	tmp, err := os.CreateTemp(dir, ".export-*")
	if err != nil {
		return &Error{Target: f.Name(), Err: fmt.Errorf("create temp file: %w", err)}
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(p.Data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &Error{Target: f.Name(), Err: fmt.Errorf("write payload: %w", err)}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &Error{Target: f.Name(), Err: fmt.Errorf("close payload: %w", err)}
	}
	if err := os.Rename(tmpName, filepath.Join(dir, p.Filename)); err != nil {
		os.Remove(tmpName)
		return &Error{Target: f.Name(), Err: fmt.Errorf("rename payload: %w", err)}
	}
	return nil
}

// Path returns where a payload with the given filename ends up.
func (f *FileExporter) Path(filename string) string {
	dir := f.Dir
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, filename)
}
