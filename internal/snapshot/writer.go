// Package snapshot persists the assembled research feed and checks persisted
// copies against the snapshot invariants.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/helixir/research-feed-service/internal/domain"
)

// WriteRecorder receives per-destination write outcomes. observability.Metrics implements it.
type WriteRecorder interface {
	RecordSnapshotWrite(destination string)
	RecordSnapshotWriteFailed(destination string)
}

// WriteError reports the destinations that could not be written. Destinations
// not listed were written successfully and are left in place.
type WriteError struct {
	Failed map[string]error
	Paths  []string
}

func (e *WriteError) Error() string {
	parts := make([]string, 0, len(e.Paths))
	for _, p := range e.Paths {
		parts = append(parts, fmt.Sprintf("%s: %v", p, e.Failed[p]))
	}
	return "failed to write snapshot to " + strings.Join(parts, "; ")
}

// Unwrap exposes the underlying per-path errors.
func (e *WriteError) Unwrap() []error {
	errs := make([]error, 0, len(e.Paths))
	for _, p := range e.Paths {
		errs = append(errs, e.Failed[p])
	}
	return errs
}

// Writer serializes a snapshot and stores identical bytes at every destination.
type Writer struct {
	paths    []string
	recorder WriteRecorder
}

// NewWriter creates a writer for the given destinations. recorder may be nil.
func NewWriter(recorder WriteRecorder, paths ...string) *Writer {
	return &Writer{paths: paths, recorder: recorder}
}

// Paths returns the destinations in write order.
func (w *Writer) Paths() []string {
	out := make([]string, len(w.paths))
	copy(out, w.paths)
	return out
}

// Encode renders a snapshot as two-space indented JSON with a trailing newline.
func Encode(s *domain.Snapshot) ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return append(data, '\n'), nil
}

// Write encodes s once and writes it to every destination. Every destination
// is attempted; failures are collected into a *WriteError.
func (w *Writer) Write(s *domain.Snapshot) error {
	data, err := Encode(s)
	if err != nil {
		return err
	}

	var werr *WriteError
	for _, path := range w.paths {
		if err := writeFileAtomic(path, data); err != nil {
			if werr == nil {
				werr = &WriteError{Failed: make(map[string]error)}
			}
			werr.Failed[path] = err
			werr.Paths = append(werr.Paths, path)
			w.recordFailure(path)
			continue
		}
		w.recordWrite(path)
	}

	if werr != nil {
		return werr
	}
	return nil
}

func (w *Writer) recordWrite(path string) {
	if w.recorder != nil {
		w.recorder.RecordSnapshotWrite(path)
	}
}

func (w *Writer) recordFailure(path string) {
	if w.recorder != nil {
		w.recorder.RecordSnapshotWriteFailed(path)
	}
}

// writeFileAtomic writes data to a temporary file next to path and renames it
// into place, so readers never observe a partially written snapshot.
func writeFileAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			os.Remove(tmp.Name())
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}
