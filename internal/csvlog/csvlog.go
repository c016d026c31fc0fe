// Package csvlog writes the daily measurement log.
package csvlog

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/multierr"
)

var (
	// ErrArity is returned when a row has the wrong number of values.
	ErrArity = errors.New("csvlog: wrong number of values")
	// ErrHeaderMismatch is returned when an existing file starts with a
	// complete line that is not our header.
	ErrHeaderMismatch = errors.New("csvlog: existing header does not match")
	// ErrNotOpen is returned by AppendRow before Initialize succeeds.
	ErrNotOpen = errors.New("csvlog: sink not initialized")
)

// Sink appends fixed-arity rows to a CSV file, syncing after every row.
// Initialize and AppendRow may be called from different goroutines.
type Sink struct {
	columns []string
	header  []byte

	mu   sync.Mutex
	f    *os.File
	w    *csv.Writer
	path string
}

// New returns a sink for the given columns. It opens nothing until
// Initialize.
func New(columns ...string) *Sink {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write(columns)
	w.Flush()
	return &Sink{
		columns: append([]string(nil), columns...),
		header:  buf.Bytes(),
	}
}

// Columns returns the column names.
func (s *Sink) Columns() []string {
	return append([]string(nil), s.columns...)
}

// Path returns the file currently being written, or "" before Initialize.
func (s *Sink) Path() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path
}

// Initialize switches the sink to path, creating it if needed.
//
// An empty file gets a header. A file holding only part of the header (a
// crash mid-write) is truncated and given a fresh one. Any other first line
// that is not the header is ErrHeaderMismatch. On error the previous file,
// if any, stays open.
func (s *Sink) Initialize(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open csv: %w", err)
	}
	if err := s.checkHeader(f); err != nil {
		f.Close()
		return fmt.Errorf("csv %s: %w", path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.f
	s.f = f
	s.w = csv.NewWriter(f)
	s.path = path
	if old != nil {
		if err := closeFile(old); err != nil {
			return fmt.Errorf("close previous csv: %w", err)
		}
	}
	return nil
}

func (s *Sink) checkHeader(f *os.File) error {
	got := make([]byte, len(s.header))
	n, err := io.ReadFull(f, got)
	switch {
	case err == nil:
		if !bytes.Equal(got, s.header) {
			return ErrHeaderMismatch
		}
		return nil
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		// Empty or shorter than a header line.
	default:
		return fmt.Errorf("read header: %w", err)
	}

	if n > 0 && bytes.IndexByte(got[:n], '\n') >= 0 {
		return ErrHeaderMismatch
	}
	if n > 0 {
		if err := f.Truncate(0); err != nil {
			return fmt.Errorf("truncate partial header: %w", err)
		}
	}
	if _, err := f.Write(s.header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	return f.Sync()
}

// AppendRow writes one row and syncs it to disk.
func (s *Sink) AppendRow(values ...string) error {
	if len(values) != len(s.columns) {
		return fmt.Errorf("%d values for %d columns: %w", len(values), len(s.columns), ErrArity)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return ErrNotOpen
	}
	if err := s.w.Write(values); err != nil {
		return fmt.Errorf("write row: %w", err)
	}
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return fmt.Errorf("write row: %w", err)
	}
	if err := s.f.Sync(); err != nil {
		return fmt.Errorf("sync csv: %w", err)
	}
	return nil
}

// Close syncs and closes the current file.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := closeFile(s.f)
	s.f = nil
	s.w = nil
	return err
}

func closeFile(f *os.File) error {
	return multierr.Append(f.Sync(), f.Close())
}

// FileName returns the log path for the local date of t.
func FileName(dir string, t time.Time) string {
	return filepath.Join(dir, "greenhouse_"+t.Format("2006-01-02")+".csv")
}
