package fanout

import (
	"io"
	"os"
	"sync"

	"github.com/MaigomAS/Quicklook/errors"
)

// ConsoleSink writes event lines to a writer, stdout by default.
type ConsoleSink struct {
	w  io.Writer
	mu sync.Mutex
}

// NewConsoleSink creates a console sink. A nil writer means stdout.
func NewConsoleSink(w io.Writer) *ConsoleSink {
	if w == nil {
		w = os.Stdout
	}
	return &ConsoleSink{w: w}
}

// Name returns the sink identifier
func (s *ConsoleSink) Name() string { return "console" }

// Open is a no-op for the console sink
func (s *ConsoleSink) Open() error { return nil }

// WriteLine writes one event line
func (s *ConsoleSink) WriteLine(line []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.w.Write(line); err != nil {
		return errors.WrapTransient(err, "ConsoleSink", "WriteLine", "write line")
	}
	return nil
}

// Close is a no-op for the console sink
func (s *ConsoleSink) Close() error { return nil }
