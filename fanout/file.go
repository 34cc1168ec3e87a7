package fanout

import (
	"bufio"
	"fmt"
	"os"
	"sync"

	"github.com/MaigomAS/Quicklook/errors"
)

// FileSink appends event lines to a file, flushing on close.
type FileSink struct {
	path string

	mu   sync.Mutex
	file *os.File
	buf  *bufio.Writer
}

// NewFileSink creates a file sink for the given path
func NewFileSink(path string) *FileSink {
	return &FileSink{path: path}
}

// Name returns the sink identifier
func (s *FileSink) Name() string { return "file" }

// Open creates or truncates the output file
func (s *FileSink) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return errors.WrapFatal(err, "FileSink", "Open",
			fmt.Sprintf("open %s", s.path))
	}
	s.file = file
	s.buf = bufio.NewWriter(file)
	return nil
}

// WriteLine appends one event line
func (s *FileSink) WriteLine(line []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.buf == nil {
		return errors.WrapTransient(errors.ErrNoConnection, "FileSink", "WriteLine", "file not open")
	}
	if _, err := s.buf.Write(line); err != nil {
		return errors.WrapTransient(err, "FileSink", "WriteLine", "write line")
	}
	return nil
}

// Close flushes and closes the file
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	flushErr := s.buf.Flush()
	closeErr := s.file.Close()
	s.file = nil
	s.buf = nil

	if flushErr != nil {
		return errors.WrapTransient(flushErr, "FileSink", "Close", "flush buffer")
	}
	if closeErr != nil {
		return errors.WrapTransient(closeErr, "FileSink", "Close", "close file")
	}
	return nil
}
