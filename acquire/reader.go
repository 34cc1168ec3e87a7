package acquire

import (
	"bufio"
	"bytes"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/MaigomAS/Quicklook/errors"
)

// errStopped signals that the stop channel interrupted a read
var errStopped = stderrors.New("acquisition stopped")

// readPollInterval bounds how long a blocked socket read can delay
// stop-signal observation
const readPollInterval = 100 * time.Millisecond

// lineSource yields newline-delimited event lines. Next returns
// io.EOF when the source is exhausted and errStopped when the stop
// channel fires first.
type lineSource interface {
	Next(stop <-chan struct{}) ([]byte, error)
	Close() error
}

// liveSource reads lines from a TCP connection. Reads run under a
// short deadline so cancellation is observed promptly even when the
// source goes quiet.
type liveSource struct {
	conn net.Conn
	buf  []byte
	eof  bool
}

// openLive dials the event source with a bounded connect timeout
func openLive(host string, port int, timeout time.Duration) (*liveSource, error) {
	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, errors.WrapTransient(err, "liveSource", "openLive",
			fmt.Sprintf("connect to %s", addr))
	}
	return &liveSource{conn: conn}, nil
}

func (s *liveSource) Next(stop <-chan struct{}) ([]byte, error) {
	chunk := make([]byte, 4096)
	for {
		if line, ok := s.popLine(); ok {
			return line, nil
		}
		if s.eof {
			return nil, io.EOF
		}

		select {
		case <-stop:
			return nil, errStopped
		default:
		}

		s.conn.SetReadDeadline(time.Now().Add(readPollInterval))
		n, err := s.conn.Read(chunk)
		if n > 0 {
			s.buf = append(s.buf, chunk[:n]...)
		}
		if err != nil {
			var netErr net.Error
			if stderrors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if stderrors.Is(err, io.EOF) {
				// Flush any unterminated trailing line before EOF.
				s.eof = true
				continue
			}
			return nil, errors.WrapTransient(err, "liveSource", "Next", "read from source")
		}
	}
}

// popLine extracts one complete line from the buffer, or the trailing
// partial line once EOF has been seen.
func (s *liveSource) popLine() ([]byte, bool) {
	if i := bytes.IndexByte(s.buf, '\n'); i >= 0 {
		line := s.buf[:i]
		s.buf = append([]byte(nil), s.buf[i+1:]...)
		return line, true
	}
	if s.eof && len(s.buf) > 0 {
		line := s.buf
		s.buf = nil
		return line, true
	}
	return nil, false
}

func (s *liveSource) Close() error {
	return s.conn.Close()
}

// replaySource reads lines from a recorded file
type replaySource struct {
	file    *os.File
	scanner *bufio.Scanner
}

// openReplay opens a recording for paced replay
func openReplay(path string) (*replaySource, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.WrapTransient(err, "replaySource", "openReplay",
			fmt.Sprintf("open %s", path))
	}
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	return &replaySource{file: file, scanner: scanner}, nil
}

func (s *replaySource) Next(stop <-chan struct{}) ([]byte, error) {
	select {
	case <-stop:
		return nil, errStopped
	default:
	}

	if !s.scanner.Scan() {
		if err := s.scanner.Err(); err != nil {
			return nil, errors.WrapTransient(err, "replaySource", "Next", "read recording")
		}
		return nil, io.EOF
	}
	return s.scanner.Bytes(), nil
}

func (s *replaySource) Close() error {
	return s.file.Close()
}

// recorder appends event lines to the record file, syncing after each
// line so a crash loses at most the line in flight.
type recorder struct {
	file *os.File
}

// openRecorder opens the record file in append mode
func openRecorder(path string) (*recorder, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.WrapTransient(err, "recorder", "openRecorder",
			fmt.Sprintf("open %s", path))
	}
	return &recorder{file: file}, nil
}

func (r *recorder) Write(line []byte) error {
	if _, err := r.file.Write(line); err != nil {
		return errors.WrapTransient(err, "recorder", "Write", "append line")
	}
	if _, err := r.file.Write([]byte{'\n'}); err != nil {
		return errors.WrapTransient(err, "recorder", "Write", "append newline")
	}
	return r.file.Sync()
}

func (r *recorder) Close() error {
	return r.file.Close()
}
