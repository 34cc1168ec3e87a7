package fanout

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/MaigomAS/Quicklook/errors"
)

const (
	// Minimum interval between outbound dial attempts
	reconnectThrottle = time.Second
	// Timeout for each outbound dial
	dialTimeout = 2 * time.Second
)

// TCPClientSink maintains an outbound connection to a downstream
// consumer. A lost connection is re-dialed lazily on the next write,
// throttled so a dead peer does not stall the event stream with a dial
// per line.
type TCPClientSink struct {
	addr   string
	logger *slog.Logger

	mu          sync.Mutex
	conn        net.Conn
	lastAttempt time.Time
}

// NewTCPClientSink creates an outbound sink to addr, e.g. "10.0.0.5:9010"
func NewTCPClientSink(addr string, logger *slog.Logger) *TCPClientSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &TCPClientSink{
		addr:   addr,
		logger: logger.With("component", "fanout", "sink", "tcp-client"),
	}
}

// Name returns the sink identifier
func (s *TCPClientSink) Name() string { return "tcp-client" }

// Open attempts the first connection. Failure is not fatal; the sink
// keeps retrying from WriteLine.
func (s *TCPClientSink) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.connectLocked(); err != nil {
		s.logger.Warn("initial connect failed, will retry on write", "addr", s.addr, "error", err)
	}
	return nil
}

// connectLocked dials the peer if the throttle window has elapsed.
// Caller must hold s.mu.
func (s *TCPClientSink) connectLocked() error {
	if s.conn != nil {
		return nil
	}
	if time.Since(s.lastAttempt) < reconnectThrottle {
		return errors.WrapTransient(errors.ErrNoConnection, "TCPClientSink", "connect", "reconnect throttled")
	}
	s.lastAttempt = time.Now()

	conn, err := net.DialTimeout("tcp", s.addr, dialTimeout)
	if err != nil {
		return errors.WrapTransient(err, "TCPClientSink", "connect",
			fmt.Sprintf("dial %s", s.addr))
	}

	s.conn = conn
	s.logger.Info("connected to downstream peer", "addr", s.addr)
	return nil
}

// WriteLine sends one event line, reconnecting first if needed. On a
// write failure the connection is dropped so the next write re-dials.
func (s *TCPClientSink) WriteLine(line []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.connectLocked(); err != nil {
		return err
	}

	s.conn.SetWriteDeadline(time.Now().Add(time.Second))
	if _, err := s.conn.Write(line); err != nil {
		s.conn.Close()
		s.conn = nil
		s.logger.Warn("write failed, connection dropped", "addr", s.addr, "error", err)
		return errors.WrapTransient(err, "TCPClientSink", "WriteLine", "write line")
	}
	return nil
}

// Connected reports whether the outbound connection is currently up
func (s *TCPClientSink) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// Close drops the outbound connection
func (s *TCPClientSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	return nil
}
