package fanout

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/MaigomAS/Quicklook/errors"
)

// TCPServerSink listens on a local address and pushes every event line
// to all currently connected clients. A client whose write fails is
// dropped; the remaining clients keep receiving.
type TCPServerSink struct {
	addr   string
	logger *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	clients  map[net.Conn]struct{}

	shutdown chan struct{}
	wg       sync.WaitGroup

	onClientCount func(int)
}

// NewTCPServerSink creates a listening sink on addr, e.g. ":9010"
func NewTCPServerSink(addr string, logger *slog.Logger) *TCPServerSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &TCPServerSink{
		addr:     addr,
		logger:   logger.With("component", "fanout", "sink", "tcp-server"),
		clients:  make(map[net.Conn]struct{}),
		shutdown: make(chan struct{}),
	}
}

// OnClientCount registers a callback invoked with the connected client
// count whenever it changes
func (s *TCPServerSink) OnClientCount(fn func(int)) {
	s.onClientCount = fn
}

// Name returns the sink identifier
func (s *TCPServerSink) Name() string { return "tcp-server" }

// Open binds the listener and starts the accept loop
func (s *TCPServerSink) Open() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return errors.WrapFatal(err, "TCPServerSink", "Open",
			fmt.Sprintf("listen on %s", s.addr))
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	s.wg.Add(1)
	go s.acceptLoop(listener)

	s.logger.Info("TCP server sink listening", "addr", listener.Addr().String())
	return nil
}

// Addr returns the bound listener address, useful when addr was ":0"
func (s *TCPServerSink) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

func (s *TCPServerSink) acceptLoop(listener net.Listener) {
	defer s.wg.Done()

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return
			default:
			}
			s.logger.Warn("accept failed", "error", err)
			time.Sleep(100 * time.Millisecond)
			continue
		}

		s.mu.Lock()
		s.clients[conn] = struct{}{}
		count := len(s.clients)
		s.mu.Unlock()

		s.logger.Info("client connected", "remote", conn.RemoteAddr().String(), "clients", count)
		s.notifyClientCount(count)
	}
}

// WriteLine pushes one event line to every connected client. Clients
// whose writes fail are closed and removed. Returns nil even with zero
// clients; a line with nobody listening is not an error.
func (s *TCPServerSink) WriteLine(line []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var dropped []net.Conn
	for conn := range s.clients {
		conn.SetWriteDeadline(time.Now().Add(time.Second))
		if _, err := conn.Write(line); err != nil {
			dropped = append(dropped, conn)
		}
	}

	for _, conn := range dropped {
		conn.Close()
		delete(s.clients, conn)
		s.logger.Info("client dropped", "remote", conn.RemoteAddr().String())
	}
	if len(dropped) > 0 {
		s.notifyClientCount(len(s.clients))
	}
	return nil
}

// ClientCount returns the number of connected clients
func (s *TCPServerSink) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Close stops the listener and disconnects all clients
func (s *TCPServerSink) Close() error {
	close(s.shutdown)

	s.mu.Lock()
	if s.listener != nil {
		s.listener.Close()
		s.listener = nil
	}
	for conn := range s.clients {
		conn.Close()
	}
	s.clients = make(map[net.Conn]struct{})
	s.mu.Unlock()

	s.wg.Wait()
	s.notifyClientCount(0)
	return nil
}

func (s *TCPServerSink) notifyClientCount(count int) {
	if s.onClientCount != nil {
		s.onClientCount(count)
	}
}
