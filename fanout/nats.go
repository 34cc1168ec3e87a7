package fanout

import (
	"bytes"

	"github.com/MaigomAS/Quicklook/natsclient"
)

// NATSSink publishes event lines to a NATS subject. The trailing
// newline is stripped; NATS messages carry one event each.
type NATSSink struct {
	client  *natsclient.Client
	subject string
}

// NewNATSSink creates a publishing sink on the given subject
func NewNATSSink(client *natsclient.Client, subject string) *NATSSink {
	return &NATSSink{client: client, subject: subject}
}

// Name returns the sink identifier
func (s *NATSSink) Name() string { return "nats" }

// Open is a no-op; the client connection is managed by the caller
func (s *NATSSink) Open() error { return nil }

// WriteLine publishes one event line
func (s *NATSSink) WriteLine(line []byte) error {
	return s.client.Publish(s.subject, bytes.TrimRight(line, "\n"))
}

// Close is a no-op; the client connection is managed by the caller
func (s *NATSSink) Close() error { return nil }
