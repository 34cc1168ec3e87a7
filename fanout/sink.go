// Package fanout distributes decoded event lines to a set of sinks:
// console, file, inbound TCP clients, an outbound TCP peer, and an
// optional NATS subject. A failing sink never blocks the others.
package fanout

// Sink receives newline-terminated event lines. Implementations must
// tolerate WriteLine being called before Open succeeds and report the
// failure through the returned error rather than blocking.
type Sink interface {
	Name() string
	Open() error
	WriteLine(line []byte) error
	Close() error
}
