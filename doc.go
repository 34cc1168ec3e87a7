// Package quicklook is a live telemetry suite for a small scintillator
// detector: it turns the instrument's raw binary stream into windowed
// spectra and rate maps that a dashboard can poll or stream in real
// time.
//
// # Data path
//
// The hardware emits fixed-size 12-byte subrecords (a raw source id
// plus a bit-packed 64-bit word). The adapter decodes them into
// normalized NDJSON events:
//
//	binary stream -> decode (unpack, clock unwrap, channel map) -> event lines
//
// The acquisition service consumes event lines from a TCP source, a
// recording file, or both, and aggregates them into fixed-duration
// windows:
//
//	event lines -> validate -> window (counts, histograms, rate map) -> snapshot
//
// The latest snapshot is served over REST and pushed over WebSocket;
// closed windows can also be published to NATS.
//
// # Packages
//
// Protocol and data plumbing:
//   - decode: subrecord framing, bit unpacking, 24-bit clock unwrap,
//     raw-id to channel mapping
//   - event: the normalized event wire type and NDJSON codec
//   - fanout: failure-isolated distribution of event lines to console,
//     TCP and NATS sinks
//
// Acquisition:
//   - acquire: run coordination, live/record/replay ingest, event
//     validation, window aggregation, snapshot publication
//   - gateway/http: REST and WebSocket API over the engine
//
// Infrastructure:
//   - config, errors, health, metric, natsclient, component, pkg/retry
//
// Binaries:
//   - cmd/quicklookd: the acquisition service
//   - cmd/quicklook-adapter: binary stream to NDJSON adapter
//   - cmd/quicklook-sim: synthetic detector simulator
package quicklook
