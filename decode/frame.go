// Package decode converts the detector's binary wire format into
// normalized events: it splits the byte stream into fixed-size
// subrecords, extracts the bit-packed fields, unwraps the truncated
// hardware clock and maps hardware source identifiers onto the logical
// channel namespace.
package decode

import (
	"encoding/binary"
	"io"
)

// SubrecordSize is the fixed wire size of one subrecord:
// uint32 raw_id followed by uint64 word, both little-endian.
const SubrecordSize = 12

// Subrecord is one raw hardware record as read off the wire
type Subrecord struct {
	RawID uint32
	Word  uint64
}

// SubrecordScanner splits a byte stream into complete subrecords.
// Incomplete trailing bytes are retained across reads and prepended to
// the next chunk, so a subrecord split across two network reads is
// reassembled transparently.
type SubrecordScanner struct {
	r       io.Reader
	buf     []byte
	pending []byte
	current Subrecord
	done    bool
	err     error
}

// NewSubrecordScanner creates a scanner over r
func NewSubrecordScanner(r io.Reader) *SubrecordScanner {
	return &SubrecordScanner{
		r:   r,
		buf: make([]byte, 4096),
	}
}

// Scan advances to the next complete subrecord. It returns false when
// the underlying stream is exhausted or fails; Err distinguishes the
// two. Structural validation beyond length is out of scope here:
// shifted alignment or wrong endianness upstream is undetectable.
func (s *SubrecordScanner) Scan() bool {
	for {
		if len(s.pending) >= SubrecordSize {
			s.current = Subrecord{
				RawID: binary.LittleEndian.Uint32(s.pending[0:4]),
				Word:  binary.LittleEndian.Uint64(s.pending[4:12]),
			}
			s.pending = s.pending[SubrecordSize:]
			return true
		}

		if s.done {
			return false
		}

		n, err := s.r.Read(s.buf)
		if n > 0 {
			s.pending = append(s.pending, s.buf[:n]...)
		}
		if err != nil {
			s.done = true
			if err != io.EOF {
				s.err = err
			}
		}
	}
}

// Subrecord returns the record produced by the last successful Scan
func (s *SubrecordScanner) Subrecord() Subrecord {
	return s.current
}

// Err returns the first non-EOF error encountered by the scanner
func (s *SubrecordScanner) Err() error {
	return s.err
}

// Buffered reports how many incomplete trailing bytes the scanner is
// currently retaining. Useful for end-of-stream diagnostics.
func (s *SubrecordScanner) Buffered() int {
	return len(s.pending)
}
