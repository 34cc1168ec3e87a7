package decode

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeSubrecords(recs ...Subrecord) []byte {
	var buf bytes.Buffer
	for _, rec := range recs {
		_ = binary.Write(&buf, binary.LittleEndian, rec.RawID)
		_ = binary.Write(&buf, binary.LittleEndian, rec.Word)
	}
	return buf.Bytes()
}

func TestSubrecordScanner_WholeStream(t *testing.T) {
	want := []Subrecord{
		{RawID: 1, Word: 0xDEADBEEFCAFE},
		{RawID: 0xFFFFFFFF, Word: 0},
		{RawID: 7, Word: 1<<63 | 42},
	}

	s := NewSubrecordScanner(bytes.NewReader(encodeSubrecords(want...)))

	var got []Subrecord
	for s.Scan() {
		got = append(got, s.Subrecord())
	}
	require.NoError(t, s.Err())
	assert.Equal(t, want, got)
}

// chunkReader returns at most n bytes per Read to simulate short
// network reads that split subrecords at arbitrary offsets.
type chunkReader struct {
	data []byte
	n    int
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	n := r.n
	if n > len(r.data) {
		n = len(r.data)
	}
	if n > len(p) {
		n = len(p)
	}
	copy(p, r.data[:n])
	r.data = r.data[n:]
	return n, nil
}

func TestSubrecordScanner_SplitReads(t *testing.T) {
	want := []Subrecord{
		{RawID: 10, Word: 0x0123456789ABCDEF},
		{RawID: 11, Word: 0xFEDCBA9876543210},
		{RawID: 12, Word: 0x5555AAAA5555AAAA},
	}
	raw := encodeSubrecords(want...)

	// Every chunk size from 1 byte up must reassemble identically.
	for chunk := 1; chunk <= SubrecordSize+1; chunk++ {
		s := NewSubrecordScanner(&chunkReader{data: raw, n: chunk})
		var got []Subrecord
		for s.Scan() {
			got = append(got, s.Subrecord())
		}
		require.NoError(t, s.Err())
		assert.Equal(t, want, got, "chunk size %d", chunk)
	}
}

func TestSubrecordScanner_TrailingPartialRetained(t *testing.T) {
	raw := encodeSubrecords(Subrecord{RawID: 3, Word: 9})
	// Append half a record; it must be buffered, not emitted.
	raw = append(raw, 0x01, 0x02, 0x03, 0x04, 0x05)

	s := NewSubrecordScanner(bytes.NewReader(raw))
	require.True(t, s.Scan())
	assert.Equal(t, Subrecord{RawID: 3, Word: 9}, s.Subrecord())
	assert.False(t, s.Scan())
	assert.NoError(t, s.Err())
	assert.Equal(t, 5, s.Buffered())
}

type failReader struct{ err error }

func (r failReader) Read([]byte) (int, error) { return 0, r.err }

func TestSubrecordScanner_ReadError(t *testing.T) {
	wantErr := errors.New("connection reset")
	s := NewSubrecordScanner(failReader{err: wantErr})

	assert.False(t, s.Scan())
	assert.ErrorIs(t, s.Err(), wantErr)
}
