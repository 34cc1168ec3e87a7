package decode

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qerrors "github.com/MaigomAS/Quicklook/errors"
)

func TestChannelMapper_FirstSeenOrder(t *testing.T) {
	m := NewChannelMapper()

	rawIDs := []uint32{7, 3, 7, 9}
	wantChannels := []int{0, 1, 0, 2}
	wantOutcomes := []MapOutcome{MapAssigned, MapAssigned, MapExisting, MapAssigned}

	for i, raw := range rawIDs {
		res := m.Map(raw)
		assert.Equal(t, wantChannels[i], res.Channel, "raw_id %d", raw)
		assert.Equal(t, wantOutcomes[i], res.Outcome, "raw_id %d", raw)
	}
	assert.Equal(t, 3, m.Len())
}

func TestChannelMapper_CapacityExhausted(t *testing.T) {
	m := NewChannelMapper()

	for raw := uint32(0); raw < MaxChannels; raw++ {
		res := m.Map(raw + 1000)
		require.Equal(t, MapAssigned, res.Outcome)
		require.Equal(t, int(raw), res.Channel)
	}

	// The 65th distinct raw id maps to nothing.
	res := m.Map(99_999)
	assert.Equal(t, MapExhausted, res.Outcome)
	assert.Equal(t, -1, res.Channel)

	// Existing mappings keep resolving after exhaustion.
	res = m.Map(1000)
	assert.Equal(t, MapExisting, res.Outcome)
	assert.Equal(t, 0, res.Channel)
}

func writeMappingFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mapping.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestChannelMapperFromFile_Preseed(t *testing.T) {
	path := writeMappingFile(t, `{"17": 4, "42": 0}`)

	m, err := NewChannelMapperFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, MapResult{Channel: 4, Outcome: MapExisting}, m.Map(17))
	assert.Equal(t, MapResult{Channel: 0, Outcome: MapExisting}, m.Map(42))

	// Auto-assignment continues above the highest pre-seeded channel.
	res := m.Map(99)
	assert.Equal(t, MapAssigned, res.Outcome)
	assert.Equal(t, 5, res.Channel)
}

func TestChannelMapperFromFile_InvalidEntries(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"channel too large", `{"1": 64}`},
		{"negative channel", `{"1": -1}`},
		{"non-numeric raw_id", `{"abc": 3}`},
		{"not an object", `[1, 2, 3]`},
		{"not json", `{"1": `},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeMappingFile(t, tt.content)
			_, err := NewChannelMapperFromFile(path)
			require.Error(t, err)
			assert.True(t, qerrors.IsInvalid(err), "mapping file errors are configuration errors")
		})
	}
}

func TestChannelMapperFromFile_Missing(t *testing.T) {
	_, err := NewChannelMapperFromFile(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
}

func TestChannelMapper_Describe(t *testing.T) {
	m := NewChannelMapper()
	assert.Equal(t, "<empty>", m.Describe())

	m.Map(9)
	m.Map(5)
	assert.Equal(t, "9:0, 5:1", m.Describe())
}

func TestChannelMapper_DescribeOrderedByChannel(t *testing.T) {
	path := writeMappingFile(t, `{"30": 2, "10": 0, "20": 1}`)
	m, err := NewChannelMapperFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("%d:0, %d:1, %d:2", 10, 20, 30), m.Describe())
}
