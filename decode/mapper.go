package decode

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/MaigomAS/Quicklook/errors"
)

// MaxChannels bounds the logical channel namespace
const MaxChannels = 64

// MapOutcome tags the result of a channel lookup so callers can report
// auto-assignment and capacity exhaustion instead of burying them in
// the lookup path.
type MapOutcome int

const (
	// MapExisting means the raw id was already mapped
	MapExisting MapOutcome = iota
	// MapAssigned means the raw id was auto-assigned a fresh channel
	MapAssigned
	// MapExhausted means no channels are left; the record must be dropped
	MapExhausted
)

// MapResult is the tagged result of ChannelMapper.Map
type MapResult struct {
	Channel int
	Outcome MapOutcome
}

// ChannelMapper maps hardware raw ids onto logical channels in
// [0, MaxChannels). Unknown ids are auto-assigned the next unused
// channel, first seen first served, until capacity is exhausted.
// Not safe for concurrent use; the decode pipeline is sequential.
type ChannelMapper struct {
	rawToChannel map[uint32]int
	nextChannel  int
}

// NewChannelMapper creates an empty mapper
func NewChannelMapper() *ChannelMapper {
	return &ChannelMapper{rawToChannel: make(map[uint32]int)}
}

// NewChannelMapperFromFile creates a mapper pre-seeded from a JSON
// object whose keys are decimal raw ids and values are channels in
// [0, 63]. Invalid entries are a hard configuration error.
func NewChannelMapperFromFile(path string) (*ChannelMapper, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapInvalid(err, "ChannelMapper", "NewChannelMapperFromFile", "read mapping file")
	}

	var payload map[string]int
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, errors.WrapInvalid(err, "ChannelMapper", "NewChannelMapperFromFile", "parse mapping file")
	}

	m := NewChannelMapper()
	for rawIDText, channel := range payload {
		rawID, err := strconv.ParseUint(rawIDText, 10, 32)
		if err != nil {
			return nil, errors.WrapInvalid(
				fmt.Errorf("invalid raw_id key %q: %w", rawIDText, err),
				"ChannelMapper", "NewChannelMapperFromFile", "parse raw_id")
		}
		if channel < 0 || channel >= MaxChannels {
			return nil, errors.WrapInvalid(
				fmt.Errorf("invalid channel %d for raw_id=%d; expected 0..%d: %w",
					channel, rawID, MaxChannels-1, errors.ErrInvalidMapping),
				"ChannelMapper", "NewChannelMapperFromFile", "validate channel")
		}
		m.rawToChannel[uint32(rawID)] = channel
		if channel+1 > m.nextChannel {
			m.nextChannel = channel + 1
		}
	}
	return m, nil
}

// Map returns the channel for a raw id, auto-assigning the next unused
// channel for first-seen ids. When capacity is exhausted the result is
// tagged MapExhausted and the caller must drop the record; this is a
// per-record condition, never fatal.
func (m *ChannelMapper) Map(rawID uint32) MapResult {
	if channel, ok := m.rawToChannel[rawID]; ok {
		return MapResult{Channel: channel, Outcome: MapExisting}
	}
	if m.nextChannel >= MaxChannels {
		return MapResult{Channel: -1, Outcome: MapExhausted}
	}
	channel := m.nextChannel
	m.rawToChannel[rawID] = channel
	m.nextChannel++
	return MapResult{Channel: channel, Outcome: MapAssigned}
}

// Len returns the number of assigned mappings
func (m *ChannelMapper) Len() int {
	return len(m.rawToChannel)
}

// Describe renders the mapping as "raw:channel, ..." ordered by channel,
// for operator-facing logs
func (m *ChannelMapper) Describe() string {
	if len(m.rawToChannel) == 0 {
		return "<empty>"
	}

	type pair struct {
		raw     uint32
		channel int
	}
	pairs := make([]pair, 0, len(m.rawToChannel))
	for raw, ch := range m.rawToChannel {
		pairs = append(pairs, pair{raw, ch})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].channel < pairs[j].channel })

	parts := make([]string, len(pairs))
	for i, p := range pairs {
		parts[i] = fmt.Sprintf("%d:%d", p.raw, p.channel)
	}
	return strings.Join(parts, ", ")
}
