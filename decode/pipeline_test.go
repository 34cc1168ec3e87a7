package decode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MaigomAS/Quicklook/event"
)

func TestPipeline_BuildEvent(t *testing.T) {
	p := NewPipeline(nil, 0)

	word := PackWord(Fields{
		ADCX:      1800,
		ADCGTop:   2500,
		ADCGBot:   2300,
		TimeTicks: 1_000_000, // 100 ms
		TrgX:      true,
		IsGEvent:  true,
	})

	ev, res := p.Build(Subrecord{RawID: 77, Word: word})
	require.Equal(t, MapAssigned, res.Outcome)

	assert.Equal(t, event.Event{
		TUs:     100_000,
		Channel: 0,
		ADCX:    1800,
		ADCGTop: 2500,
		ADCGBot: 2300,
		Flags:   event.Flags{TrgX: true, IsGEvent: true},
	}, ev)
}

func TestPipeline_TimeUnwrapsAcrossRecords(t *testing.T) {
	p := NewPipeline(nil, 0)

	_, _ = p.Build(Subrecord{RawID: 1, Word: PackWord(Fields{TimeTicks: 9_999_990})})
	ev, res := p.Build(Subrecord{RawID: 1, Word: PackWord(Fields{TimeTicks: 5})})

	require.Equal(t, MapExisting, res.Outcome)
	// 10_000_005 ticks / 10 ticks per microsecond.
	assert.Equal(t, int64(1_000_000), ev.TUs)
}

func TestPipeline_ExhaustedChannelsDoNotAdvanceClock(t *testing.T) {
	mapper := NewChannelMapper()
	for raw := uint32(0); raw < MaxChannels; raw++ {
		mapper.Map(raw)
	}
	p := NewPipeline(mapper, 0)

	// Unmappable record near the wrap point must not poison the tracker.
	_, res := p.Build(Subrecord{RawID: 9999, Word: PackWord(Fields{TimeTicks: 9_999_999})})
	require.Equal(t, MapExhausted, res.Outcome)

	ev, res := p.Build(Subrecord{RawID: 0, Word: PackWord(Fields{TimeTicks: 100})})
	require.Equal(t, MapExisting, res.Outcome)
	assert.Equal(t, int64(10), ev.TUs, "no wrap offset should have been applied")
}
