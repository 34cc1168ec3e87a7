package decode

import (
	"github.com/MaigomAS/Quicklook/event"
)

// TicksPerMicrosecond converts 10 MHz hardware ticks to microseconds
const TicksPerMicrosecond = 10

// Pipeline turns raw subrecords into normalized events: unpack the
// packed word, unwrap the 24-bit clock, map the hardware source id
// onto a logical channel. Stateful and strictly sequential; one
// pipeline per decoding run.
type Pipeline struct {
	clock  *ClockUnwrapper
	mapper *ChannelMapper
}

// NewPipeline creates a pipeline around an existing mapper (which may
// be pre-seeded from a mapping file). A zero unwrapThreshold selects
// the default backward-jump threshold.
func NewPipeline(mapper *ChannelMapper, unwrapThreshold uint64) *Pipeline {
	if mapper == nil {
		mapper = NewChannelMapper()
	}
	return &Pipeline{
		clock:  NewClockUnwrapper(unwrapThreshold),
		mapper: mapper,
	}
}

// Build converts one subrecord into a normalized event. The returned
// MapResult tells the caller whether the channel was already known,
// freshly auto-assigned (worth reporting to an operator), or exhausted,
// in which case the event is invalid and the record must be dropped.
//
// The clock is only advanced for records that map to a channel, so a
// flood of unmappable ids cannot perturb wrap tracking for the
// channels that matter.
func (p *Pipeline) Build(rec Subrecord) (event.Event, MapResult) {
	res := p.mapper.Map(rec.RawID)
	if res.Outcome == MapExhausted {
		return event.Event{}, res
	}

	fields := UnpackWord(rec.Word)
	unwrapped := p.clock.Unwrap(fields.TimeTicks)

	return event.Event{
		TUs:     int64(unwrapped / TicksPerMicrosecond),
		Channel: res.Channel,
		ADCX:    int(fields.ADCX),
		ADCGTop: int(fields.ADCGTop),
		ADCGBot: int(fields.ADCGBot),
		Flags: event.Flags{
			TrgX:     fields.TrgX,
			TrgG:     fields.TrgG,
			NoData:   fields.NoData,
			IsGEvent: fields.IsGEvent,
		},
	}, res
}

// Mapper exposes the pipeline's channel mapper for end-of-run reporting
func (p *Pipeline) Mapper() *ChannelMapper {
	return p.mapper
}
