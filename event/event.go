// Package event defines the normalized detector event exchanged between
// the hardware adapter and the acquisition service, one JSON object per
// line (NDJSON).
package event

import (
	"encoding/json"

	"github.com/MaigomAS/Quicklook/errors"
)

// ADCMax is the largest value a 12-bit ADC reading can take
const ADCMax = 4095

// Flags carries the per-event trigger and quality bits
type Flags struct {
	TrgX     bool `json:"trg_x"`
	TrgG     bool `json:"trg_g"`
	NoData   bool `json:"no_data"`
	IsGEvent bool `json:"is_g_event"`
}

// Event is one normalized detector hit
type Event struct {
	TUs     int64 `json:"t_us"`
	Channel int   `json:"channel"`
	ADCX    int   `json:"adc_x"`
	ADCGTop int   `json:"adc_gtop"`
	ADCGBot int   `json:"adc_gbot"`
	Flags   Flags `json:"flags"`
}

// MarshalLine renders the event as one compact NDJSON line including
// the trailing newline
func (e Event) MarshalLine() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, errors.Wrap(err, "Event", "MarshalLine", "marshal event")
	}
	return append(data, '\n'), nil
}

// ParseLine parses one NDJSON line into a typed event. Producers use
// this for round-trip checks; the acquisition validator deliberately
// does its own tolerant field coercion instead.
func ParseLine(line []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(line, &e); err != nil {
		return Event{}, errors.WrapInvalid(err, "Event", "ParseLine", "parse event line")
	}
	return e, nil
}
