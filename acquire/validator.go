package acquire

import (
	"encoding/json"
	"math"
	"strconv"
)

// Rejection classifies why the validator dropped an event line
type Rejection int

// Validator verdicts
const (
	Accepted Rejection = iota
	RejectJSON
	RejectFields
	RejectTimestamp
	RejectChannel
)

// String returns the metric label for a rejection
func (r Rejection) String() string {
	switch r {
	case Accepted:
		return "accepted"
	case RejectJSON:
		return "invalid_json"
	case RejectFields:
		return "invalid_fields"
	case RejectTimestamp:
		return "invalid_timestamp"
	case RejectChannel:
		return "invalid_channel"
	default:
		return "unknown"
	}
}

// ValidatedEvent carries the coerced integer fields of one event line.
// It is populated for accepted and channel-rejected lines alike, so
// replay pacing can honor the timestamps of both.
type ValidatedEvent struct {
	TUs     int64
	Channel int
	ADCX    int
	ADCGTop int
	ADCGBot int
}

// ValidateLine parses one NDJSON line and coerces its fields, checking
// the timestamp and the channel range against the configured channel
// count. Validation is tolerant the way the aggregation inputs are in
// practice: numeric fields may arrive as JSON numbers or as numeric
// strings, and missing fields default (t_us to 0, channel to -1) so
// they fail the range checks rather than the parse.
func ValidateLine(line []byte, channels int) (ValidatedEvent, Rejection) {
	var raw map[string]any
	if err := json.Unmarshal(line, &raw); err != nil {
		return ValidatedEvent{}, RejectJSON
	}

	tUs, ok := coerceInt64(raw, "t_us", 0)
	if !ok {
		return ValidatedEvent{}, RejectFields
	}
	channel, ok := coerceInt64(raw, "channel", -1)
	if !ok {
		return ValidatedEvent{}, RejectFields
	}
	adcX, ok := coerceInt64(raw, "adc_x", 0)
	if !ok {
		return ValidatedEvent{}, RejectFields
	}
	adcGTop, ok := coerceInt64(raw, "adc_gtop", 0)
	if !ok {
		return ValidatedEvent{}, RejectFields
	}
	adcGBot, ok := coerceInt64(raw, "adc_gbot", 0)
	if !ok {
		return ValidatedEvent{}, RejectFields
	}

	if tUs <= 0 {
		return ValidatedEvent{}, RejectTimestamp
	}

	ev := ValidatedEvent{
		TUs:     tUs,
		Channel: int(channel),
		ADCX:    int(adcX),
		ADCGTop: int(adcGTop),
		ADCGBot: int(adcGBot),
	}
	if channel < 0 || channel >= int64(channels) {
		return ev, RejectChannel
	}
	return ev, Accepted
}

// coerceInt64 extracts an integer from a decoded JSON value. Absent
// keys take the default; present keys that cannot be coerced fail.
func coerceInt64(raw map[string]any, key string, defaultVal int64) (int64, bool) {
	val, exists := raw[key]
	if !exists || val == nil {
		return defaultVal, true
	}

	switch v := val.(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, false
		}
		return int64(v), true
	case string:
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}
