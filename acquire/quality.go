package acquire

// QualityCounters tracks rejected input over one acquisition run. The
// counters reset when a run starts and only ever increase afterwards.
// Rejections increment counters in pairs: a coarse counter plus a more
// specific one, so dashboards can show either granularity.
type QualityCounters struct {
	InvalidJSON              int64 `json:"invalid_json"`
	InvalidJSONLines         int64 `json:"invalid_json_lines"`
	InvalidFields            int64 `json:"invalid_fields"`
	InvalidTimestampOrFields int64 `json:"invalid_timestamp_or_fields"`
	InvalidChannel           int64 `json:"invalid_channel"`
	InvalidChannelID         int64 `json:"invalid_channel_id"`
}

// Record increments the counter pair for one rejection
func (q *QualityCounters) Record(r Rejection) {
	switch r {
	case RejectJSON:
		q.InvalidJSON++
		q.InvalidJSONLines++
	case RejectFields:
		q.InvalidFields++
	case RejectTimestamp:
		q.InvalidFields++
		q.InvalidTimestampOrFields++
	case RejectChannel:
		q.InvalidChannel++
		q.InvalidChannelID++
	}
}

// Reset zeroes all counters for a new run
func (q *QualityCounters) Reset() {
	*q = QualityCounters{}
}
