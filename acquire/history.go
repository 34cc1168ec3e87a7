package acquire

// RateHistoryDepth bounds the per-channel rolling rate rings and the
// parallel window end-time ring
const RateHistoryDepth = 30

// RateHistory holds a rolling per-channel rate ring plus a parallel
// ring of window end-times, capped at RateHistoryDepth entries each.
// Oldest entries fall off as new windows close.
type RateHistory struct {
	rates   [MaxChannels][]float64
	endTime []int64
}

// NewRateHistory creates an empty history
func NewRateHistory() *RateHistory {
	return &RateHistory{}
}

// Reset clears all rings
func (h *RateHistory) Reset() {
	*h = RateHistory{}
}

// Append records one closed window: each channel's rate plus the
// window's end time. Rates must be indexed by channel and cover the
// active channel range.
func (h *RateHistory) Append(rates []float64, tEndUs int64) {
	for ch, rate := range rates {
		if ch >= MaxChannels {
			break
		}
		h.rates[ch] = appendCapped(h.rates[ch], rate)
	}
	h.endTime = appendCappedInt64(h.endTime, tEndUs)
}

// Rates returns a copy of one channel's rate ring, oldest first
func (h *RateHistory) Rates(channel int) []float64 {
	if channel < 0 || channel >= MaxChannels {
		return nil
	}
	out := make([]float64, len(h.rates[channel]))
	copy(out, h.rates[channel])
	return out
}

// EndTimes returns a copy of the window end-time ring, oldest first
func (h *RateHistory) EndTimes() []int64 {
	out := make([]int64, len(h.endTime))
	copy(out, h.endTime)
	return out
}

// Depth returns the number of recorded windows (0..RateHistoryDepth)
func (h *RateHistory) Depth() int {
	return len(h.endTime)
}

func appendCapped(ring []float64, v float64) []float64 {
	ring = append(ring, v)
	if len(ring) > RateHistoryDepth {
		ring = ring[len(ring)-RateHistoryDepth:]
	}
	return ring
}

func appendCappedInt64(ring []int64, v int64) []int64 {
	ring = append(ring, v)
	if len(ring) > RateHistoryDepth {
		ring = ring[len(ring)-RateHistoryDepth:]
	}
	return ring
}
