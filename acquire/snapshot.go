package acquire

import "strconv"

// SnapshotHistograms groups the three per-channel ADC spectra. Keys
// are decimal channel numbers; dashboards treat them as opaque JSON
// object keys.
type SnapshotHistograms struct {
	ADCX    map[string][]int64 `json:"adc_x"`
	ADCGTop map[string][]int64 `json:"adc_gtop"`
	ADCGBot map[string][]int64 `json:"adc_gbot"`
}

// Snapshot is the immutable published view of one closed window plus
// the run's rolling rate history and quality counters. Exactly one
// snapshot is retained; publishing replaces the previous one.
type Snapshot struct {
	WindowS           int                  `json:"window_s"`
	TStartUs          int64                `json:"t_start_us"`
	TEndUs            int64                `json:"t_end_us"`
	Channels          []int                `json:"channels"`
	CountsByChannel   map[string]int64     `json:"counts_by_channel"`
	Histograms        SnapshotHistograms   `json:"histograms"`
	Ratemap8x8        [8][8]float64        `json:"ratemap_8x8"`
	RateHistory       map[string][]float64 `json:"rate_history"`
	RateHistoryTEndUs []int64              `json:"rate_history_t_end_us"`
	Quality           QualityCounters      `json:"quality"`
	Notes             []string             `json:"notes"`
	RunID             string               `json:"run_id,omitempty"`
}

// EmptySnapshot returns the placeholder served before any window has
// closed
func EmptySnapshot(windowS int) *Snapshot {
	return &Snapshot{
		WindowS:         windowS,
		Channels:        []int{},
		CountsByChannel: map[string]int64{},
		Histograms: SnapshotHistograms{
			ADCX:    map[string][]int64{},
			ADCGTop: map[string][]int64{},
			ADCGBot: map[string][]int64{},
		},
		RateHistory:       map[string][]float64{},
		RateHistoryTEndUs: []int64{},
		Notes:             []string{"no data yet"},
	}
}

// Rates returns count/window_s for every channel in [0, channels)
func (w *Window) Rates(channels int) []float64 {
	rates := make([]float64, channels)
	for ch := 0; ch < channels && ch < MaxChannels; ch++ {
		rates[ch] = float64(w.Counts[ch]) / float64(w.WindowS)
	}
	return rates
}

// BuildSnapshot converts a window into a snapshot covering every
// channel in [0, channels): absent channels appear with a zero count
// and all-zero histograms so consumers never need to fill gaps. The
// rate history is copied as-is; the caller appends the closing
// window's rates before building.
func BuildSnapshot(w *Window, channels int, history *RateHistory, quality QualityCounters, runID string) *Snapshot {
	if channels > MaxChannels {
		channels = MaxChannels
	}

	snap := &Snapshot{
		WindowS:         w.WindowS,
		TStartUs:        w.TStartUs,
		TEndUs:          w.TEndUs,
		Channels:        make([]int, channels),
		CountsByChannel: make(map[string]int64, channels),
		Histograms: SnapshotHistograms{
			ADCX:    make(map[string][]int64, channels),
			ADCGTop: make(map[string][]int64, channels),
			ADCGBot: make(map[string][]int64, channels),
		},
		RateHistory:       make(map[string][]float64, channels),
		RateHistoryTEndUs: history.EndTimes(),
		Quality:           quality,
		Notes:             append([]string{}, w.Notes...),
		RunID:             runID,
	}

	for ch := 0; ch < channels; ch++ {
		key := strconv.Itoa(ch)
		snap.Channels[ch] = ch
		snap.CountsByChannel[key] = w.Counts[ch]
		snap.Histograms.ADCX[key] = histSlice(w.HistX[ch])
		snap.Histograms.ADCGTop[key] = histSlice(w.HistGTop[ch])
		snap.Histograms.ADCGBot[key] = histSlice(w.HistGBot[ch])
		snap.RateHistory[key] = history.Rates(ch)

		row, col := ch/8, ch%8
		if row < 8 && col < 8 {
			snap.Ratemap8x8[row][col] = float64(w.Counts[ch]) / float64(w.WindowS)
		}
	}

	return snap
}

func histSlice(h Histogram) []int64 {
	out := make([]int64, HistogramBins)
	copy(out, h[:])
	return out
}
