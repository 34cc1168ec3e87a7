package acquire

import "github.com/MaigomAS/Quicklook/event"

const (
	// HistogramBins is the number of ADC spectrum buckets per channel
	HistogramBins = 64
	// MaxChannels bounds the logical channel namespace
	MaxChannels = 64
	// ADCDivisor maps a clamped 12-bit ADC value onto a bucket
	ADCDivisor = 64
)

// adcToBin clamps an ADC value into [0, 4095] and maps it onto one of
// the 64 spectrum buckets.
func adcToBin(adc int) int {
	if adc < 0 {
		adc = 0
	}
	if adc > event.ADCMax {
		adc = event.ADCMax
	}
	bin := adc / ADCDivisor
	if bin > HistogramBins-1 {
		bin = HistogramBins - 1
	}
	return bin
}

// Histogram is one channel's 64-bucket ADC spectrum
type Histogram [HistogramBins]int64

// Window accumulates validated events until its event-time span
// reaches the configured duration. Channel count is bounded, so the
// per-channel state lives in fixed arrays indexed by channel rather
// than in keyed maps.
type Window struct {
	WindowS  int
	TStartUs int64
	TEndUs   int64

	Counts   [MaxChannels]int64
	HistX    [MaxChannels]Histogram
	HistGTop [MaxChannels]Histogram
	HistGBot [MaxChannels]Histogram

	Notes []string
}

// NewWindow creates an empty window with the given target duration
func NewWindow(windowS int) *Window {
	return &Window{WindowS: windowS}
}

// Reset clears the window back to empty, keeping the duration
func (w *Window) Reset() {
	windowS := w.WindowS
	*w = Window{WindowS: windowS}
}

// HasData reports whether any event has been accepted into the window
func (w *Window) HasData() bool {
	return w.TStartUs != 0
}

// Add accumulates one accepted event
func (w *Window) Add(ev ValidatedEvent) {
	if w.TStartUs == 0 {
		w.TStartUs = ev.TUs
	}
	w.TEndUs = ev.TUs

	w.Counts[ev.Channel]++
	w.HistX[ev.Channel][adcToBin(ev.ADCX)]++
	w.HistGTop[ev.Channel][adcToBin(ev.ADCGTop)]++
	w.HistGBot[ev.Channel][adcToBin(ev.ADCGBot)]++
}

// ShouldClose reports whether the window has spanned its target
// duration in event time. An event exactly at the boundary belongs to
// the window being closed.
func (w *Window) ShouldClose() bool {
	return w.HasData() && w.TEndUs-w.TStartUs >= int64(w.WindowS)*1_000_000
}

// EventCount returns the total accepted events in the window
func (w *Window) EventCount() int64 {
	var total int64
	for _, c := range w.Counts {
		total += c
	}
	return total
}
