package main

import (
	"math"
	"math/rand"
	"time"

	"github.com/MaigomAS/Quicklook/event"
)

// Burst behavior: every burstInterval a random quarter of the channels
// runs hot at burstMultiplier for burstDuration.
const (
	burstInterval        = 12 * time.Second
	burstDuration        = 3 * time.Second
	burstMultiplier      = 3.5
	burstChannelFraction = 0.25
)

// distribution parameterizes the synthetic ADC spectra. The g and x
// populations are Gaussian with a low-energy tail mixed in; the gtop
// and gbot readouts track the main value with fixed offsets.
type distribution struct {
	GMean         float64 `json:"g_mean"`
	GStd          float64 `json:"g_std"`
	XMean         float64 `json:"x_mean"`
	XStd          float64 `json:"x_std"`
	GTopOffset    float64 `json:"gtop_offset"`
	GBotOffset    float64 `json:"gbot_offset"`
	GTopStdOffset float64 `json:"gtop_std_offset"`
	GBotStdOffset float64 `json:"gbot_std_offset"`
	LowProb       float64 `json:"low_prob"`
	LowMean       float64 `json:"low_mean"`
	LowStd        float64 `json:"low_std"`
	NoDataProb    float64 `json:"no_data_prob"`
	TrgXProb      float64 `json:"trg_x_prob"`
	TrgGProb      float64 `json:"trg_g_prob"`
	GEventProb    float64 `json:"g_event_prob"`
}

func defaultDistribution() distribution {
	return distribution{
		GMean:         2400,
		GStd:          250,
		XMean:         1800,
		XStd:          180,
		GTopOffset:    120,
		GBotOffset:    -120,
		GTopStdOffset: 20,
		GBotStdOffset: 25,
		LowProb:       0.08,
		LowMean:       300,
		LowStd:        120,
		NoDataProb:    0.005,
		TrgXProb:      0.2,
		TrgGProb:      0.15,
		GEventProb:    0.35,
	}
}

// generator produces synthetic detector events with a weighted channel
// profile, an optional burst mode, and a synthetic event clock that
// advances at the nominal rate regardless of wall-clock jitter.
type generator struct {
	rng  *rand.Rand
	dist distribution

	channels    int
	weights     []float64
	totalWeight float64

	burstEnabled  bool
	burstActive   bool
	burstChannels []bool
	nextBurst     time.Time
	burstEnd      time.Time

	tUs    int64
	stepUs int64
}

func newGenerator(cfg *simConfig, rng *rand.Rand) *generator {
	g := &generator{
		rng:           rng,
		dist:          cfg.Distribution,
		channels:      cfg.Channels,
		weights:       make([]float64, cfg.Channels),
		burstEnabled:  cfg.Burst,
		burstChannels: make([]bool, cfg.Channels),
		tUs:           time.Now().UnixMicro(),
		stepUs:        int64(1e6 / cfg.RateHz),
		nextBurst:     time.Now().Add(burstInterval),
	}

	dead := make(map[int]bool, len(cfg.DeadChannels))
	for _, ch := range cfg.DeadChannels {
		dead[ch] = true
	}

	for ch := range g.weights {
		switch {
		case dead[ch]:
			g.weights[ch] = 0
		case ch < len(cfg.RateMultipliers):
			g.weights[ch] = cfg.RateMultipliers[ch]
		default:
			g.weights[ch] = 0.5 + rng.Float64()
		}
	}
	g.recomputeTotalWeight()
	return g
}

// Rates returns the effective per-channel event rates in Hz for the
// given nominal rate, for startup logging.
func (g *generator) Rates(rateHz float64) []float64 {
	rates := make([]float64, g.channels)
	if g.totalWeight <= 0 {
		return rates
	}
	for ch, w := range g.weights {
		rates[ch] = w / g.totalWeight * rateHz
	}
	return rates
}

func (g *generator) recomputeTotalWeight() {
	g.totalWeight = 0
	for ch, w := range g.weights {
		if g.burstActive && g.burstChannels[ch] {
			w *= burstMultiplier
		}
		g.totalWeight += w
	}
}

func (g *generator) updateBurst(now time.Time) {
	if !g.burstEnabled {
		return
	}
	if !g.burstActive && now.After(g.nextBurst) {
		g.burstActive = true
		g.burstEnd = now.Add(burstDuration)
		g.chooseBurstChannels()
		g.recomputeTotalWeight()
	}
	if g.burstActive && now.After(g.burstEnd) {
		g.burstActive = false
		g.nextBurst = now.Add(burstInterval)
		g.recomputeTotalWeight()
	}
}

func (g *generator) chooseBurstChannels() {
	count := int(math.Ceil(float64(g.channels) * burstChannelFraction))
	if count < 1 {
		count = 1
	}
	for ch := range g.burstChannels {
		g.burstChannels[ch] = false
	}
	for i := 0; i < count; i++ {
		g.burstChannels[g.rng.Intn(g.channels)] = true
	}
}

func (g *generator) pickChannel() int {
	r := g.rng.Float64() * g.totalWeight
	accum := 0.0
	for ch, w := range g.weights {
		if g.burstActive && g.burstChannels[ch] {
			w *= burstMultiplier
		}
		accum += w
		if r <= accum {
			return ch
		}
	}
	return g.channels - 1
}

// Next produces one event and advances the synthetic clock
func (g *generator) Next(now time.Time) event.Event {
	g.updateBurst(now)

	d := g.dist
	isGEvent := g.rng.Float64() < d.GEventProb
	noData := g.rng.Float64() < d.NoDataProb

	baseMean, baseStd := d.XMean, d.XStd
	if isGEvent {
		baseMean, baseStd = d.GMean, d.GStd
	}

	adcX := g.sample(baseMean, baseStd)
	adcGTop := g.sample(baseMean+d.GTopOffset, baseStd+d.GTopStdOffset)
	adcGBot := g.sample(baseMean+d.GBotOffset, baseStd+d.GBotStdOffset)

	// Low-energy tail, mixed in per readout.
	if g.rng.Float64() < d.LowProb {
		adcX = g.sample(d.LowMean, d.LowStd)
	}
	if g.rng.Float64() < d.LowProb {
		adcGTop = g.sample(d.LowMean+50, d.LowStd+10)
	}
	if g.rng.Float64() < d.LowProb {
		adcGBot = g.sample(d.LowMean-20, d.LowStd-10)
	}

	if noData {
		adcX, adcGTop, adcGBot = 0, 0, 0
	}

	ev := event.Event{
		TUs:     g.tUs,
		Channel: g.pickChannel(),
		ADCX:    adcX,
		ADCGTop: adcGTop,
		ADCGBot: adcGBot,
		Flags: event.Flags{
			TrgX:     g.rng.Float64() < d.TrgXProb,
			TrgG:     g.rng.Float64() < d.TrgGProb,
			NoData:   noData,
			IsGEvent: isGEvent,
		},
	}
	g.tUs += g.stepUs
	return ev
}

func (g *generator) sample(mean, std float64) int {
	v := int(math.Round(g.rng.NormFloat64()*std + mean))
	if v < 0 {
		return 0
	}
	if v > event.ADCMax {
		return event.ADCMax
	}
	return v
}
