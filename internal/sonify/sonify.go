// Package sonify is an operator-console nicety, not on the
// reconstruction critical path: it renders ingest backpressure
// (ring-eviction rate, dropped-frame rate) as an audible tone whose
// pitch tracks queue depth, so an operator standing away from a monitor
// can hear the pipeline falling behind. Grounded on audio_chip.go's sine
// oscillator (Channel.generateSample's WAVE_SINE case) and
// audio_backend_oto.go's oto.Player/io.Reader pump, generalised from a
// multi-channel synth to a single backpressure-driven oscillator.
package sonify

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/ebitengine/oto/v3"
)

const (
	sampleRate = 44100
	baseHz     = 220.0  // pitch when the pipeline is idle
	maxHz      = 1760.0 // pitch at the configured saturation rate
	twoPi      = 2 * math.Pi
)

// Monitor accumulates backpressure events and derives the oscillator's
// target frequency from their rate over a sliding window.
type Monitor struct {
	evictions atomic.Int64
	drops     atomic.Int64

	windowStart atomic.Int64 // unix nanos; not set by Tick, which takes the elapsed window as an argument
	satRate     float64      // events/sec that maps to maxHz

	freqBits atomic.Uint64 // math.Float64bits(currentHz), updated by Tick
}

// NewMonitor builds a Monitor that reaches maxHz once combined
// eviction+drop events exceed satRate per second.
func NewMonitor(satRate float64) *Monitor {
	m := &Monitor{satRate: satRate}
	m.freqBits.Store(math.Float64bits(baseHz))
	return m
}

// RecordEviction registers one ring-eviction event (§4.3 backpressure).
func (m *Monitor) RecordEviction() { m.evictions.Add(1) }

// RecordDrop registers one dropped-frame event (late frame, pre-
// calibration drop, protocol error).
func (m *Monitor) RecordDrop() { m.drops.Add(1) }

// Tick samples the event counters over elapsed and updates the target
// frequency. Call it periodically (e.g. every 500ms) from a single
// goroutine; Frequency is safe to read concurrently from the audio
// callback.
func (m *Monitor) Tick(elapsed time.Duration) {
	if elapsed <= 0 {
		return
	}
	n := m.evictions.Swap(0) + m.drops.Swap(0)
	rate := float64(n) / elapsed.Seconds()
	frac := rate / m.satRate
	if frac > 1 {
		frac = 1
	}
	hz := baseHz + frac*(maxHz-baseHz)
	m.freqBits.Store(math.Float64bits(hz))
}

// Frequency returns the oscillator's current target pitch in Hz.
func (m *Monitor) Frequency() float64 {
	return math.Float64frombits(m.freqBits.Load())
}

// Player drives an oto.Context with a sine wave at the Monitor's current
// frequency, exactly as OtoPlayer.Read pulls samples from SoundChip's
// ring on demand rather than pre-rendering.
type Player struct {
	monitor *Monitor
	phase   float64
	ctx     *oto.Context
	player  *oto.Player
}

// NewPlayer opens an oto context and binds it to monitor's frequency.
func NewPlayer(monitor *Monitor) (*Player, error) {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 1,
		Format:       oto.FormatFloat32LE,
		BufferSize:   4,
	})
	if err != nil {
		return nil, err
	}
	<-ready
	p := &Player{monitor: monitor, ctx: ctx}
	p.player = ctx.NewPlayer(p)
	return p, nil
}

// Read implements io.Reader for the oto player, synthesising a sine wave
// whose frequency is resampled from the monitor once per Read call (fine
// grained enough at typical buffer sizes of a few hundred samples).
func (p *Player) Read(out []byte) (int, error) {
	hz := p.monitor.Frequency()
	step := twoPi * hz / sampleRate
	n := len(out) / 4
	for i := 0; i < n; i++ {
		v := float32(0.2 * math.Sin(p.phase))
		bits := math.Float32bits(v)
		off := i * 4
		out[off] = byte(bits)
		out[off+1] = byte(bits >> 8)
		out[off+2] = byte(bits >> 16)
		out[off+3] = byte(bits >> 24)
		p.phase += step
		if p.phase >= twoPi {
			p.phase -= twoPi
		}
	}
	return n * 4, nil
}

// Start begins playback.
func (p *Player) Start() { p.player.Play() }

// Close stops playback and releases the oto player.
func (p *Player) Close() error {
	p.player.Close()
	return nil
}
