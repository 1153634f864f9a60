// Package dsp implements the processing chain that sits ahead of the codec
// writers. The only stage is a lookahead peak limiter, one per audio channel.
package dsp

import (
	"errors"
	"fmt"
	"math"

	"github.com/cwbudde/algo-dsp/dsp/core"

	"github.com/tphakala/go-midi-render/internal/pipeline"
)

// ErrInvalidLimiter is returned when limiter settings cannot be realised.
var ErrInvalidLimiter = errors.New("invalid limiter settings")

// LimiterSettings configures the lookahead limiter.
type LimiterSettings struct {
	Enabled     bool
	AttackMs    float64
	ReleaseMs   float64
	ThresholdDB float64 // Output ceiling in dBFS
	LookaheadMs float64
}

// DefaultLimiterSettings returns an enabled limiter with a 0 dBFS ceiling.
func DefaultLimiterSettings() LimiterSettings {
	return LimiterSettings{
		Enabled:     true,
		AttackMs:    DefaultAttackMs,
		ReleaseMs:   DefaultReleaseMs,
		ThresholdDB: DefaultThresholdDB,
		LookaheadMs: DefaultLookaheadMs,
	}
}

// Validate checks the time constants.
func (s LimiterSettings) Validate() error {
	if !s.Enabled {
		return nil
	}
	switch {
	case s.AttackMs <= 0:
		return fmt.Errorf("%w: attack must be positive, got %g ms", ErrInvalidLimiter, s.AttackMs)
	case s.ReleaseMs <= 0:
		return fmt.Errorf("%w: release must be positive, got %g ms", ErrInvalidLimiter, s.ReleaseMs)
	case s.LookaheadMs <= 0:
		return fmt.Errorf("%w: lookahead must be positive, got %g ms", ErrInvalidLimiter, s.LookaheadMs)
	case math.IsNaN(s.ThresholdDB) || math.IsInf(s.ThresholdDB, 0):
		return fmt.Errorf("%w: threshold must be finite", ErrInvalidLimiter)
	}
	return nil
}

// LinearThreshold converts the dBFS ceiling to an amplitude.
func (s LimiterSettings) LinearThreshold() float32 {
	return float32(core.DBToLinear(s.ThresholdDB))
}

// LookaheadSamples returns the window length at the given sample rate.
func (s LimiterSettings) LookaheadSamples(sampleRate uint32) int {
	return max(minWindowLength, int(math.Round(s.LookaheadMs*float64(sampleRate)/msPerSecond)))
}

// Limiter is a single-channel lookahead peak limiter. Samples are delayed by
// the lookahead window; Flush drains what is still held.
type Limiter struct {
	window    *pipeline.RingBuffer[float32]
	size      int
	threshold float32
	attack    float32
	release   float32
	envelope  float32

	// peaks holds indices of a decreasing run of |x| over the window.
	peaks  []peakEntry
	pushed int
	popped int
}

type peakEntry struct {
	index int
	value float32
}

// NewLimiter builds a limiter for one channel.
func NewLimiter(s LimiterSettings, sampleRate uint32) *Limiter {
	size := s.LookaheadSamples(sampleRate)
	return &Limiter{
		window:    pipeline.NewRingBuffer[float32](size + 1),
		size:      size,
		threshold: s.LinearThreshold(),
		attack:    timeCoefficient(s.AttackMs, sampleRate),
		release:   timeCoefficient(s.ReleaseMs, sampleRate),
	}
}

func timeCoefficient(ms float64, sampleRate uint32) float32 {
	return float32(math.Exp(-1 / (ms / msPerSecond * float64(sampleRate))))
}

// Latency returns the delay in samples between input and output.
func (l *Limiter) Latency() int {
	return l.size
}

// Process pushes x into the window. Once the window is full it returns the
// oldest sample with gain applied; before that ok is false.
func (l *Limiter) Process(x float32) (y float32, ok bool) {
	l.window.Push(x)
	l.track(x)
	if l.window.Available() <= l.size {
		return 0, false
	}
	return l.emit(), true
}

// Flush returns the samples still held in the lookahead window.
func (l *Limiter) Flush() []float32 {
	out := make([]float32, 0, l.window.Available())
	for l.window.Available() > 0 {
		out = append(out, l.emit())
	}
	return out
}

func (l *Limiter) track(x float32) {
	a := abs32(x)
	for len(l.peaks) > 0 && l.peaks[len(l.peaks)-1].value <= a {
		l.peaks = l.peaks[:len(l.peaks)-1]
	}
	l.peaks = append(l.peaks, peakEntry{index: l.pushed, value: a})
	l.pushed++
}

func (l *Limiter) emit() float32 {
	sample, _ := l.window.Pop()

	var windowPeak float32
	if len(l.peaks) > 0 {
		windowPeak = l.peaks[0].value
	}

	if windowPeak > l.envelope {
		l.envelope = l.attack*l.envelope + (1-l.attack)*windowPeak
	} else {
		l.envelope = l.release*l.envelope + (1-l.release)*windowPeak
	}
	l.envelope = float32(core.FlushDenormals(float64(l.envelope)))

	l.popped++
	for len(l.peaks) > 0 && l.peaks[0].index < l.popped {
		l.peaks = l.peaks[1:]
	}

	// The envelope lags a sudden rise; the popped sample itself is the ceiling guard.
	peak := max(l.envelope, abs32(sample))
	if peak > l.threshold {
		return sample * (l.threshold / peak)
	}
	return sample
}

func abs32(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}
