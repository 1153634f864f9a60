package testutil

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/tphakala/go-midi-render/internal/synth"
)

// SineSoundfont plays every held note as a sine at velocity/127 * Gain with no
// release tail, so rendered audio stops exactly at the last note-off.
type SineSoundfont struct {
	path  string
	opts  synth.SoundfontOptions
	Gain  float32
	built atomic.Int64
}

// NewSineSoundfont returns a fake bank reporting path.
func NewSineSoundfont(path string) *SineSoundfont {
	return &SineSoundfont{path: path, opts: synth.DefaultSoundfontOptions(), Gain: 0.5}
}

// SineLoader returns a synth.Loader producing sine banks and counts calls per path.
func SineLoader(calls *sync.Map) synth.Loader {
	return func(path string, opts synth.SoundfontOptions) (synth.Soundfont, error) {
		n, _ := calls.LoadOrStore(path, new(atomic.Int64))
		n.(*atomic.Int64).Add(1)
		sf := NewSineSoundfont(path)
		sf.opts = opts
		return sf, nil
	}
}

// Path returns the configured path.
func (s *SineSoundfont) Path() string { return s.path }

// Options returns the configured options.
func (s *SineSoundfont) Options() synth.SoundfontOptions { return s.opts }

// Synthesizers returns how many synthesizers were created over this bank.
func (s *SineSoundfont) Synthesizers() int { return int(s.built.Load()) }

// NewSynthesizer creates a sine synthesizer.
func (s *SineSoundfont) NewSynthesizer(sampleRate uint32) (synth.Synthesizer, error) {
	s.built.Add(1)
	return &sineSynth{rate: float64(sampleRate), gain: s.Gain, held: map[int32]uint8{}}, nil
}

type sineSynth struct {
	rate  float64
	gain  float32
	phase float64
	held  map[int32]uint8 // key -> velocity, channel ignored
}

func (s *sineSynth) ProcessMidiMessage(_, command, data1, _ int32) {
	// All sound off and all notes off both silence immediately.
	if command == 0xB0 && (data1 == 120 || data1 == 123) {
		clear(s.held)
	}
}

func (s *sineSynth) NoteOn(_, key, velocity int32) {
	if velocity == 0 {
		delete(s.held, key)
		return
	}
	s.held[key] = uint8(velocity)
}

func (s *sineSynth) NoteOff(_, key int32) {
	delete(s.held, key)
}

func (s *sineSynth) Render(left, right []float32) {
	var amp float32
	for _, v := range s.held {
		amp = max(amp, float32(v)/127*s.gain)
	}
	step := 2 * math.Pi * 440 / s.rate
	for i := range left {
		v := amp * float32(math.Sin(s.phase))
		left[i], right[i] = v, v
		s.phase += step
	}
	s.phase = math.Mod(s.phase, 2*math.Pi)
}
