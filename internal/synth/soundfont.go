package synth

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"reflect"

	"github.com/sinshu/go-meltysynth/meltysynth"
)

// ErrUnsupportedSampleRate is returned for rates outside [MinSampleRate, MaxSampleRate].
var ErrUnsupportedSampleRate = errors.New("unsupported synthesis sample rate")

// Synthesizer is the subset of meltysynth.Synthesizer a voice channel drives.
type Synthesizer interface {
	ProcessMidiMessage(channel int32, command int32, data1 int32, data2 int32)
	NoteOn(channel int32, key int32, velocity int32)
	NoteOff(channel int32, key int32)
	Render(left []float32, right []float32)
}

// VoiceReporter is implemented by synthesizers that can report how many
// voices are sounding, including layered voices and voices in release.
// A negative count means the figure is unavailable.
type VoiceReporter interface {
	ActiveVoices() int
}

// Soundfont is a loaded instrument bank. Implementations are shared read-only
// between channels and jobs; every channel gets its own Synthesizer.
type Soundfont interface {
	Path() string
	Options() SoundfontOptions
	NewSynthesizer(sampleRate uint32) (Synthesizer, error)
}

// Loader parses the bank at path.
type Loader func(path string, opts SoundfontOptions) (Soundfont, error)

// SampleSoundfont is an SF2 bank played by meltysynth.
type SampleSoundfont struct {
	path string
	opts SoundfontOptions
	sf   *meltysynth.SoundFont
}

// LoadSoundfont reads and parses an SF2 file. It satisfies Loader.
func LoadSoundfont(path string, opts SoundfontOptions) (Soundfont, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open soundfont: %w", err)
	}
	defer func() { _ = f.Close() }()

	sf, err := meltysynth.NewSoundFont(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("failed to parse soundfont %s: %w", path, err)
	}
	return &SampleSoundfont{path: path, opts: opts, sf: sf}, nil
}

// Path returns the file the bank was loaded from.
func (s *SampleSoundfont) Path() string { return s.path }

// Options returns the overrides the bank was loaded with.
func (s *SampleSoundfont) Options() SoundfontOptions { return s.opts }

// NewSynthesizer creates an independent synthesizer over the shared bank.
func (s *SampleSoundfont) NewSynthesizer(sampleRate uint32) (Synthesizer, error) {
	if err := ValidateSampleRate(sampleRate); err != nil {
		return nil, err
	}
	settings := meltysynth.NewSynthesizerSettings(int32(sampleRate))
	settings.EnableReverbAndChorus = s.opts.UseEffects

	synth, err := meltysynth.NewSynthesizer(s.sf, settings)
	if err != nil {
		return nil, fmt.Errorf("failed to create synthesizer: %w", err)
	}
	return newEngineSynth(synth), nil
}

// engineSynth adds voice accounting to meltysynth, which keeps its voice
// collection unexported. The count is read from the live field.
type engineSynth struct {
	*meltysynth.Synthesizer
	active reflect.Value
}

func newEngineSynth(s *meltysynth.Synthesizer) *engineSynth {
	e := &engineSynth{Synthesizer: s}
	voices := reflect.ValueOf(s).Elem().FieldByName("voices")
	if !voices.IsValid() || voices.Kind() != reflect.Pointer || voices.IsNil() {
		return e
	}
	if n := voices.Elem().FieldByName("activeVoiceCount"); n.IsValid() && n.CanInt() {
		e.active = n
	}
	return e
}

// ActiveVoices returns the engine's sounding voices, or -1 when the engine
// layout is not recognised.
func (e *engineSynth) ActiveVoices() int {
	if !e.active.IsValid() {
		return -1
	}
	return int(e.active.Int())
}

// ValidateSampleRate checks a rate against the engine's window.
func ValidateSampleRate(sampleRate uint32) error {
	if sampleRate < MinSampleRate || sampleRate > MaxSampleRate {
		return fmt.Errorf("%w: %d Hz (supported %d-%d)",
			ErrUnsupportedSampleRate, sampleRate, MinSampleRate, MaxSampleRate)
	}
	return nil
}
