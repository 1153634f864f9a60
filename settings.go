package midirender

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/tphakala/go-midi-render/internal/dsp"
	"github.com/tphakala/go-midi-render/internal/renderer"
	"github.com/tphakala/go-midi-render/internal/synth"
	"github.com/tphakala/go-midi-render/internal/writer"
)

// RenderMode selects how events are turned into audio.
type RenderMode int

const (
	// ModeStandard renders exactly the span between events.
	ModeStandard RenderMode = iota
	// ModeRealtimeSimulation renders fixed windows the way a live output would,
	// quantising event timing to the window length.
	ModeRealtimeSimulation
)

// String returns the mode name.
func (m RenderMode) String() string {
	return m.internal().String()
}

func (m RenderMode) internal() renderer.Mode {
	if m == ModeRealtimeSimulation {
		return renderer.ModeRealtimeSimulation
	}
	return renderer.ModeStandard
}

// Concurrency selects what runs in parallel.
type Concurrency int

const (
	ConcurrencyNone Concurrency = iota
	// ConcurrencyParallelItems renders up to ParallelMIDIs files at once.
	ConcurrencyParallelItems
	// ConcurrencyParallelTracks renders the MIDI channels of a file in parallel.
	ConcurrencyParallelTracks
	ConcurrencyBoth
)

// String returns the policy name.
func (c Concurrency) String() string {
	switch c {
	case ConcurrencyNone:
		return "none"
	case ConcurrencyParallelItems:
		return "items"
	case ConcurrencyParallelTracks:
		return "tracks"
	case ConcurrencyBoth:
		return "both"
	default:
		return fmt.Sprintf("Concurrency(%d)", int(c))
	}
}

// ItemsParallel reports whether several files render at once.
func (c Concurrency) ItemsParallel() bool {
	return c == ConcurrencyParallelItems || c == ConcurrencyBoth
}

// TracksParallel reports whether channels of one file render in parallel.
func (c Concurrency) TracksParallel() bool {
	return c == ConcurrencyParallelTracks || c == ConcurrencyBoth
}

// Re-exported engine types so callers never import internal packages.
type (
	OutputFormat       = writer.Format
	SampleFormat       = writer.SampleFormat
	LimiterSettings    = dsp.LimiterSettings
	ChannelInitOptions = synth.ChannelInitOptions
	SoundfontOptions   = synth.SoundfontOptions
	Interpolator       = synth.Interpolator
)

const (
	SampleInt16   = writer.SampleInt16
	SampleFloat32 = writer.SampleFloat32

	InterpolatorNearest = synth.InterpolatorNearest
	InterpolatorLinear  = synth.InterpolatorLinear

	Mono   = synth.Mono
	Stereo = synth.Stereo
)

// PCMOutput writes WAV files.
func PCMOutput(sample SampleFormat) OutputFormat { return writer.PCM(sample) }

// VorbisOutput writes Ogg/Vorbis files targeting bitrate kb/s.
func VorbisOutput(bitrate int) OutputFormat { return writer.Vorbis(bitrate) }

// MP3Output writes LAME-encoded MP3 files at bitrate kb/s. Bitrates outside
// CommonBitrates fall back to 192.
func MP3Output(bitrate int) OutputFormat { return writer.MP3(bitrate) }

// OpusOutput writes Ogg/Opus files at bitrate kb/s.
func OpusOutput(bitrate int) OutputFormat { return writer.Opus(bitrate) }

// DefaultLimiterSettings returns the default limiter configuration.
func DefaultLimiterSettings() LimiterSettings { return dsp.DefaultLimiterSettings() }

// DefaultChannelInitOptions returns the default channel options.
func DefaultChannelInitOptions() ChannelInitOptions { return synth.DefaultChannelInitOptions() }

// DefaultSoundfontOptions returns soundfont options without overrides.
func DefaultSoundfontOptions() SoundfontOptions { return synth.DefaultSoundfontOptions() }

// VelocityRange is an inclusive range of note-on velocities.
type VelocityRange struct {
	Lo, Hi uint8
}

// Contains reports whether v lies in the range.
func (r VelocityRange) Contains(v uint8) bool {
	return v >= r.Lo && v <= r.Hi
}

// Settings is the batch-wide render configuration. A batch takes a copy when
// it starts; later changes do not affect it.
type Settings struct {
	// SampleRate of the rendered audio in Hz.
	SampleRate uint32

	// AudioChannels is Mono or Stereo.
	AudioChannels uint16

	// Mode selects standard or realtime-simulation rendering.
	Mode RenderMode

	// Concurrency selects what runs in parallel.
	Concurrency Concurrency

	// ParallelMIDIs caps concurrently rendering files when items run in parallel.
	ParallelMIDIs int

	// OutputDir receives one file per input.
	OutputDir string

	// Format is the output codec.
	Format OutputFormat

	// VelocityIgnore drops note-ons whose velocity falls in the range.
	VelocityIgnore VelocityRange

	// Limiter configures the output limiter.
	Limiter LimiterSettings

	// RealtimeBufferMs is the realtime-simulation window length.
	RealtimeBufferMs float64
}

// DefaultSettings returns the settings of a fresh installation.
func DefaultSettings() Settings {
	return Settings{
		SampleRate:       DefaultSampleRate,
		AudioChannels:    Stereo,
		Mode:             ModeStandard,
		Concurrency:      ConcurrencyNone,
		ParallelMIDIs:    1,
		OutputDir:        ".",
		Format:           PCMOutput(SampleFloat32),
		VelocityIgnore:   VelocityRange{Lo: 0, Hi: 0},
		Limiter:          DefaultLimiterSettings(),
		RealtimeBufferMs: renderer.DefaultBufferMs,
	}
}

// Validate checks the settings.
func (s *Settings) Validate() error {
	if err := synth.ValidateSampleRate(s.SampleRate); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSettings, err)
	}
	if s.AudioChannels != Mono && s.AudioChannels != Stereo {
		return fmt.Errorf("%w: audio channels must be 1 or 2, got %d", ErrInvalidSettings, s.AudioChannels)
	}
	if s.Mode != ModeStandard && s.Mode != ModeRealtimeSimulation {
		return fmt.Errorf("%w: unknown render mode %d", ErrInvalidSettings, int(s.Mode))
	}
	if s.Concurrency < ConcurrencyNone || s.Concurrency > ConcurrencyBoth {
		return fmt.Errorf("%w: unknown concurrency policy %d", ErrInvalidSettings, int(s.Concurrency))
	}
	if s.Concurrency.ItemsParallel() && s.ParallelMIDIs < 1 {
		return fmt.Errorf("%w: parallel MIDIs must be at least 1", ErrInvalidSettings)
	}
	if s.VelocityIgnore.Lo > s.VelocityIgnore.Hi {
		return fmt.Errorf("%w: velocity ignore range %d..%d is inverted",
			ErrInvalidSettings, s.VelocityIgnore.Lo, s.VelocityIgnore.Hi)
	}
	if s.RealtimeBufferMs < 0 {
		return fmt.Errorf("%w: realtime buffer must not be negative", ErrInvalidSettings)
	}
	if err := s.Format.Validate(s.SampleRate, s.AudioChannels); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSettings, err)
	}
	if err := s.Limiter.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSettings, err)
	}
	return nil
}

// MaxParallel returns how many files may render at once.
func (s *Settings) MaxParallel() int {
	if s.Concurrency.ItemsParallel() {
		return max(1, s.ParallelMIDIs)
	}
	return 1
}

// OutputPath returns where the render of midiPath is written.
func (s *Settings) OutputPath(midiPath string) string {
	base := filepath.Base(midiPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(s.OutputDir, stem+"."+s.Format.Extension())
}

func (s *Settings) streamParams() synth.StreamParams {
	return synth.StreamParams{SampleRate: s.SampleRate, Channels: s.AudioChannels}
}

func (s *Settings) fanOutWorkers() int {
	if s.Concurrency.TracksParallel() {
		return runtime.GOMAXPROCS(0)
	}
	return 1
}

// SoundfontRef names a soundfont file and how a channel uses it. The path is
// the identity: every reference to one path shares one loaded bank.
type SoundfontRef struct {
	Path    string
	Options SoundfontOptions
}

// ChannelSettings configures one MIDI channel.
type ChannelSettings struct {
	Init ChannelInitOptions

	// LayerLimit caps sounding notes on the channel; nil means unlimited.
	LayerLimit *int

	// Soundfonts in priority order; the first one that loaded is used.
	Soundfonts []SoundfontRef

	// UseThreadpool gives the channel its own goroutine when tracks render in parallel.
	UseThreadpool bool
}

// DefaultChannelSettings returns the channel defaults: 16 layers, fade-out
// killing and a dedicated goroutine.
func DefaultChannelSettings() ChannelSettings {
	layers := DefaultLayerLimit
	return ChannelSettings{
		Init:          DefaultChannelInitOptions(),
		LayerLimit:    &layers,
		UseThreadpool: true,
	}
}

// UniformChannels applies cs to all 16 MIDI channels.
func UniformChannels(cs ChannelSettings) []ChannelSettings {
	out := make([]ChannelSettings, synth.MIDIChannels)
	for i := range out {
		out[i] = cs
	}
	return out
}

// ValidateChannels checks a full set of channel settings.
func ValidateChannels(channels []ChannelSettings) error {
	if len(channels) != synth.MIDIChannels {
		return fmt.Errorf("%w: need %d channel settings, got %d", ErrInvalidSettings, synth.MIDIChannels, len(channels))
	}
	for i, cs := range channels {
		if cs.LayerLimit != nil && *cs.LayerLimit < 1 {
			return fmt.Errorf("%w: channel %d layer limit must be positive", ErrInvalidSettings, i)
		}
		if err := synth.CheckVoiceOptions(cs.Init.Interpolator, cs.Init.LinearRelease); err != nil {
			return fmt.Errorf("%w: channel %d: %w", ErrInvalidSettings, i, err)
		}
		for _, ref := range cs.Soundfonts {
			if ref.Path == "" {
				return fmt.Errorf("%w: channel %d has an empty soundfont path", ErrInvalidSettings, i)
			}
			if err := synth.CheckVoiceOptions(ref.Options.Interpolator, ref.Options.LinearRelease); err != nil {
				return fmt.Errorf("%w: channel %d soundfont %s: %w", ErrInvalidSettings, i, ref.Path, err)
			}
		}
	}
	return nil
}

// distinctSoundfonts lists every referenced path once, in first-use order.
// The first reference decides the load options.
func distinctSoundfonts(channels []ChannelSettings) []SoundfontRef {
	seen := make(map[string]bool)
	var refs []SoundfontRef
	for _, cs := range channels {
		for _, ref := range cs.Soundfonts {
			if seen[ref.Path] {
				continue
			}
			seen[ref.Path] = true
			refs = append(refs, ref)
		}
	}
	return refs
}
