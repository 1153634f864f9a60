package synth

import (
	"errors"
	"fmt"
)

// Audio channel layouts
const (
	Mono   uint16 = 1
	Stereo uint16 = 2
)

// MIDI constants
const (
	MIDIChannels      = 16
	PercussionChannel = 9 // General MIDI drum channel
	pitchBendCenter   = 8192
	pitchBendMax      = 16383
	maxDataByte       = 127
)

// Engine sample-rate window accepted by the sample-based synthesizer.
const (
	MinSampleRate = 16000
	MaxSampleRate = 192000
)

// StreamParams describes the interleaved PCM a renderer produces.
type StreamParams struct {
	SampleRate uint32
	Channels   uint16
}

// Interpolator selects the sample interpolation used by voices. The engine
// only implements linear interpolation, which is the zero value.
type Interpolator int

const (
	InterpolatorLinear Interpolator = iota
	InterpolatorNearest
)

// String returns the interpolator name.
func (i Interpolator) String() string {
	switch i {
	case InterpolatorNearest:
		return "nearest"
	case InterpolatorLinear:
		return "linear"
	default:
		return "unknown"
	}
}

// ChannelInitOptions are fixed when a channel is created.
type ChannelInitOptions struct {
	FadeOutKilling bool // Voices killed by AllNotesKilled release instead of cutting
	DrumsOnly      bool // Route every event to the percussion channel
	LinearRelease  bool // Unsupported, the engine releases exponentially
	Interpolator   Interpolator
}

// DefaultChannelInitOptions matches the batch renderer defaults.
func DefaultChannelInitOptions() ChannelInitOptions {
	return ChannelInitOptions{
		FadeOutKilling: true,
		Interpolator:   InterpolatorLinear,
	}
}

// SoundfontOptions are per-use overrides attached to a soundfont reference.
type SoundfontOptions struct {
	Bank          *uint8 // Forces bank select, nil keeps the file's own
	Preset        *uint8 // Forces and locks the program, nil keeps the file's own
	Interpolator  Interpolator
	LinearRelease bool // Unsupported, the engine releases exponentially
	UseEffects    bool // Reverb and chorus
}

// ErrUnsupportedOption is returned for voice options the engine cannot honour.
var ErrUnsupportedOption = errors.New("unsupported voice option")

// CheckVoiceOptions rejects an interpolator or release shape other than the
// engine's linear interpolation and exponential release.
func CheckVoiceOptions(interp Interpolator, linearRelease bool) error {
	if interp != InterpolatorLinear {
		return fmt.Errorf("%w: %s interpolation", ErrUnsupportedOption, interp)
	}
	if linearRelease {
		return fmt.Errorf("%w: linear release", ErrUnsupportedOption)
	}
	return nil
}

// DefaultSoundfontOptions returns options without overrides.
func DefaultSoundfontOptions() SoundfontOptions {
	return SoundfontOptions{
		Interpolator: InterpolatorLinear,
		UseEffects:   true,
	}
}
