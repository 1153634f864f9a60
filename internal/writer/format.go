package writer

import (
	"fmt"
	"slices"
)

// Kind selects the codec.
type Kind int

const (
	KindPCM Kind = iota
	KindVorbis
	KindMP3
	KindOpus
)

// String returns the codec name.
func (k Kind) String() string {
	switch k {
	case KindPCM:
		return "pcm"
	case KindVorbis:
		return "vorbis"
	case KindMP3:
		return "mp3"
	case KindOpus:
		return "opus"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// SampleFormat selects the PCM sample encoding.
type SampleFormat int

const (
	SampleInt16 SampleFormat = iota
	SampleFloat32
)

// String returns the sample format name.
func (s SampleFormat) String() string {
	switch s {
	case SampleInt16:
		return "int16"
	case SampleFloat32:
		return "float32"
	default:
		return fmt.Sprintf("SampleFormat(%d)", int(s))
	}
}

// Bitrates in kb/s
const (
	DefaultBitrate   = 192
	minBitrate       = 6
	maxBitrate       = 510
	minVorbisBitrate = 32
	maxVorbisBitrate = 500
)

// LAME constant bitrates; anything else falls back to DefaultBitrate.
var mp3Bitrates = []int{64, 80, 96, 128, 160, 192, 256, 320}

// MPEG-1, 2 and 2.5 sample rates.
var mp3SampleRates = []uint32{8000, 11025, 12000, 16000, 22050, 24000, 32000, 44100, 48000}

// Opus frames are 20 ms; Opus only runs at these rates.
var opusSampleRates = []uint32{8000, 12000, 16000, 24000, 48000}

// Format is an output codec with its parameters.
type Format struct {
	Kind    Kind
	Sample  SampleFormat // PCM only
	Bitrate int          // kb/s, lossy codecs only; zero selects DefaultBitrate
}

// PCM returns a WAV format.
func PCM(sample SampleFormat) Format { return Format{Kind: KindPCM, Sample: sample} }

// Vorbis returns an Ogg/Vorbis format.
func Vorbis(bitrate int) Format { return Format{Kind: KindVorbis, Bitrate: bitrate} }

// MP3 returns a LAME-encoded MP3 format.
func MP3(bitrate int) Format { return Format{Kind: KindMP3, Bitrate: bitrate} }

// Opus returns an Ogg/Opus format.
func Opus(bitrate int) Format { return Format{Kind: KindOpus, Bitrate: bitrate} }

// Extension returns the file extension without the dot.
func (f Format) Extension() string {
	switch f.Kind {
	case KindVorbis:
		return "ogg"
	case KindMP3:
		return "mp3"
	case KindOpus:
		return "opus"
	default:
		return "wav"
	}
}

// EffectiveBitrate returns the bitrate the encoder will run at. MP3 snaps
// unknown values to DefaultBitrate.
func (f Format) EffectiveBitrate() int {
	if f.Bitrate <= 0 {
		return DefaultBitrate
	}
	if f.Kind == KindMP3 && !slices.Contains(mp3Bitrates, f.Bitrate) {
		return DefaultBitrate
	}
	return f.Bitrate
}

// String describes the format.
func (f Format) String() string {
	if f.Kind == KindPCM {
		return fmt.Sprintf("pcm/%s", f.Sample)
	}
	return fmt.Sprintf("%s/%dk", f.Kind, f.EffectiveBitrate())
}

// Validate checks the format against a stream layout.
func (f Format) Validate(sampleRate uint32, channels uint16) error {
	if f.Kind != KindPCM && channels > 2 {
		return fmt.Errorf("%w: %s output supports mono or stereo, got %d channels", ErrInvalidFormat, f.Kind, channels)
	}

	switch f.Kind {
	case KindPCM:
		if f.Sample != SampleInt16 && f.Sample != SampleFloat32 {
			return fmt.Errorf("%w: unknown sample format %v", ErrInvalidFormat, f.Sample)
		}
	case KindVorbis:
		if b := f.EffectiveBitrate(); b < minVorbisBitrate || b > maxVorbisBitrate {
			return fmt.Errorf("%w: vorbis bitrate %dk outside %d-%dk", ErrInvalidFormat, b, minVorbisBitrate, maxVorbisBitrate)
		}
	case KindMP3:
		if !slices.Contains(mp3SampleRates, sampleRate) {
			return fmt.Errorf("%w: mp3 output needs one of %v Hz, got %d", ErrInvalidFormat, mp3SampleRates, sampleRate)
		}
	case KindOpus:
		if !slices.Contains(opusSampleRates, sampleRate) {
			return fmt.Errorf("%w: opus output needs one of %v Hz, got %d", ErrInvalidFormat, opusSampleRates, sampleRate)
		}
		if b := f.EffectiveBitrate(); b < minBitrate || b > maxBitrate {
			return fmt.Errorf("%w: bitrate %dk outside %d-%dk", ErrInvalidFormat, b, minBitrate, maxBitrate)
		}
	default:
		return fmt.Errorf("%w: unknown codec %v", ErrInvalidFormat, f.Kind)
	}
	return nil
}
