// Package config loads command-line defaults from MIDIRENDER_* environment
// variables and converts them to render settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	midirender "github.com/tphakala/go-midi-render"
)

// ErrUnknownValue is returned for an unrecognised enumerated value.
var ErrUnknownValue = errors.New("unknown value")

// Config holds the render configuration as plain values.
type Config struct {
	// Output
	OutputDir string
	Codec     string // wav, wav16, ogg or mp3
	Bitrate   int    // kb/s, lossy codecs only

	// Stream
	SampleRate uint32
	Channels   uint16

	// Rendering
	Mode          string // standard or realtime
	Concurrency   string // none, items, tracks or both
	ParallelMIDIs int
	BufferMs      float64
	LayerLimit    int // 0 means unlimited
	DrumsOnly     bool
	Effects       bool
	Soundfonts    []string

	// Notes with velocity in [IgnoreLo, IgnoreHi] are dropped
	IgnoreLo int
	IgnoreHi int

	// Limiter
	Limiter     bool
	AttackMs    float64
	ReleaseMs   float64
	ThresholdDB float64
	LookaheadMs float64

	// Progress output
	PollInterval time.Duration
}

// Load reads configuration from environment variables with the library defaults.
func Load() Config {
	def := midirender.DefaultSettings()
	return Config{
		OutputDir: envStr("MIDIRENDER_OUTPUT_DIR", def.OutputDir),
		Codec:     envStr("MIDIRENDER_CODEC", "wav"),
		Bitrate:   envInt("MIDIRENDER_BITRATE", 192),

		SampleRate: uint32(envInt("MIDIRENDER_SAMPLE_RATE", int(def.SampleRate))),
		Channels:   uint16(envInt("MIDIRENDER_CHANNELS", int(def.AudioChannels))),

		Mode:          envStr("MIDIRENDER_MODE", def.Mode.String()),
		Concurrency:   envStr("MIDIRENDER_CONCURRENCY", def.Concurrency.String()),
		ParallelMIDIs: envInt("MIDIRENDER_PARALLEL", def.ParallelMIDIs),
		BufferMs:      envFloat("MIDIRENDER_BUFFER_MS", def.RealtimeBufferMs),
		LayerLimit:    envInt("MIDIRENDER_LAYERS", midirender.DefaultLayerLimit),
		DrumsOnly:     envBool("MIDIRENDER_DRUMS_ONLY", false),
		Effects:       envBool("MIDIRENDER_EFFECTS", true),
		Soundfonts:    envList("MIDIRENDER_SOUNDFONTS"),

		IgnoreLo: envInt("MIDIRENDER_IGNORE_LO", int(def.VelocityIgnore.Lo)),
		IgnoreHi: envInt("MIDIRENDER_IGNORE_HI", int(def.VelocityIgnore.Hi)),

		Limiter:     envBool("MIDIRENDER_LIMITER", def.Limiter.Enabled),
		AttackMs:    envFloat("MIDIRENDER_LIMITER_ATTACK_MS", def.Limiter.AttackMs),
		ReleaseMs:   envFloat("MIDIRENDER_LIMITER_RELEASE_MS", def.Limiter.ReleaseMs),
		ThresholdDB: envFloat("MIDIRENDER_LIMITER_THRESHOLD_DB", def.Limiter.ThresholdDB),
		LookaheadMs: envFloat("MIDIRENDER_LIMITER_LOOKAHEAD_MS", def.Limiter.LookaheadMs),

		PollInterval: time.Duration(envInt("MIDIRENDER_POLL_MS", 100)) * time.Millisecond,
	}
}

// Settings converts the configuration to batch settings.
func (c *Config) Settings() (midirender.Settings, error) {
	s := midirender.DefaultSettings()
	s.OutputDir = c.OutputDir
	s.SampleRate = c.SampleRate
	s.AudioChannels = c.Channels
	s.ParallelMIDIs = c.ParallelMIDIs
	s.RealtimeBufferMs = c.BufferMs

	var err error
	if s.Format, err = ParseCodec(c.Codec, c.Bitrate); err != nil {
		return s, err
	}
	if s.Mode, err = ParseMode(c.Mode); err != nil {
		return s, err
	}
	if s.Concurrency, err = ParseConcurrency(c.Concurrency); err != nil {
		return s, err
	}
	if c.IgnoreLo < 0 || c.IgnoreHi > 127 {
		return s, fmt.Errorf("%w: velocity ignore range %d..%d outside 0..127",
			midirender.ErrInvalidSettings, c.IgnoreLo, c.IgnoreHi)
	}
	s.VelocityIgnore = midirender.VelocityRange{Lo: uint8(c.IgnoreLo), Hi: uint8(c.IgnoreHi)}

	s.Limiter = midirender.LimiterSettings{
		Enabled:     c.Limiter,
		AttackMs:    c.AttackMs,
		ReleaseMs:   c.ReleaseMs,
		ThresholdDB: c.ThresholdDB,
		LookaheadMs: c.LookaheadMs,
	}
	return s, s.Validate()
}

// ChannelSettings builds identical settings for all 16 MIDI channels.
func (c *Config) ChannelSettings() []midirender.ChannelSettings {
	cs := midirender.DefaultChannelSettings()
	cs.Init.DrumsOnly = c.DrumsOnly
	if c.LayerLimit > 0 {
		layers := c.LayerLimit
		cs.LayerLimit = &layers
	} else {
		cs.LayerLimit = nil
	}
	cs.UseThreadpool = c.Concurrency == "tracks" || c.Concurrency == "both"

	opts := midirender.DefaultSoundfontOptions()
	opts.UseEffects = c.Effects
	for _, path := range c.Soundfonts {
		cs.Soundfonts = append(cs.Soundfonts, midirender.SoundfontRef{Path: path, Options: opts})
	}
	return midirender.UniformChannels(cs)
}

// ParseCodec maps a codec name to an output format.
func ParseCodec(name string, bitrate int) (midirender.OutputFormat, error) {
	switch strings.ToLower(name) {
	case "wav", "wav32", "pcm":
		return midirender.PCMOutput(midirender.SampleFloat32), nil
	case "wav16":
		return midirender.PCMOutput(midirender.SampleInt16), nil
	case "ogg", "vorbis":
		return midirender.VorbisOutput(bitrate), nil
	case "mp3", "lame":
		return midirender.MP3Output(bitrate), nil
	case "opus":
		return midirender.OpusOutput(bitrate), nil
	default:
		return midirender.OutputFormat{}, fmt.Errorf("%w: codec %q", ErrUnknownValue, name)
	}
}

// ParseMode maps a mode name to a render mode.
func ParseMode(name string) (midirender.RenderMode, error) {
	switch strings.ToLower(name) {
	case "standard":
		return midirender.ModeStandard, nil
	case "realtime":
		return midirender.ModeRealtimeSimulation, nil
	default:
		return 0, fmt.Errorf("%w: mode %q", ErrUnknownValue, name)
	}
}

// ParseConcurrency maps a policy name to a concurrency setting.
func ParseConcurrency(name string) (midirender.Concurrency, error) {
	switch strings.ToLower(name) {
	case "none":
		return midirender.ConcurrencyNone, nil
	case "items":
		return midirender.ConcurrencyParallelItems, nil
	case "tracks":
		return midirender.ConcurrencyParallelTracks, nil
	case "both":
		return midirender.ConcurrencyBoth, nil
	default:
		return 0, fmt.Errorf("%w: concurrency %q", ErrUnknownValue, name)
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// envList splits a path list on the OS list separator.
func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	return filepath.SplitList(v)
}
