package midirender

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings()
	require.NoError(t, s.Validate())
	assert.Equal(t, uint32(48000), s.SampleRate)
	assert.Equal(t, Stereo, s.AudioChannels)
	assert.Equal(t, ModeStandard, s.Mode)
	assert.Equal(t, 1, s.MaxParallel())
	assert.True(t, s.Limiter.Enabled)
	assert.InDelta(t, 100.0/6.0, s.RealtimeBufferMs, 1e-9)
	assert.Equal(t, "wav", s.Format.Extension())
}

func TestSettings_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Settings)
	}{
		{"sample rate too low", func(s *Settings) { s.SampleRate = 8000 }},
		{"three channels", func(s *Settings) { s.AudioChannels = 3 }},
		{"unknown mode", func(s *Settings) { s.Mode = RenderMode(9) }},
		{"unknown concurrency", func(s *Settings) { s.Concurrency = Concurrency(9) }},
		{"zero parallel items", func(s *Settings) {
			s.Concurrency = ConcurrencyBoth
			s.ParallelMIDIs = 0
		}},
		{"inverted velocity range", func(s *Settings) { s.VelocityIgnore = VelocityRange{Lo: 10, Hi: 5} }},
		{"negative buffer", func(s *Settings) { s.RealtimeBufferMs = -1 }},
		{"opus at 44.1k", func(s *Settings) {
			s.SampleRate = 44100
			s.Format = OpusOutput(128)
		}},
		{"mp3 at 96k", func(s *Settings) {
			s.SampleRate = 96000
			s.Format = MP3Output(128)
		}},
		{"bad limiter", func(s *Settings) { s.Limiter.AttackMs = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultSettings()
			tt.modify(&s)
			require.ErrorIs(t, s.Validate(), ErrInvalidSettings)
		})
	}
}

func TestSettings_MaxParallel(t *testing.T) {
	s := DefaultSettings()
	s.ParallelMIDIs = 4
	for _, tt := range []struct {
		c    Concurrency
		want int
	}{
		{ConcurrencyNone, 1},
		{ConcurrencyParallelTracks, 1},
		{ConcurrencyParallelItems, 4},
		{ConcurrencyBoth, 4},
	} {
		s.Concurrency = tt.c
		assert.Equal(t, tt.want, s.MaxParallel(), tt.c.String())
	}
	assert.Equal(t, 1, s.fanOutWorkers())
}

func TestSettings_OutputPath(t *testing.T) {
	s := DefaultSettings()
	s.OutputDir = "renders"
	assert.Equal(t, filepath.Join("renders", "song.wav"), s.OutputPath(filepath.Join("in", "song.mid")))

	s.Format = VorbisOutput(0)
	assert.Equal(t, filepath.Join("renders", "a.b.ogg"), s.OutputPath("a.b.midi"))

	s.Format = OpusOutput(0)
	assert.Equal(t, filepath.Join("renders", "a.opus"), s.OutputPath("a.mid"))

	s.Format = MP3Output(320)
	assert.Equal(t, filepath.Join("renders", "x.mp3"), s.OutputPath("x.mid"))
}

func TestVelocityRange_Contains(t *testing.T) {
	r := VelocityRange{Lo: 1, Hi: 10}
	assert.False(t, r.Contains(0))
	assert.True(t, r.Contains(1))
	assert.True(t, r.Contains(10))
	assert.False(t, r.Contains(11))
}

func TestCommonSampleRates_AllValidate(t *testing.T) {
	for _, rate := range CommonSampleRates {
		s := DefaultSettings()
		s.SampleRate = rate
		assert.NoError(t, s.Validate(), "%d Hz", rate)
	}
}

func TestChannels(t *testing.T) {
	cs := DefaultChannelSettings()
	require.NotNil(t, cs.LayerLimit)
	assert.Equal(t, DefaultLayerLimit, *cs.LayerLimit)
	assert.True(t, cs.UseThreadpool)
	assert.True(t, cs.Init.FadeOutKilling)

	channels := UniformChannels(cs)
	require.Len(t, channels, 16)
	require.NoError(t, ValidateChannels(channels))

	zero := 0
	channels[3].LayerLimit = &zero
	require.ErrorIs(t, ValidateChannels(channels), ErrInvalidSettings)

	channels = UniformChannels(cs)
	channels[5].Soundfonts = []SoundfontRef{{}}
	require.ErrorIs(t, ValidateChannels(channels), ErrInvalidSettings)
}

func TestValidateChannels_RejectsUnsupportedVoiceOptions(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(cs *ChannelSettings)
	}{
		{"nearest interpolation", func(cs *ChannelSettings) { cs.Init.Interpolator = InterpolatorNearest }},
		{"linear release", func(cs *ChannelSettings) { cs.Init.LinearRelease = true }},
		{"soundfont nearest interpolation", func(cs *ChannelSettings) {
			opts := DefaultSoundfontOptions()
			opts.Interpolator = InterpolatorNearest
			cs.Soundfonts = []SoundfontRef{{Path: "a.sf2", Options: opts}}
		}},
		{"soundfont linear release", func(cs *ChannelSettings) {
			opts := DefaultSoundfontOptions()
			opts.LinearRelease = true
			cs.Soundfonts = []SoundfontRef{{Path: "a.sf2", Options: opts}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			channels := UniformChannels(DefaultChannelSettings())
			tt.mutate(&channels[2])
			err := ValidateChannels(channels)
			require.ErrorIs(t, err, ErrInvalidSettings)
			require.ErrorIs(t, err, ErrUnsupportedOption)
		})
	}

	// Zero-valued options select the supported behaviour.
	channels := UniformChannels(DefaultChannelSettings())
	channels[0].Init = ChannelInitOptions{}
	channels[0].Soundfonts = []SoundfontRef{{Path: "a.sf2"}}
	require.NoError(t, ValidateChannels(channels))
}

func TestDistinctSoundfonts_FirstReferenceWins(t *testing.T) {
	preset := uint8(5)
	first := DefaultSoundfontOptions()
	second := DefaultSoundfontOptions()
	second.Preset = &preset

	channels := UniformChannels(DefaultChannelSettings())
	channels[0].Soundfonts = []SoundfontRef{{Path: "a.sf2", Options: first}, {Path: "b.sf2"}}
	channels[4].Soundfonts = []SoundfontRef{{Path: "a.sf2", Options: second}}

	refs := distinctSoundfonts(channels)
	require.Len(t, refs, 2)
	assert.Equal(t, "a.sf2", refs[0].Path)
	assert.Nil(t, refs[0].Options.Preset)
	assert.Equal(t, "b.sf2", refs[1].Path)
}
