package synth_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/go-midi-render/internal/synth"
	"github.com/tphakala/go-midi-render/internal/testutil"
)

func loadLayeredBank(t *testing.T, release float64) synth.Soundfont {
	t.Helper()
	path := filepath.Join(t.TempDir(), "layered.sf2")
	testutil.WriteSF2(t, path, testutil.SF2Options{Layers: 2, ReleaseSeconds: release})

	opts := synth.DefaultSoundfontOptions()
	opts.UseEffects = false // Reverb would outlast the voices
	sf, err := synth.LoadSoundfont(path, opts)
	require.NoError(t, err)
	assert.Equal(t, path, sf.Path())
	return sf
}

func TestSampleSoundfont_RendersGeneratedBank(t *testing.T) {
	sf := loadLayeredBank(t, 0.3)

	s, err := sf.NewSynthesizer(48000)
	require.NoError(t, err)
	s.NoteOn(0, 69, 127)

	left := make([]float32, 4800)
	right := make([]float32, 4800)
	s.Render(left, right)
	testutil.AssertNotSilent(t, left)
	testutil.AssertNotSilent(t, right)
	testutil.AssertNoNaNOrInf(t, left)

	vr, ok := s.(synth.VoiceReporter)
	require.True(t, ok, "engine synthesizer should report its voices")
	assert.Equal(t, 2, vr.ActiveVoices())

	_, err = sf.NewSynthesizer(8000)
	require.ErrorIs(t, err, synth.ErrUnsupportedSampleRate)
}

func TestVoiceChannel_CountsEngineVoices(t *testing.T) {
	sf := loadLayeredBank(t, 0.3)
	params := synth.StreamParams{SampleRate: 48000, Channels: synth.Stereo}

	c := synth.NewVoiceChannel(0, params, synth.DefaultChannelInitOptions())
	c.ApplyConfig(synth.SetSoundfontsEvent([]synth.Soundfont{sf}))

	// Two zones per key, so two held keys start four voices.
	c.PushEvent(synth.NoteOnEvent(60, 127))
	c.PushEvent(synth.NoteOnEvent(64, 127))
	assert.Equal(t, uint64(4), c.VoiceCount())

	block := make([]float32, 2*480) // 10 ms
	c.ReadSamples(block)
	testutil.AssertNotSilent(t, block)
	assert.Equal(t, uint64(4), c.VoiceCount())

	// Released voices keep sounding through their tail.
	c.PushEvent(synth.NoteOffEvent(60))
	c.PushEvent(synth.NoteOffEvent(64))
	c.ReadSamples(block)
	assert.Equal(t, uint64(4), c.VoiceCount())
	testutil.AssertNotSilent(t, block)

	// A 0.3 s release falls below audibility well within a second.
	for range 100 {
		c.ReadSamples(block)
	}
	assert.Zero(t, c.VoiceCount())
	testutil.AssertSilent(t, block)
}

func TestVoiceChannel_KillCutsEngineVoices(t *testing.T) {
	sf := loadLayeredBank(t, 2)
	params := synth.StreamParams{SampleRate: 48000, Channels: synth.Stereo}

	init := synth.DefaultChannelInitOptions()
	init.FadeOutKilling = false
	c := synth.NewVoiceChannel(0, params, init)
	c.ApplyConfig(synth.SetSoundfontsEvent([]synth.Soundfont{sf}))

	c.PushEvent(synth.NoteOnEvent(60, 127))
	block := make([]float32, 2*480)
	c.ReadSamples(block)
	require.Equal(t, uint64(2), c.VoiceCount())

	c.PushEvent(synth.AudioEvent{Kind: synth.AllNotesKilled})
	c.ReadSamples(block)
	c.ReadSamples(block)
	assert.Zero(t, c.VoiceCount())
}
