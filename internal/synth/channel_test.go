package synth

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type midiCall struct {
	channel, command, data1, data2 int32
}

type recordingSynth struct {
	messages []midiCall
	noteOns  []midiCall
	noteOffs []midiCall
	level    float32
}

func (r *recordingSynth) ProcessMidiMessage(channel, command, data1, data2 int32) {
	r.messages = append(r.messages, midiCall{channel, command, data1, data2})
}

func (r *recordingSynth) NoteOn(channel, key, velocity int32) {
	r.noteOns = append(r.noteOns, midiCall{channel: channel, data1: key, data2: velocity})
}

func (r *recordingSynth) NoteOff(channel, key int32) {
	r.noteOffs = append(r.noteOffs, midiCall{channel: channel, data1: key})
}

func (r *recordingSynth) Render(left, right []float32) {
	for i := range left {
		left[i] = r.level
		right[i] = -r.level
	}
}

type stubSoundfont struct {
	path  string
	opts  SoundfontOptions
	synth *recordingSynth
	err   error
}

func (s *stubSoundfont) Path() string              { return s.path }
func (s *stubSoundfont) Options() SoundfontOptions { return s.opts }
func (s *stubSoundfont) NewSynthesizer(uint32) (Synthesizer, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.synth, nil
}

var stereo48k = StreamParams{SampleRate: 48000, Channels: Stereo}

func newStub() *stubSoundfont {
	return &stubSoundfont{path: "a.sf2", opts: DefaultSoundfontOptions(), synth: &recordingSynth{level: 0.5}}
}

func TestVoiceChannel_SilentWithoutSoundfont(t *testing.T) {
	c := NewVoiceChannel(0, stereo48k, DefaultChannelInitOptions())
	c.PushEvent(NoteOnEvent(60, 100))

	out := []float32{1, 1, 1, 1}
	c.ReadSamples(out)
	assert.Equal(t, []float32{0, 0, 0, 0}, out)
	assert.Zero(t, c.VoiceCount())
}

func TestVoiceChannel_RoutesEventsToOwnChannel(t *testing.T) {
	sf := newStub()
	c := NewVoiceChannel(3, stereo48k, DefaultChannelInitOptions())
	c.ApplyConfig(SetSoundfontsEvent([]Soundfont{sf}))

	c.PushEvents([]AudioEvent{
		NoteOnEvent(60, 100),
		NoteOnEvent(64, 90),
		ControlEvent(7, 100),
		PitchBendEvent(0),
		ProgramChangeEvent(5),
	})
	require.Len(t, sf.synth.noteOns, 2)
	assert.Equal(t, int32(3), sf.synth.noteOns[0].channel)
	assert.Equal(t, uint64(2), c.VoiceCount())

	assert.Equal(t, []midiCall{
		{3, statusControl, 7, 100},
		{3, statusPitchBend, 0, 64}, // center = 8192 = 0x40 << 7
		{3, statusProgramChange, 5, 0},
	}, sf.synth.messages)

	c.PushEvent(NoteOffEvent(60))
	assert.Equal(t, uint64(1), c.VoiceCount())

	// Velocity zero is a note-off.
	c.PushEvent(NoteOnEvent(64, 0))
	assert.Zero(t, c.VoiceCount())
}

func TestVoiceChannel_DrumsOnlyUsesPercussionChannel(t *testing.T) {
	sf := newStub()
	init := DefaultChannelInitOptions()
	init.DrumsOnly = true
	c := NewVoiceChannel(2, stereo48k, init)
	c.ApplyConfig(SetSoundfontsEvent([]Soundfont{sf}))

	c.PushEvent(NoteOnEvent(36, 127))
	require.Len(t, sf.synth.noteOns, 1)
	assert.Equal(t, int32(PercussionChannel), sf.synth.noteOns[0].channel)
}

func TestVoiceChannel_PresetOverrideLocksProgram(t *testing.T) {
	sf := newStub()
	bank, preset := uint8(1), uint8(42)
	sf.opts.Bank, sf.opts.Preset = &bank, &preset

	c := NewVoiceChannel(0, stereo48k, DefaultChannelInitOptions())
	c.ApplyConfig(SetSoundfontsEvent([]Soundfont{sf}))
	c.PushEvents([]AudioEvent{ProgramChangeEvent(3), ControlEvent(ccBankSelect, 5), ControlEvent(10, 64)})

	assert.Equal(t, []midiCall{
		{0, statusControl, ccBankSelect, 1},
		{0, statusProgramChange, 42, 0},
		{0, statusControl, 10, 64},
	}, sf.synth.messages)
}

func TestVoiceChannel_LayerLimitReleasesOldest(t *testing.T) {
	sf := newStub()
	c := NewVoiceChannel(0, stereo48k, DefaultChannelInitOptions())
	layers := 2
	c.ApplyConfig(SetLayerCountEvent(&layers))
	c.ApplyConfig(SetSoundfontsEvent([]Soundfont{sf}))

	for _, key := range []uint8{60, 61, 62} {
		c.PushEvent(NoteOnEvent(key, 100))
	}
	assert.Equal(t, uint64(2), c.VoiceCount())
	require.Len(t, sf.synth.noteOffs, 1)
	assert.Equal(t, int32(60), sf.synth.noteOffs[0].data1)

	c.ApplyConfig(SetLayerCountEvent(nil))
	for _, key := range []uint8{63, 64, 65} {
		c.PushEvent(NoteOnEvent(key, 100))
	}
	assert.Equal(t, uint64(5), c.VoiceCount())
}

func TestVoiceChannel_KillRespectsFadeOut(t *testing.T) {
	for _, fade := range []bool{true, false} {
		sf := newStub()
		init := DefaultChannelInitOptions()
		init.FadeOutKilling = fade
		c := NewVoiceChannel(0, stereo48k, init)
		c.ApplyConfig(SetSoundfontsEvent([]Soundfont{sf}))
		c.PushEvent(NoteOnEvent(60, 100))
		c.PushEvent(AudioEvent{Kind: AllNotesKilled})

		want := int32(ccAllSoundOff)
		if fade {
			want = ccAllNotesOff
		}
		require.Len(t, sf.synth.messages, 1)
		assert.Equal(t, want, sf.synth.messages[0].data1)
		assert.Zero(t, c.VoiceCount())
	}
}

func TestVoiceChannel_SkipsFailingSoundfont(t *testing.T) {
	broken := &stubSoundfont{path: "broken.sf2", err: errors.New("boom")}
	good := newStub()

	c := NewVoiceChannel(0, stereo48k, DefaultChannelInitOptions())
	c.ApplyConfig(SetSoundfontsEvent([]Soundfont{nil, broken, good}))

	c.PushEvent(NoteOnEvent(60, 100))
	assert.Len(t, good.synth.noteOns, 1)
}

func TestVoiceChannel_ReadSamplesLayouts(t *testing.T) {
	sf := newStub()

	st := NewVoiceChannel(0, stereo48k, DefaultChannelInitOptions())
	st.ApplyConfig(SetSoundfontsEvent([]Soundfont{sf}))
	out := make([]float32, 6)
	st.ReadSamples(out)
	assert.Equal(t, []float32{0.5, -0.5, 0.5, -0.5, 0.5, -0.5}, out)

	mono := NewVoiceChannel(0, StreamParams{SampleRate: 48000, Channels: Mono}, DefaultChannelInitOptions())
	mono.ApplyConfig(SetSoundfontsEvent([]Soundfont{sf}))
	out = []float32{9, 9, 9}
	mono.ReadSamples(out)
	assert.Equal(t, []float32{0, 0, 0}, out)
}

func TestBendToRaw(t *testing.T) {
	assert.Equal(t, int32(8192), bendToRaw(0))
	assert.Equal(t, int32(0), bendToRaw(-1))
	assert.Equal(t, int32(16383), bendToRaw(1))
	assert.Equal(t, int32(12288), bendToRaw(0.5))
}

func TestLoadSoundfont_Errors(t *testing.T) {
	_, err := LoadSoundfont(filepath.Join(t.TempDir(), "missing.sf2"), DefaultSoundfontOptions())
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)

	garbage := filepath.Join(t.TempDir(), "garbage.sf2")
	require.NoError(t, os.WriteFile(garbage, []byte("definitely not RIFF"), 0o600))
	_, err = LoadSoundfont(garbage, DefaultSoundfontOptions())
	require.Error(t, err)
}

func TestValidateSampleRate(t *testing.T) {
	require.NoError(t, ValidateSampleRate(48000))
	require.ErrorIs(t, ValidateSampleRate(8000), ErrUnsupportedSampleRate)
	require.ErrorIs(t, ValidateSampleRate(384000), ErrUnsupportedSampleRate)
}
