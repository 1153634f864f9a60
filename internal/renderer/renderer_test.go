package renderer

import (
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/go-midi-render/internal/synth"
	"github.com/tphakala/go-midi-render/internal/testutil"
)

func testConfig(channels uint16, workers int) Config {
	cfg := Config{
		Params:   synth.StreamParams{SampleRate: 48000, Channels: channels},
		Channels: make([]ChannelConfig, synth.MIDIChannels),
		Workers:  workers,
	}
	for i := range cfg.Channels {
		cfg.Channels[i] = ChannelConfig{Init: synth.DefaultChannelInitOptions(), Dedicated: i%2 == 0}
	}
	return cfg
}

func withSoundfont(t *testing.T, r *Renderer, sf synth.Soundfont) {
	t.Helper()
	for ch := range synth.MIDIChannels {
		r.SendEvent(ConfigEvent(ch, synth.SetSoundfontsEvent([]synth.Soundfont{sf})))
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := testConfig(2, 1)
	require.NoError(t, cfg.Validate())

	bad := cfg
	bad.Params.Channels = 0
	require.ErrorIs(t, bad.Validate(), ErrInvalidConfig)

	bad = cfg
	bad.Channels = nil
	require.ErrorIs(t, bad.Validate(), ErrInvalidConfig)

	_, err := New(Mode(7), cfg)
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestStandard_MixesChannelsAndCountsVoices(t *testing.T) {
	for _, workers := range []int{1, 4} {
		r, err := New(ModeStandard, testConfig(2, workers))
		require.NoError(t, err)
		defer r.Close()
		sf := testutil.NewSineSoundfont("sine.sf2")
		withSoundfont(t, r, sf)

		single := make([]float32, 960)
		r.SendEvent(ChannelEvent(0, synth.NoteOnEvent(60, 127)))
		r.ReadSamples(single)
		assert.Equal(t, uint64(1), r.VoiceCount())
		testutil.AssertNotSilent(t, single)

		// A second channel playing the same sine doubles the amplitude.
		r2, err := New(ModeStandard, testConfig(2, workers))
		require.NoError(t, err)
		defer r2.Close()
		withSoundfont(t, r2, testutil.NewSineSoundfont("sine.sf2"))
		r2.SendEvent(ChannelEvent(0, synth.NoteOnEvent(60, 127)))
		r2.SendEvent(ChannelEvent(5, synth.NoteOnEvent(60, 127)))
		double := make([]float32, 960)
		r2.ReadSamples(double)
		assert.Equal(t, uint64(2), r2.VoiceCount())
		for i := range single {
			require.InDelta(t, 2*single[i], double[i], 1e-5)
		}

		r2.SendEvent(AllChannelsEvent(synth.AudioEvent{Kind: synth.AllNotesOff}))
		r2.ReadSamples(double)
		assert.Zero(t, r2.VoiceCount())
		testutil.AssertSilent(t, double)
	}
}

func TestStandard_IgnoresUnknownChannel(t *testing.T) {
	r, err := New(ModeStandard, testConfig(1, 1))
	require.NoError(t, err)
	withSoundfont(t, r, testutil.NewSineSoundfont("sine.sf2"))

	r.SendEvent(ChannelEvent(42, synth.NoteOnEvent(60, 127)))
	r.SendEvent(ConfigEvent(-1, synth.SetLayerCountEvent(nil)))
	buf := make([]float32, 100)
	r.ReadSamples(buf)
	assert.Zero(t, r.VoiceCount())
	testutil.AssertSilent(t, buf)
}

func TestStandard_FanOutHonoursWorkerBound(t *testing.T) {
	// Every channel asks for a dedicated goroutine; the bound still applies.
	cfg := testConfig(2, 3)
	for i := range cfg.Channels {
		cfg.Channels[i].Dedicated = true
	}
	r := newStandard(cfg)
	defer r.close()

	var active, peak atomic.Int32
	calls := make([]atomic.Int32, len(cfg.Channels))
	for range 5 {
		r.fanOut(func(i int) {
			n := active.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			active.Add(-1)
			calls[i].Add(1)
		})
	}
	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.GreaterOrEqual(t, peak.Load(), int32(2))
	for i := range calls {
		assert.Equal(t, int32(5), calls[i].Load(), "channel %d", i)
	}
}

func TestStandard_ReadsReuseGoroutines(t *testing.T) {
	before := runtime.NumGoroutine()
	r, err := New(ModeStandard, testConfig(2, 4))
	require.NoError(t, err)
	withSoundfont(t, r, testutil.NewSineSoundfont("sine.sf2"))
	r.SendEvent(ChannelEvent(0, synth.NoteOnEvent(60, 127)))

	buf := make([]float32, 960)
	r.ReadSamples(buf)
	started := runtime.NumGoroutine()
	// Eight dedicated channels plus a pool of four for the rest.
	assert.GreaterOrEqual(t, started-before, 12)

	for range 50 {
		r.ReadSamples(buf)
	}
	assert.LessOrEqual(t, runtime.NumGoroutine(), started)

	r.Close()
	r.Close()
	assert.Eventually(t, func() bool { return runtime.NumGoroutine() <= before },
		time.Second, time.Millisecond)
}

func TestReadSamples_PanicsOnMisalignedBuffer(t *testing.T) {
	r, err := New(ModeStandard, testConfig(2, 1))
	require.NoError(t, err)
	assert.Panics(t, func() { r.ReadSamples(make([]float32, 3)) })
}

func TestBuffered_ProducesAudioAndVoiceCount(t *testing.T) {
	cfg := testConfig(2, 1)
	cfg.BufferMs = 5
	r, err := New(ModeRealtimeSimulation, cfg)
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, uint32(48000), r.StreamParams().SampleRate)
	withSoundfont(t, r, testutil.NewSineSoundfont("sine.sf2"))
	r.SendEvent(ChannelEvent(3, synth.NoteOnEvent(60, 127)))

	// Whatever was rendered ahead is still silent; keep reading until the
	// note reaches the output.
	buf := make([]float32, 480)
	heard := false
	for range 50 {
		r.ReadSamples(buf)
		for _, v := range buf {
			if v > testutil.SilenceThreshold {
				heard = true
			}
		}
		if heard {
			break
		}
	}
	require.True(t, heard)
	assert.Equal(t, uint64(1), r.VoiceCount())
}

func TestBuffered_LargeReadDoesNotDeadlock(t *testing.T) {
	cfg := testConfig(1, 1)
	cfg.BufferMs = 2
	r, err := New(ModeRealtimeSimulation, cfg)
	require.NoError(t, err)
	defer r.Close()

	buf := make([]float32, 48000)
	r.ReadSamples(buf)
	testutil.AssertSilent(t, buf)
}

func TestBuffered_CloseIsIdempotent(t *testing.T) {
	r, err := New(ModeRealtimeSimulation, testConfig(2, 1))
	require.NoError(t, err)
	r.Close()
	r.Close()

	buf := []float32{1, 1}
	r.ReadSamples(buf)
	assert.Equal(t, []float32{0, 0}, buf)
}

func TestMode_String(t *testing.T) {
	assert.Equal(t, "standard", ModeStandard.String())
	assert.Equal(t, "realtime", ModeRealtimeSimulation.String())
}
