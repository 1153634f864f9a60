package midirender

import (
	"context"
	"log"
	"math"
	"sync"

	"github.com/tphakala/go-midi-render/internal/midisrc"
	"github.com/tphakala/go-midi-render/internal/renderer"
	"github.com/tphakala/go-midi-render/internal/simdops"
	"github.com/tphakala/go-midi-render/internal/synth"
	"github.com/tphakala/go-midi-render/internal/writer"
)

// pitchBendRange converts a relative 14-bit bend to [-1, 1).
const pitchBendRange = 8192

// sampleSink is the encoder end of a job.
type sampleSink interface {
	WriteSamples(block []float32) error
	Finalize() error
}

// newSampleSink opens the output of a job. Tests replace it.
var newSampleSink = func(cfg writer.Config) (sampleSink, error) {
	w, err := writer.New(cfg)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// midiRenderer renders one MIDI file. It owns three goroutines: decode
// feeds batches, run renders them, and the writer encodes the PCM.
type midiRenderer struct {
	path     string
	length   float64
	settings Settings
	channels []ChannelSettings
	rend     *renderer.Renderer

	batches    chan midisrc.Batch
	blocks     chan []float32
	writerDone chan error
	exited     chan struct{} // Closed when the writer goroutine returns

	ctx    context.Context
	cancel context.CancelFunc

	status statusCell
	stats  statsCell

	elapsed float64
	carry   float64

	releaseOnce sync.Once
}

// loadMIDIRenderer parses path and starts the decode and writer goroutines.
// The job stays Idle until run is called.
func loadMIDIRenderer(settings *Settings, channels []ChannelSettings, path string) (*midiRenderer, error) {
	f, err := midisrc.Open(path)
	if err != nil {
		return nil, &RendererError{Kind: LoadFailure, Path: path, Err: err}
	}

	cfg := renderer.Config{
		Params:   settings.streamParams(),
		Channels: make([]renderer.ChannelConfig, len(channels)),
		Workers:  settings.fanOutWorkers(),
		BufferMs: settings.RealtimeBufferMs,
	}
	for i, cs := range channels {
		cfg.Channels[i] = renderer.ChannelConfig{Init: cs.Init, Dedicated: cs.UseThreadpool}
	}
	rend, err := renderer.New(settings.Mode.internal(), cfg)
	if err != nil {
		return nil, &RendererError{Kind: RendererFailure, Path: path, Err: err}
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &midiRenderer{
		path:       path,
		length:     f.Duration(),
		settings:   *settings,
		channels:   channels,
		rend:       rend,
		batches:    make(chan midisrc.Batch, decodeQueueSize),
		blocks:     make(chan []float32, writerQueueSize),
		writerDone: make(chan error, 1),
		exited:     make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}

	ready := make(chan error, 1)
	go m.writeLoop(writer.Config{
		Path:       settings.OutputPath(path),
		SampleRate: settings.SampleRate,
		Channels:   settings.AudioChannels,
		Format:     settings.Format,
		Limiter:    settings.Limiter,
	}, ready)
	if err := <-ready; err != nil {
		cancel()
		rend.Close()
		return nil, &RendererError{Kind: WriterFailure, Path: path, Err: err}
	}

	for i, cs := range channels {
		rend.SendEvent(renderer.ConfigEvent(i, synth.SetLayerCountEvent(cs.LayerLimit)))
	}

	go m.decode(f)
	return m, nil
}

func (m *midiRenderer) decode(f *midisrc.File) {
	for b := range f.Batches() {
		select {
		case m.batches <- b:
		case <-m.ctx.Done():
			return
		}
	}
	close(m.batches)
}

func (m *midiRenderer) writeLoop(cfg writer.Config, ready chan<- error) {
	defer close(m.exited)

	sink, err := newSampleSink(cfg)
	ready <- err
	if err != nil {
		return
	}

	logged := false
	for {
		select {
		case block, ok := <-m.blocks:
			if !ok {
				m.writerDone <- sink.Finalize()
				return
			}
			if m.ctx.Err() != nil {
				continue
			}
			if err := sink.WriteSamples(block); err != nil && !logged {
				log.Printf("midirender: write %s: %v", cfg.Path, err)
				logged = true
			}
		case <-m.ctx.Done():
			m.writerDone <- sink.Finalize()
			return
		}
	}
}

// run renders the whole file. The caller has already moved the job to Rendering.
func (m *midiRenderer) run() {
	defer m.cancel()

	for {
		var batch midisrc.Batch
		ok := false
		select {
		case batch, ok = <-m.batches:
		case <-m.ctx.Done():
		}
		if !ok || !m.renderBatch(batch.Delta) {
			break
		}
		for _, ev := range batch.Events {
			m.dispatch(ev)
		}
	}

	m.rend.SendEvent(renderer.AllChannelsEvent(synth.AudioEvent{Kind: synth.AllNotesOff}))
	m.rend.SendEvent(renderer.AllChannelsEvent(synth.AudioEvent{Kind: synth.ResetControl}))
	m.finalize()
	close(m.blocks)

	err := <-m.writerDone
	m.release()
	if err != nil {
		log.Printf("midirender: finalize %s: %v", m.path, err)
		m.status.transition(JobRendering, JobError)
		return
	}
	m.status.transition(JobRendering, JobFinished)
}

// renderBatch advances the synthesizer by delta seconds. It returns false
// once the job is cancelled.
func (m *midiRenderer) renderBatch(delta float64) bool {
	if delta <= 0 {
		return true
	}
	n, last := splitSlices(delta, sliceCeiling)
	for i := range n {
		d := sliceCeiling
		if i == n-1 {
			d = last
		}
		if !m.renderSlice(d) {
			return false
		}
	}
	return true
}

func (m *midiRenderer) renderSlice(seconds float64) bool {
	params := m.rend.StreamParams()
	var frames int
	frames, m.carry = sliceFrames(params.SampleRate, seconds, m.carry)
	m.elapsed += seconds
	if frames == 0 {
		return m.ctx.Err() == nil
	}

	buf := make([]float32, frames*int(params.Channels))
	m.rend.ReadSamples(buf)
	m.stats.store(m.elapsed, m.rend.VoiceCount())
	return m.send(buf)
}

// finalize renders the release tail in one-second blocks until a block is
// silent. The silent block itself is not written.
func (m *midiRenderer) finalize() {
	params := m.rend.StreamParams()
	size := int(params.SampleRate) * int(params.Channels) * tailBlockSeconds
	for range maxTailBlocks {
		if m.ctx.Err() != nil {
			return
		}
		buf := make([]float32, size)
		m.rend.ReadSamples(buf)
		if simdops.PeakAbs(buf) <= silenceThreshold {
			return
		}
		m.elapsed += tailBlockSeconds
		m.stats.store(m.elapsed, m.rend.VoiceCount())
		if !m.send(buf) {
			return
		}
	}
}

func (m *midiRenderer) send(block []float32) bool {
	select {
	case m.blocks <- block:
		return true
	case <-m.ctx.Done():
		return false
	}
}

func (m *midiRenderer) dispatch(ev midisrc.Event) {
	var a synth.AudioEvent
	switch ev.Kind {
	case midisrc.NoteOn:
		if m.settings.VelocityIgnore.Contains(ev.Velocity) {
			return
		}
		a = synth.NoteOnEvent(ev.Key, ev.Velocity)
	case midisrc.NoteOff:
		a = synth.NoteOffEvent(ev.Key)
	case midisrc.ControlChange:
		a = synth.ControlEvent(ev.Controller, ev.Value)
	case midisrc.PitchBend:
		a = synth.PitchBendEvent(float32(ev.Pitch) / pitchBendRange)
	case midisrc.ProgramChange:
		a = synth.ProgramChangeEvent(ev.Value)
	default:
		return
	}
	m.rend.SendEvent(renderer.ChannelEvent(int(ev.Channel), a))
}

// setSoundfonts resolves every channel's references against cache. Paths
// missing from the cache are skipped.
func (m *midiRenderer) setSoundfonts(cache *SoundfontCache) {
	for i, cs := range m.channels {
		var fonts []synth.Soundfont
		for _, ref := range cs.Soundfonts {
			if sf, ok := cache.Get(ref.Path); ok {
				fonts = append(fonts, sf)
			}
		}
		m.rend.SendEvent(renderer.ConfigEvent(i, synth.SetSoundfontsEvent(fonts)))
	}
}

// stop cancels the job. A job that never ran releases its renderer here.
func (m *midiRenderer) stop() {
	m.cancel()
	if m.status.load() == JobIdle {
		m.release()
	}
}

func (m *midiRenderer) release() {
	m.releaseOnce.Do(m.rend.Close)
}

// splitSlices divides delta into n slices of ceiling seconds, the last one
// holding the remainder.
func splitSlices(delta, ceiling float64) (n int, last float64) {
	if delta <= ceiling {
		return 1, delta
	}
	n = int(math.Ceil(delta/ceiling - 1e-9))
	return n, delta - float64(n-1)*ceiling
}

// sliceFrames converts seconds to whole frames, carrying the fraction over
// to the next slice.
func sliceFrames(sampleRate uint32, seconds, carry float64) (frames int, rest float64) {
	exact := float64(sampleRate)*seconds + carry
	whole := math.Floor(exact)
	return int(whole), exact - whole
}
