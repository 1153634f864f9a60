package renderer

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/tphakala/go-midi-render/internal/pipeline"
	"github.com/tphakala/go-midi-render/internal/simdops"
	"github.com/tphakala/go-midi-render/internal/synth"
)

type bufferedRenderer struct {
	params   synth.StreamParams
	channels []*bufferedChannel
	results  chan []float32
	window   int // Interleaved samples per produced window
	voices   atomic.Uint64

	ring   *pipeline.RingBuffer[float32]
	mix    []float32
	mu     sync.Mutex
	cond   *sync.Cond
	demand int // Samples a blocked reader is waiting for
	closed bool

	producer sync.WaitGroup
	workers  sync.WaitGroup
}

// bufferedChannel is a voice channel owned by its own goroutine. Events are
// queued and applied right before the next window is rendered.
type bufferedChannel struct {
	vc       *synth.VoiceChannel
	requests chan []float32
	scratch  []float32

	mu      sync.Mutex
	pending []queuedEvent
}

type queuedEvent struct {
	config *synth.ConfigEvent
	audio  synth.AudioEvent
}

func newBuffered(cfg Config) *bufferedRenderer {
	bufferMs := cfg.BufferMs
	if bufferMs == 0 {
		bufferMs = DefaultBufferMs
	}
	frames := max(1, int(math.Round(float64(cfg.Params.SampleRate)*bufferMs/msPerSecond)))
	window := frames * int(cfg.Params.Channels)

	r := &bufferedRenderer{
		params:  cfg.Params,
		results: make(chan []float32, channelOutputCap),
		window:  window,
		ring:    pipeline.NewRingBuffer[float32](window * (aheadWindows + 1)),
		mix:     make([]float32, window),
	}
	r.cond = sync.NewCond(&r.mu)

	r.channels = make([]*bufferedChannel, len(cfg.Channels))
	for i, ch := range cfg.Channels {
		bc := &bufferedChannel{
			vc:       synth.NewVoiceChannel(i, cfg.Params, ch.Init),
			requests: make(chan []float32, 1),
			scratch:  make([]float32, window),
		}
		r.channels[i] = bc
		r.workers.Add(1)
		go bc.run(r.results, &r.workers)
	}

	r.producer.Add(1)
	go r.produce()
	return r
}

func (c *bufferedChannel) run(results chan<- []float32, wg *sync.WaitGroup) {
	defer wg.Done()
	for buf := range c.requests {
		c.drain()
		c.vc.ReadSamples(buf)
		results <- buf
	}
}

func (c *bufferedChannel) enqueue(ev queuedEvent) {
	c.mu.Lock()
	c.pending = append(c.pending, ev)
	c.mu.Unlock()
}

func (c *bufferedChannel) drain() {
	c.mu.Lock()
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	for _, ev := range pending {
		if ev.config != nil {
			c.vc.ApplyConfig(*ev.config)
			continue
		}
		c.vc.PushEvent(ev.audio)
	}
}

func (r *bufferedRenderer) sendEvent(ev Event) {
	switch ev.Target {
	case TargetChannel:
		if ev.Channel >= 0 && ev.Channel < len(r.channels) {
			r.channels[ev.Channel].enqueue(queuedEvent{audio: ev.Audio})
		}
	case TargetAllChannels:
		for _, c := range r.channels {
			c.enqueue(queuedEvent{audio: ev.Audio})
		}
	case TargetChannelConfig:
		if ev.Channel >= 0 && ev.Channel < len(r.channels) {
			cfg := ev.Config
			r.channels[ev.Channel].enqueue(queuedEvent{config: &cfg})
		}
	}
}

// produce renders windows while the ring holds less than the reader needs.
func (r *bufferedRenderer) produce() {
	defer r.producer.Done()
	for {
		r.mu.Lock()
		for !r.closed && r.ring.Available() >= max(r.window*aheadWindows, r.demand) {
			r.cond.Wait()
		}
		if r.closed {
			r.mu.Unlock()
			return
		}
		r.mu.Unlock()

		r.renderWindow()

		r.mu.Lock()
		r.ring.Write(r.mix)
		r.cond.Broadcast()
		r.mu.Unlock()
	}
}

// renderWindow requests one window from every channel and mixes the replies.
func (r *bufferedRenderer) renderWindow() {
	for _, c := range r.channels {
		c.requests <- c.scratch
	}
	clear(r.mix)
	for range r.channels {
		simdops.Mix(r.mix, <-r.results)
	}

	var voices uint64
	for _, c := range r.channels {
		voices += c.vc.VoiceCount()
	}
	r.voices.Store(voices)
}

func (r *bufferedRenderer) readSamples(buf []float32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.demand = len(buf)
	r.cond.Broadcast()
	for !r.closed && r.ring.Available() < len(buf) {
		r.cond.Wait()
	}
	r.demand = 0

	n := r.ring.ReadInto(buf)
	clear(buf[n:])
	r.cond.Broadcast()
}

func (r *bufferedRenderer) voiceCount() uint64 {
	return r.voices.Load()
}

func (r *bufferedRenderer) close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.cond.Broadcast()
	r.mu.Unlock()

	r.producer.Wait()
	for _, c := range r.channels {
		close(c.requests)
	}
	r.workers.Wait()
}
