package renderer

import (
	"sync"

	"github.com/remeh/sizedwaitgroup"

	"github.com/tphakala/go-midi-render/internal/simdops"
	"github.com/tphakala/go-midi-render/internal/synth"
)

type standardRenderer struct {
	params   synth.StreamParams
	channels []*synth.VoiceChannel
	workers  int

	// Fan-out goroutines live as long as the renderer. A dedicated channel
	// owns one; the others share a pool. inflight caps how many channels
	// render at once at workers.
	own      []chan int // nil for pooled channels
	shared   chan int
	inflight sizedwaitgroup.SizedWaitGroup
	job      func(i int)
	running  sync.WaitGroup
	closed   bool

	cache   [][]synth.AudioEvent
	cached  int
	scratch [][]float32
}

func newStandard(cfg Config) *standardRenderer {
	n := len(cfg.Channels)
	r := &standardRenderer{
		params:   cfg.Params,
		channels: make([]*synth.VoiceChannel, n),
		workers:  max(1, cfg.Workers),
		cache:    make([][]synth.AudioEvent, n),
		scratch:  make([][]float32, n),
	}
	for i, ch := range cfg.Channels {
		r.channels[i] = synth.NewVoiceChannel(i, cfg.Params, ch.Init)
	}
	if r.workers == 1 {
		return r
	}

	r.inflight = sizedwaitgroup.New(r.workers)
	r.own = make([]chan int, n)
	r.shared = make(chan int, n)
	pooled := 0
	for i, ch := range cfg.Channels {
		if !ch.Dedicated {
			pooled++
			continue
		}
		r.own[i] = make(chan int, 1)
		r.running.Add(1)
		go r.serve(r.own[i])
	}
	for range min(r.workers, pooled) {
		r.running.Add(1)
		go r.serve(r.shared)
	}
	return r
}

func (r *standardRenderer) serve(tasks <-chan int) {
	defer r.running.Done()
	for i := range tasks {
		r.job(i)
		r.inflight.Done()
	}
}

func (r *standardRenderer) sendEvent(ev Event) {
	switch ev.Target {
	case TargetChannel:
		if ev.Channel < 0 || ev.Channel >= len(r.channels) {
			return
		}
		r.cache[ev.Channel] = append(r.cache[ev.Channel], ev.Audio)
		r.cached++
	case TargetAllChannels:
		for i := range r.cache {
			r.cache[i] = append(r.cache[i], ev.Audio)
		}
		r.cached += len(r.cache)
	case TargetChannelConfig:
		if ev.Channel < 0 || ev.Channel >= len(r.channels) {
			return
		}
		// Queued events were sent before the config change.
		r.flushEvents()
		r.channels[ev.Channel].ApplyConfig(ev.Config)
		return
	}
	if r.cached > maxEventCacheSize {
		r.flushEvents()
	}
}

func (r *standardRenderer) flushEvents() {
	if r.cached == 0 {
		return
	}
	r.fanOut(func(i int) {
		r.channels[i].PushEvents(r.cache[i])
		r.cache[i] = r.cache[i][:0]
	})
	r.cached = 0
}

func (r *standardRenderer) readSamples(buf []float32) {
	r.flushEvents()

	n := len(buf)
	r.fanOut(func(i int) {
		if cap(r.scratch[i]) < n {
			r.scratch[i] = make([]float32, n)
		}
		r.channels[i].ReadSamples(r.scratch[i][:n])
	})

	clear(buf)
	for i := range r.channels {
		simdops.Mix(buf, r.scratch[i][:n])
	}
}

func (r *standardRenderer) voiceCount() uint64 {
	var total uint64
	for _, ch := range r.channels {
		total += ch.VoiceCount()
	}
	return total
}

// fanOut runs fn once per channel and waits for all of them.
func (r *standardRenderer) fanOut(fn func(i int)) {
	if r.workers == 1 {
		for i := range r.channels {
			fn(i)
		}
		return
	}

	r.job = fn
	for i := range r.channels {
		r.inflight.Add()
		if r.own[i] != nil {
			r.own[i] <- i
		} else {
			r.shared <- i
		}
	}
	r.inflight.Wait()
}

// close stops the fan-out goroutines.
func (r *standardRenderer) close() {
	if r.shared == nil || r.closed {
		return
	}
	r.closed = true
	for _, c := range r.own {
		if c != nil {
			close(c)
		}
	}
	close(r.shared)
	r.running.Wait()
}
