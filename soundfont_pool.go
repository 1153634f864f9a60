package midirender

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/tphakala/go-midi-render/internal/synth"
)

// SoundfontLoader parses a soundfont file into a bank.
type SoundfontLoader = synth.Loader

// SoundfontCache maps soundfont paths to loaded banks. Entries are written by
// pool workers and read once loading has finished.
type SoundfontCache struct {
	mu      sync.RWMutex
	entries map[string]synth.Soundfont
}

// NewSoundfontCache returns an empty cache.
func NewSoundfontCache() *SoundfontCache {
	return &SoundfontCache{entries: make(map[string]synth.Soundfont)}
}

// Get returns the bank loaded from path.
func (c *SoundfontCache) Get(path string) (synth.Soundfont, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sf, ok := c.entries[path]
	return sf, ok
}

// Len returns the number of loaded banks.
func (c *SoundfontCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *SoundfontCache) insert(path string, sf synth.Soundfont) {
	c.mu.Lock()
	c.entries[path] = sf
	c.mu.Unlock()
}

// PoolStatus is the aggregate state of a SoundfontPool.
type PoolStatus int

const (
	SoundfontsLoading PoolStatus = iota
	SoundfontsLoaded
	SoundfontsFailed
)

// String returns the status name.
func (s PoolStatus) String() string {
	switch s {
	case SoundfontsLoading:
		return "loading"
	case SoundfontsLoaded:
		return "loaded"
	case SoundfontsFailed:
		return "failed"
	default:
		return fmt.Sprintf("PoolStatus(%d)", int(s))
	}
}

type soundfontWorker struct {
	path   string
	allow  atomic.Bool
	status statusCell
	err    error // Set before status moves to JobError
}

func (w *soundfontWorker) run(ref SoundfontRef, cache *SoundfontCache, load SoundfontLoader) {
	sf, err := load(ref.Path, ref.Options)
	if err != nil {
		w.err = fmt.Errorf("%w: %s: %w", ErrSoundfontLoad, ref.Path, err)
		w.status.transition(JobRendering, JobError)
		return
	}
	if w.allow.Load() {
		cache.insert(ref.Path, sf)
	}
	w.status.transition(JobRendering, JobFinished)
}

// SoundfontPool loads a set of soundfonts concurrently into a cache, one
// goroutine per file.
type SoundfontPool struct {
	mu       sync.Mutex
	workers  []*soundfontWorker
	firstErr error
}

// NewSoundfontPool starts loading refs into cache. Refs must have distinct paths.
func NewSoundfontPool(refs []SoundfontRef, cache *SoundfontCache, load SoundfontLoader) *SoundfontPool {
	p := &SoundfontPool{workers: make([]*soundfontWorker, 0, len(refs))}
	for _, ref := range refs {
		w := &soundfontWorker{path: ref.Path}
		w.allow.Store(true)
		w.status.v.Store(int32(JobRendering))
		p.workers = append(p.workers, w)
		go w.run(ref, cache, load)
	}
	return p
}

// Status reports the pool state. Finished workers are dropped; the first
// failure cancels the remaining workers.
func (p *SoundfontPool) Status() PoolStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.firstErr != nil {
		return SoundfontsFailed
	}
	remaining := p.workers[:0]
	for _, w := range p.workers {
		switch w.status.load() {
		case JobFinished:
		case JobError:
			if p.firstErr == nil {
				p.firstErr = w.err
			}
		default:
			remaining = append(remaining, w)
		}
	}
	clear(p.workers[len(remaining):])
	p.workers = remaining

	if p.firstErr != nil {
		p.cancelLocked()
		return SoundfontsFailed
	}
	if len(p.workers) > 0 {
		return SoundfontsLoading
	}
	return SoundfontsLoaded
}

// Err returns the first load failure observed by Status.
func (p *SoundfontPool) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.firstErr
}

// Cancel stops pending loads from reaching the cache. Loads already in
// progress run to completion and their result is discarded.
func (p *SoundfontPool) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelLocked()
}

func (p *SoundfontPool) cancelLocked() {
	for _, w := range p.workers {
		w.allow.Store(false)
	}
}
