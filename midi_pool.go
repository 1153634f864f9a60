package midirender

import (
	"fmt"
	"slices"
	"sync"
)

type midiJob struct {
	path   string
	length float64
	r      *midiRenderer // Dropped once the job is observed done
	status *statusCell
	stats  *statsCell
}

// MIDIPool holds the render jobs of a batch and runs a bounded number of them
// at a time.
type MIDIPool struct {
	mu          sync.Mutex
	cache       *SoundfontCache
	jobs        []*midiJob
	draining    []*midiRenderer // Cancelled jobs whose writer has not returned yet
	maxParallel int
	started     bool
	err         error
	wg          sync.WaitGroup
}

// NewMIDIPool loads every file in paths. If any file fails to load, the jobs
// created so far are cancelled and the error is returned.
func NewMIDIPool(settings Settings, channels []ChannelSettings, paths []string, cache *SoundfontCache) (*MIDIPool, error) {
	if len(paths) == 0 {
		return nil, ErrEmptyMIDIList
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if err := ValidateChannels(channels); err != nil {
		return nil, err
	}
	channels = cloneChannels(channels)

	p := &MIDIPool{
		cache:       cache,
		jobs:        make([]*midiJob, 0, len(paths)),
		maxParallel: settings.MaxParallel(),
	}
	for _, path := range paths {
		r, err := loadMIDIRenderer(&settings, channels, path)
		if err != nil {
			p.CancelAll()
			return nil, err
		}
		p.jobs = append(p.jobs, &midiJob{
			path:   path,
			length: r.length,
			r:      r,
			status: &r.status,
			stats:  &r.stats,
		})
	}
	return p, nil
}

func cloneChannels(channels []ChannelSettings) []ChannelSettings {
	out := slices.Clone(channels)
	for i := range out {
		out[i].Soundfonts = slices.Clone(out[i].Soundfonts)
		if out[i].LayerLimit != nil {
			layers := *out[i].LayerLimit
			out[i].LayerLimit = &layers
		}
	}
	return out
}

// SetSoundfonts hands the loaded soundfonts to every job.
func (p *MIDIPool) SetSoundfonts() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, j := range p.jobs {
		if j.r != nil {
			j.r.setSoundfonts(p.cache)
		}
	}
}

// Run starts as many jobs as the concurrency cap allows.
func (p *MIDIPool) Run() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.started = true
	for p.spawnNextLocked() {
	}
}

// SpawnNext starts the next idle job. It returns false when the cap is
// reached or no idle job remains.
func (p *MIDIPool) SpawnNext() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.spawnNextLocked()
}

func (p *MIDIPool) spawnNextLocked() bool {
	rendering := 0
	for _, j := range p.jobs {
		if j.status.load() == JobRendering {
			rendering++
		}
	}
	if rendering >= p.maxParallel {
		return false
	}
	for _, j := range p.jobs {
		if j.r == nil || !j.status.transition(JobIdle, JobRendering) {
			continue
		}
		r := j.r
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			r.run()
		}()
		return true
	}
	return false
}

// Status reports the pool state. Any job error cancels the whole batch and
// is kept from then on.
func (p *MIDIPool) Status() JobStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.err != nil {
		return JobError
	}

	rendering, idle := 0, 0
	for _, j := range p.jobs {
		switch j.status.load() {
		case JobError:
			p.err = fmt.Errorf("%w: %s", ErrRenderFailed, j.path)
			p.cancelLocked()
			return JobError
		case JobFinished:
			j.r = nil
		case JobRendering:
			rendering++
		default:
			idle++
		}
	}

	p.draining = slices.DeleteFunc(p.draining, func(r *midiRenderer) bool {
		select {
		case <-r.exited:
			return true
		default:
			return false
		}
	})

	switch {
	case rendering > 0, len(p.draining) > 0:
		return JobRendering
	case idle > 0 && p.started:
		return JobRendering
	case idle > 0:
		return JobIdle
	default:
		return JobFinished
	}
}

// Err returns the failure observed by Status.
func (p *MIDIPool) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Stats returns a snapshot of every job.
func (p *MIDIPool) Stats() []JobStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]JobStats, len(p.jobs))
	for i, j := range p.jobs {
		js := JobStats{Path: j.path, Status: j.status.load(), Length: j.length}
		if js.Status != JobIdle {
			s := j.stats.snapshot()
			js.Stats = &s
		}
		out[i] = js
	}
	return out
}

// Progress returns the mean completion of all jobs. It reports false when
// the pool holds no jobs.
func (p *MIDIPool) Progress() (float64, bool) {
	return meanProgress(p.Stats())
}

// CancelAll cancels every job and drops them from the pool.
func (p *MIDIPool) CancelAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelLocked()
}

func (p *MIDIPool) cancelLocked() {
	for _, j := range p.jobs {
		if j.r == nil {
			continue
		}
		j.r.stop()
		p.draining = append(p.draining, j.r)
	}
	p.jobs = nil
}

// Wait blocks until every started job and every cancelled writer returned.
func (p *MIDIPool) Wait() {
	p.wg.Wait()
	p.mu.Lock()
	draining := slices.Clone(p.draining)
	p.mu.Unlock()
	for _, r := range draining {
		<-r.exited
	}
}
