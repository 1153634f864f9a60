package midirender

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/tphakala/go-midi-render/internal/synth"
)

// ManagerStatus is the phase of a batch.
type ManagerStatus int

const (
	LoadingSoundfonts ManagerStatus = iota
	SoundfontsFinished
	SFLoadError
	RenderingMIDIs
	RenderFinished
	RenderError
)

// String returns the status name.
func (s ManagerStatus) String() string {
	switch s {
	case LoadingSoundfonts:
		return "loading soundfonts"
	case SoundfontsFinished:
		return "soundfonts loaded"
	case SFLoadError:
		return "soundfont load error"
	case RenderingMIDIs:
		return "rendering"
	case RenderFinished:
		return "finished"
	case RenderError:
		return "render error"
	default:
		return fmt.Sprintf("ManagerStatus(%d)", int(s))
	}
}

// Option configures a Manager.
type Option func(*managerOptions)

type managerOptions struct {
	loader SoundfontLoader
}

// WithSoundfontLoader replaces the SoundFont file parser.
func WithSoundfontLoader(load SoundfontLoader) Option {
	return func(o *managerOptions) {
		o.loader = load
	}
}

// Manager runs one batch: it loads the soundfonts, then renders the files.
type Manager struct {
	mu        sync.Mutex
	sfPool    *SoundfontPool
	midiPool  *MIDIPool
	rendering bool
	cancelled bool
	last      ManagerStatus
	err       error
}

// NewManager validates the configuration, starts loading every referenced
// soundfont and opens every MIDI file. Either all files open or none do.
func NewManager(settings Settings, channels []ChannelSettings, midis []string, opts ...Option) (*Manager, error) {
	o := managerOptions{loader: synth.LoadSoundfont}
	for _, opt := range opts {
		opt(&o)
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if err := ValidateChannels(channels); err != nil {
		return nil, err
	}
	if len(midis) == 0 {
		return nil, ErrEmptyMIDIList
	}

	cache := NewSoundfontCache()
	sfPool := NewSoundfontPool(distinctSoundfonts(channels), cache, o.loader)
	midiPool, err := NewMIDIPool(settings, channels, midis, cache)
	if err != nil {
		sfPool.Cancel()
		return nil, err
	}
	log.Printf("midirender: batch of %d files, %s, %d Hz, %d ch, %d parallel",
		len(midis), settings.Format, settings.SampleRate, settings.AudioChannels, settings.MaxParallel())
	return &Manager{sfPool: sfPool, midiPool: midiPool}, nil
}

// Status reports the batch phase. A soundfont failure cancels the batch.
func (m *Manager) Status() ManagerStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusLocked()
}

func (m *Manager) statusLocked() ManagerStatus {
	var st ManagerStatus
	if !m.rendering {
		switch m.sfPool.Status() {
		case SoundfontsLoading:
			st = LoadingSoundfonts
		case SoundfontsLoaded:
			st = SoundfontsFinished
		default:
			if m.err == nil {
				m.err = m.sfPool.Err()
			}
			m.midiPool.CancelAll()
			st = SFLoadError
		}
	} else {
		switch m.midiPool.Status() {
		case JobError:
			if m.err == nil {
				m.err = m.midiPool.Err()
			}
			st = RenderError
		case JobFinished:
			st = RenderFinished
		default:
			st = RenderingMIDIs
		}
	}
	if st != m.last {
		log.Printf("midirender: %s", st)
		m.last = st
	}
	return st
}

// Render hands the loaded soundfonts to the jobs and starts rendering.
func (m *Manager) Render() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rendering {
		return nil
	}
	if m.sfPool.Status() != SoundfontsLoaded {
		return ErrSoundfontsNotReady
	}
	m.midiPool.SetSoundfonts()
	m.midiPool.Run()
	m.rendering = true
	return nil
}

// SpawnNext starts another job if the concurrency cap allows it.
func (m *Manager) SpawnNext() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.rendering {
		return false
	}
	return m.midiPool.SpawnNext()
}

// Stats returns a snapshot of every job.
func (m *Manager) Stats() []JobStats {
	return m.midiPool.Stats()
}

// Progress returns the mean completion of the batch. It reports false for an
// empty batch.
func (m *Manager) Progress() (float64, bool) {
	return m.midiPool.Progress()
}

// HasFinished reports whether no job is left running.
func (m *Manager) HasFinished() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.statusLocked() {
	case RenderFinished, SFLoadError, RenderError:
		return true
	}
	return m.cancelled && m.midiPool.Status() == JobFinished
}

// Cancel stops soundfont loading and every job.
func (m *Manager) Cancel() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelled = true
	m.sfPool.Cancel()
	m.midiPool.CancelAll()
}

// Wait blocks until every job goroutine returned.
func (m *Manager) Wait() {
	m.midiPool.Wait()
}

// Err returns the failure that ended the batch.
func (m *Manager) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Run drives the batch to completion, polling every interval and calling
// onTick after each poll. Cancelling ctx cancels the batch and returns
// ctx.Err() once every job stopped.
func (m *Manager) Run(ctx context.Context, interval time.Duration, onTick func(*Manager)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		switch m.Status() {
		case SoundfontsFinished:
			if err := m.Render(); err != nil {
				return err
			}
		case RenderingMIDIs:
			for m.SpawnNext() {
			}
		case RenderFinished:
			if !m.SpawnNext() {
				if onTick != nil {
					onTick(m)
				}
				m.Wait()
				return nil
			}
		case SFLoadError, RenderError:
			m.Cancel()
			m.Wait()
			return m.Err()
		}

		if onTick != nil {
			onTick(m)
		}
		select {
		case <-ctx.Done():
			m.Cancel()
			m.Wait()
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
