package midirender

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/tphakala/go-midi-render/internal/testutil"
	"github.com/tphakala/go-midi-render/internal/writer"
)

// testSettings renders mono 16-bit WAV without the limiter into a temp dir.
func testSettings(t *testing.T) Settings {
	t.Helper()
	s := DefaultSettings()
	s.AudioChannels = Mono
	s.Format = PCMOutput(SampleInt16)
	s.Limiter.Enabled = false
	s.OutputDir = t.TempDir()
	return s
}

// sineChannels points every channel at one fake soundfont path.
func sineChannels(path string) []ChannelSettings {
	cs := DefaultChannelSettings()
	cs.Soundfonts = []SoundfontRef{{Path: path, Options: DefaultSoundfontOptions()}}
	return UniformChannels(cs)
}

// writeSongs writes n single-note files of the given bar count.
func writeSongs(t *testing.T, n, bars int) []string {
	t.Helper()
	dir := t.TempDir()
	paths := make([]string, n)
	for i := range paths {
		paths[i] = filepath.Join(dir, fmt.Sprintf("song%d.mid", i))
		testutil.SingleNoteFile(t, paths[i], 120, bars)
	}
	return paths
}

func loadCount(calls *sync.Map, path string) int64 {
	n, ok := calls.Load(path)
	if !ok {
		return 0
	}
	return n.(*atomic.Int64).Load()
}

// fakeSink counts writes instead of encoding.
type fakeSink struct {
	writes    atomic.Int64
	finalized atomic.Int64
	gate      chan struct{} // When set, each write waits for a token
}

func (f *fakeSink) WriteSamples([]float32) error {
	if f.gate != nil {
		<-f.gate
	}
	f.writes.Add(1)
	return nil
}

func (f *fakeSink) Finalize() error {
	f.finalized.Add(1)
	return nil
}

// useFakeSinks routes every job created during the test to its own fakeSink.
func useFakeSinks(t *testing.T, gate chan struct{}) *sync.Map {
	t.Helper()
	sinks := new(sync.Map)
	orig := newSampleSink
	newSampleSink = func(cfg writer.Config) (sampleSink, error) {
		s := &fakeSink{gate: gate}
		sinks.Store(cfg.Path, s)
		return s, nil
	}
	t.Cleanup(func() { newSampleSink = orig })
	return sinks
}

var errFinalize = errors.New("flush failed")

// failingSink accepts writes and fails to finalize.
type failingSink struct{}

func (failingSink) WriteSamples([]float32) error { return nil }
func (failingSink) Finalize() error              { return errFinalize }
