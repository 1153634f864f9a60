package midirender

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/go-midi-render/internal/synth"
	"github.com/tphakala/go-midi-render/internal/testutil"
)

func waitPool(t *testing.T, p *SoundfontPool) PoolStatus {
	t.Helper()
	var st PoolStatus
	require.Eventually(t, func() bool {
		st = p.Status()
		return st != SoundfontsLoading
	}, 5*time.Second, time.Millisecond)
	return st
}

func TestSoundfontPool_LoadsEachRefOnce(t *testing.T) {
	calls := new(sync.Map)
	cache := NewSoundfontCache()
	refs := []SoundfontRef{{Path: "a.sf2"}, {Path: "b.sf2"}, {Path: "c.sf2"}}

	p := NewSoundfontPool(refs, cache, testutil.SineLoader(calls))
	assert.Equal(t, SoundfontsLoaded, waitPool(t, p))
	require.NoError(t, p.Err())

	assert.Equal(t, 3, cache.Len())
	for _, ref := range refs {
		assert.Equal(t, int64(1), loadCount(calls, ref.Path))
		sf, ok := cache.Get(ref.Path)
		require.True(t, ok)
		assert.Equal(t, ref.Path, sf.Path())
	}
}

func TestSoundfontPool_FailureCancelsRest(t *testing.T) {
	release := make(chan struct{})
	boom := errors.New("truncated sdta chunk")
	loader := func(path string, opts SoundfontOptions) (synth.Soundfont, error) {
		if path == "bad.sf2" {
			return nil, boom
		}
		<-release
		return testutil.NewSineSoundfont(path), nil
	}

	cache := NewSoundfontCache()
	p := NewSoundfontPool([]SoundfontRef{{Path: "bad.sf2"}, {Path: "slow.sf2"}}, cache, loader)
	assert.Equal(t, SoundfontsFailed, waitPool(t, p))
	require.ErrorIs(t, p.Err(), ErrSoundfontLoad)
	require.ErrorIs(t, p.Err(), boom)

	close(release)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, SoundfontsFailed, p.Status())
	_, ok := cache.Get("slow.sf2")
	assert.False(t, ok, "cancelled load reached the cache")
}

func TestSoundfontPool_CancelSuppressesInsert(t *testing.T) {
	release := make(chan struct{})
	loader := func(path string, opts SoundfontOptions) (synth.Soundfont, error) {
		<-release
		return testutil.NewSineSoundfont(path), nil
	}
	cache := NewSoundfontCache()
	p := NewSoundfontPool([]SoundfontRef{{Path: "a.sf2"}}, cache, loader)
	assert.Equal(t, SoundfontsLoading, p.Status())

	p.Cancel()
	close(release)
	assert.Equal(t, SoundfontsLoaded, waitPool(t, p))
	assert.Zero(t, cache.Len())
}

func TestSoundfontPool_Empty(t *testing.T) {
	p := NewSoundfontPool(nil, NewSoundfontCache(), testutil.SineLoader(new(sync.Map)))
	assert.Equal(t, SoundfontsLoaded, p.Status())
}
