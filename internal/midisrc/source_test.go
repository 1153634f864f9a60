package midisrc_test

import (
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/tphakala/go-midi-render/internal/midisrc"
	"github.com/tphakala/go-midi-render/internal/testutil"
)

func collect(t *testing.T, f *midisrc.File) []midisrc.Batch {
	t.Helper()
	return slices.Collect(f.Batches())
}

func TestOpen_SingleNoteDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "note.mid")
	want := testutil.SingleNoteFile(t, path, 120, 4)

	f, err := midisrc.Open(path)
	require.NoError(t, err)
	assert.Equal(t, uint16(testutil.DefaultPPQ), f.PPQ())
	assert.InDelta(t, want, f.Duration(), 1e-9)
	assert.Equal(t, 1, f.NoteCount())

	var sawOn, sawOff bool
	for _, b := range collect(t, f) {
		for _, ev := range b.Events {
			switch ev.Kind {
			case midisrc.NoteOn:
				sawOn = true
				assert.Equal(t, uint8(127), ev.Velocity)
			case midisrc.NoteOff:
				sawOff = true
			}
		}
	}
	assert.True(t, sawOn)
	assert.True(t, sawOff)
}

func TestBatches_TempoChangeScalesLaterDeltas(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tempo.mid")
	ppq := uint16(testutil.DefaultPPQ)
	q := uint32(ppq)
	testutil.WriteMIDIFile(t, path, ppq, []testutil.TimedMessage{
		{Tick: 0, Message: midi.NoteOn(0, 60, 100)},
		{Tick: q, Message: smf.MetaTempo(60)},
		{Tick: q, Message: midi.NoteOff(0, 60)},
		{Tick: 2 * q, Message: midi.NoteOn(0, 62, 100)},
	})

	f, err := midisrc.Open(path)
	require.NoError(t, err)
	batches := collect(t, f)

	var deltas []float64
	for _, b := range batches {
		if len(b.Events) > 0 {
			deltas = append(deltas, b.Delta)
		}
	}
	// One quarter at the default 120 bpm, then one quarter at 60 bpm.
	require.Len(t, deltas, 3)
	assert.InDelta(t, 0.0, deltas[0], 1e-9)
	assert.InDelta(t, 0.5, deltas[1], 1e-9)
	assert.InDelta(t, 1.0, deltas[2], 1e-9)
}

func TestBatches_MergesTracksByTick(t *testing.T) {
	path := filepath.Join(t.TempDir(), "multi.mid")
	q := uint32(testutil.DefaultPPQ)
	testutil.WriteMIDIFile(t, path, testutil.DefaultPPQ,
		[]testutil.TimedMessage{
			{Tick: 0, Message: midi.NoteOn(0, 60, 100)},
			{Tick: 2 * q, Message: midi.NoteOff(0, 60)},
		},
		[]testutil.TimedMessage{
			{Tick: q, Message: midi.ControlChange(1, 7, 90)},
			{Tick: 2 * q, Message: midi.Pitchbend(1, 4096)},
			{Tick: 2 * q, Message: midi.ProgramChange(1, 12)},
		},
	)

	f, err := midisrc.Open(path)
	require.NoError(t, err)

	var kinds []midisrc.EventKind
	total := 0.0
	for _, b := range collect(t, f) {
		total += b.Delta
		for _, ev := range b.Events {
			kinds = append(kinds, ev.Kind)
		}
	}
	assert.Equal(t, []midisrc.EventKind{
		midisrc.NoteOn,
		midisrc.ControlChange,
		midisrc.NoteOff, // track 0 before track 1 at the same tick
		midisrc.PitchBend,
		midisrc.ProgramChange,
	}, kinds)
	assert.InDelta(t, 1.0, total, 1e-9)
}

func TestBatches_StopsEarly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "note.mid")
	testutil.SingleNoteFile(t, path, 120, 1)
	f, err := midisrc.Open(path)
	require.NoError(t, err)

	n := 0
	for range f.Batches() {
		n++
		break
	}
	assert.Equal(t, 1, n)
}

func TestOpen_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := midisrc.Open(filepath.Join(dir, "missing.mid"))
	var le *midisrc.LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, midisrc.FilesystemError, le.Kind)
	assert.ErrorIs(t, err, os.ErrNotExist)

	corrupt := filepath.Join(dir, "corrupt.mid")
	require.NoError(t, os.WriteFile(corrupt, []byte("MThd\x00\x00"), 0o600))
	_, err = midisrc.Open(corrupt)
	require.ErrorAs(t, err, &le)
	assert.Equal(t, midisrc.CorruptChunks, le.Kind)

	_, err = midisrc.Open(dir)
	require.ErrorAs(t, err, &le)
	assert.Equal(t, midisrc.FilesystemError, le.Kind)
}

func TestErrorKind_String(t *testing.T) {
	assert.Equal(t, "corrupt chunks", midisrc.CorruptChunks.String())
	assert.Equal(t, "file too big", midisrc.FileTooBig.String())
	assert.Contains(t, (&midisrc.LoadError{Kind: midisrc.FileTooBig, Path: "x.mid"}).Error(), "file too big")
}
