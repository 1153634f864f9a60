package testutil

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/require"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

// DefaultPPQ is the resolution of generated fixture files.
const DefaultPPQ = 480

// TimedMessage is a message at an absolute tick.
type TimedMessage struct {
	Tick    uint32
	Message []byte
}

// Note describes one note in ticks.
type Note struct {
	Channel  uint8
	Key      uint8
	Velocity uint8
	Start    uint32
	Length   uint32
}

// NoteTrack builds a track with an optional tempo event followed by notes.
// A bpm of zero leaves the default tempo in effect.
func NoteTrack(bpm float64, notes ...Note) []TimedMessage {
	var msgs []TimedMessage
	if bpm > 0 {
		msgs = append(msgs, TimedMessage{Tick: 0, Message: smf.MetaTempo(bpm)})
	}
	for _, n := range notes {
		msgs = append(msgs,
			TimedMessage{Tick: n.Start, Message: midi.NoteOn(n.Channel, n.Key, n.Velocity)},
			TimedMessage{Tick: n.Start + n.Length, Message: midi.NoteOff(n.Channel, n.Key)},
		)
	}
	return msgs
}

// WriteMIDIFile writes a format-1 file with one track per argument. Messages
// are sorted by tick; ties keep their order.
func WriteMIDIFile(t testing.TB, path string, ppq uint16, tracks ...[]TimedMessage) {
	t.Helper()

	s := smf.New()
	s.TimeFormat = smf.MetricTicks(ppq)
	for _, msgs := range tracks {
		sorted := slices.Clone(msgs)
		slices.SortStableFunc(sorted, func(a, b TimedMessage) int {
			return int(a.Tick) - int(b.Tick)
		})

		var tr smf.Track
		var last uint32
		for _, m := range sorted {
			tr.Add(m.Tick-last, m.Message)
			last = m.Tick
		}
		tr.Close(0)
		require.NoError(t, s.Add(tr))
	}
	require.NoError(t, s.WriteFile(path))
}

// SingleNoteFile writes a file holding one note for the given number of 4/4
// bars at bpm and returns the expected duration in seconds.
func SingleNoteFile(t testing.TB, path string, bpm float64, bars int) float64 {
	t.Helper()
	length := uint32(bars * 4 * DefaultPPQ)
	WriteMIDIFile(t, path, DefaultPPQ, NoteTrack(bpm, Note{Key: 60, Velocity: 127, Length: length}))
	return float64(bars*4) * 60 / bpm
}
