// Package midisrc reads Standard MIDI Files and exposes them as a single
// time-ordered stream of event batches with tempo already applied, so every
// batch carries its distance from the previous one in seconds.
package midisrc

import (
	"container/heap"
	"errors"
	"io/fs"
	"iter"
	"math"
	"os"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

const (
	defaultBPM       = 120.0
	maxFileSize      = math.MaxUint32 // Chunk lengths are 32-bit
	secondsPerMinute = 60.0
)

// EventKind identifies a dispatchable channel event.
type EventKind uint8

const (
	NoteOn EventKind = iota
	NoteOff
	ControlChange
	PitchBend
	ProgramChange
)

// Event is a channel voice message.
type Event struct {
	Kind       EventKind
	Channel    uint8
	Key        uint8
	Velocity   uint8
	Controller uint8
	Value      uint8 // Control value or program number
	Pitch      int16 // Relative pitch bend, -8192..8191
}

// Batch is the set of events sharing one instant, Delta seconds after the
// previous batch.
type Batch struct {
	Delta  float64
	Events []Event
}

// File is a parsed MIDI file.
type File struct {
	path      string
	ppq       uint16
	tracks    []smf.Track
	duration  float64
	noteCount int
}

// Open parses the file at path.
func Open(path string) (*File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &LoadError{Kind: FilesystemError, Path: path, Err: err}
	}
	if info.IsDir() {
		return nil, &LoadError{Kind: FilesystemError, Path: path, Err: fs.ErrInvalid}
	}
	if info.Size() > maxFileSize {
		return nil, &LoadError{Kind: FileTooBig, Path: path}
	}

	s, err := smf.ReadFile(path)
	if err != nil {
		var pathErr *fs.PathError
		if errors.As(err, &pathErr) {
			return nil, &LoadError{Kind: FilesystemError, Path: path, Err: err}
		}
		return nil, &LoadError{Kind: CorruptChunks, Path: path, Err: err}
	}

	ticks, ok := s.TimeFormat.(smf.MetricTicks)
	if !ok || ticks.Resolution() == 0 {
		return nil, &LoadError{Kind: CorruptChunks, Path: path, Err: errors.New("unsupported time format")}
	}

	f := &File{
		path:   path,
		ppq:    ticks.Resolution(),
		tracks: s.Tracks,
	}
	f.scan()
	return f, nil
}

// Path returns the file the stream was read from.
func (f *File) Path() string { return f.path }

// PPQ returns the file's pulses per quarter note.
func (f *File) PPQ() uint16 { return f.ppq }

// Duration returns the total length of the stream in seconds.
func (f *File) Duration() float64 { return f.duration }

// NoteCount returns the number of note-on events.
func (f *File) NoteCount() int { return f.noteCount }

func (f *File) scan() {
	for b := range f.Batches() {
		f.duration += b.Delta
		for _, ev := range b.Events {
			if ev.Kind == NoteOn {
				f.noteCount++
			}
		}
	}
}

// Batches returns the merged stream of all tracks. Tracks are merged by
// absolute tick; events at the same tick keep track order. Tempo events are
// consumed and a tick that carries nothing else is folded into the next batch.
func (f *File) Batches() iter.Seq[Batch] {
	return func(yield func(Batch) bool) {
		m := newMerger(f.tracks)
		secondsPerTick := tickSeconds(defaultBPM, f.ppq)

		var lastTick uint64
		var pending float64
		for {
			tick, events, ok := m.next()
			if !ok {
				return
			}
			pending += float64(tick-lastTick) * secondsPerTick
			lastTick = tick

			var out []Event
			keep := false
			for _, ev := range events {
				var bpm float64
				if ev.Message.GetMetaTempo(&bpm) {
					if bpm > 0 {
						secondsPerTick = tickSeconds(bpm, f.ppq)
					}
					continue
				}
				keep = true
				if e, ok := decode(midi.Message(ev.Message)); ok {
					out = append(out, e)
				}
			}
			if !keep {
				continue
			}
			if !yield(Batch{Delta: pending, Events: out}) {
				return
			}
			pending = 0
		}
	}
}

func tickSeconds(bpm float64, ppq uint16) float64 {
	return secondsPerMinute / bpm / float64(ppq)
}

func decode(msg midi.Message) (Event, bool) {
	var ev Event
	switch {
	case msg.GetNoteStart(&ev.Channel, &ev.Key, &ev.Velocity):
		ev.Kind = NoteOn
	case msg.GetNoteEnd(&ev.Channel, &ev.Key):
		ev.Kind = NoteOff
	case msg.GetControlChange(&ev.Channel, &ev.Controller, &ev.Value):
		ev.Kind = ControlChange
	case msg.GetProgramChange(&ev.Channel, &ev.Value):
		ev.Kind = ProgramChange
	default:
		var abs uint16
		if !msg.GetPitchBend(&ev.Channel, &ev.Pitch, &abs) {
			return Event{}, false
		}
		ev.Kind = PitchBend
	}
	return ev, true
}

// merger walks every track in absolute-tick order.
type merger struct {
	tracks  []smf.Track
	cursors cursorHeap
}

type cursor struct {
	track int
	pos   int
	tick  uint64
}

func newMerger(tracks []smf.Track) *merger {
	m := &merger{tracks: tracks}
	for i, tr := range tracks {
		if len(tr) > 0 {
			m.cursors = append(m.cursors, cursor{track: i, tick: uint64(tr[0].Delta)})
		}
	}
	heap.Init(&m.cursors)
	return m
}

// next returns every event at the earliest remaining tick.
func (m *merger) next() (uint64, []smf.Event, bool) {
	if len(m.cursors) == 0 {
		return 0, nil, false
	}
	tick := m.cursors[0].tick
	var events []smf.Event
	for len(m.cursors) > 0 && m.cursors[0].tick == tick {
		c := &m.cursors[0]
		tr := m.tracks[c.track]
		events = append(events, tr[c.pos])
		c.pos++
		if c.pos < len(tr) {
			c.tick += uint64(tr[c.pos].Delta)
			heap.Fix(&m.cursors, 0)
		} else {
			heap.Pop(&m.cursors)
		}
	}
	return tick, events, true
}

type cursorHeap []cursor

func (h cursorHeap) Len() int { return len(h) }
func (h cursorHeap) Less(i, j int) bool {
	if h[i].tick != h[j].tick {
		return h[i].tick < h[j].tick
	}
	return h[i].track < h[j].track
}
func (h cursorHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *cursorHeap) Push(x any)   { *h = append(*h, x.(cursor)) }
func (h *cursorHeap) Pop() any {
	old := *h
	n := len(old)
	c := old[n-1]
	*h = old[:n-1]
	return c
}
