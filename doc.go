// Package midirender renders batches of MIDI files to audio files with a
// sample-based SoundFont synthesizer.
//
// # Features
//
//   - One loaded instance per SoundFont file, shared by every channel and job
//   - Bounded parallelism across files and across the 16 MIDI channels of a file
//   - Two timing strategies: exact offline rendering and a realtime simulation
//     that quantises events to a fixed output window
//   - WAV (16-bit integer or 32-bit float), Ogg/Vorbis, LAME MP3 and Ogg/Opus output
//   - Lookahead peak limiter ahead of the encoder
//   - Lock-free progress and voice statistics, cooperative cancellation
//
// # Quick Start
//
//	settings := midirender.DefaultSettings()
//	settings.OutputDir = "out"
//
//	cs := midirender.DefaultChannelSettings()
//	cs.Soundfonts = []midirender.SoundfontRef{{
//	    Path:    "piano.sf2",
//	    Options: midirender.DefaultSoundfontOptions(),
//	}}
//
//	m, err := midirender.NewManager(settings, midirender.UniformChannels(cs),
//	    []string{"song.mid"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = m.Run(ctx, 100*time.Millisecond, func(m *midirender.Manager) {
//	    if p, ok := m.Progress(); ok {
//	        log.Printf("%.0f%%", p*100)
//	    }
//	})
//
// # Architecture
//
// A [Manager] moves through two phases. First a [SoundfontPool] loads every
// distinct SoundFont on its own goroutine into a shared [SoundfontCache].
// Once loading finishes the Manager hands the cache to a [MIDIPool], which
// holds one render job per input file and starts up to [Settings.MaxParallel]
// of them at a time.
//
// Each job runs three goroutines connected by bounded channels:
//
//	decode ──batches──▶ render ──PCM blocks──▶ writer
//
// The decode goroutine streams tempo-resolved event batches from the MIDI
// file. The render goroutine advances the synthesizer by each batch's delta in
// slices of at most 10 ms, then dispatches the batch's events. The writer
// goroutine runs the limiter and encoder and owns all file I/O. A full
// channel blocks its producer, so memory stays bounded regardless of file
// length.
//
// When the event stream ends every channel receives all-notes-off, and the
// render goroutine keeps producing one-second blocks until the release tails
// fall silent.
//
// # Thread Safety
//
// Manager, MIDIPool and SoundfontPool methods may be called from any
// goroutine. Status, Stats and Progress never block on rendering.
package midirender
