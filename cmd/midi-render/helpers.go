package main

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/time/rate"

	midirender "github.com/tphakala/go-midi-render"
)

const percentScale = 100

// stringList collects a repeated flag.
type stringList []string

func (l *stringList) String() string { return strings.Join(*l, ",") }

func (l *stringList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

// checkSoundfonts requires at least one readable bank.
func checkSoundfonts(paths []string) error {
	if len(paths) == 0 {
		return fmt.Errorf("no soundfont given, use -sf or MIDIRENDER_SOUNDFONTS")
	}
	for _, p := range paths {
		if err := midirender.InspectSoundfont(p); err != nil {
			return fmt.Errorf("soundfont %s: %w", p, err)
		}
	}
	return nil
}

// collectInputs expands directories and validates files.
func collectInputs(args []string) ([]midirender.MIDIInfo, error) {
	var out []midirender.MIDIInfo
	for _, arg := range args {
		fi, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("input %s: %w", arg, err)
		}
		if fi.IsDir() {
			found, err := midirender.ScanFolder(arg)
			if err != nil {
				return nil, fmt.Errorf("scan %s: %w", arg, err)
			}
			out = append(out, found...)
			continue
		}
		info, err := midirender.InspectMIDI(arg)
		if err != nil {
			return nil, fmt.Errorf("input %s: %w", arg, err)
		}
		out = append(out, info)
	}
	if len(out) == 0 {
		return nil, midirender.ErrEmptyMIDIList
	}
	return out, nil
}

// progressReporter logs batch progress at most once per interval.
type progressReporter struct {
	limiter *rate.Limiter
	last    midirender.ManagerStatus
}

func newProgressReporter(every time.Duration) *progressReporter {
	return &progressReporter{limiter: rate.NewLimiter(rate.Every(every), 1), last: -1}
}

func (p *progressReporter) report(m *midirender.Manager) {
	st := m.Status()
	changed := st != p.last
	p.last = st
	if !changed && !p.limiter.Allow() {
		return
	}
	if st != midirender.RenderingMIDIs {
		return
	}
	if progress, ok := m.Progress(); ok {
		log.Print(progressLine(m.Stats(), progress))
	}
}

// progressLine formats aggregate progress and the running jobs.
func progressLine(stats []midirender.JobStats, progress float64) string {
	var b strings.Builder
	done, voices := 0, uint64(0)
	for _, js := range stats {
		if js.Status == midirender.JobFinished {
			done++
		}
		if js.Status == midirender.JobRendering && js.Stats != nil {
			voices += js.Stats.Voices
		}
	}
	fmt.Fprintf(&b, "%5.1f%%  %d/%d files  %s voices", progress*percentScale, done, len(stats), humanize.Comma(int64(voices)))
	return b.String()
}

// summarize lists every output with its size.
func summarize(s *midirender.Settings, inputs []midirender.MIDIInfo, elapsed time.Duration) string {
	var b strings.Builder
	var audio time.Duration
	var total uint64
	for _, in := range inputs {
		out := s.OutputPath(in.Path)
		fi, err := os.Stat(out)
		if err != nil {
			fmt.Fprintf(&b, "  %s -> (missing)\n", in.Name)
			continue
		}
		total += uint64(fi.Size())
		audio += in.Length
		fmt.Fprintf(&b, "  %s -> %s (%s)\n", in.Name, out, humanize.Bytes(uint64(fi.Size())))
	}
	fmt.Fprintf(&b, "Rendered %d files, %s of audio, %s in %s",
		len(inputs), midirender.FormatDuration(audio), humanize.Bytes(total), midirender.FormatDuration(elapsed))
	if elapsed > 0 && audio > 0 {
		fmt.Fprintf(&b, " (%.1fx realtime)", audio.Seconds()/elapsed.Seconds())
	}
	b.WriteString("\n")
	return b.String()
}
