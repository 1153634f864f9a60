package midirender

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hako/durafmt"

	"github.com/tphakala/go-midi-render/internal/midisrc"
)

var shortUnits, _ = durafmt.DefaultUnitsCoder.Decode("y:yrs,wk:wks,d:d,h:h,m:m,s:s,ms:ms,us:us")

// MIDIInfo describes an input file accepted for rendering.
type MIDIInfo struct {
	Path      string
	Name      string
	Size      int64
	Length    time.Duration
	NoteCount int
}

// String formats the file for listings.
func (m MIDIInfo) String() string {
	return fmt.Sprintf("%s (%s, %s, %d notes)", m.Name, humanize.Bytes(uint64(m.Size)),
		FormatDuration(m.Length), m.NoteCount)
}

// FormatDuration renders d with its two leading units, e.g. "3 m 12 s".
func FormatDuration(d time.Duration) string {
	return durafmt.Parse(d).LimitFirstN(2).Format(shortUnits)
}

func hasExt(path string, exts ...string) bool {
	return slices.Contains(exts, strings.ToLower(filepath.Ext(path)))
}

// InspectMIDI checks that path is a readable MIDI file and describes it.
func InspectMIDI(path string) (MIDIInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return MIDIInfo{}, &FileLoadError{Kind: FileNotFound, Path: path, Err: err}
	}
	if info.IsDir() || !hasExt(path, ".mid", ".midi") {
		return MIDIInfo{}, &FileLoadError{Kind: InvalidFormat, Path: path}
	}

	f, err := midisrc.Open(path)
	if err != nil {
		var le *midisrc.LoadError
		if errors.As(err, &le) && le.Kind == midisrc.FilesystemError {
			return MIDIInfo{}, &FileLoadError{Kind: FileNotFound, Path: path, Err: err}
		}
		return MIDIInfo{}, &FileLoadError{Kind: Corrupt, Path: path, Detail: errorDetail(err), Err: err}
	}
	return MIDIInfo{
		Path:      path,
		Name:      filepath.Base(path),
		Size:      info.Size(),
		Length:    time.Duration(f.Duration() * float64(time.Second)),
		NoteCount: f.NoteCount(),
	}, nil
}

func errorDetail(err error) string {
	var le *midisrc.LoadError
	if errors.As(err, &le) {
		if le.Err != nil {
			return le.Err.Error()
		}
		return le.Kind.String()
	}
	return err.Error()
}

// ScanFolder walks dir and returns every valid MIDI file below it, in lexical
// order. Files that fail inspection are skipped.
func ScanFolder(dir string) ([]MIDIInfo, error) {
	var out []MIDIInfo
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !hasExt(path, ".mid", ".midi") {
			return nil
		}
		if info, err := InspectMIDI(path); err == nil {
			out = append(out, info)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// InspectSoundfont checks that path names an existing SoundFont 2 file.
func InspectSoundfont(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return &FileLoadError{Kind: FileNotFound, Path: path, Err: err}
	}
	if info.IsDir() || !hasExt(path, ".sf2") {
		return &FileLoadError{Kind: InvalidFormat, Path: path}
	}
	return nil
}
