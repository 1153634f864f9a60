package midirender

import (
	"errors"
	"fmt"

	"github.com/tphakala/go-midi-render/internal/midisrc"
	"github.com/tphakala/go-midi-render/internal/synth"
)

// Sentinel errors
var (
	// ErrInvalidSettings is returned when Settings or ChannelSettings fail validation.
	ErrInvalidSettings = errors.New("invalid render settings")

	// ErrEmptyMIDIList is returned when a batch is created without input files.
	ErrEmptyMIDIList = errors.New("no MIDI files to render")

	// ErrSoundfontsNotReady is returned by Manager.Render before soundfonts finished loading.
	ErrSoundfontsNotReady = errors.New("soundfonts are not loaded")

	// ErrSoundfontLoad is returned when a soundfont could not be loaded.
	ErrSoundfontLoad = errors.New("soundfont load failed")

	// ErrRenderFailed is returned when a job in the batch ended in error.
	ErrRenderFailed = errors.New("render failed")

	// ErrUnsupportedOption wraps channel or soundfont options the engine
	// cannot honour: nearest interpolation or linear release.
	ErrUnsupportedOption = synth.ErrUnsupportedOption
)

// FileLoadErrorKind classifies why an input file was rejected.
type FileLoadErrorKind int

const (
	InvalidFormat FileLoadErrorKind = iota
	FileNotFound
	Corrupt
)

// FileLoadError is returned when building the input list.
type FileLoadError struct {
	Kind   FileLoadErrorKind
	Path   string
	Detail string
	Err    error
}

func (e *FileLoadError) Error() string {
	switch e.Kind {
	case InvalidFormat:
		return "Invalid File Format"
	case FileNotFound:
		return "File Not Found"
	default:
		return fmt.Sprintf("File Corrupt: %s", e.Detail)
	}
}

func (e *FileLoadError) Unwrap() error {
	return e.Err
}

// RendererErrorKind identifies the stage of a job that failed.
type RendererErrorKind int

const (
	LoadFailure RendererErrorKind = iota
	RendererFailure
	WriterFailure
)

// RendererError is returned when a render job cannot be created.
type RendererError struct {
	Kind RendererErrorKind
	Path string
	Err  error
}

func (e *RendererError) Error() string {
	switch e.Kind {
	case LoadFailure:
		var le *midisrc.LoadError
		if errors.As(e.Err, &le) {
			switch le.Kind {
			case midisrc.CorruptChunks:
				return "MIDI Load Error: Corrupt Chunks"
			case midisrc.FileTooBig:
				return "MIDI Load Error: File Too Big"
			default:
				return fmt.Sprintf("MIDI Load Error: Filesystem Error (%v)", le.Err)
			}
		}
		return fmt.Sprintf("MIDI Load Error: %v", e.Err)
	case RendererFailure:
		return fmt.Sprintf("Renderer Error: %v", e.Err)
	default:
		return fmt.Sprintf("Writer Error: %v", e.Err)
	}
}

func (e *RendererError) Unwrap() error {
	return e.Err
}
