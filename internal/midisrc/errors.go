package midisrc

import (
	"fmt"
)

// ErrorKind classifies a failure to load a MIDI file.
type ErrorKind int

const (
	CorruptChunks ErrorKind = iota
	FilesystemError
	FileTooBig
)

// String returns a short description of the kind.
func (k ErrorKind) String() string {
	switch k {
	case CorruptChunks:
		return "corrupt chunks"
	case FilesystemError:
		return "filesystem error"
	case FileTooBig:
		return "file too big"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// LoadError reports why Open failed.
type LoadError struct {
	Kind ErrorKind
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("midi %s: %s", e.Path, e.Kind)
	}
	return fmt.Sprintf("midi %s: %s: %v", e.Path, e.Kind, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}
