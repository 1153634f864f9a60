package writer

import (
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WAV format tags
const (
	wavFormatPCM   = 1
	wavFormatFloat = 3
	int16Scale     = math.MaxInt16
)

// pcmWriter streams interleaved samples into a WAV file.
type pcmWriter struct {
	file   *os.File
	enc    *wav.Encoder
	sample SampleFormat
	buf    *audio.IntBuffer
}

func newPCMWriter(cfg Config) (*pcmWriter, error) {
	f, err := os.Create(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}

	bitDepth, tag := 16, wavFormatPCM
	if cfg.Format.Sample == SampleFloat32 {
		bitDepth, tag = 32, wavFormatFloat
	}
	format := &audio.Format{NumChannels: int(cfg.Channels), SampleRate: int(cfg.SampleRate)}

	return &pcmWriter{
		file:   f,
		enc:    wav.NewEncoder(f, int(cfg.SampleRate), bitDepth, int(cfg.Channels), tag),
		sample: cfg.Format.Sample,
		buf:    &audio.IntBuffer{Format: format, SourceBitDepth: bitDepth},
	}, nil
}

func (w *pcmWriter) write(block []float32) error {
	if cap(w.buf.Data) < len(block) {
		w.buf.Data = make([]int, len(block))
	}
	w.buf.Data = w.buf.Data[:len(block)]

	switch w.sample {
	case SampleFloat32:
		// The encoder writes 32-bit words verbatim; carry the IEEE bits through.
		for i, s := range block {
			w.buf.Data[i] = int(int32(math.Float32bits(s)))
		}
	default:
		for i, s := range block {
			w.buf.Data[i] = int(Int16Sample(s))
		}
	}

	if err := w.enc.Write(w.buf); err != nil {
		return fmt.Errorf("failed to write samples: %w", err)
	}
	return nil
}

func (w *pcmWriter) close() error {
	encErr := w.enc.Close()
	return errors.Join(encErr, w.file.Close())
}

// Int16Sample clamps s to [-1, 1], scales by the int16 maximum and truncates.
func Int16Sample(s float32) int16 {
	return int16(max(-1, min(1, s)) * int16Scale)
}
