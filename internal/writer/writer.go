// Package writer encodes rendered PCM to disk. Every codec sits behind the
// same WriteSamples/Finalize contract, with the DSP chain applied ahead of
// the encoder.
package writer

import (
	"errors"
	"fmt"

	"github.com/tphakala/go-midi-render/internal/dsp"
)

// Sentinel errors
var (
	ErrInvalidFormat      = errors.New("invalid output format")
	ErrFinalized          = errors.New("writer already finalized")
	ErrEncoderUnavailable = errors.New("encoder unavailable")
)

// Config describes one output file.
type Config struct {
	Path       string
	SampleRate uint32
	Channels   uint16
	Format     Format
	Limiter    dsp.LimiterSettings
}

// Writer is an open output file for one of the supported codecs.
type Writer struct {
	kind      Kind
	pcm       *pcmWriter
	lavc      *lavcWriter // Vorbis and MP3
	opus      *opusWriter
	chain     *dsp.Chain
	finalized bool
}

// New creates the output file and its encoder.
func New(cfg Config) (*Writer, error) {
	if cfg.Channels == 0 || cfg.SampleRate == 0 {
		return nil, fmt.Errorf("%w: %d Hz, %d channels", ErrInvalidFormat, cfg.SampleRate, cfg.Channels)
	}
	if err := cfg.Format.Validate(cfg.SampleRate, cfg.Channels); err != nil {
		return nil, err
	}
	chain, err := dsp.NewChain(cfg.Limiter, cfg.SampleRate, int(cfg.Channels))
	if err != nil {
		return nil, err
	}

	w := &Writer{kind: cfg.Format.Kind, chain: chain}
	switch cfg.Format.Kind {
	case KindPCM:
		w.pcm, err = newPCMWriter(cfg)
	case KindVorbis:
		w.lavc, err = newVorbisWriter(cfg)
	case KindMP3:
		w.lavc, err = newLameWriter(cfg)
	case KindOpus:
		w.opus, err = newOpusWriter(cfg)
	}
	if err != nil {
		return nil, err
	}
	return w, nil
}

// WriteSamples processes and encodes one interleaved block.
func (w *Writer) WriteSamples(block []float32) error {
	if w.finalized {
		return ErrFinalized
	}
	return w.encode(w.chain.Process(block))
}

func (w *Writer) encode(block []float32) error {
	if len(block) == 0 {
		return nil
	}
	switch w.kind {
	case KindVorbis, KindMP3:
		return w.lavc.write(block)
	case KindOpus:
		return w.opus.write(block)
	default:
		return w.pcm.write(block)
	}
}

// Finalize drains the DSP chain, flushes the encoder and closes the file.
// It must be called exactly once; later calls return ErrFinalized.
func (w *Writer) Finalize() error {
	if w.finalized {
		return ErrFinalized
	}
	w.finalized = true

	tailErr := w.encode(w.chain.Flush())
	var closeErr error
	switch w.kind {
	case KindVorbis, KindMP3:
		closeErr = w.lavc.close()
	case KindOpus:
		closeErr = w.opus.close()
	default:
		closeErr = w.pcm.close()
	}
	return errors.Join(tailErr, closeErr)
}
