package writer

import (
	"errors"
	"fmt"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
	"gopkg.in/hraban/opus.v2"
)

// Opus framing
const (
	opusFrameMs     = 20
	opusGranuleRate = 48000 // Ogg/Opus granule positions always count 48 kHz samples
	opusMaxPacket   = 4000
	opusPayloadType = 111
	rtpVersion      = 2
	msPerSecond     = 1000
)

// opusWriter encodes 20 ms Opus frames and pages them into an Ogg file.
type opusWriter struct {
	enc      *opus.Encoder
	ogg      *oggwriter.OggWriter
	channels int
	frame    int // Interleaved samples per Opus frame
	pending  []float32
	packet   []byte
	seq      uint16
	ts       uint32
	tsStep   uint32
}

func newOpusWriter(cfg Config) (*opusWriter, error) {
	enc, err := opus.NewEncoder(int(cfg.SampleRate), int(cfg.Channels), opus.AppAudio)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus encoder: %w", err)
	}
	if err := enc.SetBitrate(cfg.Format.EffectiveBitrate() * 1000); err != nil {
		return nil, fmt.Errorf("failed to set bitrate: %w", err)
	}

	ogg, err := oggwriter.New(cfg.Path, cfg.SampleRate, cfg.Channels)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}

	channels := int(cfg.Channels)
	return &opusWriter{
		enc:      enc,
		ogg:      ogg,
		channels: channels,
		frame:    int(cfg.SampleRate) * opusFrameMs / msPerSecond * channels,
		packet:   make([]byte, opusMaxPacket),
		tsStep:   opusGranuleRate * opusFrameMs / msPerSecond,
	}, nil
}

func (w *opusWriter) write(block []float32) error {
	w.pending = append(w.pending, block...)
	consumed := 0
	for len(w.pending)-consumed >= w.frame {
		if err := w.encodeFrame(w.pending[consumed : consumed+w.frame]); err != nil {
			return err
		}
		consumed += w.frame
	}
	w.pending = append(w.pending[:0], w.pending[consumed:]...)
	return nil
}

func (w *opusWriter) encodeFrame(frame []float32) error {
	n, err := w.enc.EncodeFloat32(frame, w.packet)
	if err != nil {
		return fmt.Errorf("opus encode failed: %w", err)
	}
	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        rtpVersion,
			PayloadType:    opusPayloadType,
			SequenceNumber: w.seq,
			Timestamp:      w.ts,
		},
		Payload: w.packet[:n],
	}
	w.seq++
	w.ts += w.tsStep
	if err := w.ogg.WriteRTP(pkt); err != nil {
		return fmt.Errorf("failed to write ogg page: %w", err)
	}
	return nil
}

func (w *opusWriter) close() error {
	var encErr error
	if len(w.pending) > 0 {
		// Pad the last partial frame with silence.
		last := make([]float32, w.frame)
		copy(last, w.pending)
		w.pending = w.pending[:0]
		encErr = w.encodeFrame(last)
	}
	return errors.Join(encErr, w.ogg.Close())
}
