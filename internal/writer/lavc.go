package writer

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/csnewman/ffmpeg-go"
)

// Encoder and muxer names registered by libavcodec and libavformat.
const (
	vorbisEncoder = "vorbis"
	vorbisMuxer   = "ogg"
	lameEncoder   = "libmp3lame"
	lameMuxer     = "mp3"
)

// Used when an encoder accepts variable frame sizes.
const defaultCodecFrame = 1024

// The native Vorbis encoder is quality driven; each step is roughly 32 kb/s.
const (
	vorbisKbpsPerStep = 32
	vorbisMinQuality  = 1
	vorbisMaxQuality  = 10
)

// lavcWriter feeds planar float frames to a libavcodec encoder (Vorbis or
// LAME) and muxes the packets with libavformat.
type lavcWriter struct {
	fmtCtx   *ffmpeg.AVFormatContext
	pb       *ffmpeg.AVIOContext
	encCtx   *ffmpeg.AVCodecContext
	stream   *ffmpeg.AVStream
	frame    *ffmpeg.AVFrame
	pkt      *ffmpeg.AVPacket
	channels int
	frameLen int // Samples per channel in one codec frame
	pending  []float32
	pts      int64
}

func newVorbisWriter(cfg Config) (*lavcWriter, error) {
	return newLavcWriter(cfg, vorbisEncoder, vorbisMuxer, func(ctx *ffmpeg.AVCodecContext) {
		ctx.SetStrictStdCompliance(ffmpeg.FFComplianceExperimental)
		ctx.SetFlags(ctx.Flags() | ffmpeg.AVCodecFlagQscale)
		ctx.SetGlobalQuality(VorbisQuality(cfg.Format.EffectiveBitrate()) * ffmpeg.FFQp2Lambda)
	})
}

func newLameWriter(cfg Config) (*lavcWriter, error) {
	return newLavcWriter(cfg, lameEncoder, lameMuxer, nil)
}

// VorbisQuality maps a target bitrate in kb/s onto the Vorbis quality scale.
func VorbisQuality(bitrate int) int {
	return max(vorbisMinQuality, min(vorbisMaxQuality, bitrate/vorbisKbpsPerStep))
}

func newLavcWriter(cfg Config, encoderName, muxerName string, tune func(*ffmpeg.AVCodecContext)) (*lavcWriter, error) {
	w := &lavcWriter{channels: int(cfg.Channels)}
	if err := w.open(cfg, encoderName, muxerName, tune); err != nil {
		_ = w.free()
		return nil, err
	}
	return w, nil
}

func (w *lavcWriter) open(cfg Config, encoderName, muxerName string, tune func(*ffmpeg.AVCodecContext)) error {
	name := ffmpeg.ToCStr(encoderName)
	defer name.Free()
	codec := ffmpeg.AVCodecFindEncoderByName(name)
	if codec == nil {
		return fmt.Errorf("%w: %s", ErrEncoderUnavailable, encoderName)
	}

	path := ffmpeg.ToCStr(cfg.Path)
	defer path.Free()
	muxer := ffmpeg.ToCStr(muxerName)
	defer muxer.Free()
	if _, err := ffmpeg.AVFormatAllocOutputContext2(&w.fmtCtx, nil, muxer, path); err != nil {
		return fmt.Errorf("failed to create %s muxer: %w", muxerName, err)
	}

	w.encCtx = ffmpeg.AVCodecAllocContext3(codec)
	if w.encCtx == nil {
		return fmt.Errorf("failed to allocate %s context", encoderName)
	}
	w.encCtx.SetSampleFmt(ffmpeg.AVSampleFmtFltp)
	w.encCtx.SetSampleRate(int(cfg.SampleRate))
	w.encCtx.SetBitRate(int64(cfg.Format.EffectiveBitrate()) * 1000)
	w.encCtx.SetTimeBase(ffmpeg.AVMakeQ(1, int(cfg.SampleRate)))
	ffmpeg.AVChannelLayoutDefault(w.encCtx.ChLayout(), w.channels)
	if w.fmtCtx.Oformat().Flags()&ffmpeg.AVFmtGlobalheader != 0 {
		w.encCtx.SetFlags(w.encCtx.Flags() | ffmpeg.AVCodecFlagGlobalHeader)
	}
	if tune != nil {
		tune(w.encCtx)
	}

	if _, err := ffmpeg.AVCodecOpen2(w.encCtx, codec, nil); err != nil {
		return fmt.Errorf("failed to open %s: %w", encoderName, err)
	}

	w.stream = ffmpeg.AVFormatNewStream(w.fmtCtx, nil)
	if w.stream == nil {
		return errors.New("failed to allocate output stream")
	}
	if _, err := ffmpeg.AVCodecParametersFromContext(w.stream.Codecpar(), w.encCtx); err != nil {
		return fmt.Errorf("failed to copy codec parameters: %w", err)
	}
	w.stream.SetTimeBase(w.encCtx.TimeBase())

	if _, err := ffmpeg.AVIOOpen(&w.pb, path, ffmpeg.AVIOFlagWrite); err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	w.fmtCtx.SetPb(w.pb)
	if _, err := ffmpeg.AVFormatWriteHeader(w.fmtCtx, nil); err != nil {
		return fmt.Errorf("failed to write %s header: %w", muxerName, err)
	}

	w.frameLen = w.encCtx.FrameSize()
	if w.frameLen <= 0 {
		w.frameLen = defaultCodecFrame
	}
	w.frame = ffmpeg.AVFrameAlloc()
	w.pkt = ffmpeg.AVPacketAlloc()
	if w.frame == nil || w.pkt == nil {
		return errors.New("failed to allocate frame")
	}
	w.frame.SetNbSamples(w.frameLen)
	w.frame.SetFormat(int(ffmpeg.AVSampleFmtFltp))
	w.frame.SetSampleRate(int(cfg.SampleRate))
	if _, err := ffmpeg.AVChannelLayoutCopy(w.frame.ChLayout(), w.encCtx.ChLayout()); err != nil {
		return fmt.Errorf("failed to set frame layout: %w", err)
	}
	if _, err := ffmpeg.AVFrameGetBuffer(w.frame, 0); err != nil {
		return fmt.Errorf("failed to allocate frame buffer: %w", err)
	}
	return nil
}

func (w *lavcWriter) write(block []float32) error {
	w.pending = append(w.pending, block...)
	step := w.frameLen * w.channels
	consumed := 0
	for len(w.pending)-consumed >= step {
		if err := w.encodeFrame(w.pending[consumed : consumed+step]); err != nil {
			return err
		}
		consumed += step
	}
	w.pending = append(w.pending[:0], w.pending[consumed:]...)
	return nil
}

// encodeFrame de-interleaves one full codec frame into the frame planes.
func (w *lavcWriter) encodeFrame(block []float32) error {
	if _, err := ffmpeg.AVFrameMakeWritable(w.frame); err != nil {
		return fmt.Errorf("failed to reuse frame: %w", err)
	}
	for ch, src := range SplitPlanar(block, w.channels) {
		plane := unsafe.Slice((*float32)(unsafe.Pointer(w.frame.Data().Get(uintptr(ch)))), w.frameLen)
		copy(plane, src)
	}
	w.frame.SetPts(w.pts)
	w.pts += int64(w.frameLen)
	return w.send(w.frame)
}

// send pushes a frame (nil drains the encoder) and muxes every packet the
// encoder hands back.
func (w *lavcWriter) send(frame *ffmpeg.AVFrame) error {
	if _, err := ffmpeg.AVCodecSendFrame(w.encCtx, frame); err != nil {
		return fmt.Errorf("failed to send frame: %w", err)
	}
	for {
		if _, err := ffmpeg.AVCodecReceivePacket(w.encCtx, w.pkt); err != nil {
			if errors.Is(err, ffmpeg.EAgain) || errors.Is(err, ffmpeg.AVErrorEOF) {
				return nil
			}
			return fmt.Errorf("encode failed: %w", err)
		}

		w.pkt.SetStreamIndex(w.stream.Index())
		ffmpeg.AVPacketRescaleTs(w.pkt, w.encCtx.TimeBase(), w.stream.TimeBase())
		if _, err := ffmpeg.AVInterleavedWriteFrame(w.fmtCtx, w.pkt); err != nil {
			return fmt.Errorf("failed to write packet: %w", err)
		}
	}
}

func (w *lavcWriter) close() error {
	var tailErr error
	if len(w.pending) > 0 {
		// Pad the last partial frame with silence.
		last := make([]float32, w.frameLen*w.channels)
		copy(last, w.pending)
		w.pending = w.pending[:0]
		tailErr = w.encodeFrame(last)
	}
	drainErr := w.send(nil)

	var trailerErr error
	if _, err := ffmpeg.AVWriteTrailer(w.fmtCtx); err != nil {
		trailerErr = fmt.Errorf("failed to write trailer: %w", err)
	}
	return errors.Join(tailErr, drainErr, trailerErr, w.free())
}

// free releases every libav object the writer holds and closes the file.
func (w *lavcWriter) free() error {
	if w.frame != nil {
		ffmpeg.AVFrameFree(&w.frame)
	}
	if w.pkt != nil {
		ffmpeg.AVPacketFree(&w.pkt)
	}
	if w.encCtx != nil {
		ffmpeg.AVCodecFreeContext(&w.encCtx)
	}
	var closeErr error
	if w.pb != nil {
		if _, err := ffmpeg.AVIOClosep(&w.pb); err != nil {
			closeErr = fmt.Errorf("failed to close output file: %w", err)
		}
	}
	if w.fmtCtx != nil {
		w.fmtCtx.SetPb(nil)
		ffmpeg.AVFormatFreeContext(w.fmtCtx)
		w.fmtCtx = nil
	}
	return closeErr
}
