// Package renderer mixes a set of voice channels into one interleaved stream.
//
// Two strategies exist. The standard renderer queues events per channel and
// renders exactly the requested span on demand, fanning the channels out to
// long-lived goroutines. The buffered renderer keeps one goroutine per
// channel producing fixed windows ahead of the reader, the way a live output
// device would pull audio, so event timing is quantised to the window size.
package renderer

import (
	"errors"
	"fmt"

	"github.com/tphakala/go-midi-render/internal/synth"
)

// ErrInvalidConfig is returned when a renderer cannot be built from a Config.
var ErrInvalidConfig = errors.New("invalid renderer configuration")

// Mode selects the rendering strategy.
type Mode int

const (
	ModeStandard Mode = iota
	ModeRealtimeSimulation
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeStandard:
		return "standard"
	case ModeRealtimeSimulation:
		return "realtime"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ChannelConfig configures one voice channel.
type ChannelConfig struct {
	Init synth.ChannelInitOptions
	// Dedicated renders the channel on its own goroutine instead of the shared
	// pool. Either way it counts against Config.Workers.
	Dedicated bool
}

// Config describes the stream and the channels to mix.
type Config struct {
	Params   synth.StreamParams
	Channels []ChannelConfig
	// Workers bounds how many channels the standard renderer renders at once.
	// Values below 2 render sequentially on the caller's goroutine.
	Workers int
	// BufferMs is the buffered renderer's window length.
	BufferMs float64
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Params.SampleRate == 0 {
		return fmt.Errorf("%w: sample rate must be positive", ErrInvalidConfig)
	}
	if c.Params.Channels == 0 {
		return fmt.Errorf("%w: at least one audio channel is required", ErrInvalidConfig)
	}
	if len(c.Channels) == 0 {
		return fmt.Errorf("%w: at least one voice channel is required", ErrInvalidConfig)
	}
	if c.BufferMs < 0 {
		return fmt.Errorf("%w: buffer length must not be negative", ErrInvalidConfig)
	}
	return nil
}

// Target selects which channels an Event addresses.
type Target uint8

const (
	TargetChannel Target = iota
	TargetAllChannels
	TargetChannelConfig
)

// Event is an event routed to one or all channels.
type Event struct {
	Target  Target
	Channel int
	Audio   synth.AudioEvent
	Config  synth.ConfigEvent
}

// ChannelEvent addresses one channel.
func ChannelEvent(channel int, ev synth.AudioEvent) Event {
	return Event{Target: TargetChannel, Channel: channel, Audio: ev}
}

// AllChannelsEvent is delivered to every channel.
func AllChannelsEvent(ev synth.AudioEvent) Event {
	return Event{Target: TargetAllChannels, Audio: ev}
}

// ConfigEvent reconfigures one channel.
func ConfigEvent(channel int, ev synth.ConfigEvent) Event {
	return Event{Target: TargetChannelConfig, Channel: channel, Config: ev}
}

// Renderer is one of the two rendering strategies.
type Renderer struct {
	mode     Mode
	standard *standardRenderer
	buffered *bufferedRenderer
}

// New builds a renderer for mode.
func New(mode Mode, cfg Config) (*Renderer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch mode {
	case ModeStandard:
		return &Renderer{mode: mode, standard: newStandard(cfg)}, nil
	case ModeRealtimeSimulation:
		return &Renderer{mode: mode, buffered: newBuffered(cfg)}, nil
	default:
		return nil, fmt.Errorf("%w: unknown mode %v", ErrInvalidConfig, mode)
	}
}

// Mode returns the strategy in use.
func (r *Renderer) Mode() Mode {
	return r.mode
}

// StreamParams returns the output layout.
func (r *Renderer) StreamParams() synth.StreamParams {
	switch r.mode {
	case ModeRealtimeSimulation:
		return r.buffered.params
	default:
		return r.standard.params
	}
}

// SendEvent routes an event. Events for channels that do not exist are dropped.
func (r *Renderer) SendEvent(ev Event) {
	switch r.mode {
	case ModeRealtimeSimulation:
		r.buffered.sendEvent(ev)
	default:
		r.standard.sendEvent(ev)
	}
}

// ReadSamples fills buf with interleaved PCM. It panics if len(buf) is not a
// multiple of the audio channel count.
func (r *Renderer) ReadSamples(buf []float32) {
	if len(buf)%int(r.StreamParams().Channels) != 0 {
		panic(fmt.Sprintf("renderer: buffer length %d is not a multiple of %d channels",
			len(buf), r.StreamParams().Channels))
	}
	switch r.mode {
	case ModeRealtimeSimulation:
		r.buffered.readSamples(buf)
	default:
		r.standard.readSamples(buf)
	}
}

// VoiceCount returns the number of active voices across channels.
func (r *Renderer) VoiceCount() uint64 {
	switch r.mode {
	case ModeRealtimeSimulation:
		return r.buffered.voiceCount()
	default:
		return r.standard.voiceCount()
	}
}

// Close stops background goroutines. The renderer must not be used afterwards.
func (r *Renderer) Close() {
	switch r.mode {
	case ModeRealtimeSimulation:
		r.buffered.close()
	default:
		r.standard.close()
	}
}
