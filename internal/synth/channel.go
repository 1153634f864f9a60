// Package synth turns per-channel musical events into PCM. A VoiceChannel is
// one MIDI channel backed by its own synthesizer over a shared soundfont.
package synth

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/tphakala/go-midi-render/internal/simdops"
)

// MIDI status bytes and controllers sent to the engine.
const (
	statusControl       = 0xB0
	statusProgramChange = 0xC0
	statusPitchBend     = 0xE0

	ccBankSelect    = 0
	ccBankSelectLSB = 32
	ccAllSoundOff   = 120
	ccResetAll      = 121
	ccAllNotesOff   = 123
)

// VoiceChannel renders one MIDI channel. Events are applied in order; the
// channel is silent until a soundfont is configured.
type VoiceChannel struct {
	index  int32
	params StreamParams
	init   ChannelInitOptions

	mu          sync.Mutex
	synth       Synthesizer
	soundfont   Soundfont
	layers      int // 0 means unlimited
	programLock bool
	bankLock    bool
	sounding    []uint8 // keys in note-on order
	left, right []float32

	voices atomic.Int64
}

// NewVoiceChannel creates the channel for MIDI channel index.
func NewVoiceChannel(index int, params StreamParams, init ChannelInitOptions) *VoiceChannel {
	engineChannel := int32(index)
	if init.DrumsOnly {
		engineChannel = PercussionChannel
	}
	return &VoiceChannel{
		index:  engineChannel,
		params: params,
		init:   init,
	}
}

// StreamParams returns the channel's output layout.
func (c *VoiceChannel) StreamParams() StreamParams {
	return c.params
}

// VoiceCount returns the number of voices sounding. Engines that report their
// own count include release tails and layered zones; otherwise held notes are
// counted.
func (c *VoiceChannel) VoiceCount() uint64 {
	return uint64(c.voices.Load())
}

// ApplyConfig changes the channel's soundfonts or layer limit.
func (c *VoiceChannel) ApplyConfig(ev ConfigEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch ev.Kind {
	case SetLayerCount:
		c.layers = 0
		if ev.Layers != nil && *ev.Layers > 0 {
			c.layers = *ev.Layers
		}
		c.enforceLayersLocked()
	case SetSoundfonts:
		c.setSoundfontsLocked(ev.Soundfonts)
	}
}

func (c *VoiceChannel) setSoundfontsLocked(soundfonts []Soundfont) {
	c.synth = nil
	c.soundfont = nil
	c.programLock, c.bankLock = false, false
	c.clearSoundingLocked()

	for _, sf := range soundfonts {
		if sf == nil {
			continue
		}
		// A bank that cannot serve the stream rate yields to the next one.
		s, err := sf.NewSynthesizer(c.params.SampleRate)
		if err != nil {
			continue
		}
		c.synth = s
		c.soundfont = sf
		break
	}
	if c.synth == nil {
		return
	}

	opts := c.soundfont.Options()
	if opts.Bank != nil {
		c.synth.ProcessMidiMessage(c.index, statusControl, ccBankSelect, int32(*opts.Bank))
		c.bankLock = true
	}
	if opts.Preset != nil {
		c.synth.ProcessMidiMessage(c.index, statusProgramChange, int32(*opts.Preset), 0)
		c.programLock = true
	}
}

// PushEvent applies a single event.
func (c *VoiceChannel) PushEvent(ev AudioEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.applyLocked(ev)
}

// PushEvents applies events in order under one lock acquisition.
func (c *VoiceChannel) PushEvents(evs []AudioEvent) {
	if len(evs) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ev := range evs {
		c.applyLocked(ev)
	}
}

func (c *VoiceChannel) applyLocked(ev AudioEvent) {
	switch ev.Kind {
	case NoteOn:
		if ev.Velocity == 0 {
			c.noteOffLocked(ev.Key)
			return
		}
		c.noteOnLocked(ev.Key, ev.Velocity)
	case NoteOff:
		c.noteOffLocked(ev.Key)
	case Control:
		if c.bankLock && (ev.Controller == ccBankSelect || ev.Controller == ccBankSelectLSB) {
			return
		}
		c.send(statusControl, int32(ev.Controller), int32(ev.Value))
	case PitchBend:
		v := bendToRaw(ev.Bend)
		c.send(statusPitchBend, v&maxDataByte, v>>7)
	case ProgramChange:
		if c.programLock {
			return
		}
		c.send(statusProgramChange, int32(ev.Value), 0)
	case AllNotesOff:
		c.send(statusControl, ccAllNotesOff, 0)
		c.clearSoundingLocked()
	case AllNotesKilled:
		if c.init.FadeOutKilling {
			c.send(statusControl, ccAllNotesOff, 0)
		} else {
			c.send(statusControl, ccAllSoundOff, 0)
		}
		c.clearSoundingLocked()
	case ResetControl:
		c.send(statusControl, ccResetAll, 0)
	}
}

func (c *VoiceChannel) send(command, data1, data2 int32) {
	if c.synth == nil {
		return
	}
	c.synth.ProcessMidiMessage(c.index, command, data1, data2)
}

func (c *VoiceChannel) noteOnLocked(key, velocity uint8) {
	if c.synth == nil {
		return
	}
	c.synth.NoteOn(c.index, int32(key), int32(velocity))
	c.sounding = append(c.sounding, key)
	c.enforceLayersLocked()
	c.updateVoicesLocked()
}

func (c *VoiceChannel) noteOffLocked(key uint8) {
	for i, k := range c.sounding {
		if k == key {
			c.sounding = append(c.sounding[:i], c.sounding[i+1:]...)
			break
		}
	}
	if c.synth != nil {
		c.synth.NoteOff(c.index, int32(key))
	}
	c.updateVoicesLocked()
}

// enforceLayersLocked releases the oldest notes above the layer limit.
func (c *VoiceChannel) enforceLayersLocked() {
	if c.layers == 0 {
		return
	}
	for len(c.sounding) > c.layers {
		oldest := c.sounding[0]
		c.sounding = c.sounding[1:]
		if c.synth != nil {
			c.synth.NoteOff(c.index, int32(oldest))
		}
	}
	c.updateVoicesLocked()
}

func (c *VoiceChannel) clearSoundingLocked() {
	c.sounding = c.sounding[:0]
	c.updateVoicesLocked()
}

func (c *VoiceChannel) updateVoicesLocked() {
	if vr, ok := c.synth.(VoiceReporter); ok {
		if n := vr.ActiveVoices(); n >= 0 {
			c.voices.Store(int64(n))
			return
		}
	}
	c.voices.Store(int64(len(c.sounding)))
}

// ReadSamples overwrites out with interleaved PCM. len(out) must be a
// multiple of the channel count.
func (c *VoiceChannel) ReadSamples(out []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.synth == nil {
		clear(out)
		return
	}

	channels := int(c.params.Channels)
	frames := len(out) / channels
	if cap(c.left) < frames {
		c.left = make([]float32, frames)
		c.right = make([]float32, frames)
	}
	left, right := c.left[:frames], c.right[:frames]
	c.synth.Render(left, right)
	c.updateVoicesLocked()

	switch channels {
	case 1:
		simdops.Downmix(out, left, right)
	case 2:
		simdops.Float32Ops().Interleave2(out[:frames*2], left, right)
	default:
		// Extra channels carry the stereo pair repeated.
		for f := range frames {
			for ch := range channels {
				if ch%2 == 0 {
					out[f*channels+ch] = left[f]
				} else {
					out[f*channels+ch] = right[f]
				}
			}
		}
	}
}

// bendToRaw converts a bend in [-1, 1) to the 14-bit wire value.
func bendToRaw(bend float32) int32 {
	v := int32(math.Round(float64(bend)*pitchBendCenter)) + pitchBendCenter
	return max(0, min(pitchBendMax, v))
}
