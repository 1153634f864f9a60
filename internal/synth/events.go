package synth

// AudioEventKind identifies a per-channel musical event.
type AudioEventKind uint8

const (
	NoteOn AudioEventKind = iota
	NoteOff
	Control
	PitchBend
	ProgramChange
	AllNotesOff    // Release every sounding note
	AllNotesKilled // Stop every voice, fading when FadeOutKilling is set
	ResetControl   // Reset all controllers
)

// AudioEvent is one event addressed to a voice channel.
type AudioEvent struct {
	Kind     AudioEventKind
	Key      uint8
	Velocity uint8
	// Controller and Value carry control changes; Value also carries the program.
	Controller uint8
	Value      uint8
	Bend       float32 // Pitch bend in [-1, 1)
}

// Convenience constructors.

func NoteOnEvent(key, velocity uint8) AudioEvent {
	return AudioEvent{Kind: NoteOn, Key: key, Velocity: velocity}
}

func NoteOffEvent(key uint8) AudioEvent {
	return AudioEvent{Kind: NoteOff, Key: key}
}

func ControlEvent(controller, value uint8) AudioEvent {
	return AudioEvent{Kind: Control, Controller: controller, Value: value}
}

func PitchBendEvent(bend float32) AudioEvent {
	return AudioEvent{Kind: PitchBend, Bend: bend}
}

func ProgramChangeEvent(program uint8) AudioEvent {
	return AudioEvent{Kind: ProgramChange, Value: program}
}

// ConfigEventKind identifies a channel configuration change.
type ConfigEventKind uint8

const (
	SetSoundfonts ConfigEventKind = iota
	SetLayerCount
)

// ConfigEvent reconfigures a voice channel.
type ConfigEvent struct {
	Kind       ConfigEventKind
	Soundfonts []Soundfont
	Layers     *int // nil means unlimited
}

// SetSoundfontsEvent replaces a channel's instrument banks, first match wins.
func SetSoundfontsEvent(soundfonts []Soundfont) ConfigEvent {
	return ConfigEvent{Kind: SetSoundfonts, Soundfonts: soundfonts}
}

// SetLayerCountEvent caps the number of concurrently sounding notes.
func SetLayerCountEvent(layers *int) ConfigEvent {
	return ConfigEvent{Kind: SetLayerCount, Layers: layers}
}
