package midirender

// Render loop timing
const (
	sliceCeiling     = 0.01   // Longest span rendered in one read, in seconds
	silenceThreshold = 0.0001 // Peak below which the release tail is considered done
	tailBlockSeconds = 1      // Length of one release-tail block
	maxTailBlocks    = 30     // Upper bound on release-tail blocks
)

// Queue capacities
const (
	decodeQueueSize = 100 // Event batches buffered ahead of the render loop
	writerQueueSize = 16  // PCM blocks buffered ahead of the encoder
)

// Channel defaults
const (
	DefaultSampleRate = 48000
	DefaultLayerLimit = 16
)

// CommonSampleRates lists the sample rates offered to users. Every entry lies
// in the synthesizer's 16-192 kHz range.
var CommonSampleRates = []uint32{16000, 22050, 44100, 48000, 96000, 176400, 192000}

// CommonBitrates lists the lossy bitrates offered to users, in kb/s.
var CommonBitrates = []int{64, 80, 96, 128, 160, 192, 256, 320}
