package dsp

// Limiter defaults
const (
	DefaultAttackMs    = 30.0  // Envelope attack time
	DefaultReleaseMs   = 100.0 // Envelope release time
	DefaultThresholdDB = 0.0   // Ceiling in dBFS
	DefaultLookaheadMs = 5.0   // Lookahead window length
)

const (
	msPerSecond     = 1000.0
	minWindowLength = 1 // Lookahead window never shorter than one sample
)
