package renderer

// Event cache and fan-out sizing
const (
	maxEventCacheSize = 1024 * 1024 // Cached events across channels before a forced flush
	channelOutputCap  = 16          // Buffered fan-out response channel capacity
	aheadWindows      = 2           // Windows the buffered producer renders ahead
	msPerSecond       = 1000.0
)

// DefaultBufferMs is the realtime-simulation window, one 60 Hz frame.
const DefaultBufferMs = 100.0 / 6.0
