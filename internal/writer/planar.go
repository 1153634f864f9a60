package writer

// SplitPlanar de-interleaves a block into one slice per channel.
func SplitPlanar(block []float32, channels int) [][]float32 {
	channels = max(1, channels)
	frames := len(block) / channels
	out := make([][]float32, channels)
	for ch := range out {
		out[ch] = make([]float32, frames)
	}
	for f := range frames {
		for ch := range channels {
			out[ch][f] = block[f*channels+ch]
		}
	}
	return out
}
