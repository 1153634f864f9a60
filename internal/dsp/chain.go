package dsp

// Chain applies the limiter to interleaved blocks, one limiter per channel.
// A disabled chain returns its input unchanged.
type Chain struct {
	channels int
	limiters []*Limiter
	out      []float32
}

// NewChain builds the processing chain for a stream.
func NewChain(s LimiterSettings, sampleRate uint32, channels int) (*Chain, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	c := &Chain{channels: max(1, channels)}
	if s.Enabled {
		c.limiters = make([]*Limiter, c.channels)
		for i := range c.limiters {
			c.limiters[i] = NewLimiter(s, sampleRate)
		}
	}
	return c, nil
}

// Enabled reports whether any processing takes place.
func (c *Chain) Enabled() bool {
	return len(c.limiters) > 0
}

// Process runs an interleaved block through the chain. The returned slice is
// reused by the next call. While the lookahead window fills it may be shorter
// than the input.
func (c *Chain) Process(block []float32) []float32 {
	if !c.Enabled() {
		return block
	}
	c.out = c.out[:0]
	for i, x := range block {
		if y, ok := c.limiters[i%c.channels].Process(x); ok {
			c.out = append(c.out, y)
		}
	}
	return c.out
}

// Flush drains every limiter and returns the interleaved tail.
func (c *Chain) Flush() []float32 {
	if !c.Enabled() {
		return nil
	}
	tails := make([][]float32, c.channels)
	frames := 0
	for i, l := range c.limiters {
		tails[i] = l.Flush()
		frames = max(frames, len(tails[i]))
	}
	out := make([]float32, 0, frames*c.channels)
	for f := range frames {
		for ch := range c.channels {
			var v float32
			if f < len(tails[ch]) {
				v = tails[ch][f]
			}
			out = append(out, v)
		}
	}
	return out
}
