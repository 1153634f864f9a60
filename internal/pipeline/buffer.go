// Package pipeline provides the sample buffers shared by the render stages:
// a growable ring buffer used for limiter lookahead and for decoupling the
// buffered renderer's producer from its reader.
package pipeline

import (
	"sync"
)

// Sample is the type constraint for buffered sample types.
type Sample interface {
	float32 | float64
}

// RingBuffer implements a circular buffer for audio samples.
// It is safe for use by one writer and one reader on different goroutines.
type RingBuffer[T Sample] struct {
	data     []T
	capacity int
	size     int
	readPos  int
	writePos int
	mu       sync.Mutex
}

// NewRingBuffer creates a new ring buffer with the specified capacity.
func NewRingBuffer[T Sample](capacity int) *RingBuffer[T] {
	if capacity < minCapacity {
		capacity = minCapacity
	}

	return &RingBuffer[T]{
		data:     make([]T, capacity),
		capacity: capacity,
	}
}

// Write adds samples to the buffer.
// If the buffer doesn't have enough space, it will grow automatically.
func (b *RingBuffer[T]) Write(samples []T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	needed := len(samples)
	if needed == 0 {
		return
	}

	if b.size+needed > b.capacity {
		b.grow(b.size + needed)
	}

	// First copy runs up to the end of the backing slice, second wraps.
	n := copy(b.data[b.writePos:], samples)
	if n < needed {
		copy(b.data, samples[n:])
	}
	b.writePos = (b.writePos + needed) % b.capacity
	b.size += needed
}

// Push appends a single sample.
func (b *RingBuffer[T]) Push(sample T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.size == b.capacity {
		b.grow(b.size + 1)
	}
	b.data[b.writePos] = sample
	b.writePos = (b.writePos + 1) % b.capacity
	b.size++
}

// Pop removes and returns the oldest sample. ok is false when the buffer is empty.
func (b *RingBuffer[T]) Pop() (sample T, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.size == 0 {
		return sample, false
	}
	sample = b.data[b.readPos]
	b.readPos = (b.readPos + 1) % b.capacity
	b.size--
	return sample, true
}

// ReadInto fills dst with the oldest samples and returns how many were copied.
func (b *RingBuffer[T]) ReadInto(dst []T) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := min(len(dst), b.size)
	if n == 0 {
		return 0
	}
	b.readLocked(dst[:n])
	return n
}

func (b *RingBuffer[T]) readLocked(dst []T) {
	n := len(dst)
	first := copy(dst, b.data[b.readPos:min(b.readPos+n, b.capacity)])
	if first < n {
		copy(dst[first:], b.data[:n-first])
	}
	b.readPos = (b.readPos + n) % b.capacity
	b.size -= n
}

// Available returns the number of samples available for reading.
func (b *RingBuffer[T]) Available() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// grow increases the buffer capacity to at least the specified size.
func (b *RingBuffer[T]) grow(minCap int) {
	newCapacity := b.capacity
	for newCapacity < minCap {
		newCapacity *= bufferGrowthFactor
	}

	newData := make([]T, newCapacity)

	// Copy existing data to maintain order
	if b.size > 0 {
		if b.readPos < b.writePos {
			copy(newData, b.data[b.readPos:b.writePos])
		} else {
			n1 := copy(newData, b.data[b.readPos:])
			copy(newData[n1:], b.data[:b.writePos])
		}
	}

	b.data = newData
	b.capacity = newCapacity
	b.readPos = 0
	b.writePos = b.size
}
