// Package simdops provides the SIMD kernels used to mix and interleave
// rendered channel buffers. Both float32 and float64 instantiations exist so
// the DSP code can stay generic over its working precision.
package simdops

import (
	"github.com/tphakala/simd/f32"
	"github.com/tphakala/simd/f64"
)

// Float is the type constraint for supported floating-point types.
type Float interface {
	float32 | float64
}

// Ops provides SIMD-accelerated operations for type F.
// Function pointers allow type-safe generic code while delegating
// to optimized type-specific implementations.
type Ops[F Float] struct {
	// Add computes dst[i] = a[i] + b[i]. dst may alias a.
	Add func(dst, a, b []F)

	// Interleave2 interleaves two slices: dst[0]=a[0], dst[1]=b[0], dst[2]=a[1], ...
	Interleave2 func(dst, a, b []F)

	// Sum returns the sum of all elements.
	Sum func(a []F) F

	// Scale multiplies each element by scalar s: dst[i] = a[i] * s
	Scale func(dst, a []F, s F)
}

var (
	ops32 = Ops[float32]{
		Add:         f32.Add,
		Interleave2: f32.Interleave2,
		Sum:         f32.Sum,
		Scale:       f32.Scale,
	}
	ops64 = Ops[float64]{
		Add:         f64.Add,
		Interleave2: f64.Interleave2,
		Sum:         f64.Sum,
		Scale:       f64.Scale,
	}
)

// For returns the Ops instance for type F.
func For[F Float]() *Ops[F] {
	var zero F
	switch any(zero).(type) {
	case float32:
		ops, ok := any(&ops32).(*Ops[F])
		if !ok {
			panic("simdops: type assertion failed for float32")
		}
		return ops
	case float64:
		ops, ok := any(&ops64).(*Ops[F])
		if !ok {
			panic("simdops: type assertion failed for float64")
		}
		return ops
	default:
		panic("simdops: unsupported float type")
	}
}

// Float32Ops returns the float32 SIMD operations.
func Float32Ops() *Ops[float32] {
	return &ops32
}

// Mix accumulates src into dst elementwise over the shorter of the two.
func Mix[F Float](dst, src []F) {
	n := min(len(dst), len(src))
	if n == 0 {
		return
	}
	For[F]().Add(dst[:n], dst[:n], src[:n])
}

// Downmix averages left and right into dst.
func Downmix[F Float](dst, left, right []F) {
	n := min(len(dst), len(left), len(right))
	if n == 0 {
		return
	}
	ops := For[F]()
	ops.Add(dst[:n], left[:n], right[:n])
	ops.Scale(dst[:n], dst[:n], 0.5)
}

// PeakAbs returns the largest absolute sample value.
func PeakAbs[F Float](samples []F) F {
	var peak F
	for _, s := range samples {
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
	}
	return peak
}
