// Package testutil provides reusable test helpers for the render packages:
// sample assertions, MIDI fixture files and a deterministic soundfont.
package testutil

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

// Default tolerances for various test scenarios.
const (
	DefaultTolerance = 1e-6
	SilenceThreshold = 1e-4
)

// AssertNoNaNOrInf verifies that no elements in the slice are NaN or Inf.
func AssertNoNaNOrInf(t *testing.T, s []float32, msgAndArgs ...any) bool {
	t.Helper()
	for i, v := range s {
		f := float64(v)
		if math.IsNaN(f) {
			return assert.Fail(t, "found NaN", "s[%d] is NaN", i)
		}
		if math.IsInf(f, 0) {
			return assert.Fail(t, "found Inf", "s[%d] is Inf", i)
		}
	}
	return true
}

// AssertAllInRange verifies that all elements are within [min, max].
func AssertAllInRange(t *testing.T, s []float32, minVal, maxVal float32, msgAndArgs ...any) bool {
	t.Helper()
	for i, v := range s {
		if v < minVal || v > maxVal {
			return assert.Fail(t, "value out of range",
				"s[%d]=%f is outside range [%f, %f]", i, v, minVal, maxVal)
		}
	}
	return true
}

// AssertSilent verifies that every sample is below SilenceThreshold.
func AssertSilent(t *testing.T, s []float32, msgAndArgs ...any) bool {
	t.Helper()
	return AssertAllInRange(t, s, -SilenceThreshold, SilenceThreshold, msgAndArgs...)
}

// AssertNotSilent verifies that at least one sample reaches SilenceThreshold.
func AssertNotSilent(t *testing.T, s []float32, msgAndArgs ...any) bool {
	t.Helper()
	for _, v := range s {
		if v > SilenceThreshold || v < -SilenceThreshold {
			return true
		}
	}
	return assert.Fail(t, "signal is silent", msgAndArgs...)
}

// AssertInRange verifies that a value is within [min, max].
func AssertInRange(t *testing.T, value, minVal, maxVal float64, msgAndArgs ...any) bool {
	t.Helper()
	if value < minVal || value > maxVal {
		return assert.Fail(t, "value out of range",
			"value %f is outside range [%f, %f]", value, minVal, maxVal)
	}
	return true
}
