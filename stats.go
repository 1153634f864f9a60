package midirender

import (
	"fmt"
	"math"
	"sync/atomic"

	"gonum.org/v1/gonum/stat"
)

// JobStatus is the lifecycle state of one render job.
// Transitions only move forward: Idle, Rendering, then Finished or Error.
type JobStatus int32

const (
	JobIdle JobStatus = iota
	JobRendering
	JobFinished
	JobError
)

// String returns the status name.
func (s JobStatus) String() string {
	switch s {
	case JobIdle:
		return "idle"
	case JobRendering:
		return "rendering"
	case JobFinished:
		return "finished"
	case JobError:
		return "error"
	default:
		return fmt.Sprintf("JobStatus(%d)", int32(s))
	}
}

// Done reports whether the job reached a terminal state.
func (s JobStatus) Done() bool {
	return s == JobFinished || s == JobError
}

type statusCell struct {
	v atomic.Int32
}

func (c *statusCell) load() JobStatus {
	return JobStatus(c.v.Load())
}

// transition moves from one state to the next and reports whether it happened.
func (c *statusCell) transition(from, to JobStatus) bool {
	return c.v.CompareAndSwap(int32(from), int32(to))
}

// RenderStats is a snapshot of a running job.
type RenderStats struct {
	Time   float64 // Rendered audio time in seconds
	Voices uint64  // Active voices at the last read
}

// statsCell is written by the render goroutine and read without locks.
type statsCell struct {
	timeBits atomic.Uint64
	voices   atomic.Uint64
}

func (c *statsCell) store(seconds float64, voices uint64) {
	c.timeBits.Store(math.Float64bits(seconds))
	c.voices.Store(voices)
}

func (c *statsCell) snapshot() RenderStats {
	return RenderStats{
		Time:   math.Float64frombits(c.timeBits.Load()),
		Voices: c.voices.Load(),
	}
}

// JobStats reports one job of a batch. Stats is nil until the job starts.
type JobStats struct {
	Path   string
	Status JobStatus
	Length float64 // MIDI duration in seconds
	Stats  *RenderStats
}

// Ratio returns the rendered fraction of the job, clamped to [0, 1].
func (j JobStats) Ratio() float64 {
	switch {
	case j.Status == JobFinished:
		return 1
	case j.Stats == nil:
		return 0
	case j.Length <= 0:
		return 0
	default:
		return min(max(j.Stats.Time/j.Length, 0), 1)
	}
}

// meanProgress averages the job ratios. It reports false for an empty batch.
func meanProgress(jobs []JobStats) (float64, bool) {
	if len(jobs) == 0 {
		return 0, false
	}
	ratios := make([]float64, len(jobs))
	for i, j := range jobs {
		ratios[i] = j.Ratio()
	}
	return stat.Mean(ratios, nil), true
}
