package midirender

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusCell_MonotonicTransitions(t *testing.T) {
	var c statusCell
	assert.Equal(t, JobIdle, c.load())
	assert.False(t, c.transition(JobRendering, JobFinished))
	assert.True(t, c.transition(JobIdle, JobRendering))
	assert.False(t, c.transition(JobIdle, JobRendering))
	assert.True(t, c.transition(JobRendering, JobError))
	assert.False(t, c.transition(JobRendering, JobFinished))
	assert.Equal(t, JobError, c.load())
	assert.True(t, c.load().Done())
}

func TestStatsCell(t *testing.T) {
	var c statsCell
	assert.Equal(t, RenderStats{}, c.snapshot())
	c.store(12.5, 7)
	assert.Equal(t, RenderStats{Time: 12.5, Voices: 7}, c.snapshot())
}

func TestMeanProgress(t *testing.T) {
	_, ok := meanProgress(nil)
	assert.False(t, ok)

	p, ok := meanProgress([]JobStats{
		{Status: JobIdle, Length: 10},
		{Status: JobRendering, Length: 10, Stats: &RenderStats{Time: 5}},
		{Status: JobRendering, Length: 10, Stats: &RenderStats{Time: 25}}, // Tail past the end
		{Status: JobFinished, Length: 0},
	})
	assert.True(t, ok)
	assert.InDelta(t, (0+0.5+1+1)/4.0, p, 1e-12)
}

func TestJobStatus_String(t *testing.T) {
	assert.Equal(t, "idle", JobIdle.String())
	assert.Equal(t, "finished", JobFinished.String())
	assert.Equal(t, "JobStatus(9)", JobStatus(9).String())
}
