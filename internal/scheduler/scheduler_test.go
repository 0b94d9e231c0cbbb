package scheduler

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	runs atomic.Int32
	err  error
}

func (j *countingJob) Run() error {
	j.runs.Add(1)
	return j.err
}

func (j *countingJob) Name() string {
	return "counting"
}

func TestScheduler_AddJob_InvalidSchedule(t *testing.T) {
	s := New(zerolog.Nop())
	err := s.AddJob("not a schedule", &countingJob{})
	assert.Error(t, err)
}

func TestScheduler_RunsJobsOnSchedule(t *testing.T) {
	s := New(zerolog.Nop())
	job := &countingJob{}
	require.NoError(t, s.AddJob("@every 1s", job))

	s.Start()
	defer s.Stop()

	assert.Eventually(t, func() bool {
		return job.runs.Load() >= 1
	}, 3*time.Second, 50*time.Millisecond)
}

func TestScheduler_FailingJobKeepsRunning(t *testing.T) {
	s := New(zerolog.Nop())
	job := &countingJob{err: errors.New("boom")}
	require.NoError(t, s.AddJob("@every 1s", job))

	s.Start()
	defer s.Stop()

	assert.Eventually(t, func() bool {
		return job.runs.Load() >= 2
	}, 4*time.Second, 50*time.Millisecond)
}

func TestScheduler_RunNow(t *testing.T) {
	s := New(zerolog.Nop())

	job := &countingJob{}
	assert.NoError(t, s.RunNow(job))
	assert.Equal(t, int32(1), job.runs.Load())

	failing := &countingJob{err: errors.New("boom")}
	assert.EqualError(t, s.RunNow(failing), "boom")
}
