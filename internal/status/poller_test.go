package status

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ambiware-labs/scribed/internal/jobstore"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scriptedSource replays a fixed sequence of job states, holding the last one.
type scriptedSource struct {
	mu     sync.Mutex
	states []jobstore.Job
	err    error
	calls  int
}

func (s *scriptedSource) GetJob(_ context.Context, _ string) (jobstore.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return jobstore.Job{}, s.err
	}
	idx := s.calls
	if idx >= len(s.states) {
		idx = len(s.states) - 1
	}
	s.calls++
	return s.states[idx], nil
}

func TestWaitReturnsOnCompletion(t *testing.T) {
	src := &scriptedSource{states: []jobstore.Job{
		{ID: "j1", Status: jobstore.StatusPending, Progress: 5},
		{ID: "j1", Status: jobstore.StatusProcessing, Progress: 58},
		{ID: "j1", Status: jobstore.StatusCompleted, Progress: 100},
	}}

	p := NewPoller(src, time.Millisecond, 10, testLogger())
	job, err := p.Wait(context.Background(), "j1")
	require.NoError(t, err)
	require.Equal(t, jobstore.StatusCompleted, job.Status)
	require.Equal(t, 100, job.Progress)
	require.Equal(t, 3, src.calls)
}

func TestWaitReturnsFailedJobWithoutError(t *testing.T) {
	msg := "transcribe chunk 2/3: engine invocation failed"
	src := &scriptedSource{states: []jobstore.Job{
		{ID: "j2", Status: jobstore.StatusProcessing, Progress: 36},
		{ID: "j2", Status: jobstore.StatusFailed, Progress: 36, Error: &msg},
	}}

	p := NewPoller(src, time.Millisecond, 10, testLogger())
	job, err := p.Wait(context.Background(), "j2")
	require.NoError(t, err)
	require.Equal(t, jobstore.StatusFailed, job.Status)
	require.Equal(t, 36, job.Progress)
	require.NotNil(t, job.Error)
	require.Equal(t, msg, *job.Error)
}

func TestWaitExhaustsAttempts(t *testing.T) {
	src := &scriptedSource{states: []jobstore.Job{
		{ID: "j3", Status: jobstore.StatusProcessing, Progress: 15},
	}}

	p := NewPoller(src, time.Millisecond, 3, testLogger())
	_, err := p.Wait(context.Background(), "j3")
	require.ErrorIs(t, err, ErrAttemptsExhausted)
	require.Equal(t, 3, src.calls)
}

func TestWaitPropagatesNotFound(t *testing.T) {
	src := &scriptedSource{err: jobstore.ErrJobNotFound}

	p := NewPoller(src, time.Millisecond, 5, testLogger())
	_, err := p.Wait(context.Background(), "missing")
	require.ErrorIs(t, err, jobstore.ErrJobNotFound)
}

func TestWaitHonorsContextCancellation(t *testing.T) {
	src := &scriptedSource{states: []jobstore.Job{
		{ID: "j4", Status: jobstore.StatusProcessing, Progress: 15},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	p := NewPoller(src, time.Hour, 100, testLogger())
	_, err := p.Wait(ctx, "j4")
	require.ErrorIs(t, err, context.Canceled)
}
