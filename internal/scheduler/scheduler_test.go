package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingAlerter struct {
	mu   sync.Mutex
	jobs []string
}

func (a *recordingAlerter) NotifyFailure(_ context.Context, job string, _ error) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.jobs = append(a.jobs, job)
	return nil
}

func TestRegister(t *testing.T) {
	s := NewScheduler(context.Background(), nil, nil)
	noop := func(context.Context) error { return nil }

	require.NoError(t, s.Register("nasdaq", "0 30 6 * * 2-6", noop))
	assert.Error(t, s.Register("nasdaq", "0 30 6 * * 2-6", noop))
	// five-field specs are rejected by the seconds parser
	assert.Error(t, s.Register("kospi", "0 16 * * 1-5", noop))
	assert.Equal(t, []string{"nasdaq"}, s.Names())
}

func TestRunNow(t *testing.T) {
	alerter := &recordingAlerter{}
	s := NewScheduler(context.Background(), alerter, nil)

	calls := 0
	require.NoError(t, s.Register("ok", "0 0 * * * *", func(context.Context) error { calls++; return nil }))
	require.NoError(t, s.Register("broken", "0 0 * * * *", func(context.Context) error { return errors.New("boom") }))

	require.NoError(t, s.RunNow("ok"))
	assert.Equal(t, 1, calls)

	err := s.RunNow("broken")
	require.Error(t, err)
	assert.Equal(t, []string{"broken"}, alerter.jobs)

	assert.Error(t, s.RunNow("missing"))
}

func TestRunNow_NoOverlap(t *testing.T) {
	alerter := &recordingAlerter{}
	s := NewScheduler(context.Background(), alerter, nil)

	started := make(chan struct{})
	release := make(chan struct{})
	var calls int32
	require.NoError(t, s.Register("slow", "0 0 * * * *", func(context.Context) error {
		if atomic.AddInt32(&calls, 1) == 1 {
			close(started)
			<-release
		}
		return nil
	}))

	done := make(chan error, 1)
	go func() { done <- s.RunNow("slow") }()
	<-started

	err := s.RunNow("slow")
	assert.True(t, errors.Is(err, ErrAlreadyRunning), err)
	assert.Contains(t, s.HandleCommand(context.Background(), "/run slow"), "already running")

	close(release)
	require.NoError(t, <-done)
	assert.Empty(t, alerter.jobs)

	require.NoError(t, s.RunNow("slow"))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestHandleCommand(t *testing.T) {
	s := NewScheduler(context.Background(), nil, nil)
	require.NoError(t, s.Register("kospi", "0 0 16 * * 1-5", func(context.Context) error { return nil }))
	s.Start()
	defer s.Stop()

	ctx := context.Background()
	assert.Contains(t, s.HandleCommand(ctx, "/jobs"), "kospi: next")
	assert.Contains(t, s.HandleCommand(ctx, "/run"), "usage")
	assert.Contains(t, s.HandleCommand(ctx, "/run dax"), "unknown job")
	assert.Contains(t, s.HandleCommand(ctx, "/help"), "Jobs: kospi")
	assert.Empty(t, s.HandleCommand(ctx, "  "))
}
