package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"tabkeeper-be/internal/config"
	"tabkeeper-be/internal/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	s := New(logger.NewNopLogger(), time.UTC)
	t.Cleanup(func() {
		_ = s.Stop(context.Background())
	})
	return s
}

func TestScheduler_StartStopAreIdempotent(t *testing.T) {
	s := newTestScheduler(t)

	// Stop before Start is a no-op.
	require.NoError(t, s.Stop(context.Background()))
	assert.False(t, s.Running())

	s.Start()
	s.Start()
	assert.True(t, s.Running())

	require.NoError(t, s.Stop(context.Background()))
	require.NoError(t, s.Stop(context.Background()))
	assert.False(t, s.Running())

	s.Start()
	assert.True(t, s.Running())
}

func TestScheduler_RegisterValidation(t *testing.T) {
	s := newTestScheduler(t)
	noop := func(ctx context.Context) error { return nil }

	require.NoError(t, s.Register(Task{Name: "hourly", Spec: "0 * * * *", Run: noop}))
	assert.ErrorIs(t, s.Register(Task{Name: "hourly", Spec: "@daily", Run: noop}), ErrTaskExists)
	assert.Error(t, s.Register(Task{Name: "broken", Spec: "every now and then", Run: noop}))
	assert.Error(t, s.Register(Task{Name: "", Spec: "@daily", Run: noop}))

	tasks := s.Tasks()
	require.Len(t, tasks, 1)
	assert.Equal(t, "hourly", tasks[0].Name)
}

func TestScheduler_FailingTaskDoesNotAffectOthers(t *testing.T) {
	s := newTestScheduler(t)

	var healthyRuns atomic.Int32
	require.NoError(t, s.Register(Task{Name: "fails", Spec: "@every 1s", Run: func(ctx context.Context) error {
		return errors.New("database unavailable")
	}}))
	require.NoError(t, s.Register(Task{Name: "panics", Spec: "@every 1s", Run: func(ctx context.Context) error {
		panic("nil map write")
	}}))
	require.NoError(t, s.Register(Task{Name: "healthy", Spec: "@every 1s", Run: func(ctx context.Context) error {
		healthyRuns.Add(1)
		return nil
	}}))

	s.Start()

	require.Eventually(t, func() bool {
		return healthyRuns.Load() >= 2
	}, 5*time.Second, 20*time.Millisecond)

	byName := map[string]TaskInfo{}
	for _, info := range s.Tasks() {
		byName[info.Name] = info
	}
	assert.Equal(t, "database unavailable", byName["fails"].LastError)
	assert.Contains(t, byName["panics"].LastError, "nil map write")
	assert.Empty(t, byName["healthy"].LastError)
	assert.False(t, byName["healthy"].Next.IsZero())
}

func TestScheduler_RunNow(t *testing.T) {
	s := newTestScheduler(t)

	var runs atomic.Int32
	require.NoError(t, s.Register(Task{Name: "cleanup", Spec: "@daily", Run: func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}}))
	require.NoError(t, s.Register(Task{Name: "panics", Spec: "@daily", Run: func(ctx context.Context) error {
		panic("boom")
	}}))

	require.NoError(t, s.RunNow(context.Background(), "cleanup"))
	assert.Equal(t, int32(1), runs.Load())

	assert.ErrorIs(t, s.RunNow(context.Background(), "missing"), ErrTaskNotFound)
	assert.ErrorContains(t, s.RunNow(context.Background(), "panics"), "boom")
}

func TestScheduler_SkipsOverlappingRun(t *testing.T) {
	s := newTestScheduler(t)

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, s.Register(Task{Name: "slow", Spec: "@daily", Run: func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	}}))

	done := make(chan error, 1)
	go func() { done <- s.RunNow(context.Background(), "slow") }()
	<-started

	assert.ErrorIs(t, s.RunNow(context.Background(), "slow"), ErrTaskRunning)

	close(release)
	require.NoError(t, <-done)
}

func TestScheduler_StopCancelsRunningTask(t *testing.T) {
	s := newTestScheduler(t)

	cancelled := make(chan struct{})
	require.NoError(t, s.Register(Task{Name: "long", Spec: "@every 1s", Run: func(ctx context.Context) error {
		<-ctx.Done()
		select {
		case <-cancelled:
		default:
			close(cancelled)
		}
		return ctx.Err()
	}}))

	s.Start()
	require.Eventually(t, func() bool {
		for _, info := range s.Tasks() {
			if info.Running {
				return true
			}
		}
		return false
	}, 3*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))

	select {
	case <-cancelled:
	default:
		t.Fatal("running task was not cancelled")
	}
}

type stubAutomation struct {
	calls []string
}

func (s *stubAutomation) record(name string) error {
	s.calls = append(s.calls, name)
	return nil
}

func (s *stubAutomation) EnqueueSuggestionSweep(ctx context.Context) error {
	return s.record("sweep")
}

func (s *stubAutomation) CleanupRejectedSuggestions(ctx context.Context) error {
	return s.record("rejected")
}

func (s *stubAutomation) ArchiveStaleTabs(ctx context.Context) error {
	return s.record("archive")
}

func (s *stubAutomation) AggregateAccessStats(ctx context.Context) error {
	return s.record("stats")
}

func (s *stubAutomation) SweepDuplicateTabs(ctx context.Context) error {
	return s.record("duplicates")
}

func (s *stubAutomation) CleanupRevokedTokens(ctx context.Context) error {
	return s.record("tokens")
}

func TestAutomationTasks_UsesConfiguredSpecs(t *testing.T) {
	cfg := config.SchedulerConfig{
		SuggestionSweepSpec: "0 */6 * * *",
		RejectedCleanupSpec: "0 2 * * *",
		StaleArchivalSpec:   "0 3 * * 0",
		AccessStatsSpec:     "0 * * * *",
		DuplicateSweepSpec:  "0 */12 * * *",
		RevokedTokenSpec:    "0 0 * * *",
	}

	automation := &stubAutomation{}
	tasks := AutomationTasks(automation, cfg)
	require.Len(t, tasks, 6)

	s := newTestScheduler(t)
	require.NoError(t, s.RegisterAll(tasks))

	specs := map[string]string{}
	for _, info := range s.Tasks() {
		specs[info.Name] = info.Spec
	}
	assert.Equal(t, map[string]string{
		TaskSuggestionSweep:     "0 */6 * * *",
		TaskRejectedCleanup:     "0 2 * * *",
		TaskStaleTabArchival:    "0 3 * * 0",
		TaskAccessStats:         "0 * * * *",
		TaskDuplicateTabSweep:   "0 */12 * * *",
		TaskRevokedTokenCleanup: "0 0 * * *",
	}, specs)

	require.NoError(t, s.RunNow(context.Background(), TaskStaleTabArchival))
	assert.Equal(t, []string{"archive"}, automation.calls)
}
