package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"tabkeeper-be/internal/pkg/logger"

	"github.com/robfig/cron/v3"
)

const logModule = "Scheduler"

var (
	ErrTaskExists   = errors.New("task already registered")
	ErrTaskNotFound = errors.New("task not found")
	ErrTaskRunning  = errors.New("task is already running")
)

// TaskFunc is the body of a recurring task. The context is cancelled when
// the scheduler stops.
type TaskFunc func(ctx context.Context) error

type Task struct {
	Name string
	Spec string
	Run  TaskFunc
}

// TaskInfo is a snapshot of a registered task.
type TaskInfo struct {
	Name         string
	Spec         string
	Next         time.Time
	Prev         time.Time
	Running      bool
	LastDuration time.Duration
	LastError    string
}

type registeredTask struct {
	Task
	entryID cron.EntryID
	running atomic.Bool

	mu           sync.Mutex
	lastRun      time.Time
	lastDuration time.Duration
	lastError    string
}

// Scheduler runs named tasks on cron schedules. A failing or panicking task
// is logged and does not affect the others, and a task never overlaps with
// itself.
type Scheduler struct {
	mu      sync.Mutex
	cron    *cron.Cron
	logger  logger.ILogger
	tasks   map[string]*registeredTask
	running bool

	baseCtx context.Context
	cancel  context.CancelFunc
}

func New(log logger.ILogger, location *time.Location) *Scheduler {
	if location == nil {
		location = time.UTC
	}
	cl := cronLogger{log: log}

	baseCtx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(location),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl)),
		),
		logger:  log,
		tasks:   make(map[string]*registeredTask),
		baseCtx: baseCtx,
		cancel:  cancel,
	}
}

// Register adds a task. Names must be unique and the schedule must be a
// standard five-field cron expression or a descriptor such as "@hourly".
func (s *Scheduler) Register(task Task) error {
	if task.Name == "" || task.Run == nil {
		return errors.New("task needs a name and a body")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[task.Name]; exists {
		return fmt.Errorf("%w: %s", ErrTaskExists, task.Name)
	}

	rt := &registeredTask{Task: task}
	id, err := s.cron.AddFunc(task.Spec, func() {
		s.execute(s.context(), rt)
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q for task %s: %w", task.Spec, task.Name, err)
	}
	rt.entryID = id
	s.tasks[task.Name] = rt
	return nil
}

func (s *Scheduler) context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.baseCtx
}

// Start begins firing tasks. Calling it on a running scheduler does nothing.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	if s.baseCtx.Err() != nil {
		s.baseCtx, s.cancel = context.WithCancel(context.Background())
	}
	s.cron.Start()
	s.running = true

	s.logger.Info(logModule, "Scheduler started", map[string]interface{}{
		"tasks": len(s.tasks),
	})
}

// Stop halts scheduling, cancels running tasks and waits for them to
// return or ctx to expire. Stopping a stopped scheduler does nothing.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	done := s.cron.Stop()
	s.cancel()
	s.mu.Unlock()

	select {
	case <-done.Done():
		s.logger.Info(logModule, "Scheduler stopped", nil)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for running tasks: %w", ctx.Err())
	}
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Tasks lists registered tasks sorted by name.
func (s *Scheduler) Tasks() []TaskInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	infos := make([]TaskInfo, 0, len(s.tasks))
	for _, rt := range s.tasks {
		entry := s.cron.Entry(rt.entryID)

		rt.mu.Lock()
		info := TaskInfo{
			Name:         rt.Name,
			Spec:         rt.Spec,
			Next:         entry.Next,
			Prev:         rt.lastRun,
			Running:      rt.running.Load(),
			LastDuration: rt.lastDuration,
			LastError:    rt.lastError,
		}
		rt.mu.Unlock()

		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// RunNow executes a task immediately in the caller's goroutine and returns
// its error.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	rt, ok := s.tasks[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, name)
	}
	return s.execute(ctx, rt)
}

func (s *Scheduler) execute(ctx context.Context, rt *registeredTask) (err error) {
	if !rt.running.CompareAndSwap(false, true) {
		s.logger.Warn(logModule, "Task still running, skipping", map[string]interface{}{
			"task": rt.Name,
		})
		return fmt.Errorf("%w: %s", ErrTaskRunning, rt.Name)
	}
	defer rt.running.Store(false)

	start := time.Now()
	s.logger.Info(logModule, "Task started", map[string]interface{}{
		"task": rt.Name,
	})

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", rt.Name, r)
		}

		duration := time.Since(start)
		rt.mu.Lock()
		rt.lastRun = start
		rt.lastDuration = duration
		rt.lastError = ""
		if err != nil {
			rt.lastError = err.Error()
		}
		rt.mu.Unlock()

		details := map[string]interface{}{
			"task":        rt.Name,
			"duration_ms": duration.Milliseconds(),
		}
		if err != nil {
			details["error"] = err.Error()
			s.logger.Error(logModule, "Task failed", details)
			return
		}
		s.logger.Info(logModule, "Task completed", details)
	}()

	return rt.Run(ctx)
}

// cronLogger routes cron's own messages into ILogger.
type cronLogger struct {
	log logger.ILogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(logModule, msg, keyValues(keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	details := keyValues(keysAndValues)
	details["error"] = err.Error()
	l.log.Error(logModule, msg, details)
}

func keyValues(kv []interface{}) map[string]interface{} {
	details := make(map[string]interface{}, len(kv)/2+1)
	for i := 0; i+1 < len(kv); i += 2 {
		details[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return details
}
