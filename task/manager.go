package task

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/Rib4ko/backendYT/clip"
	"github.com/Rib4ko/backendYT/config"
	"github.com/lithammer/shortuuid/v4"
)

var (
	ErrQueueFull = errors.New("task queue is full")
	ErrStopped   = errors.New("task manager is stopped")
	ErrNotFound  = errors.New("task not found")
)

// Runner executes one clip request. *clip.Pipeline satisfies it.
type Runner interface {
	Run(ctx context.Context, runID string, req clip.Request, observe func(clip.State)) clip.Result
}

// Sweeper removes storage entries older than maxAge.
type Sweeper interface {
	Sweep(maxAge time.Duration, now time.Time) []string
}

type Manager struct {
	cfg            *config.Config
	tasks          sync.Map
	taskQueue      chan *Task
	concurrencySem chan struct{}
	runner         Runner
	sweeper        Sweeper
	logger         *log.Logger
	now            func() time.Time

	// mu orders queue sends against shutdown, so nothing is queued after the drain.
	mu      sync.Mutex
	stopped bool
}

// NewManager builds a manager. sweeper may be nil, which disables the janitor.
func NewManager(cfg *config.Config, runner Runner, sweeper Sweeper, logger *log.Logger) *Manager {
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 100
	}
	concurrency := cfg.MaxConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Manager{
		cfg:            cfg,
		taskQueue:      make(chan *Task, queueSize),
		concurrencySem: make(chan struct{}, concurrency),
		runner:         runner,
		sweeper:        sweeper,
		logger:         logger,
		now:            time.Now,
	}
}

func (m *Manager) Start(ctx context.Context) {
	m.logger.Printf("Task manager started. Concurrency limit: %d", cap(m.concurrencySem))
	if m.sweeper != nil && m.cfg.OutputLocalLifetime > 0 {
		go m.cleanupLoop(ctx)
	}
	go m.workerLoop(ctx)
}

// workerLoop pulls tasks from the queue and processes them
func (m *Manager) workerLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			m.shutdown(ctx.Err())
			return
		case t := <-m.taskQueue:
			select {
			case m.concurrencySem <- struct{}{}:
			case <-ctx.Done():
				t.finish(clip.Result{Err: clip.CanceledError(ctx.Err())}, m.now())
				m.shutdown(ctx.Err())
				return
			}
			go func(t *Task) {
				defer func() { <-m.concurrencySem }()
				m.processTask(ctx, t)
			}(t)
		}
	}
}

// shutdown refuses new submissions and cancels everything still queued, so no
// waiter is left hanging.
func (m *Manager) shutdown(cause error) {
	m.mu.Lock()
	m.stopped = true
	m.mu.Unlock()

	n := 0
	for {
		select {
		case t := <-m.taskQueue:
			t.finish(clip.Result{Err: clip.CanceledError(cause)}, m.now())
			n++
		default:
			m.logger.Printf("Worker loop shutting down. Canceled %d queued tasks.", n)
			return
		}
	}
}

func (m *Manager) processTask(parentCtx context.Context, t *Task) {
	taskCtx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	if !t.begin(cancel, m.now()) {
		m.logger.Printf("Task %s was canceled before processing.", t.ID)
		return
	}

	defer func() {
		if r := recover(); r != nil {
			m.logger.Printf("Task %s panicked: %v", t.ID, r)
			t.finish(clip.Result{Err: &clip.Error{
				Kind:    clip.KindInternal,
				Message: "internal error",
				Err:     fmt.Errorf("panic: %v", r),
			}}, m.now())
		}
	}()

	m.logger.Printf("Processing task %s: %s", t.ID, t.Request)
	res := m.runner.Run(taskCtx, t.ID, t.Request, t.setStage)
	t.finish(res, m.now())

	switch st := t.Status(); st {
	case StatusCompleted:
		m.logger.Printf("Task %s completed successfully: %s", t.ID, res.Artifact.Filename)
	default:
		m.logger.Printf("Task %s %s: %v", t.ID, st, res.Err)
	}
}

// cleanupLoop sweeps artifacts nobody downloaded and forgets old finished tasks.
func (m *Manager) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.OutputLocalLifetime / 4) // Check 4 times per lifetime
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Println("Cleanup loop shutting down.")
			return
		case <-ticker.C:
			m.cleanup()
		}
	}
}

func (m *Manager) cleanup() {
	now := m.now()
	for _, p := range m.sweeper.Sweep(m.cfg.OutputLocalLifetime, now) {
		m.logger.Printf("Cleaning up old output file: %s", p)
	}
	m.tasks.Range(func(key, value interface{}) bool {
		t := value.(*Task)
		s := t.Snapshot()
		if s.CompletedAt != nil && now.Sub(*s.CompletedAt) > m.cfg.OutputLocalLifetime {
			m.tasks.Delete(key)
		}
		return true
	})
}

// Submit queues req without blocking. A full queue is reported as ErrQueueFull,
// a stopped manager as ErrStopped.
func (m *Manager) Submit(req clip.Request) (*Task, error) {
	now := m.now()
	t := newTask(fmt.Sprintf("%s_%d", shortuuid.New(), now.Unix()), req, now)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return nil, ErrStopped
	}
	m.tasks.Store(t.ID, t)
	select {
	case m.taskQueue <- t:
	default:
		m.tasks.Delete(t.ID)
		return nil, ErrQueueFull
	}
	m.logger.Printf("Task %s submitted to queue.", t.ID)
	return t, nil
}

// Wait blocks until t finishes or ctx ends. When ctx ends first the task is
// canceled, since nobody is left to receive its result.
func (m *Manager) Wait(ctx context.Context, t *Task) (clip.Result, error) {
	select {
	case <-t.Done():
		return t.Result(), nil
	case <-ctx.Done():
		if err := m.Cancel(t.ID); err != nil && !errors.Is(err, ErrNotFound) {
			m.logger.Printf("Task %s: %v", t.ID, err)
		}
		return clip.Result{}, ctx.Err()
	}
}

func (m *Manager) Get(taskID string) (*Task, bool) {
	if val, ok := m.tasks.Load(taskID); ok {
		return val.(*Task), true
	}
	return nil, false
}

// List returns known tasks, oldest first.
func (m *Manager) List() []*Task {
	var taskList []*Task
	m.tasks.Range(func(key, value interface{}) bool {
		taskList = append(taskList, value.(*Task))
		return true
	})
	sort.Slice(taskList, func(i, j int) bool {
		return taskList[i].createdAt.Before(taskList[j].createdAt)
	})
	return taskList
}

func (m *Manager) Cancel(taskID string) error {
	t, ok := m.Get(taskID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, taskID)
	}

	t.mu.Lock()
	status, cancel := t.status, t.cancelFunc
	if status == StatusQueued {
		// Taken out of the running before a worker sees it.
		t.status = StatusCanceled
	}
	t.mu.Unlock()

	switch status {
	case StatusCompleted, StatusFailed, StatusCanceled:
		return fmt.Errorf("cannot cancel task in state: %s", status)
	case StatusQueued:
		t.finish(clip.Result{Err: clip.CanceledError(errors.New("canceled while queued"))}, m.now())
		m.logger.Printf("Task %s marked as canceled in queue.", t.ID)
	case StatusProcessing:
		if cancel == nil {
			return fmt.Errorf("task %s is processing but has no cancellation handle", t.ID)
		}
		cancel()
		m.logger.Printf("Cancellation signal sent to running task %s.", t.ID)
	}
	return nil
}
