package task

import (
	"context"
	"sync"
	"time"

	"github.com/Rib4ko/backendYT/clip"
)

type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCanceled   Status = "canceled"
)

// Finished reports whether s is terminal.
func (s Status) Finished() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCanceled
}

// Task is one clip request moving through the queue. Fields behind mu change
// while workers run; read them through Snapshot.
type Task struct {
	ID      string
	Request clip.Request

	mu          sync.Mutex
	status      Status
	stage       clip.State
	result      clip.Result
	createdAt   time.Time
	startedAt   time.Time
	completedAt time.Time
	cancelFunc  context.CancelFunc

	done chan struct{}
	once sync.Once
}

func newTask(id string, req clip.Request, now time.Time) *Task {
	return &Task{
		ID:        id,
		Request:   req,
		status:    StatusQueued,
		createdAt: now,
		done:      make(chan struct{}),
	}
}

// Snapshot is the JSON view of a task.
type Snapshot struct {
	ID          string     `json:"id"`
	Status      Status     `json:"status"`
	Stage       clip.State `json:"stage,omitempty"`
	URL         string     `json:"url"`
	Start       int        `json:"start"`
	End         int        `json:"end"`
	Filename    string     `json:"filename,omitempty"`
	DownloadURL string     `json:"downloadUrl,omitempty"`
	WaitSeconds int        `json:"waitSeconds,omitempty"`
	Warning     string     `json:"warning,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

func (t *Task) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Snapshot{
		ID:        t.ID,
		Status:    t.status,
		Stage:     t.stage,
		URL:       t.Request.URL,
		Start:     t.Request.Start,
		End:       t.Request.End,
		CreatedAt: t.createdAt,
	}
	if !t.startedAt.IsZero() {
		started := t.startedAt
		s.StartedAt = &started
	}
	if !t.completedAt.IsZero() {
		completed := t.completedAt
		s.CompletedAt = &completed
	}
	if a := t.result.Artifact; a != nil {
		s.Filename = a.Filename
		s.WaitSeconds = t.result.WaitSeconds
		s.Warning = t.result.Warning
	}
	if t.result.Err != nil {
		s.Error = t.result.Message()
	}
	return s
}

func (t *Task) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Done is closed once the task reaches a terminal status.
func (t *Task) Done() <-chan struct{} { return t.done }

// Result is only meaningful after Done is closed.
func (t *Task) Result() clip.Result {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result
}

func (t *Task) setStage(s clip.State) {
	t.mu.Lock()
	t.stage = s
	t.mu.Unlock()
}

// begin moves a queued task to processing. It reports false if the task was
// canceled while it waited.
func (t *Task) begin(cancel context.CancelFunc, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status != StatusQueued {
		return false
	}
	t.status = StatusProcessing
	t.startedAt = now
	t.cancelFunc = cancel
	return true
}

// finish records the outcome. Only the first call has any effect.
func (t *Task) finish(res clip.Result, now time.Time) {
	t.once.Do(func() {
		t.mu.Lock()
		t.result = res
		t.completedAt = now
		t.cancelFunc = nil
		switch {
		case res.Err == nil:
			t.status = StatusCompleted
		case clip.KindOf(res.Err) == clip.KindCanceled:
			t.status = StatusCanceled
		default:
			t.status = StatusFailed
		}
		t.mu.Unlock()
		close(t.done)
	})
}
