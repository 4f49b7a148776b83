package tasks

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Status string

const (
	StatusQueued        Status = "queued"
	StatusFetching      Status = "fetching"
	StatusRendering     Status = "rendering"
	StatusConcatenating Status = "concatenating"
	StatusUploading     Status = "uploading"
	StatusDone          Status = "done"
	StatusFailed        Status = "failed"
)

// rank orders the non-terminal states; transitions never move backwards.
var rank = map[Status]int{
	StatusQueued:        0,
	StatusFetching:      1,
	StatusRendering:     2,
	StatusConcatenating: 3,
	StatusUploading:     4,
	StatusDone:          5,
}

func (s Status) Terminal() bool { return s == StatusDone || s == StatusFailed }

// Task is a point-in-time snapshot of one job. Registry methods hand out
// copies; callers never see shared mutable state.
type Task struct {
	ID           string
	ScriptID     string
	Status       Status
	Progress     int
	Message      string
	Error        string
	FailedStage  string
	VideoPath    string
	SubtitlePath string
	RemoteURL    string
	Warnings     []string
	CreatedAt    time.Time
	UpdatedAt    time.Time

	terminalAt time.Time
	cancel     context.CancelFunc
}

// Registry is the process-scoped job table. Only the runner goroutine
// mutates a task after creation; pool workers report through callbacks and
// never touch the registry.
type Registry struct {
	mu        sync.Mutex
	tasks     map[string]*Task
	retention time.Duration
	log       zerolog.Logger
}

func NewRegistry(retention time.Duration, log zerolog.Logger) *Registry {
	if retention <= 0 {
		retention = time.Hour
	}
	return &Registry{
		tasks:     make(map[string]*Task),
		retention: retention,
		log:       log,
	}
}

func (r *Registry) Create(scriptID string, cancel context.CancelFunc) Task {
	now := time.Now()
	t := &Task{
		ID:        uuid.NewString(),
		ScriptID:  scriptID,
		Status:    StatusQueued,
		Message:   "waiting to start",
		CreatedAt: now,
		UpdatedAt: now,
		cancel:    cancel,
	}
	r.mu.Lock()
	r.tasks[t.ID] = t
	r.mu.Unlock()
	return *t
}

func (r *Registry) Get(id string) (Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return Task{}, false
	}
	return *t, true
}

// Cancel stops dispatching new work for the task. In-flight subprocess
// invocations are killed through the job context.
func (r *Registry) Cancel(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok || t.Status.Terminal() {
		return false
	}
	if t.cancel != nil {
		t.cancel()
	}
	return true
}

// Advance moves a task forward. Regressions and mutations of terminal
// tasks are ignored: states are one-directional and never revisited.
func (r *Registry) Advance(id string, status Status, progress int, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok || t.Status.Terminal() {
		return
	}
	if rank[status] < rank[t.Status] {
		return
	}
	t.Status = status
	if progress > t.Progress {
		t.Progress = progress
	}
	if message != "" {
		t.Message = message
	}
	t.UpdatedAt = time.Now()
}

func (r *Registry) Complete(id, videoPath, subtitlePath, remoteURL string, warnings []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok || t.Status.Terminal() {
		return
	}
	t.Status = StatusDone
	t.Progress = 100
	t.Message = "completed"
	t.VideoPath = videoPath
	t.SubtitlePath = subtitlePath
	t.RemoteURL = remoteURL
	t.Warnings = warnings
	t.UpdatedAt = time.Now()
	t.terminalAt = t.UpdatedAt
}

func (r *Registry) Fail(id, stage string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok || t.Status.Terminal() {
		return
	}
	t.Status = StatusFailed
	t.Message = "failed during " + stage
	t.FailedStage = stage
	t.Error = err.Error()
	t.UpdatedAt = time.Now()
	t.terminalAt = t.UpdatedAt
}

// Sweep drops terminal tasks older than the retention window.
func (r *Registry) Sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, t := range r.tasks {
		if t.Status.Terminal() && now.Sub(t.terminalAt) > r.retention {
			delete(r.tasks, id)
			removed++
		}
	}
	return removed
}

// StartSweeper runs Sweep periodically until ctx is done.
func (r *Registry) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if n := r.Sweep(now); n > 0 {
					r.log.Debug().Int("removed", n).Msg("task registry swept")
				}
			}
		}
	}()
}
