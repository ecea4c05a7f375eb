package jobs

import (
	"context"
	"log/slog"
	"maps"
	"sort"
	"sync"
	"time"

	"podmill/internal/logging"
)

// CreateParams carries the request details recorded on a new job.
type CreateParams struct {
	UserID    string
	Workspace string
	Filename  string
	UploadID  string
	Metadata  map[string]any
}

// Tracker is the in-memory job registry. All methods are safe for
// concurrent use.
type Tracker struct {
	mu      sync.RWMutex
	jobs    map[string]*Job
	logger  *slog.Logger
	now     func() time.Time
	archive *Archive
}

// TrackerOption adjusts a Tracker.
type TrackerOption func(*Tracker)

// WithClock overrides the tracker's time source.
func WithClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// WithArchive mirrors terminal jobs into the given archive.
func WithArchive(archive *Archive) TrackerOption {
	return func(t *Tracker) {
		t.archive = archive
	}
}

// NewTracker returns an empty tracker.
func NewTracker(logger *slog.Logger, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		jobs:   make(map[string]*Job),
		logger: logging.NewComponentLogger(logger, "jobs"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Create registers a new queued job and returns a copy of it.
func (t *Tracker) Create(params CreateParams) Job {
	now := t.now().UTC()
	job := &Job{
		ID:        NewID(now),
		UserID:    params.UserID,
		Workspace: params.Workspace,
		Filename:  params.Filename,
		UploadID:  params.UploadID,
		Status:    StatusQueued,
		Step:      StepUploading,
		Metadata:  maps.Clone(params.Metadata),
		CreatedAt: now,
		UpdatedAt: now,
	}
	t.mu.Lock()
	t.jobs[job.ID] = job
	t.mu.Unlock()

	t.logger.Info("job created",
		logging.String(logging.FieldJobID, job.ID),
		logging.String(logging.FieldUserID, job.UserID),
		logging.String("filename", job.Filename))
	return job.Clone()
}

// Update applies mutate to the job and reports whether the change was
// accepted. It returns false for unknown IDs, for jobs already in a terminal
// status, and for status changes the lifecycle does not allow; it never
// returns an error. Progress is clamped to [0, 100] and never moves backward
// while the job stays in processing, a move to processing stamps StartedAt,
// and a terminal move stamps CompletedAt.
func (t *Tracker) Update(id string, mutate func(*Job)) bool {
	t.mu.Lock()
	job, ok := t.jobs[id]
	if !ok || job.Status.Terminal() {
		t.mu.Unlock()
		return false
	}

	draft := job.Clone()
	mutate(&draft)

	// Fields callers must not rewrite.
	draft.ID = job.ID
	draft.UserID = job.UserID
	draft.CreatedAt = job.CreatedAt
	draft.StartedAt = job.StartedAt
	draft.CompletedAt = job.CompletedAt

	if draft.Status != job.Status && !ValidTransition(job.Status, draft.Status) {
		t.mu.Unlock()
		return false
	}
	draft.Progress = min(100, max(0, draft.Progress))
	if job.Status == StatusProcessing && draft.Status == StatusProcessing {
		draft.Progress = max(draft.Progress, job.Progress)
	}

	now := t.now().UTC()
	if draft.Status == StatusProcessing && draft.StartedAt == nil {
		started := now
		draft.StartedAt = &started
	}
	if draft.Status.Terminal() {
		completed := now
		draft.CompletedAt = &completed
		if draft.Status == StatusCompleted {
			draft.Progress = 100
			draft.Step = StepCompleted
		}
	}
	draft.UpdatedAt = now
	*job = draft

	var record *Job
	if job.Status.Terminal() {
		copied := job.Clone()
		record = &copied
	}
	t.mu.Unlock()

	if record != nil {
		t.recordTerminal(*record)
	}
	return true
}

func (t *Tracker) recordTerminal(job Job) {
	if t.archive == nil {
		return
	}
	if err := t.archive.Record(context.Background(), job); err != nil {
		t.logger.Warn("archive write failed",
			logging.String(logging.FieldJobID, job.ID),
			logging.Error(err))
	}
}

// Get returns a copy of the job.
func (t *Tracker) Get(id string) (Job, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	job, ok := t.jobs[id]
	if !ok {
		return Job{}, false
	}
	return job.Clone(), true
}

// ListForUser returns the user's jobs, newest first. With activeOnly set,
// terminal jobs are skipped.
func (t *Tracker) ListForUser(userID string, activeOnly bool) []Job {
	t.mu.RLock()
	listed := make([]Job, 0, 8)
	for _, job := range t.jobs {
		if job.UserID != userID {
			continue
		}
		if activeOnly && job.Status.Terminal() {
			continue
		}
		listed = append(listed, job.Clone())
	}
	t.mu.RUnlock()

	sort.Slice(listed, func(i, j int) bool {
		if listed[i].CreatedAt.Equal(listed[j].CreatedAt) {
			return listed[i].ID > listed[j].ID
		}
		return listed[i].CreatedAt.After(listed[j].CreatedAt)
	})
	return listed
}

// List returns every tracked job, newest first. The control socket uses it
// for the operator's job listing; the HTTP surface stays per-user.
func (t *Tracker) List(activeOnly bool) []Job {
	t.mu.RLock()
	listed := make([]Job, 0, len(t.jobs))
	for _, job := range t.jobs {
		if activeOnly && job.Status.Terminal() {
			continue
		}
		listed = append(listed, job.Clone())
	}
	t.mu.RUnlock()

	sort.Slice(listed, func(i, j int) bool {
		if listed[i].CreatedAt.Equal(listed[j].CreatedAt) {
			return listed[i].ID > listed[j].ID
		}
		return listed[i].CreatedAt.After(listed[j].CreatedAt)
	})
	return listed
}

// Cancel moves a job to cancelled on behalf of its owner.
func (t *Tracker) Cancel(id, userID string) error {
	t.mu.Lock()
	job, ok := t.jobs[id]
	if !ok {
		t.mu.Unlock()
		return ErrNotFound
	}
	if job.UserID != userID {
		t.mu.Unlock()
		return ErrNotOwner
	}
	if job.Status.Terminal() {
		t.mu.Unlock()
		return ErrFinished
	}
	now := t.now().UTC()
	job.Status = StatusCancelled
	job.Message = "cancelled by user"
	completed := now
	job.CompletedAt = &completed
	job.UpdatedAt = now
	record := job.Clone()
	t.mu.Unlock()

	t.recordTerminal(record)
	t.logger.Info("job cancelled",
		logging.String(logging.FieldJobID, id),
		logging.String(logging.FieldUserID, userID))
	return nil
}

// Cancelled reports whether the job was cancelled. The pipeline polls this
// between stages.
func (t *Tracker) Cancelled(id string) bool {
	job, ok := t.Get(id)
	return ok && job.Status == StatusCancelled
}

// Cleanup evicts jobs created before the retention age and returns how many
// were removed.
func (t *Tracker) Cleanup(maxAge time.Duration) int {
	cutoff := t.now().UTC().Add(-maxAge)
	t.mu.Lock()
	removed := 0
	for id, job := range t.jobs {
		if job.CreatedAt.Before(cutoff) {
			delete(t.jobs, id)
			removed++
		}
	}
	t.mu.Unlock()

	if removed > 0 {
		t.logger.Info("job registry swept",
			logging.Int("removed", removed),
			logging.Duration("max_age", maxAge))
	}
	return removed
}

// ActiveIDs returns the set of non-terminal job IDs. The staging orphan
// sweep uses it to tell live workdirs from leftovers.
func (t *Tracker) ActiveIDs() map[string]struct{} {
	t.mu.RLock()
	defer t.mu.RUnlock()
	active := make(map[string]struct{}, len(t.jobs))
	for id, job := range t.jobs {
		if !job.Status.Terminal() {
			active[id] = struct{}{}
		}
	}
	return active
}

// Stats aggregates job counts per lifecycle state.
func (t *Tracker) Stats() Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	stats := Stats{Total: len(t.jobs)}
	for _, job := range t.jobs {
		switch job.Status {
		case StatusQueued:
			stats.Queued++
		case StatusProcessing:
			stats.Processing++
		case StatusCompleted:
			stats.Completed++
		case StatusFailed:
			stats.Failed++
		case StatusCancelled:
			stats.Cancelled++
		}
	}
	return stats
}
