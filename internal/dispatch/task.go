package dispatch

import (
	"context"
	"time"

	"podmill/internal/services"
)

// Task is the unit of work handed to a Runner. It carries everything the
// background pipeline needs to process an already-uploaded object, so it can
// cross a message broker without the consumer sharing process state with the
// API that accepted the upload.
type Task struct {
	JobID       string    `json:"job_id"`
	UserID      string    `json:"user_id"`
	Workspace   string    `json:"workspace,omitempty"`
	UploadID    string    `json:"upload_id,omitempty"`
	Filename    string    `json:"filename"`
	StoragePath string    `json:"storage_path"`
	AudioURL    string    `json:"audio_url"`
	FileSize    int64     `json:"file_size"`
	ContentType string    `json:"content_type,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Validate reports whether the task carries enough to be processed. Runners
// reject invalid tasks at dispatch time rather than letting a consumer
// discover the hole later.
func (t Task) Validate() error {
	switch {
	case t.JobID == "":
		return services.Wrap(services.ErrValidation, "dispatch", "validate", "task missing job id", nil)
	case t.UserID == "":
		return services.Wrap(services.ErrValidation, "dispatch", "validate", "task missing user id", nil)
	case t.Filename == "":
		return services.Wrap(services.ErrValidation, "dispatch", "validate", "task missing filename", nil)
	case t.StoragePath == "":
		return services.Wrap(services.ErrValidation, "dispatch", "validate", "task missing storage path", nil)
	}
	return nil
}

// ProcessFunc executes one task. Implementations are expected to honor
// context cancellation and to return nil once the job outcome has been
// recorded, even when the pipeline itself failed; a non-nil error tells the
// runner the task could not be handled at all.
type ProcessFunc func(ctx context.Context, task Task) error

// Runner schedules tasks for background execution.
type Runner interface {
	// Dispatch enqueues a task. It returns once the task is accepted, not
	// once it has run.
	Dispatch(ctx context.Context, task Task) error
	// Stop shuts the runner down, waiting for accepted work to finish until
	// ctx expires.
	Stop(ctx context.Context) error
}
