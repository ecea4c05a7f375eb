package jobs

import (
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status represents the lifecycle of a job.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

var allStatuses = []Status{
	StatusQueued,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
	StatusCancelled,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// Step identifies where in the pipeline a job currently is.
type Step string

const (
	StepUploading         Step = "uploading"
	StepDownloading       Step = "downloading"
	StepTranscribing      Step = "transcribing"
	StepGeneratingContent Step = "generating_content"
	StepSaving            Step = "saving"
	StepCompleted         Step = "completed"
)

var validTransitions = map[Status]map[Status]struct{}{
	StatusQueued: {
		StatusProcessing: {},
		StatusCancelled:  {},
	},
	StatusProcessing: {
		StatusCompleted: {},
		StatusFailed:    {},
		StatusCancelled: {},
	},
}

// Job is one tracked processing request.
type Job struct {
	ID          string         `json:"id"`
	UserID      string         `json:"user_id"`
	Workspace   string         `json:"workspace,omitempty"`
	Filename    string         `json:"filename,omitempty"`
	UploadID    string         `json:"upload_id,omitempty"`
	Status      Status         `json:"status"`
	Step        Step           `json:"step"`
	Progress    float64        `json:"progress"`
	Message     string         `json:"message,omitempty"`
	Error       string         `json:"error,omitempty"`
	DocID       string         `json:"doc_id,omitempty"`
	Result      map[string]any `json:"result,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// Clone returns a copy whose Result and Metadata maps are detached from the
// receiver, so callers can hold or mutate the copy freely.
func (j Job) Clone() Job {
	j.Result = maps.Clone(j.Result)
	j.Metadata = maps.Clone(j.Metadata)
	return j
}

// NewID builds a job identifier from a fresh random component and the
// creation time.
func NewID(now time.Time) string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("job_%s_%d", random[:12], now.Unix())
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// Terminal reports whether the status ends the job's lifecycle.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Active reports whether the job still has work pending.
func (s Status) Active() bool {
	return s == StatusQueued || s == StatusProcessing
}

// ValidTransition reports whether a job may move from one status to another.
func ValidTransition(from, to Status) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	_, ok = targets[to]
	return ok
}

// IsTerminal reports whether the job reached a final status.
func (j Job) IsTerminal() bool {
	return j.Status.Terminal()
}

// Stats aggregates job counts per lifecycle state.
type Stats struct {
	Total      int
	Queued     int
	Processing int
	Completed  int
	Failed     int
	Cancelled  int
}
