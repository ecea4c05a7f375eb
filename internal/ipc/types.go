package ipc

import (
	"podmill/internal/daemon"
	"podmill/internal/jobs"
)

// Job mirrors the tracker's job record for IPC callers.
type Job = jobs.Job

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse carries the daemon's point-in-time view.
type StatusResponse struct {
	Status daemon.Status `json:"status"`
}

// StopRequest asks the daemon process to shut down.
type StopRequest struct{}

// StopResponse confirms the shutdown was scheduled.
type StopResponse struct {
	Stopping bool `json:"stopping"`
}

// JobsListRequest lists tracked jobs. Active narrows to non-terminal ones.
type JobsListRequest struct {
	Active bool `json:"active"`
}

// JobsListResponse contains tracked jobs, newest first.
type JobsListResponse struct {
	Jobs []Job `json:"jobs"`
}

// JobGetRequest fetches one job by ID.
type JobGetRequest struct {
	ID string `json:"id"`
}

// JobGetResponse contains the job. Archived reports that the record came
// from the archive rather than the live registry.
type JobGetResponse struct {
	Job      Job  `json:"job"`
	Archived bool `json:"archived"`
}

// JobCancelRequest cancels a job by ID on the operator's behalf.
type JobCancelRequest struct {
	ID string `json:"id"`
}

// JobCancelResponse reports the cancellation outcome.
type JobCancelResponse struct {
	Cancelled bool   `json:"cancelled"`
	Message   string `json:"message"`
}

// JobsCleanupRequest evicts jobs past the retention window.
type JobsCleanupRequest struct{}

// JobsCleanupResponse reports how many records were removed.
type JobsCleanupResponse struct {
	Removed int `json:"removed"`
}

// QueueStatsRequest fetches the deferred-request backlog.
type QueueStatsRequest struct{}

// QueueStatsResponse reports queue depth per priority.
type QueueStatsResponse struct {
	Depths map[int]int64 `json:"depths"`
	Total  int64         `json:"total"`
}

// QueueDrainRequest removes queued requests, highest priority first. A Max
// of zero or less drains the whole backlog.
type QueueDrainRequest struct {
	Max int `json:"max"`
}

// QueueEntry describes one drained request.
type QueueEntry struct {
	ID       string `json:"id"`
	User     string `json:"user"`
	Endpoint string `json:"endpoint"`
	Priority int    `json:"priority"`
	QueuedAt string `json:"queued_at"`
}

// QueueDrainResponse lists the drained requests.
type QueueDrainResponse struct {
	Entries []QueueEntry `json:"entries"`
}

// TestNotificationRequest triggers a notification test.
type TestNotificationRequest struct{}

// TestNotificationResponse reports the notification test outcome.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
