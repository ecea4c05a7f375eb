package jobs

import "errors"

// Cancellation failure modes, kept distinct so the HTTP layer can map them
// to the right status codes.
var (
	// ErrNotFound means no job with that ID is tracked.
	ErrNotFound = errors.New("job not found")
	// ErrNotOwner means the job belongs to a different user.
	ErrNotOwner = errors.New("job belongs to another user")
	// ErrFinished means the job already reached a terminal status.
	ErrFinished = errors.New("job already finished")
)
