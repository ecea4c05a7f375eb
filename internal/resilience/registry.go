package resilience

import (
	"log/slog"
	"time"
)

// Vendor names used across breakers, executors, and metrics.
const (
	ServiceTranscriber = "transcriber"
	ServiceContentGen  = "contentgen"
	ServiceDocStore    = "docstore"
)

// Registry holds the per-vendor executors so the pipeline, health checks,
// and metrics all observe the same breakers.
type Registry struct {
	Transcriber *Executor
	ContentGen  *Executor
	DocStore    *Executor
}

// NewRegistry builds the standard vendor executors: the transcriber and
// content generator open after 3 consecutive failures and probe again after
// 30s, the document store tolerates 5 failures with a 60s recovery window.
func NewRegistry(logger *slog.Logger, opts ...ExecutorOption) *Registry {
	return &Registry{
		Transcriber: NewExecutor(
			ServiceTranscriber,
			NewBreaker(ServiceTranscriber, 3, 30*time.Second),
			TranscriberPolicy(),
			logger,
			opts...,
		),
		ContentGen: NewExecutor(
			ServiceContentGen,
			NewBreaker(ServiceContentGen, 3, 30*time.Second),
			ContentGenPolicy(),
			logger,
			opts...,
		),
		DocStore: NewExecutor(
			ServiceDocStore,
			NewBreaker(ServiceDocStore, 5, 60*time.Second),
			DocStorePolicy(),
			logger,
			opts...,
		),
	}
}

// Snapshots reports every breaker's state for health and metrics payloads.
func (r *Registry) Snapshots() []Snapshot {
	if r == nil {
		return nil
	}
	out := make([]Snapshot, 0, 3)
	for _, executor := range []*Executor{r.Transcriber, r.ContentGen, r.DocStore} {
		if executor != nil && executor.breaker != nil {
			out = append(out, executor.breaker.Snapshot())
		}
	}
	return out
}
