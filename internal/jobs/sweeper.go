package jobs

import (
	"context"
	"log/slog"
	"time"

	"podmill/internal/logging"
)

// Sweeper periodically evicts aged jobs from the tracker and prunes the
// archive on a longer horizon.
type Sweeper struct {
	tracker       *Tracker
	archive       *Archive
	interval      time.Duration
	maxAge        time.Duration
	archiveMaxAge time.Duration
	logger        *slog.Logger
}

// NewSweeper builds a sweeper. archive may be nil. The archive horizon is
// seven times the registry retention so history outlives the sweep.
func NewSweeper(tracker *Tracker, archive *Archive, interval, maxAge time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		tracker:       tracker,
		archive:       archive,
		interval:      interval,
		maxAge:        maxAge,
		archiveMaxAge: 7 * maxAge,
		logger:        logging.NewComponentLogger(logger, "jobs-sweeper"),
	}
}

// Run blocks until ctx is done, sweeping on every interval tick.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	removed := s.tracker.Cleanup(s.maxAge)
	if s.archive == nil {
		return
	}
	pruned, err := s.archive.Prune(ctx, s.archiveMaxAge)
	if err != nil {
		s.logger.Warn("archive prune failed", logging.Error(err))
		return
	}
	if removed > 0 || pruned > 0 {
		s.logger.Debug("sweep finished",
			logging.Int("registry_removed", removed),
			logging.Int64("archive_pruned", pruned))
	}
}
