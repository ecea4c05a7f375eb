package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"podmill/internal/logging"
	"podmill/internal/notify"
)

// Thresholds are the levels above which the alerter raises alerts.
type Thresholds struct {
	// ErrorRate is the trailing-hour error-rate ceiling (fraction).
	ErrorRate float64
	// QueueDepth is the maximum tolerated queued-job count.
	QueueDepth int
	// ProcessingSeconds is the maximum tolerated average processing time.
	ProcessingSeconds float64
}

// DefaultThresholds returns the standard alert levels.
func DefaultThresholds() Thresholds {
	return Thresholds{
		ErrorRate:         healthyErrorRate,
		QueueDepth:        100,
		ProcessingSeconds: 300,
	}
}

// Alerter compares snapshots against thresholds and raises notifications.
// Repeat-alert suppression happens in the notification service, so Check can
// run on every poll tick.
type Alerter struct {
	thresholds Thresholds
	notifier   notify.Service
	logger     *slog.Logger
}

// NewAlerter builds an alerter. Zero threshold fields fall back to the
// defaults.
func NewAlerter(thresholds Thresholds, notifier notify.Service, logger *slog.Logger) *Alerter {
	defaults := DefaultThresholds()
	if thresholds.ErrorRate <= 0 {
		thresholds.ErrorRate = defaults.ErrorRate
	}
	if thresholds.QueueDepth <= 0 {
		thresholds.QueueDepth = defaults.QueueDepth
	}
	if thresholds.ProcessingSeconds <= 0 {
		thresholds.ProcessingSeconds = defaults.ProcessingSeconds
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Alerter{
		thresholds: thresholds,
		notifier:   notifier,
		logger:     logging.NewComponentLogger(logger, "monitor"),
	}
}

// Check evaluates one snapshot plus the current queue depth against the
// thresholds.
func (a *Alerter) Check(ctx context.Context, snap Snapshot, queueDepth int) {
	if rate := snap.Health.ErrorRate; rate > a.thresholds.ErrorRate {
		reason := fmt.Sprintf("error rate is %.2f%%, threshold %.2f%%", rate*100, a.thresholds.ErrorRate*100)
		a.logger.Error("system alert triggered", logging.Alert("high_error_rate"), logging.String("detail", reason))
		a.publish(ctx, notify.EventServiceDegraded, notify.Payload{
			"service": "api",
			"reason":  reason,
		})
	}

	if queueDepth > a.thresholds.QueueDepth {
		a.logger.Warn("system alert triggered",
			logging.Alert("high_queue_size"),
			logging.Int("depth", queueDepth),
			logging.Int("threshold", a.thresholds.QueueDepth))
		a.publish(ctx, notify.EventQueueBacklog, notify.Payload{
			"depth":     strconv.Itoa(queueDepth),
			"threshold": strconv.Itoa(a.thresholds.QueueDepth),
		})
	}

	if avg := snap.Health.AvgProcessingSeconds; avg > a.thresholds.ProcessingSeconds {
		reason := fmt.Sprintf("average processing time is %.1fs, threshold %.0fs", avg, a.thresholds.ProcessingSeconds)
		a.logger.Warn("system alert triggered", logging.Alert("slow_processing"), logging.String("detail", reason))
		a.publish(ctx, notify.EventServiceDegraded, notify.Payload{
			"service": "pipeline",
			"reason":  reason,
		})
	}
}

func (a *Alerter) publish(ctx context.Context, event notify.Event, payload notify.Payload) {
	if a.notifier == nil {
		return
	}
	if err := a.notifier.Publish(ctx, event, payload); err != nil {
		a.logger.Warn("alert notification delivery failed", logging.Error(err))
	}
}
