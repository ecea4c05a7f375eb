package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"podmill/internal/config"
	"podmill/internal/jobs"
	"podmill/internal/logging"
	"podmill/internal/notify"
	"podmill/internal/ratelimit"
	"podmill/internal/staging"
)

const alertPollInterval = time.Minute

// Status is a point-in-time view of the daemon for the control socket.
type Status struct {
	Running       bool          `json:"running"`
	PID           int           `json:"pid"`
	Bind          string        `json:"bind"`
	StartedAt     time.Time     `json:"started_at,omitempty"`
	UptimeSeconds int64         `json:"uptime_seconds"`
	LockPath      string        `json:"lock_path"`
	ArchivePath   string        `json:"archive_path,omitempty"`
	Jobs          jobs.Stats    `json:"jobs"`
	QueueDepths   map[int]int64 `json:"queue_depths,omitempty"`
	QueueTotal    int64         `json:"queue_total"`
	Modes         Modes         `json:"modes"`
}

// Daemon supervises the assembled components: the file lock, the HTTP
// listener, the task runner, and the maintenance loops. One daemon instance
// runs per log directory.
type Daemon struct {
	cfg    *config.Config
	comps  *Components
	logger *slog.Logger

	lockPath string
	lock     *flock.Flock

	httpServer *http.Server
	boundAddr  string

	running   atomic.Bool
	startedAt time.Time

	loopCancel context.CancelFunc
	loops      sync.WaitGroup

	stopMu        sync.Mutex
	stopOnce      sync.Once
	stopRequested chan struct{}

	retention     time.Duration
	sweepInterval time.Duration
}

// New wires a daemon around assembled components.
func New(cfg *config.Config, comps *Components, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires configuration")
	}
	if comps == nil {
		return nil, errors.New("daemon requires assembled components")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := filepath.Join(cfg.Paths.LogDir, "podmilld.lock")
	return &Daemon{
		cfg:           cfg,
		comps:         comps,
		logger:        logging.NewComponentLogger(logger, "daemon"),
		lockPath:      lockPath,
		lock:          flock.New(lockPath),
		stopRequested: make(chan struct{}),
		retention:     time.Duration(cfg.Jobs.RetentionHours) * time.Hour,
		sweepInterval: time.Duration(cfg.Jobs.CleanupIntervalMinutes) * time.Minute,
	}, nil
}

// Start acquires the daemon lock, binds the HTTP listener, and launches the
// maintenance loops. It returns once the daemon is serving.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another podmill daemon instance is already running")
	}

	listener, err := net.Listen("tcp", d.cfg.Server.Bind)
	if err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("bind %s: %w", d.cfg.Server.Bind, err)
	}
	d.boundAddr = listener.Addr().String()

	d.httpServer = &http.Server{
		Handler: d.comps.Server.Router(),
		// Header timeout only. Uploads and synchronous pipeline runs hold
		// the request open far longer than any whole-request deadline.
		ReadHeaderTimeout: time.Duration(d.cfg.Server.RequestTimeout) * time.Second,
	}
	srv := d.httpServer
	go func() {
		if serveErr := srv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			d.logger.Error("http server stopped", logging.Error(serveErr))
		}
	}()

	loopCtx, cancel := context.WithCancel(context.Background())
	d.loopCancel = cancel
	d.loops.Add(3)
	go func() {
		defer d.loops.Done()
		d.comps.Sweeper.Run(loopCtx)
	}()
	go func() {
		defer d.loops.Done()
		d.stagingLoop(loopCtx)
	}()
	go func() {
		defer d.loops.Done()
		d.alertLoop(loopCtx)
	}()

	d.startedAt = time.Now()
	d.running.Store(true)
	d.logger.Info("daemon started",
		logging.String("bind", d.boundAddr),
		logging.String("lock", d.lockPath))
	return nil
}

// stagingLoop removes stale and orphaned staging directories on the job
// cleanup cadence.
func (d *Daemon) stagingLoop(ctx context.Context) {
	interval := d.sweepInterval
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			staging.CleanStale(ctx, d.cfg.Paths.StagingDir, d.retention, d.logger)
			staging.CleanOrphaned(ctx, d.cfg.Paths.StagingDir, d.comps.Tracker.ActiveIDs(), d.logger)
		}
	}
}

// alertLoop feeds collector snapshots and queue depth to the alerter.
func (d *Daemon) alertLoop(ctx context.Context) {
	ticker := time.NewTicker(alertPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := d.comps.Collector.Snapshot()
			depth := 0
			if stats, err := d.comps.Limiter.QueueStats(ctx); err == nil {
				depth = int(stats.Total)
			}
			d.comps.Alerter.Check(ctx, snap, depth)
		}
	}
}

// Stop drains the HTTP listener, stops the runner, waits for the maintenance
// loops, and releases the daemon lock. The context bounds the HTTP and
// runner shutdown.
func (d *Daemon) Stop(ctx context.Context) error {
	d.stopMu.Lock()
	defer d.stopMu.Unlock()
	if !d.running.Load() {
		return nil
	}

	var firstErr error
	if d.httpServer != nil {
		if err := d.httpServer.Shutdown(ctx); err != nil {
			firstErr = err
			_ = d.httpServer.Close()
		}
		d.httpServer = nil
	}
	if err := d.comps.Runner.Stop(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	if d.loopCancel != nil {
		d.loopCancel()
		d.loopCancel = nil
	}
	d.loops.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("daemon stopped")
	return firstErr
}

// RequestStop asks the daemon to shut down. The goroutine driving the daemon
// watches StopRequested and performs the actual Stop, so the control socket
// can acknowledge the request before the socket goes away.
func (d *Daemon) RequestStop() {
	d.stopOnce.Do(func() { close(d.stopRequested) })
}

// StopRequested closes once RequestStop has been called.
func (d *Daemon) StopRequested() <-chan struct{} {
	return d.stopRequested
}

// Close stops the daemon and releases component connections.
func (d *Daemon) Close(ctx context.Context) error {
	err := d.Stop(ctx)
	if closeErr := d.comps.Close(ctx); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

// Addr reports the bound listener address once Start has returned. It
// resolves the port when the configuration binds port zero.
func (d *Daemon) Addr() string { return d.boundAddr }

// Status reports a point-in-time view of the daemon.
func (d *Daemon) Status(ctx context.Context) Status {
	st := Status{
		Running:  d.running.Load(),
		PID:      os.Getpid(),
		Bind:     d.boundAddr,
		LockPath: d.lockPath,
		Jobs:     d.comps.Tracker.Stats(),
		Modes:    d.comps.Modes,
	}
	if st.Running {
		st.StartedAt = d.startedAt
		st.UptimeSeconds = int64(time.Since(d.startedAt) / time.Second)
	}
	if d.comps.Archive != nil {
		st.ArchivePath = d.comps.Archive.Path()
	}
	if stats, err := d.comps.Limiter.QueueStats(ctx); err == nil {
		st.QueueDepths = stats.Depths
		st.QueueTotal = stats.Total
	} else {
		d.logger.Debug("queue stats unavailable", logging.Error(err))
	}
	return st
}

// Jobs lists tracked jobs for the control socket, newest first.
func (d *Daemon) Jobs(activeOnly bool) []jobs.Job {
	return d.comps.Tracker.List(activeOnly)
}

// JobDetail looks a job up in the tracker, falling back to the archive for
// jobs the retention sweep already removed. The flag reports whether the
// archive answered. A nil job with a nil error means the ID is unknown.
func (d *Daemon) JobDetail(ctx context.Context, id string) (*jobs.Job, bool, error) {
	if job, ok := d.comps.Tracker.Get(id); ok {
		return &job, false, nil
	}
	if d.comps.Archive == nil {
		return nil, false, nil
	}
	job, err := d.comps.Archive.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if job == nil {
		return nil, false, nil
	}
	return job, true, nil
}

// CancelJob cancels a job on the operator's behalf, regardless of owner.
func (d *Daemon) CancelJob(id string) error {
	job, ok := d.comps.Tracker.Get(id)
	if !ok {
		return jobs.ErrNotFound
	}
	return d.comps.Tracker.Cancel(id, job.UserID)
}

// CleanupJobs removes terminal jobs older than the retention window and
// reports how many were dropped.
func (d *Daemon) CleanupJobs() int {
	return d.comps.Tracker.Cleanup(d.retention)
}

// QueueStats reports the deferred-request backlog per priority.
func (d *Daemon) QueueStats(ctx context.Context) (ratelimit.QueueStats, error) {
	return d.comps.Limiter.QueueStats(ctx)
}

// DrainQueue dequeues up to max deferred requests, highest priority first.
// A max of zero or less drains the whole backlog.
func (d *Daemon) DrainQueue(ctx context.Context, max int) ([]ratelimit.QueuedRequest, error) {
	var drained []ratelimit.QueuedRequest
	for max <= 0 || len(drained) < max {
		req, err := d.comps.Limiter.Dequeue(ctx)
		if err != nil {
			return drained, err
		}
		if req == nil {
			break
		}
		drained = append(drained, *req)
	}
	return drained, nil
}

// TestNotification pushes a test event through the notifier so operators can
// verify their ntfy topic.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.comps.Notifier.Publish(ctx, notify.EventTest, nil); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}
