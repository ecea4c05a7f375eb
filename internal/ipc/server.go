package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"strings"
	"sync"
	"time"

	"log/slog"

	"podmill/internal/daemon"
	"podmill/internal/jobs"
	"podmill/internal/logging"
)

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	daemon    *daemon.Daemon
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logger, ctx: ctx}
	if err := rpcServer.RegisterName("Podmill", srv); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		daemon:    d,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "ipc_accept_failed"),
					logging.String("impact", "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "Check socket permissions and restart the daemon if needed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "ipc_socket_cleanup_failed"),
			logging.String("impact", "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "Remove the socket file manually or rerun podmill stop"))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) log() *slog.Logger {
	if s.logger == nil {
		return logging.NewNop()
	}
	return s.logger.With(logging.String("component", "ipc"))
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	resp.Status = s.daemon.Status(s.ctx)
	return nil
}

// Stop schedules the shutdown rather than performing it, so the response
// reaches the client before the socket goes away.
func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.log().Debug("daemon stop requested")
	s.daemon.RequestStop()
	resp.Stopping = true
	s.log().Info("daemon stop scheduled via IPC",
		logging.String(logging.FieldEventType, "daemon_stop"))
	return nil
}

func (s *service) JobsList(req JobsListRequest, resp *JobsListResponse) error {
	resp.Jobs = s.daemon.Jobs(req.Active)
	return nil
}

func (s *service) JobGet(req JobGetRequest, resp *JobGetResponse) error {
	id := strings.TrimSpace(req.ID)
	if id == "" {
		return errors.New("job get requires an id")
	}
	job, archived, err := s.daemon.JobDetail(s.ctx, id)
	if err != nil {
		return err
	}
	if job == nil {
		return fmt.Errorf("job %s not found", id)
	}
	resp.Job = *job
	resp.Archived = archived
	return nil
}

func (s *service) JobCancel(req JobCancelRequest, resp *JobCancelResponse) error {
	id := strings.TrimSpace(req.ID)
	if id == "" {
		return errors.New("job cancel requires an id")
	}
	s.log().Debug("job cancel requested", logging.String(logging.FieldJobID, id))
	if err := s.daemon.CancelJob(id); err != nil {
		if errors.Is(err, jobs.ErrFinished) {
			resp.Cancelled = false
			resp.Message = "job already finished"
			return nil
		}
		return err
	}
	resp.Cancelled = true
	resp.Message = "job cancelled"
	s.log().Info("job cancelled via IPC",
		logging.String(logging.FieldEventType, "job_cancel"),
		logging.String(logging.FieldJobID, id))
	return nil
}

func (s *service) JobsCleanup(_ JobsCleanupRequest, resp *JobsCleanupResponse) error {
	s.log().Debug("job cleanup requested")
	removed := s.daemon.CleanupJobs()
	resp.Removed = removed
	s.log().Info("job registry swept via IPC",
		logging.String(logging.FieldEventType, "jobs_cleanup"),
		logging.Int("removed_count", removed))
	return nil
}

func (s *service) QueueStats(_ QueueStatsRequest, resp *QueueStatsResponse) error {
	stats, err := s.daemon.QueueStats(s.ctx)
	if err != nil {
		return err
	}
	resp.Depths = stats.Depths
	resp.Total = stats.Total
	return nil
}

func (s *service) QueueDrain(req QueueDrainRequest, resp *QueueDrainResponse) error {
	s.log().Debug("queue drain requested", logging.Int("max", req.Max))
	drained, err := s.daemon.DrainQueue(s.ctx, req.Max)
	if err != nil {
		return err
	}
	resp.Entries = make([]QueueEntry, 0, len(drained))
	for _, entry := range drained {
		resp.Entries = append(resp.Entries, QueueEntry{
			ID:       entry.ID,
			User:     entry.User,
			Endpoint: entry.Endpoint,
			Priority: entry.Priority,
			QueuedAt: entry.QueuedAt.UTC().Format(time.RFC3339),
		})
	}
	s.log().Info("queue drained via IPC",
		logging.String(logging.FieldEventType, "queue_drain"),
		logging.Int("drained_count", len(resp.Entries)))
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	sent, message, err := s.daemon.TestNotification(s.ctx)
	resp.Sent = sent
	resp.Message = message
	return err
}
