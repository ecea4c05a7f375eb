package daemonrun

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"podmill/internal/config"
	"podmill/internal/daemon"
	"podmill/internal/daemonctl"
	"podmill/internal/ipc"
	"podmill/internal/logging"
)

const shutdownGrace = 30 * time.Second

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the podmill daemon runtime loop. It returns when a signal
// arrives or a control socket client requests shutdown, after a graceful
// stop of the HTTP listener and the processing stack.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("podmill-%s.log", runID))
	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update podmill.log link: %v\n", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "podmill-*.log", Exclude: []string{logPath}},
	)

	pidPath := daemonctl.PIDPath(cfg.Paths.LogDir)
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	comps, err := daemon.Assemble(signalCtx, cfg, logger)
	if err != nil {
		logger.Error("assemble components", logging.Error(err))
		return err
	}

	d, err := daemon.New(cfg, comps, logger)
	if err != nil {
		_ = comps.Close(context.Background())
		return fmt.Errorf("create daemon: %w", err)
	}

	// Start before touching the socket: when another instance holds the
	// lock, failing here keeps its control socket intact.
	if err := d.Start(signalCtx); err != nil {
		_ = comps.Close(context.Background())
		logger.Error("daemon start failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_start_failed"),
			logging.String(logging.FieldErrorHint, "check configuration and whether another daemon is running"))
		return err
	}

	socketPath := daemonctl.SocketPath(cfg.Paths.LogDir)
	ipcServer, err := ipc.NewServer(signalCtx, socketPath, d, logger)
	if err != nil {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancelShutdown()
		_ = d.Close(shutdownCtx)
		return fmt.Errorf("start IPC server: %w", err)
	}
	ipcServer.Serve()

	logger.Info("podmill daemon ready",
		logging.String("bind", d.Addr()),
		logging.String("socket", socketPath),
		logging.String("log", logPath))

	select {
	case <-signalCtx.Done():
		logger.Info("signal received, shutting down")
	case <-d.StopRequested():
		logger.Info("stop requested via control socket, shutting down")
	}

	ipcServer.Close()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancelShutdown()
	if err := d.Close(shutdownCtx); err != nil {
		logger.Warn("shutdown incomplete", logging.Error(err))
	}
	logger.Info("podmill daemon stopped")
	return nil
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "podmill.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
