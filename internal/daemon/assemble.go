package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"podmill/internal/auth"
	"podmill/internal/cache"
	"podmill/internal/config"
	"podmill/internal/contentgen"
	"podmill/internal/dispatch"
	"podmill/internal/docstore"
	"podmill/internal/jobs"
	"podmill/internal/logging"
	"podmill/internal/monitor"
	"podmill/internal/notify"
	"podmill/internal/ratelimit"
	"podmill/internal/resilience"
	"podmill/internal/server"
	"podmill/internal/storage"
	"podmill/internal/transcribe"
	"podmill/internal/workflow"
)

// Modes records which implementation each swappable component ended up with,
// for status output and log lines.
type Modes struct {
	Limits      string `json:"limits"`      // "redis" or "memory"
	Documents   string `json:"documents"`   // "mongo" or "memory"
	Transcriber string `json:"transcriber"` // "vendor" or "fake"
	Generator   string `json:"generator"`   // "vendor" or "fake"
	Runner      string `json:"runner"`      // "inprocess" or "amqp"
	Notify      string `json:"notify"`      // "ntfy" or "off"
}

// Components holds everything Assemble builds. The daemon owns the lifecycle;
// Close releases the external connections once the daemon has stopped.
type Components struct {
	Cfg *config.Config

	Redis   *redis.Client        // nil when limits and cache run in process
	Mongo   *docstore.MongoStore // nil when documents are held in memory
	Archive *jobs.Archive

	Tracker     *jobs.Tracker
	Sweeper     *jobs.Sweeper
	Limiter     *ratelimit.Limiter
	Cache       *cache.Manager
	Documents   docstore.Store
	Store       storage.Store
	Transcriber transcribe.Transcriber
	Generator   contentgen.Generator
	Collector   *monitor.Collector
	Alerter     *monitor.Alerter
	Notifier    notify.Service
	Verifier    auth.Verifier
	Registry    *resilience.Registry
	Throttle    *ratelimit.Throttler

	Orchestrator *workflow.Orchestrator
	Runner       dispatch.Runner
	Server       *server.Server

	Modes Modes
}

// Assemble builds the full processing stack from configuration. Connections
// named in the config must be reachable; an unset Redis URL, Mongo URI, or
// vendor API key selects the in-process implementation instead, which keeps
// embedded and test setups self-contained.
func Assemble(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Components, error) {
	if cfg == nil {
		return nil, errors.New("daemon assembly requires configuration")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}
	log := logging.NewComponentLogger(logger, "daemon")

	comps := &Components{Cfg: cfg}
	assembled := false
	defer func() {
		if !assembled {
			comps.Close(context.Background())
		}
	}()

	var backend ratelimit.Backend
	var cacheStore cache.Store
	if url := strings.TrimSpace(cfg.Redis.URL); url != "" {
		client, err := ratelimit.Connect(ctx, url, time.Duration(cfg.Redis.DialTimeout)*time.Second)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		comps.Redis = client
		backend = ratelimit.NewRedisBackend(client)
		cacheStore = cache.NewRedisStore(client)
		comps.Modes.Limits = "redis"
	} else {
		log.Warn("redis url not set, rate limits and cache are per-process")
		backend = ratelimit.NewMemoryBackend()
		cacheStore = cache.NewMemoryStore()
		comps.Modes.Limits = "memory"
	}
	comps.Limiter = ratelimit.New(backend, cfg.Limits.FailOpen, logger,
		ratelimit.WithQueueTTL(time.Duration(cfg.Limits.QueueTTLSeconds)*time.Second))
	comps.Cache = cache.New(cacheStore, logger)

	if uri := strings.TrimSpace(cfg.Mongo.URI); uri != "" {
		connectCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.Mongo.ConnectTimeout)*time.Second)
		client, err := docstore.Connect(connectCtx, uri)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		store, err := docstore.NewMongo(client, logger,
			docstore.WithMongoNamespace(cfg.Mongo.Database, cfg.Mongo.Collection))
		if err != nil {
			_ = client.Disconnect(context.Background())
			return nil, err
		}
		comps.Mongo = store
		comps.Documents = store
		comps.Modes.Documents = "mongo"
	} else {
		log.Warn("mongo uri not set, documents are held in process memory")
		comps.Documents = docstore.NewMemory()
		comps.Modes.Documents = "memory"
	}

	if key := strings.TrimSpace(cfg.Transcriber.APIKey); key != "" {
		comps.Transcriber = transcribe.NewClient(transcribe.Config{
			APIKey:  key,
			BaseURL: cfg.Transcriber.BaseURL,
			Model:   cfg.Transcriber.Model,
		}, logger)
		comps.Modes.Transcriber = "vendor"
	} else {
		log.Warn("transcriber api key not set, using the scripted fake")
		comps.Transcriber = transcribe.NewFake()
		comps.Modes.Transcriber = "fake"
	}
	if key := strings.TrimSpace(cfg.ContentGen.APIKey); key != "" {
		comps.Generator = contentgen.NewClient(contentgen.Config{
			APIKey:         key,
			BaseURL:        cfg.ContentGen.BaseURL,
			Model:          cfg.ContentGen.Model,
			TimeoutSeconds: cfg.ContentGen.TimeoutSeconds,
		}, logger)
		comps.Modes.Generator = "vendor"
	} else {
		log.Warn("contentgen api key not set, using the scripted fake")
		comps.Generator = contentgen.NewFake()
		comps.Modes.Generator = "fake"
	}

	trackerOpts := []jobs.TrackerOption{}
	if path := strings.TrimSpace(cfg.Jobs.ArchiveDB); path != "" {
		archive, err := jobs.OpenArchive(path)
		if err != nil {
			return nil, fmt.Errorf("open job archive: %w", err)
		}
		comps.Archive = archive
		trackerOpts = append(trackerOpts, jobs.WithArchive(archive))
	}
	comps.Tracker = jobs.NewTracker(logger, trackerOpts...)
	comps.Sweeper = jobs.NewSweeper(comps.Tracker, comps.Archive,
		time.Duration(cfg.Jobs.CleanupIntervalMinutes)*time.Minute,
		time.Duration(cfg.Jobs.RetentionHours)*time.Hour,
		logger)

	store, err := storage.NewLocal(cfg.Storage.DataDir, cfg.Storage.BaseURL,
		[]byte(cfg.Storage.SigningSecret), logger,
		storage.WithMaxBytes(int64(cfg.Storage.MaxFileSizeMB)<<20),
		storage.WithURLTTL(time.Duration(cfg.Storage.URLTTLDays)*24*time.Hour))
	if err != nil {
		return nil, err
	}
	comps.Store = store

	comps.Collector = monitor.NewCollector()
	comps.Notifier = notify.NewService(cfg)
	comps.Modes.Notify = "off"
	if strings.TrimSpace(cfg.Notifications.NtfyTopic) != "" {
		comps.Modes.Notify = "ntfy"
	}
	comps.Alerter = monitor.NewAlerter(monitor.Thresholds{}, comps.Notifier, logger)
	comps.Registry = resilience.NewRegistry(logger)
	comps.Throttle = ratelimit.NewThrottler()
	comps.Verifier = auth.NewJWTVerifier(cfg.Auth.JWTSecret)

	orch, err := workflow.New(cfg, workflow.Deps{
		Storage:     comps.Store,
		Transcriber: comps.Transcriber,
		Generator:   comps.Generator,
		Documents:   comps.Documents,
		Tracker:     comps.Tracker,
		Executors:   comps.Registry,
		Throttle:    comps.Throttle,
		Cache:       comps.Cache,
		Collector:   comps.Collector,
		Notifier:    comps.Notifier,
	}, logger)
	if err != nil {
		return nil, err
	}
	comps.Orchestrator = orch

	switch runner := strings.TrimSpace(strings.ToLower(cfg.Pipeline.Runner)); runner {
	case "", "inprocess":
		comps.Runner = dispatch.NewPool(cfg.Pipeline.Workers, orch.Process, logger)
		comps.Modes.Runner = "inprocess"
	case "amqp":
		broker, err := dispatch.NewBroker(cfg.RabbitMQ, cfg.Pipeline.Workers, orch.Process, logger)
		if err != nil {
			return nil, err
		}
		comps.Runner = broker
		comps.Modes.Runner = "amqp"
	default:
		return nil, fmt.Errorf("unknown pipeline runner %q", cfg.Pipeline.Runner)
	}
	orch.SetRunner(comps.Runner)

	srv, err := server.New(cfg, server.Deps{
		Orchestrator: orch,
		Tracker:      comps.Tracker,
		Documents:    comps.Documents,
		Storage:      comps.Store,
		Verifier:     comps.Verifier,
		Limiter:      comps.Limiter,
		Cache:        comps.Cache,
		Collector:    comps.Collector,
	}, logger)
	if err != nil {
		return nil, err
	}
	comps.Server = srv

	log.Info("components assembled",
		logging.String("limits", comps.Modes.Limits),
		logging.String("documents", comps.Modes.Documents),
		logging.String("transcriber", comps.Modes.Transcriber),
		logging.String("generator", comps.Modes.Generator),
		logging.String("runner", comps.Modes.Runner))
	assembled = true
	return comps, nil
}

// Close releases external connections. Safe on a partially assembled set and
// after the daemon already stopped the runner.
func (c *Components) Close(ctx context.Context) error {
	var firstErr error
	if c.Runner != nil {
		if err := c.Runner.Stop(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if c.Archive != nil {
		if err := c.Archive.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if c.Mongo != nil {
		if err := c.Mongo.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
