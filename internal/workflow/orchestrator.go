package workflow

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

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
	"podmill/internal/services"
	"podmill/internal/staging"
	"podmill/internal/storage"
	"podmill/internal/textutil"
	"podmill/internal/transcribe"
)

// uploadCacheTTL bounds how long a finished upload short-circuits a repeat
// of the same file from the same user.
const uploadCacheTTL = 5 * time.Minute

// Deps bundles the orchestrator's collaborators. Storage, Transcriber,
// Generator, Documents, and Tracker are required; the rest degrade to no-ops
// when absent.
type Deps struct {
	Storage     storage.Store
	Transcriber transcribe.Transcriber
	Generator   contentgen.Generator
	Documents   docstore.Store
	Tracker     *jobs.Tracker
	Runner      dispatch.Runner
	Executors   *resilience.Registry
	Throttle    *ratelimit.Throttler
	Cache       *cache.Manager
	Collector   *monitor.Collector
	Notifier    notify.Service
}

// Orchestrator coordinates the processing pipeline over its collaborators.
type Orchestrator struct {
	logger      *slog.Logger
	store       storage.Store
	transcriber transcribe.Transcriber
	generator   contentgen.Generator
	documents   docstore.Store
	tracker     *jobs.Tracker
	runner      dispatch.Runner
	executors   *resilience.Registry
	throttle    *ratelimit.Throttler
	cache       *cache.Manager
	collector   *monitor.Collector
	notifier    notify.Service
	stagingDir  string
	now         func() time.Time
}

// Option adjusts optional Orchestrator behavior.
type Option func(*Orchestrator)

// WithClock overrides the orchestrator's time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// New builds an orchestrator. Vendor executors default to the standard
// registry when none is supplied.
func New(cfg *config.Config, deps Deps, logger *slog.Logger, opts ...Option) (*Orchestrator, error) {
	switch {
	case deps.Storage == nil:
		return nil, services.Wrap(services.ErrConfiguration, "", "init", "workflow requires an object store", nil)
	case deps.Transcriber == nil:
		return nil, services.Wrap(services.ErrConfiguration, "", "init", "workflow requires a transcriber", nil)
	case deps.Generator == nil:
		return nil, services.Wrap(services.ErrConfiguration, "", "init", "workflow requires a content generator", nil)
	case deps.Documents == nil:
		return nil, services.Wrap(services.ErrConfiguration, "", "init", "workflow requires a document store", nil)
	case deps.Tracker == nil:
		return nil, services.Wrap(services.ErrConfiguration, "", "init", "workflow requires a job tracker", nil)
	}
	componentLogger := logging.NewComponentLogger(logger, "workflow")
	executors := deps.Executors
	if executors == nil {
		executors = resilience.NewRegistry(componentLogger)
	}
	stagingDir := ""
	if cfg != nil {
		stagingDir = strings.TrimSpace(cfg.Paths.StagingDir)
	}
	o := &Orchestrator{
		logger:      componentLogger,
		store:       deps.Storage,
		transcriber: deps.Transcriber,
		generator:   deps.Generator,
		documents:   deps.Documents,
		tracker:     deps.Tracker,
		runner:      deps.Runner,
		executors:   executors,
		throttle:    deps.Throttle,
		cache:       deps.Cache,
		collector:   deps.Collector,
		notifier:    deps.Notifier,
		stagingDir:  stagingDir,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// SetRunner installs the background runner after construction. The runner's
// worker loop calls Process, so the daemon builds the orchestrator first and
// binds the runner here before serving requests.
func (o *Orchestrator) SetRunner(runner dispatch.Runner) {
	o.runner = runner
}

// Run processes one episode synchronously: upload, transcribe, generate,
// save. Failures are reported in the Result rather than returned, so the
// caller always receives the outputs of the stages that finished.
func (o *Orchestrator) Run(ctx context.Context, req Request) Result {
	start := o.now()
	logger := o.logger.With(logging.String(logging.FieldUserID, req.UserID))
	var result Result

	if err := validateRequest(req); err != nil {
		return o.finishRun(logger, result, start, err)
	}

	var obj storage.Object
	err := o.runStage(ctx, logger, StageUpload, func(ctx context.Context) error {
		var stageErr error
		obj, stageErr = o.uploadStage(ctx, logger, req)
		return stageErr
	})
	if err != nil {
		return o.finishRun(logger, result, start, err)
	}
	result.StepsCompleted.Upload = true
	result.Storage = &obj

	audioPath, cleanup, err := o.stageAudio(ctx, "run-"+runEntropy(), obj.Path)
	if err != nil {
		return o.finishRun(logger, result, start, err)
	}
	defer cleanup()

	var transcript transcribe.Transcript
	err = o.runStage(ctx, logger, StageTranscription, func(ctx context.Context) error {
		var stageErr error
		transcript, stageErr = o.transcribeStage(ctx, audioPath, req.Filename, req.ContentType)
		return stageErr
	})
	if err != nil {
		return o.finishRun(logger, result, start, err)
	}
	result.StepsCompleted.Transcription = true
	result.Transcription = summarizeTranscript(transcript)

	if strings.TrimSpace(transcript.Text) == "" {
		return o.finishRun(logger, result, start, errNoSpeech())
	}

	var content contentgen.Content
	err = o.runStage(ctx, logger, StageGeneration, func(ctx context.Context) error {
		var stageErr error
		content, stageErr = o.generateStage(ctx, transcript, req.Filename)
		return stageErr
	})
	if err != nil {
		return o.finishRun(logger, result, start, err)
	}
	result.StepsCompleted.SEOGeneration = true
	result.Content = summarizeContent(content)

	doc := docstore.Document{
		ID:            docstore.NewID(),
		UserID:        req.UserID,
		WorkspaceID:   req.Workspace,
		Filename:      req.Filename,
		AudioURL:      obj.URL,
		StoragePath:   obj.Path,
		FileSize:      obj.Size,
		Transcription: transcript,
		Content:       content,
	}
	var docID string
	err = o.runStage(ctx, logger, StageSave, func(ctx context.Context) error {
		var stageErr error
		docID, stageErr = o.saveStage(ctx, doc)
		return stageErr
	})
	if err != nil {
		return o.finishRun(logger, result, start, err)
	}
	result.StepsCompleted.DocumentSave = true
	result.DocID = docID
	result.Save = &SaveInfo{DocID: docID, Collection: docstore.DefaultCollection}
	result.Document = o.fetchDocument(ctx, logger, docID)

	elapsed := o.now().Sub(start)
	result.Success = true
	result.ProcessingTime = roundSeconds(elapsed)
	o.recordJob(elapsed, true)
	logger.Info("processing complete",
		logging.Args(
			logging.String("doc_id", docID),
			logging.String("filename", req.Filename),
			logging.Duration("job_duration", elapsed),
		)...)
	return result
}

func (o *Orchestrator) finishRun(logger *slog.Logger, result Result, start time.Time, err error) Result {
	elapsed := o.now().Sub(start)
	result.Success = false
	result.ProcessingTime = roundSeconds(elapsed)
	result.Error = "Workflow failed: " + failureMessage(err)
	o.recordJob(elapsed, false)
	logger.Error("processing failed",
		logging.Args(
			logging.Error(err),
			logging.Duration("job_duration", elapsed),
			logging.String(logging.FieldEventType, "job_failure"),
		)...)
	return result
}

func validateRequest(req Request) error {
	if strings.TrimSpace(req.UserID) == "" {
		return services.Wrap(services.ErrValidation, StageUpload, "validate", "user ID is required", nil)
	}
	filename := strings.TrimSpace(req.Filename)
	if filename == "" {
		return services.Wrap(services.ErrValidation, StageUpload, "validate", "filename is required", nil)
	}
	if !transcribe.SupportedFormat(filename, req.ContentType) {
		return services.Wrap(services.ErrValidation, StageUpload, "validate",
			fmt.Sprintf("unsupported audio format %q, supported: %s",
				filepath.Ext(filename), strings.Join(transcribe.SupportedFormats(), ", ")), nil)
	}
	if req.Size > transcribe.MaxAudioBytes {
		return services.Wrap(services.ErrValidation, StageUpload, "validate",
			fmt.Sprintf("file exceeds maximum size of %d MB", transcribe.MaxAudioBytes>>20), nil)
	}
	if req.Body == nil {
		return services.Wrap(services.ErrValidation, StageUpload, "validate", "empty upload", nil)
	}
	return nil
}

// runStage wraps one pipeline stage with start/complete logging and the
// stage metric.
func (o *Orchestrator) runStage(ctx context.Context, logger *slog.Logger, stage string, fn func(context.Context) error) error {
	stageStart := o.now()
	logger.Info("stage started",
		logging.Args(
			logging.String(logging.FieldStage, stage),
			logging.String(logging.FieldEventType, "stage_start"),
		)...)
	err := fn(ctx)
	elapsed := o.now().Sub(stageStart)
	o.recordStage(stage, elapsed, err)
	if err != nil {
		logger.Error("stage failed",
			logging.Args(
				logging.String(logging.FieldStage, stage),
				logging.String(logging.FieldEventType, "stage_failure"),
				logging.Duration("stage_duration", elapsed),
				logging.Error(err),
			)...)
		return err
	}
	logger.Info("stage completed",
		logging.Args(
			logging.String(logging.FieldStage, stage),
			logging.String(logging.FieldEventType, "stage_complete"),
			logging.Duration("stage_duration", elapsed),
		)...)
	return nil
}

// uploadStage saves the payload, short-circuiting through the cache when the
// same user recently uploaded a file with the same name and size. A cached
// entry is only reused if the object still exists.
func (o *Orchestrator) uploadStage(ctx context.Context, logger *slog.Logger, req Request) (storage.Object, error) {
	if o.cache != nil && req.Size > 0 {
		var cached storage.Object
		if o.cache.Get(ctx, cache.TypePodcastMetadata, uploadCacheKey(req.UserID, req.Filename, req.Size), &cached) {
			if _, err := o.store.Stat(ctx, cached.Path); err == nil {
				logger.Info("upload reused from cache",
					logging.Args(logging.String("storage_path", cached.Path))...)
				return cached, nil
			}
		}
	}
	obj, err := o.store.Save(ctx, req.UserID, req.Filename, req.ContentType, req.Body)
	if err != nil {
		return storage.Object{}, err
	}
	if o.cache != nil && obj.Size > 0 {
		o.cache.SetWithTTL(ctx, cache.TypePodcastMetadata,
			uploadCacheKey(req.UserID, req.Filename, obj.Size), obj, uploadCacheTTL)
	}
	return obj, nil
}

func uploadCacheKey(userID, filename string, size int64) string {
	return fmt.Sprintf("upload:%s:%s:%d", userID, filename, size)
}

// stageAudio copies the stored object into a private staging directory for
// the transcription call. The upload request's buffer is never reused; the
// pipeline always works from the persisted object.
func (o *Orchestrator) stageAudio(ctx context.Context, id, objectPath string) (string, func(), error) {
	dir, err := staging.Workdir(o.stagingDir, id)
	if err != nil {
		return "", nil, services.Wrap(services.ErrUnavailable, StageDownload, "stage audio", "create staging directory", err)
	}
	cleanup := func() {
		if removeErr := os.RemoveAll(dir); removeErr != nil {
			o.logger.Warn("staging cleanup failed",
				logging.Args(logging.String("path", dir), logging.Error(removeErr))...)
		}
	}

	src, err := o.store.Open(ctx, objectPath)
	if err != nil {
		cleanup()
		return "", nil, err
	}
	defer src.Close()

	dst := filepath.Join(dir, filepath.Base(objectPath))
	f, err := os.Create(dst)
	if err != nil {
		cleanup()
		return "", nil, services.Wrap(services.ErrUnavailable, StageDownload, "stage audio", "create staging file", err)
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		cleanup()
		return "", nil, services.Wrap(services.ErrUnavailable, StageDownload, "stage audio", "copy object to staging", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, services.Wrap(services.ErrUnavailable, StageDownload, "stage audio", "flush staging file", err)
	}
	return dst, cleanup, nil
}

func (o *Orchestrator) transcribeStage(ctx context.Context, audioPath, filename, contentType string) (transcribe.Transcript, error) {
	var transcript transcribe.Transcript
	err := o.vendorCall(ctx, o.executors.Transcriber, resilience.ServiceTranscriber, "transcribe", func(ctx context.Context) error {
		var callErr error
		transcript, callErr = o.transcriber.Transcribe(ctx, transcribe.Request{
			AudioPath:   audioPath,
			Filename:    filename,
			ContentType: contentType,
		})
		return callErr
	})
	return transcript, err
}

func (o *Orchestrator) generateStage(ctx context.Context, transcript transcribe.Transcript, filename string) (contentgen.Content, error) {
	var content contentgen.Content
	err := o.vendorCall(ctx, o.executors.ContentGen, resilience.ServiceContentGen, "generate", func(ctx context.Context) error {
		var callErr error
		content, callErr = o.generator.Generate(ctx, contentgen.Request{
			Transcript:   transcript.Text,
			PodcastTitle: textutil.TitleFromFilename(filename),
		})
		return callErr
	})
	return content, err
}

func (o *Orchestrator) saveStage(ctx context.Context, doc docstore.Document) (string, error) {
	var docID string
	err := o.vendorCall(ctx, o.executors.DocStore, resilience.ServiceDocStore, "save", func(ctx context.Context) error {
		var callErr error
		docID, callErr = o.documents.Save(ctx, doc)
		return callErr
	})
	return docID, err
}

// fetchDocument re-reads the just-saved document so the response carries the
// stored form. The save already succeeded, so a fetch failure only drops the
// echo from the response.
func (o *Orchestrator) fetchDocument(ctx context.Context, logger *slog.Logger, docID string) *docstore.Document {
	var doc docstore.Document
	err := o.vendorCall(ctx, o.executors.DocStore, resilience.ServiceDocStore, "get", func(ctx context.Context) error {
		var callErr error
		doc, callErr = o.documents.Get(ctx, docID)
		return callErr
	})
	if err != nil {
		logger.Warn("saved document fetch failed",
			logging.Args(logging.String("doc_id", docID), logging.Error(err))...)
		return nil
	}
	return &doc
}

// vendorCall routes one vendor operation through the per-service throttle
// and its resilience executor, recording the outcome for the metrics
// snapshot. The throttle applies per attempt so retries keep their spacing.
func (o *Orchestrator) vendorCall(ctx context.Context, executor *resilience.Executor, service, op string, fn func(context.Context) error) error {
	attempt := func(ctx context.Context) error {
		if o.throttle != nil {
			if err := o.throttle.Wait(ctx, service); err != nil {
				return err
			}
		}
		return fn(ctx)
	}
	start := o.now()
	var err error
	if executor != nil {
		err = executor.Execute(ctx, op, attempt)
	} else {
		err = attempt(ctx)
	}
	if o.collector != nil {
		o.collector.RecordVendorCall(service, o.now().Sub(start), err)
	}
	return err
}

func (o *Orchestrator) recordStage(stage string, elapsed time.Duration, err error) {
	if o.collector != nil {
		o.collector.RecordStage(stage, elapsed, err)
	}
}

func (o *Orchestrator) recordJob(elapsed time.Duration, success bool) {
	if o.collector != nil {
		o.collector.RecordJob(elapsed, success)
	}
}

func errNoSpeech() error {
	return services.Wrap(services.ErrValidation, StageTranscription, "normalize", "no speech detected in audio file", nil)
}

func failureMessage(err error) string {
	if err == nil {
		return "unknown failure"
	}
	return strings.TrimSpace(err.Error())
}

func runEntropy() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
