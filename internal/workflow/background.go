package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"podmill/internal/contentgen"
	"podmill/internal/dispatch"
	"podmill/internal/docstore"
	"podmill/internal/jobs"
	"podmill/internal/logging"
	"podmill/internal/notify"
	"podmill/internal/services"
	"podmill/internal/storage"
	"podmill/internal/transcribe"
)

// submitMessage is the acceptance text returned by the background path.
const submitMessage = "File uploaded successfully! Processing started in background."

// Submit runs the upload stage synchronously, registers a job, and hands the
// remaining stages to the background runner. The returned Submission carries
// the job to poll and the stored object.
func (o *Orchestrator) Submit(ctx context.Context, req Request) (Submission, error) {
	if o.runner == nil {
		return Submission{}, services.Wrap(services.ErrConfiguration, "dispatch", "submit", "no background runner configured", nil)
	}
	logger := o.logger.With(logging.String(logging.FieldUserID, req.UserID))
	if err := validateRequest(req); err != nil {
		return Submission{}, err
	}

	var obj storage.Object
	err := o.runStage(ctx, logger, StageUpload, func(ctx context.Context) error {
		var stageErr error
		obj, stageErr = o.uploadStage(ctx, logger, req)
		return stageErr
	})
	if err != nil {
		return Submission{}, err
	}

	uploadID := fmt.Sprintf("upload_%d_%s", o.now().Unix(), req.UserID)
	job := o.tracker.Create(jobs.CreateParams{
		UserID:    req.UserID,
		Workspace: req.Workspace,
		Filename:  req.Filename,
		UploadID:  uploadID,
		Metadata: map[string]any{
			"file_size":    obj.Size,
			"content_type": obj.ContentType,
			"storage_path": obj.Path,
		},
	})
	jobLogger := logger.With(logging.String(logging.FieldJobID, job.ID))

	task := dispatch.Task{
		JobID:       job.ID,
		UserID:      req.UserID,
		Workspace:   req.Workspace,
		UploadID:    uploadID,
		Filename:    req.Filename,
		StoragePath: obj.Path,
		AudioURL:    obj.URL,
		FileSize:    obj.Size,
		ContentType: obj.ContentType,
		SubmittedAt: o.now().UTC(),
	}
	if err := o.runner.Dispatch(ctx, task); err != nil {
		// Failed is only reachable from processing, so step through it.
		o.tracker.Update(job.ID, func(j *jobs.Job) {
			j.Status = jobs.StatusProcessing
		})
		o.tracker.Update(job.ID, func(j *jobs.Job) {
			j.Status = jobs.StatusFailed
			j.Error = "failed to schedule background processing"
		})
		jobLogger.Error("task dispatch failed", logging.Args(logging.Error(err))...)
		return Submission{}, err
	}

	jobLogger.Info("job submitted",
		logging.Args(
			logging.String("upload_id", uploadID),
			logging.String("filename", req.Filename),
			logging.Int64("file_size", obj.Size),
		)...)
	return Submission{
		JobID:    job.ID,
		UploadID: uploadID,
		Object:   obj,
		Message:  submitMessage,
	}, nil
}

// Process executes the detached stages of a submitted job: stage the stored
// object locally, transcribe, generate, save. It records the outcome on the
// tracker and returns nil even when the pipeline fails, so runners only
// retry tasks whose outcome was never recorded.
func (o *Orchestrator) Process(ctx context.Context, task dispatch.Task) error {
	start := o.now()
	logger := o.logger.With(
		logging.String(logging.FieldJobID, task.JobID),
		logging.String(logging.FieldUserID, task.UserID),
	)
	if _, ok := o.tracker.Get(task.JobID); !ok {
		// A broker can deliver tasks accepted by an earlier daemon run.
		// The document still gets saved; only progress reporting is lost.
		logger.Warn("processing task for unknown job",
			logging.Args(logging.String(logging.FieldEventType, "unknown_job"))...)
	}

	if o.jobCancelled(task.JobID, logger) {
		return nil
	}
	o.updateJob(task.JobID, jobs.StepDownloading, 10, "Downloading audio for processing")
	var audioPath string
	var cleanup func()
	err := o.runStage(ctx, logger, StageDownload, func(ctx context.Context) error {
		var stageErr error
		audioPath, cleanup, stageErr = o.stageAudio(ctx, task.JobID, task.StoragePath)
		return stageErr
	})
	if err != nil {
		return o.failJob(ctx, logger, task, start, err)
	}
	defer cleanup()

	if o.jobCancelled(task.JobID, logger) {
		return nil
	}
	o.updateJob(task.JobID, jobs.StepTranscribing, 30, "Transcribing audio")
	var transcript transcribe.Transcript
	err = o.runStage(ctx, logger, StageTranscription, func(ctx context.Context) error {
		var stageErr error
		transcript, stageErr = o.transcribeStage(ctx, audioPath, task.Filename, task.ContentType)
		return stageErr
	})
	if err != nil {
		return o.failJob(ctx, logger, task, start, err)
	}
	if strings.TrimSpace(transcript.Text) == "" {
		return o.failJob(ctx, logger, task, start, errNoSpeech())
	}

	if o.jobCancelled(task.JobID, logger) {
		return nil
	}
	o.updateJob(task.JobID, jobs.StepGeneratingContent, 60, "Generating SEO content")
	var content contentgen.Content
	err = o.runStage(ctx, logger, StageGeneration, func(ctx context.Context) error {
		var stageErr error
		content, stageErr = o.generateStage(ctx, transcript, task.Filename)
		return stageErr
	})
	if err != nil {
		return o.failJob(ctx, logger, task, start, err)
	}

	if o.jobCancelled(task.JobID, logger) {
		return nil
	}
	o.updateJob(task.JobID, jobs.StepSaving, 85, "Saving document")
	doc := docstore.Document{
		ID:            docstore.NewID(),
		UserID:        task.UserID,
		WorkspaceID:   task.Workspace,
		UploadID:      task.UploadID,
		Filename:      task.Filename,
		AudioURL:      task.AudioURL,
		StoragePath:   task.StoragePath,
		FileSize:      task.FileSize,
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
		return o.failJob(ctx, logger, task, start, err)
	}

	elapsed := o.now().Sub(start)
	o.tracker.Update(task.JobID, func(j *jobs.Job) {
		j.Status = jobs.StatusCompleted
		j.DocID = docID
		j.Message = "Processing complete"
		j.Result = map[string]any{
			"doc_id":          docID,
			"processing_time": roundSeconds(elapsed),
			"word_count":      transcript.WordCount,
		}
	})
	o.recordJob(elapsed, true)
	o.notifyEvent(ctx, notify.EventJobCompleted, notify.Payload{
		"filename": task.Filename,
		"doc_id":   docID,
	})
	logger.Info("job completed",
		logging.Args(
			logging.String("doc_id", docID),
			logging.String("filename", task.Filename),
			logging.Duration("job_duration", elapsed),
		)...)
	return nil
}

func (o *Orchestrator) failJob(ctx context.Context, logger *slog.Logger, task dispatch.Task, start time.Time, err error) error {
	message := failureMessage(err)
	o.tracker.Update(task.JobID, func(j *jobs.Job) {
		j.Status = jobs.StatusFailed
		j.Error = message
	})
	elapsed := o.now().Sub(start)
	o.recordJob(elapsed, false)
	o.notifyEvent(ctx, notify.EventJobFailed, notify.Payload{
		"filename": task.Filename,
		"error":    message,
	})
	logger.Error("job failed",
		logging.Args(
			logging.Error(err),
			logging.Duration("job_duration", elapsed),
			logging.String(logging.FieldEventType, "job_failure"),
		)...)
	return nil
}

// jobCancelled reports whether the user cancelled the job. Checked between
// stages; a running vendor call is never interrupted.
func (o *Orchestrator) jobCancelled(jobID string, logger *slog.Logger) bool {
	if !o.tracker.Cancelled(jobID) {
		return false
	}
	logger.Info("job cancelled, stopping pipeline",
		logging.Args(logging.String(logging.FieldEventType, "job_cancelled"))...)
	return true
}

func (o *Orchestrator) updateJob(jobID string, step jobs.Step, progress float64, message string) {
	o.tracker.Update(jobID, func(j *jobs.Job) {
		j.Status = jobs.StatusProcessing
		j.Step = step
		j.Progress = progress
		j.Message = message
	})
}

func (o *Orchestrator) notifyEvent(ctx context.Context, event notify.Event, payload notify.Payload) {
	if o.notifier == nil {
		return
	}
	if err := o.notifier.Publish(ctx, event, payload); err != nil {
		o.logger.Warn("notification delivery failed",
			logging.Args(logging.String("event", string(event)), logging.Error(err))...)
	}
}
