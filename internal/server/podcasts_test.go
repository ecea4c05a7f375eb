package server_test

import (
	"net/http"
	"strings"
	"testing"

	"podmill/internal/config"
	"podmill/internal/services"
	"podmill/internal/storage"
	"podmill/internal/workflow"
)

func TestProcessPodcastSynchronous(t *testing.T) {
	f := newFixture(t)

	body, contentType := episodeForm(t, "episode.mp3", audioPayload)
	w := f.do(t, http.MethodPost, "/api/v1/podcasts/process", tokenAlice, body, contentType)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", w.Code, w.Body.String())
	}

	var result workflow.Result
	decodeBody(t, w, &result)
	if !result.Success {
		t.Fatalf("result not successful: %s", result.Error)
	}
	steps := result.StepsCompleted
	if !steps.Upload || !steps.Transcription || !steps.SEOGeneration || !steps.DocumentSave {
		t.Fatalf("unexpected steps completed: %+v", steps)
	}
	if result.DocID == "" {
		t.Fatal("expected a document ID")
	}
	if result.Document == nil || result.Document.UserID != "user-alice" {
		t.Fatalf("unexpected saved document: %+v", result.Document)
	}
	if f.documents.Len() != 1 {
		t.Fatalf("documents stored = %d, want 1", f.documents.Len())
	}
}

func TestProcessPodcastReportsStageFailure(t *testing.T) {
	f := newFixture(t)
	f.generator.Fail(services.Wrap(services.ErrUnavailable, "seo_generation", "generate", "vendor down", nil))

	body, contentType := episodeForm(t, "episode.mp3", audioPayload)
	w := f.do(t, http.MethodPost, "/api/v1/podcasts/process", tokenAlice, body, contentType)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 even on stage failure", w.Code)
	}

	var result workflow.Result
	decodeBody(t, w, &result)
	if result.Success {
		t.Fatal("expected a failed run")
	}
	if !result.StepsCompleted.Upload || !result.StepsCompleted.Transcription {
		t.Fatalf("completed stages lost: %+v", result.StepsCompleted)
	}
	if result.StepsCompleted.SEOGeneration || result.StepsCompleted.DocumentSave {
		t.Fatalf("failed stages marked complete: %+v", result.StepsCompleted)
	}
	if !strings.HasPrefix(result.Error, "Workflow failed: ") {
		t.Fatalf("error = %q", result.Error)
	}
	if result.Transcription == nil {
		t.Fatal("transcription summary should be retained")
	}
}

func TestProcessPodcastRejectsBadRequests(t *testing.T) {
	f := newFixture(t)

	// Multipart form without the file field.
	body, contentType := fieldForm(t, "attachment", "episode.mp3", audioPayload)
	w := f.do(t, http.MethodPost, "/api/v1/podcasts/process", tokenAlice, body, contentType)
	assertFailure(t, w, http.StatusBadRequest, 10002)

	// Not multipart at all.
	w = f.do(t, http.MethodPost, "/api/v1/podcasts/process", tokenAlice,
		strings.NewReader("{}"), "application/json")
	assertFailure(t, w, http.StatusBadRequest, 10001)

	if f.store.Len() != 0 {
		t.Fatalf("stored objects = %d, want 0", f.store.Len())
	}
}

func TestUploadPodcastAccepted(t *testing.T) {
	f := newFixture(t)

	body, contentType := episodeForm(t, "episode.mp3", audioPayload)
	w := f.do(t, http.MethodPost, "/api/v1/podcasts/upload", tokenAlice, body, contentType)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202 (body %s)", w.Code, w.Body.String())
	}

	var accepted struct {
		JobID     string         `json:"job_id"`
		UploadID  string         `json:"upload_id"`
		StatusURL string         `json:"status_url"`
		Message   string         `json:"message"`
		Storage   storage.Object `json:"storage_info"`
	}
	decodeBody(t, w, &accepted)
	if !strings.HasPrefix(accepted.JobID, "job_") {
		t.Fatalf("job ID = %q", accepted.JobID)
	}
	if !strings.HasPrefix(accepted.UploadID, "upload_") || !strings.HasSuffix(accepted.UploadID, "_user-alice") {
		t.Fatalf("upload ID = %q", accepted.UploadID)
	}
	if want := "/api/v1/jobs/" + accepted.JobID; accepted.StatusURL != want {
		t.Fatalf("status URL = %q, want %q", accepted.StatusURL, want)
	}
	if accepted.Message != "File uploaded successfully! Processing started in background." {
		t.Fatalf("message = %q", accepted.Message)
	}
	if accepted.Storage.Path == "" {
		t.Fatal("expected storage info in the acceptance body")
	}

	// The inline runner finished the job before the response; the status URL
	// must now report completion.
	w = f.get(t, accepted.StatusURL, tokenAlice)
	if w.Code != http.StatusOK {
		t.Fatalf("status poll = %d", w.Code)
	}
	var job struct {
		Status   string  `json:"status"`
		Progress float64 `json:"progress"`
		DocID    string  `json:"doc_id"`
	}
	decodeBody(t, w, &job)
	if job.Status != "completed" || job.Progress != 100 {
		t.Fatalf("job = %+v, want completed at 100", job)
	}
	if job.DocID == "" {
		t.Fatal("expected the job to record its document ID")
	}
}

func TestUploadPodcastRejectsUnsupportedFormat(t *testing.T) {
	f := newFixture(t)

	body, contentType := episodeForm(t, "notes.txt", "not audio")
	w := f.do(t, http.MethodPost, "/api/v1/podcasts/upload", tokenAlice, body, contentType)
	assertFailure(t, w, http.StatusBadRequest, 10001)
	if !strings.Contains(w.Body.String(), "unsupported audio format") {
		t.Fatalf("body = %s", w.Body.String())
	}
	if f.store.Len() != 0 {
		t.Fatalf("stored objects = %d, want 0", f.store.Len())
	}
}

func TestUploadPodcastRejectsOversizedFile(t *testing.T) {
	f := newFixture(t, withConfig(func(cfg *config.Config) {
		cfg.Storage.MaxFileSizeMB = 1
	}))

	oversized := strings.Repeat("x", (1<<20)+1)
	body, contentType := episodeForm(t, "episode.mp3", oversized)
	w := f.do(t, http.MethodPost, "/api/v1/podcasts/upload", tokenAlice, body, contentType)
	assertFailure(t, w, http.StatusRequestEntityTooLarge, 41301)
	if f.store.Len() != 0 {
		t.Fatalf("stored objects = %d, want 0", f.store.Len())
	}
}

func TestUploadPodcastRejectsOversizedRequest(t *testing.T) {
	f := newFixture(t, withConfig(func(cfg *config.Config) {
		cfg.Storage.MaxFileSizeMB = 1
	}))

	// Three megabytes of form exceeds the one megabyte cap plus framing
	// slack before the file part is even opened.
	oversized := strings.Repeat("x", 3<<20)
	body, contentType := episodeForm(t, "episode.mp3", oversized)
	w := f.do(t, http.MethodPost, "/api/v1/podcasts/upload", tokenAlice, body, contentType)
	assertFailure(t, w, http.StatusRequestEntityTooLarge, 41301)
}

func TestUploadPodcastWithoutRunner(t *testing.T) {
	f := newFixture(t, withWorkflow(func(d *workflow.Deps) {
		d.Runner = nil
	}))

	body, contentType := episodeForm(t, "episode.mp3", audioPayload)
	w := f.do(t, http.MethodPost, "/api/v1/podcasts/upload", tokenAlice, body, contentType)
	assertFailure(t, w, http.StatusServiceUnavailable, 50301)
	if !strings.Contains(w.Body.String(), "no background runner configured") {
		t.Fatalf("body = %s", w.Body.String())
	}
}
