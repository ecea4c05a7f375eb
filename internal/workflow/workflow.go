package workflow

import (
	"io"
	"math"
	"strings"
	"time"

	"podmill/internal/contentgen"
	"podmill/internal/docstore"
	"podmill/internal/storage"
	"podmill/internal/transcribe"
)

// Pipeline stage names, used in logs, metrics, and error context. The four
// reported stages match the fields of StepsCompleted; download only appears
// on the background path, between upload and transcription.
const (
	StageUpload        = "upload"
	StageDownload      = "download"
	StageTranscription = "transcription"
	StageGeneration    = "seo_generation"
	StageSave          = "document_save"
)

// Request describes one uploaded episode. Size may be zero when the caller
// does not know the payload length up front.
type Request struct {
	UserID      string
	Workspace   string
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// StepsCompleted reports which pipeline stages finished. On failure the
// flags up to the failed stage stay true, so callers can see exactly where
// the run stopped without discarding earlier outputs.
type StepsCompleted struct {
	Upload        bool `json:"upload"`
	Transcription bool `json:"transcription"`
	SEOGeneration bool `json:"seo_generation"`
	DocumentSave  bool `json:"document_save"`
}

// TranscriptionSummary condenses a transcript for the processing response;
// the full word list lives in the saved document.
type TranscriptionSummary struct {
	TranscriptLength int    `json:"transcript_length"`
	WordCount        int    `json:"word_count"`
	SpeakersDetected int    `json:"speakers_detected"`
	Model            string `json:"model,omitempty"`
}

// ContentSummary condenses the generated content suite for the processing
// response.
type ContentSummary struct {
	SEOTitle          string   `json:"seo_title"`
	ShowNotesCount    int      `json:"show_notes_count"`
	BlogPostGenerated bool     `json:"blog_post_generated"`
	SocialPlatforms   []string `json:"social_platforms"`
}

// SaveInfo identifies where the workflow document landed.
type SaveInfo struct {
	DocID      string `json:"doc_id"`
	Collection string `json:"collection"`
}

// Result is the synchronous processing response. Summaries for completed
// stages are always present, even when a later stage failed.
type Result struct {
	Success        bool                  `json:"success"`
	DocID          string                `json:"doc_id,omitempty"`
	ProcessingTime float64               `json:"processing_time"`
	StepsCompleted StepsCompleted        `json:"steps_completed"`
	Storage        *storage.Object       `json:"storage_info,omitempty"`
	Transcription  *TranscriptionSummary `json:"transcription_info,omitempty"`
	Content        *ContentSummary       `json:"seo_info,omitempty"`
	Save           *SaveInfo             `json:"save_info,omitempty"`
	Document       *docstore.Document    `json:"saved_document,omitempty"`
	Error          string                `json:"error,omitempty"`
}

// Submission is the background-path acceptance response: the upload is done,
// everything else runs detached under the returned job.
type Submission struct {
	JobID    string         `json:"job_id"`
	UploadID string         `json:"upload_id"`
	Object   storage.Object `json:"storage_info"`
	Message  string         `json:"message"`
}

func summarizeTranscript(t transcribe.Transcript) *TranscriptionSummary {
	return &TranscriptionSummary{
		TranscriptLength: len(t.Text),
		WordCount:        t.WordCount,
		SpeakersDetected: t.SpeakerCount,
		Model:            t.Model,
	}
}

func summarizeContent(c contentgen.Content) *ContentSummary {
	return &ContentSummary{
		SEOTitle:          c.SEOTitle,
		ShowNotesCount:    len(c.ShowNotes),
		BlogPostGenerated: c.BlogPost != nil,
		SocialPlatforms:   socialPlatforms(c.SocialMedia),
	}
}

// socialPlatforms lists the platforms the model actually wrote a post for.
func socialPlatforms(p *contentgen.SocialMediaPosts) []string {
	platforms := []string{}
	if p == nil {
		return platforms
	}
	for _, entry := range []struct {
		name string
		post string
	}{
		{"twitter", p.Twitter},
		{"instagram", p.Instagram},
		{"tiktok", p.TikTok},
		{"linkedin", p.LinkedIn},
	} {
		if strings.TrimSpace(entry.post) != "" {
			platforms = append(platforms, entry.name)
		}
	}
	return platforms
}

func roundSeconds(d time.Duration) float64 {
	return math.Round(d.Seconds()*100) / 100
}
