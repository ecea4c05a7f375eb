// Package docstore persists completed workflow results as podcast documents
// and serves them back for the documents API. MongoStore is the production
// implementation; MemoryStore backs tests and development mode.
package docstore

import (
	"context"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"podmill/internal/contentgen"
	"podmill/internal/services"
	"podmill/internal/transcribe"
)

const (
	// DefaultDatabase is the database documents live in.
	DefaultDatabase = "podmill"
	// DefaultCollection is the collection for workflow documents.
	DefaultCollection = "podcasts"
	// MaxBatchSize caps how many documents one batch round trip may carry.
	MaxBatchSize = 500
	// DefaultListLimit bounds ListForUser when the caller passes no limit.
	DefaultListLimit = 50
)

// Document is one completed workflow record: where the audio lives, what was
// transcribed, and what content was generated from it.
type Document struct {
	ID            string                `bson:"_id,omitempty" json:"doc_id"`
	UserID        string                `bson:"user_id" json:"user_id"`
	WorkspaceID   string                `bson:"workspace_id,omitempty" json:"workspace_id,omitempty"`
	UploadID      string                `bson:"upload_id,omitempty" json:"upload_id,omitempty"`
	Filename      string                `bson:"filename" json:"filename"`
	AudioURL      string                `bson:"audio_url" json:"audio_url"`
	StoragePath   string                `bson:"storage_path" json:"storage_path"`
	FileSize      int64                 `bson:"file_size" json:"file_size"`
	Transcription transcribe.Transcript `bson:"transcription" json:"transcription"`
	Content       contentgen.Content    `bson:"seo_content" json:"seo_content"`
	CreatedAt     time.Time             `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time             `bson:"updated_at" json:"updated_at"`
}

// Store persists and retrieves workflow documents. Save is an upsert keyed by
// document ID so a retried save lands exactly once; batch operations are
// chunked to MaxBatchSize per round trip.
type Store interface {
	Save(ctx context.Context, doc Document) (string, error)
	Get(ctx context.Context, id string) (Document, error)
	ListForUser(ctx context.Context, userID string, limit int) ([]Document, error)
	Delete(ctx context.Context, id string) error
	BatchSave(ctx context.Context, docs []Document) ([]string, error)
	BatchGet(ctx context.Context, ids []string) ([]Document, error)
	Ping(ctx context.Context) error
}

// NewID returns a new document ID. ULIDs sort by creation time, which keeps
// newest-first listings a plain ID sort.
func NewID() string {
	return ulid.Make().String()
}

func validateDocument(doc Document) error {
	if strings.TrimSpace(doc.UserID) == "" {
		return services.Wrap(services.ErrValidation, "persistence", "save", "document user ID required", nil)
	}
	if strings.TrimSpace(doc.Filename) == "" {
		return services.Wrap(services.ErrValidation, "persistence", "save", "document filename required", nil)
	}
	return nil
}

// batchChunks yields [start, end) bounds over n items in MaxBatchSize steps.
func batchChunks(n int) [][2]int {
	if n <= 0 {
		return nil
	}
	bounds := make([][2]int, 0, (n+MaxBatchSize-1)/MaxBatchSize)
	for start := 0; start < n; start += MaxBatchSize {
		end := start + MaxBatchSize
		if end > n {
			end = n
		}
		bounds = append(bounds, [2]int{start, end})
	}
	return bounds
}
