// Package storage persists uploaded podcast audio and hands out expiring
// download URLs. Objects are keyed by a slash-separated storage path of the
// form users/<user_id>/podcasts/<object>, so ownership is decidable from the
// path alone. LocalStore keeps objects on the local filesystem; MemoryStore
// is the development and test double.
package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"podmill/internal/textutil"
)

// Object describes one stored podcast upload.
type Object struct {
	Path         string    `json:"storage_path"`
	Name         string    `json:"filename"`
	OriginalName string    `json:"original_filename,omitempty"`
	Size         int64     `json:"size"`
	ContentType  string    `json:"content_type,omitempty"`
	UploadedAt   time.Time `json:"uploaded_at"`
	URL          string    `json:"public_url,omitempty"`
}

// Store is the object store contract used by the upload and download stages.
type Store interface {
	// Save streams r into the caller's podcast prefix and returns the stored
	// object, including a fresh download URL.
	Save(ctx context.Context, userID, filename, contentType string, r io.Reader) (Object, error)
	// Open returns the object contents for reading. The caller closes the reader.
	Open(ctx context.Context, objectPath string) (io.ReadCloser, error)
	// Stat returns object details without reading the payload.
	Stat(ctx context.Context, objectPath string) (Object, error)
	// Delete removes the object. Deleting an unknown path is an error.
	Delete(ctx context.Context, objectPath string) error
	// ListUser returns the user's objects, newest first, at most limit entries.
	ListUser(ctx context.Context, userID string, limit int) ([]Object, error)
	// URL returns a time-limited download URL for an existing object.
	URL(objectPath string) (string, error)
	// Ping reports whether the store is usable.
	Ping(ctx context.Context) error
}

const (
	// DefaultMaxBytes caps accepted uploads when no explicit cap is set.
	DefaultMaxBytes = 500 << 20
	// DefaultURLTTL is the download URL lifetime when no explicit TTL is set.
	DefaultURLTTL = 7 * 24 * time.Hour
	// DefaultListLimit bounds ListUser results when the caller passes no limit.
	DefaultListLimit = 100
)

// OwnedBy reports whether objectPath lives under userID's prefix.
func OwnedBy(objectPath, userID string) bool {
	return userID != "" && strings.HasPrefix(objectPath, "users/"+userID+"/")
}

// ObjectPath builds the storage path for an object name under a user's
// podcast prefix.
func ObjectPath(userID, objectName string) string {
	return path.Join("users", userID, "podcasts", objectName)
}

// ValidPath reports whether objectPath is a well-formed storage path. Paths
// that are not clean (dot segments, doubled slashes) are rejected, which
// keeps traversal out of the filesystem store.
func ValidPath(objectPath string) bool {
	if objectPath == "" || path.Clean(objectPath) != objectPath {
		return false
	}
	parts := strings.Split(objectPath, "/")
	if len(parts) != 4 {
		return false
	}
	return parts[0] == "users" && parts[1] != "" && parts[2] == "podcasts" && parts[3] != ""
}

// objectName derives a unique, filesystem-safe object name from the original
// filename: a UTC timestamp, eight characters of entropy, then the sanitized
// base name with its lowercased extension.
func objectName(now time.Time, entropy, original string) string {
	stamp := now.UTC().Format("20060102_150405")
	safe := textutil.SafeObjectName(original)
	return fmt.Sprintf("%s_%s_%s", stamp, entropy, safe)
}
