package storage

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"podmill/internal/logging"
	"podmill/internal/services"
)

const metaSuffix = ".meta.json"

// objectMeta is the sidecar record written next to each stored object.
type objectMeta struct {
	OriginalFilename string    `json:"original_filename"`
	ContentType      string    `json:"content_type"`
	UserID           string    `json:"user_id"`
	UploadedAt       time.Time `json:"uploaded_at"`
}

// LocalStore keeps objects on the local filesystem under a single root
// directory. Download URLs are signed with an HMAC token so they can be
// verified without touching the filesystem.
type LocalStore struct {
	root       string
	baseURL    string
	signingKey []byte
	maxBytes   int64
	urlTTL     time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

// LocalOption adjusts a LocalStore.
type LocalOption func(*LocalStore)

// WithMaxBytes overrides the largest accepted upload size.
func WithMaxBytes(n int64) LocalOption {
	return func(s *LocalStore) {
		if n > 0 {
			s.maxBytes = n
		}
	}
}

// WithURLTTL overrides the download URL lifetime.
func WithURLTTL(ttl time.Duration) LocalOption {
	return func(s *LocalStore) {
		if ttl > 0 {
			s.urlTTL = ttl
		}
	}
}

// WithClock overrides the store's time source.
func WithClock(now func() time.Time) LocalOption {
	return func(s *LocalStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewLocal returns a filesystem store rooted at root. URLs are built from
// baseURL and signed with signingKey.
func NewLocal(root, baseURL string, signingKey []byte, logger *slog.Logger, opts ...LocalOption) (*LocalStore, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, errors.New("storage: root directory is required")
	}
	if len(signingKey) == 0 {
		return nil, errors.New("storage: signing key is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create root: %w", err)
	}
	store := &LocalStore{
		root:       root,
		baseURL:    strings.TrimSuffix(strings.TrimSpace(baseURL), "/"),
		signingKey: signingKey,
		maxBytes:   DefaultMaxBytes,
		urlTTL:     DefaultURLTTL,
		logger:     logging.NewComponentLogger(logger, "storage"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store, nil
}

// MaxBytes returns the largest upload the store accepts.
func (s *LocalStore) MaxBytes() int64 { return s.maxBytes }

func (s *LocalStore) fsPath(objectPath string) string {
	return filepath.Join(s.root, filepath.FromSlash(objectPath))
}

// Save streams r into the user's podcast prefix. The payload lands in a
// temporary file first and is renamed into place once fully written, so a
// failed upload never leaves a partial object behind.
func (s *LocalStore) Save(ctx context.Context, userID, filename, contentType string, r io.Reader) (Object, error) {
	if strings.TrimSpace(userID) == "" {
		return Object{}, services.Wrap(services.ErrValidation, "uploading", "save object", "user ID is required", nil)
	}
	if strings.TrimSpace(filename) == "" {
		filename = "audio_file"
	}
	now := s.now()
	entropy := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	objectPath := ObjectPath(userID, objectName(now, entropy, filename))
	if !ValidPath(objectPath) {
		return Object{}, services.Wrap(services.ErrValidation, "uploading", "save object", fmt.Sprintf("user ID %q produces an invalid storage path", userID), nil)
	}

	target := s.fsPath(objectPath)
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Object{}, services.Wrap(services.ErrUnavailable, "uploading", "save object", "create user directory", err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return Object{}, services.Wrap(services.ErrUnavailable, "uploading", "save object", "create temp file", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	// Copy one byte past the cap so oversized payloads are detectable
	// without draining the reader.
	written, err := io.Copy(tmp, io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		cleanup()
		return Object{}, services.Wrap(services.ErrUnavailable, "uploading", "save object", "write payload", err)
	}
	if written > s.maxBytes {
		cleanup()
		return Object{}, services.Wrap(services.ErrValidation, "uploading", "save object",
			fmt.Sprintf("file exceeds maximum size of %d MB", s.maxBytes>>20), nil)
	}
	if written == 0 {
		cleanup()
		return Object{}, services.Wrap(services.ErrValidation, "uploading", "save object", "empty upload", nil)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return Object{}, services.Wrap(services.ErrUnavailable, "uploading", "save object", "flush payload", err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		_ = os.Remove(tmpPath)
		return Object{}, services.Wrap(services.ErrUnavailable, "uploading", "save object", "finalize object", err)
	}

	meta := objectMeta{
		OriginalFilename: filename,
		ContentType:      contentType,
		UserID:           userID,
		UploadedAt:       now.UTC(),
	}
	if err := writeMeta(target+metaSuffix, meta); err != nil {
		s.logger.Warn("object metadata write failed",
			logging.String("storage_path", objectPath),
			logging.Error(err))
	}

	url, err := s.URL(objectPath)
	if err != nil {
		return Object{}, err
	}
	s.logger.Info("object stored",
		logging.String(logging.FieldUserID, userID),
		logging.String("storage_path", objectPath),
		logging.Int64("size_bytes", written))
	return Object{
		Path:         objectPath,
		Name:         filepath.Base(target),
		OriginalName: filename,
		Size:         written,
		ContentType:  contentType,
		UploadedAt:   now.UTC(),
		URL:          url,
	}, nil
}

// Open returns the stored payload for reading.
func (s *LocalStore) Open(ctx context.Context, objectPath string) (io.ReadCloser, error) {
	if !ValidPath(objectPath) {
		return nil, services.Wrap(services.ErrValidation, "downloading", "open object", fmt.Sprintf("invalid storage path %q", objectPath), nil)
	}
	f, err := os.Open(s.fsPath(objectPath))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, services.Wrap(services.ErrNotFound, "downloading", "open object", objectPath, nil)
		}
		return nil, services.Wrap(services.ErrUnavailable, "downloading", "open object", objectPath, err)
	}
	return f, nil
}

// Stat returns object details without reading the payload. Objects written
// without a sidecar still stat; their original name and content type are
// simply empty.
func (s *LocalStore) Stat(ctx context.Context, objectPath string) (Object, error) {
	if !ValidPath(objectPath) {
		return Object{}, services.Wrap(services.ErrValidation, "downloading", "stat object", fmt.Sprintf("invalid storage path %q", objectPath), nil)
	}
	target := s.fsPath(objectPath)
	info, err := os.Stat(target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Object{}, services.Wrap(services.ErrNotFound, "downloading", "stat object", objectPath, nil)
		}
		return Object{}, services.Wrap(services.ErrUnavailable, "downloading", "stat object", objectPath, err)
	}
	obj := Object{
		Path:       objectPath,
		Name:       info.Name(),
		Size:       info.Size(),
		UploadedAt: info.ModTime().UTC(),
	}
	if meta, ok := readMeta(target + metaSuffix); ok {
		obj.OriginalName = meta.OriginalFilename
		obj.ContentType = meta.ContentType
		if !meta.UploadedAt.IsZero() {
			obj.UploadedAt = meta.UploadedAt
		}
	}
	url, err := s.URL(objectPath)
	if err != nil {
		return Object{}, err
	}
	obj.URL = url
	return obj, nil
}

// Delete removes the object and its sidecar.
func (s *LocalStore) Delete(ctx context.Context, objectPath string) error {
	if !ValidPath(objectPath) {
		return services.Wrap(services.ErrValidation, "", "delete object", fmt.Sprintf("invalid storage path %q", objectPath), nil)
	}
	target := s.fsPath(objectPath)
	if err := os.Remove(target); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return services.Wrap(services.ErrNotFound, "", "delete object", objectPath, nil)
		}
		return services.Wrap(services.ErrUnavailable, "", "delete object", objectPath, err)
	}
	_ = os.Remove(target + metaSuffix)
	s.logger.Info("object deleted", logging.String("storage_path", objectPath))
	return nil
}

// ListUser returns the user's objects, newest first. Object names begin with
// an upload timestamp, so reverse name order is reverse chronological.
func (s *LocalStore) ListUser(ctx context.Context, userID string, limit int) ([]Object, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, services.Wrap(services.ErrValidation, "", "list objects", "user ID is required", nil)
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	dir := filepath.Join(s.root, "users", userID, "podcasts")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, services.Wrap(services.ErrUnavailable, "", "list objects", "read user directory", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || strings.HasSuffix(name, metaSuffix) {
			continue
		}
		names = append(names, name)
	}
	slices.Sort(names)
	slices.Reverse(names)
	if len(names) > limit {
		names = names[:limit]
	}
	objects := make([]Object, 0, len(names))
	for _, name := range names {
		obj, err := s.Stat(ctx, ObjectPath(userID, name))
		if err != nil {
			continue
		}
		objects = append(objects, obj)
	}
	return objects, nil
}

// URL returns a signed download URL that expires after the store's TTL.
func (s *LocalStore) URL(objectPath string) (string, error) {
	if !ValidPath(objectPath) {
		return "", services.Wrap(services.ErrValidation, "", "sign url", fmt.Sprintf("invalid storage path %q", objectPath), nil)
	}
	expires := s.now().Add(s.urlTTL).Unix()
	token := signToken(s.signingKey, objectPath, expires)
	return fmt.Sprintf("%s/%s?expires=%d&token=%s", s.baseURL, objectPath, expires, token), nil
}

// VerifyToken reports whether token grants access to objectPath. Expired or
// tampered tokens fail verification.
func (s *LocalStore) VerifyToken(objectPath, token string, expires int64) bool {
	if s.now().Unix() > expires {
		return false
	}
	nonce, _, ok := strings.Cut(token, ".")
	if !ok {
		return false
	}
	want := resignToken(s.signingKey, objectPath, expires, nonce)
	return hmac.Equal([]byte(want), []byte(token))
}

// Ping verifies the root directory is present and writable.
func (s *LocalStore) Ping(ctx context.Context) error {
	info, err := os.Stat(s.root)
	if err != nil {
		return fmt.Errorf("storage root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("storage root %q is not a directory", s.root)
	}
	probe, err := os.CreateTemp(s.root, ".ping-*")
	if err != nil {
		return fmt.Errorf("storage root not writable: %w", err)
	}
	name := probe.Name()
	_ = probe.Close()
	_ = os.Remove(name)
	return nil
}

// signToken issues a token of the form <nonce>.<mac>. The nonce makes every
// issued URL distinct; the MAC covers path, expiry, and nonce.
func signToken(key []byte, objectPath string, expires int64) string {
	return resignToken(key, objectPath, expires, ulid.Make().String())
}

func resignToken(key []byte, objectPath string, expires int64, nonce string) string {
	mac := hmac.New(sha256.New, key)
	fmt.Fprintf(mac, "%s\n%d\n%s", objectPath, expires, nonce)
	return nonce + "." + hex.EncodeToString(mac.Sum(nil))
}

func writeMeta(path string, meta objectMeta) error {
	payload, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return fmt.Errorf("write metadata temp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename metadata: %w", err)
	}
	return nil
}

func readMeta(path string) (objectMeta, bool) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return objectMeta{}, false
	}
	var meta objectMeta
	if err := json.Unmarshal(payload, &meta); err != nil {
		return objectMeta{}, false
	}
	return meta, true
}
