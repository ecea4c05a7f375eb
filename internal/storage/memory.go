package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"podmill/internal/services"
)

// MemoryStore is an in-memory Store for development and tests. It applies
// the same path, size, and ownership rules as LocalStore but keeps payloads
// in a map and hands out unverifiable memory:// URLs.
type MemoryStore struct {
	mu       sync.Mutex
	objects  map[string]memoryObject
	maxBytes int64
	now      func() time.Time
	failWith error
}

type memoryObject struct {
	data []byte
	obj  Object
}

// MemoryOption adjusts a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithMemoryClock overrides the store's time source.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithMemoryMaxBytes overrides the largest accepted upload size.
func WithMemoryMaxBytes(n int64) MemoryOption {
	return func(s *MemoryStore) {
		if n > 0 {
			s.maxBytes = n
		}
	}
}

// NewMemory returns an empty in-memory store.
func NewMemory(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		objects:  make(map[string]memoryObject),
		maxBytes: DefaultMaxBytes,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fail makes every subsequent call return err. Passing nil restores normal
// operation. Tests use this to exercise degraded-store paths.
func (s *MemoryStore) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWith = err
}

// Len returns the number of stored objects.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

func (s *MemoryStore) Save(ctx context.Context, userID, filename, contentType string, r io.Reader) (Object, error) {
	if strings.TrimSpace(userID) == "" {
		return Object{}, services.Wrap(services.ErrValidation, "uploading", "save object", "user ID is required", nil)
	}
	if strings.TrimSpace(filename) == "" {
		filename = "audio_file"
	}
	data, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return Object{}, services.Wrap(services.ErrUnavailable, "uploading", "save object", "read payload", err)
	}
	if int64(len(data)) > s.maxBytes {
		return Object{}, services.Wrap(services.ErrValidation, "uploading", "save object",
			fmt.Sprintf("file exceeds maximum size of %d MB", s.maxBytes>>20), nil)
	}
	if len(data) == 0 {
		return Object{}, services.Wrap(services.ErrValidation, "uploading", "save object", "empty upload", nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return Object{}, services.Wrap(services.ErrUnavailable, "uploading", "save object", "store degraded", s.failWith)
	}
	now := s.now()
	entropy := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	name := objectName(now, entropy, filename)
	objectPath := ObjectPath(userID, name)
	obj := Object{
		Path:         objectPath,
		Name:         name,
		OriginalName: filename,
		Size:         int64(len(data)),
		ContentType:  contentType,
		UploadedAt:   now.UTC(),
		URL:          memoryURL(objectPath),
	}
	s.objects[objectPath] = memoryObject{data: data, obj: obj}
	return obj, nil
}

func (s *MemoryStore) Open(ctx context.Context, objectPath string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, services.Wrap(services.ErrUnavailable, "downloading", "open object", "store degraded", s.failWith)
	}
	entry, ok := s.objects[objectPath]
	if !ok {
		return nil, services.Wrap(services.ErrNotFound, "downloading", "open object", objectPath, nil)
	}
	return io.NopCloser(bytes.NewReader(entry.data)), nil
}

func (s *MemoryStore) Stat(ctx context.Context, objectPath string) (Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return Object{}, services.Wrap(services.ErrUnavailable, "downloading", "stat object", "store degraded", s.failWith)
	}
	entry, ok := s.objects[objectPath]
	if !ok {
		return Object{}, services.Wrap(services.ErrNotFound, "downloading", "stat object", objectPath, nil)
	}
	return entry.obj, nil
}

func (s *MemoryStore) Delete(ctx context.Context, objectPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return services.Wrap(services.ErrUnavailable, "", "delete object", "store degraded", s.failWith)
	}
	if _, ok := s.objects[objectPath]; !ok {
		return services.Wrap(services.ErrNotFound, "", "delete object", objectPath, nil)
	}
	delete(s.objects, objectPath)
	return nil
}

func (s *MemoryStore) ListUser(ctx context.Context, userID string, limit int) ([]Object, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, services.Wrap(services.ErrValidation, "", "list objects", "user ID is required", nil)
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, services.Wrap(services.ErrUnavailable, "", "list objects", "store degraded", s.failWith)
	}
	var objects []Object
	for objectPath, entry := range s.objects {
		if OwnedBy(objectPath, userID) {
			objects = append(objects, entry.obj)
		}
	}
	slices.SortFunc(objects, func(a, b Object) int {
		return strings.Compare(b.Name, a.Name)
	})
	if len(objects) > limit {
		objects = objects[:limit]
	}
	return objects, nil
}

func (s *MemoryStore) URL(objectPath string) (string, error) {
	if !ValidPath(objectPath) {
		return "", services.Wrap(services.ErrValidation, "", "sign url", fmt.Sprintf("invalid storage path %q", objectPath), nil)
	}
	return memoryURL(objectPath), nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	return nil
}

func memoryURL(objectPath string) string {
	return "memory://" + objectPath
}
