package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"podmill/internal/services"
)

// MemoryStore is an in-memory Store for tests and development mode. Documents
// are kept as JSON-roundtripped copies so callers never share slices with the
// store and repeated gets return identical content.
type MemoryStore struct {
	mu       sync.Mutex
	docs     map[string]Document
	now      func() time.Time
	failWith error
}

// MemoryOption adjusts a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithMemoryClock overrides the timestamp source.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewMemory returns an empty in-memory document store.
func NewMemory(opts ...MemoryOption) *MemoryStore {
	store := &MemoryStore{
		docs: make(map[string]Document),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Fail makes every subsequent call fail with err; pass nil to recover.
func (s *MemoryStore) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWith = err
}

// Len reports how many documents are stored.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docs)
}

// Save implements Store.
func (s *MemoryStore) Save(ctx context.Context, doc Document) (string, error) {
	if err := validateDocument(doc); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return "", s.wrapFailure("save")
	}

	now := s.now().UTC()
	if strings.TrimSpace(doc.ID) == "" {
		doc.ID = NewID()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now

	stored, err := copyDocument(doc)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "persistence", "save", "encoding document", err)
	}
	s.docs[doc.ID] = stored
	return doc.ID, nil
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, id string) (Document, error) {
	if strings.TrimSpace(id) == "" {
		return Document{}, services.Wrap(services.ErrValidation, "persistence", "get", "document ID required", nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return Document{}, s.wrapFailure("get")
	}
	doc, ok := s.docs[id]
	if !ok {
		return Document{}, services.Wrap(services.ErrNotFound, "persistence", "get", fmt.Sprintf("document %s not found", id), nil)
	}
	return copyDocument(doc)
}

// ListForUser implements Store.
func (s *MemoryStore) ListForUser(ctx context.Context, userID string, limit int) ([]Document, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, services.Wrap(services.ErrValidation, "persistence", "list", "user ID required", nil)
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.wrapFailure("list")
	}

	matched := make([]Document, 0)
	for _, doc := range s.docs {
		if doc.UserID == userID {
			matched = append(matched, doc)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })
	if len(matched) > limit {
		matched = matched[:limit]
	}

	results := make([]Document, 0, len(matched))
	for _, doc := range matched {
		copied, err := copyDocument(doc)
		if err != nil {
			return nil, services.Wrap(services.ErrTransient, "persistence", "list", "decoding document", err)
		}
		results = append(results, copied)
	}
	return results, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return services.Wrap(services.ErrValidation, "persistence", "delete", "document ID required", nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.wrapFailure("delete")
	}
	if _, ok := s.docs[id]; !ok {
		return services.Wrap(services.ErrNotFound, "persistence", "delete", fmt.Sprintf("document %s not found", id), nil)
	}
	delete(s.docs, id)
	return nil
}

// BatchSave implements Store.
func (s *MemoryStore) BatchSave(ctx context.Context, docs []Document) ([]string, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(docs))
	for _, bounds := range batchChunks(len(docs)) {
		for _, doc := range docs[bounds[0]:bounds[1]] {
			id, err := s.Save(ctx, doc)
			if err != nil {
				return nil, err
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// BatchGet implements Store. Unknown IDs are skipped.
func (s *MemoryStore) BatchGet(ctx context.Context, ids []string) ([]Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	results := make([]Document, 0, len(ids))
	for _, bounds := range batchChunks(len(ids)) {
		for _, id := range ids[bounds[0]:bounds[1]] {
			doc, err := s.Get(ctx, id)
			if err != nil {
				if services.Retryable(err) {
					return nil, err
				}
				continue
			}
			results = append(results, doc)
		}
	}
	return results, nil
}

// Ping implements Store.
func (s *MemoryStore) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failWith
}

func (s *MemoryStore) wrapFailure(op string) error {
	return services.Wrap(services.ErrTransient, "persistence", op, "store unavailable", s.failWith)
}

func copyDocument(doc Document) (Document, error) {
	encoded, err := json.Marshal(doc)
	if err != nil {
		return Document{}, err
	}
	var copied Document
	if err := json.Unmarshal(encoded, &copied); err != nil {
		return Document{}, err
	}
	return copied, nil
}
