package storage_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"podmill/internal/logging"
	"podmill/internal/services"
	"podmill/internal/storage"
	"podmill/internal/testsupport"
)

func newLocalStore(t *testing.T, now *time.Time, opts ...storage.LocalOption) *storage.LocalStore {
	t.Helper()
	all := append([]storage.LocalOption{storage.WithClock(func() time.Time { return *now })}, opts...)
	store, err := storage.NewLocal(t.TempDir(), "http://files.test/objects", []byte("signing-key"), logging.NewNop(), all...)
	if err != nil {
		t.Fatalf("NewLocal failed: %v", err)
	}
	return store
}

func TestSaveStoresObjectUnderUserPrefix(t *testing.T) {
	now := time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)
	store := newLocalStore(t, &now)
	payload := []byte("fake mp3 payload")

	obj, err := store.Save(context.Background(), "u1", "My Episode.mp3", "audio/mpeg", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if !strings.HasPrefix(obj.Path, "users/u1/podcasts/") {
		t.Fatalf("unexpected storage path: %q", obj.Path)
	}
	if !strings.HasPrefix(obj.Name, "20260301_100000_") || !strings.HasSuffix(obj.Name, "_my_episode.mp3") {
		t.Fatalf("unexpected object name: %q", obj.Name)
	}
	if obj.Size != int64(len(payload)) {
		t.Fatalf("unexpected size: %d", obj.Size)
	}
	if obj.OriginalName != "My Episode.mp3" || obj.ContentType != "audio/mpeg" {
		t.Fatalf("unexpected metadata: %+v", obj)
	}
	if obj.URL == "" {
		t.Fatal("expected download URL")
	}

	rc, err := store.Open(context.Background(), obj.Path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer rc.Close()
	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read object: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("payload mismatch: got %q want %q", got, payload)
	}
}

func TestSaveStreamsFileFromDisk(t *testing.T) {
	now := time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)
	store := newLocalStore(t, &now)

	const size = 256 * 1024
	src := filepath.Join(t.TempDir(), "episode.mp3")
	testsupport.WriteFile(t, src, size)
	f, err := os.Open(src)
	if err != nil {
		t.Fatalf("open source: %v", err)
	}
	defer f.Close()

	obj, err := store.Save(context.Background(), "u1", "episode.mp3", "audio/mpeg", f)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if obj.Size != size {
		t.Fatalf("size = %d, want %d", obj.Size, size)
	}

	rc, err := store.Open(context.Background(), obj.Path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer rc.Close()
	n, err := io.Copy(io.Discard, rc)
	if err != nil || n != size {
		t.Fatalf("stored object carries %d bytes (err %v), want %d", n, err, size)
	}
}

func TestSaveRejectsOversizedUpload(t *testing.T) {
	now := time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)
	store := newLocalStore(t, &now, storage.WithMaxBytes(16))

	_, err := store.Save(context.Background(), "u1", "big.mp3", "audio/mpeg", bytes.NewReader(make([]byte, 17)))
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	// The rejected upload must not leave a partial object behind.
	objects, err := store.ListUser(context.Background(), "u1", 0)
	if err != nil {
		t.Fatalf("ListUser failed: %v", err)
	}
	if len(objects) != 0 {
		t.Fatalf("expected no objects after rejected upload, got %d", len(objects))
	}
}

func TestSaveRejectsEmptyUpload(t *testing.T) {
	now := time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)
	store := newLocalStore(t, &now)

	_, err := store.Save(context.Background(), "u1", "empty.mp3", "audio/mpeg", bytes.NewReader(nil))
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSaveRequiresUser(t *testing.T) {
	now := time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)
	store := newLocalStore(t, &now)

	_, err := store.Save(context.Background(), "  ", "ep.mp3", "audio/mpeg", strings.NewReader("x"))
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestOpenMissingObjectIsNotFound(t *testing.T) {
	now := time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)
	store := newLocalStore(t, &now)

	_, err := store.Open(context.Background(), "users/u1/podcasts/missing.mp3")
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestOpenRejectsTraversal(t *testing.T) {
	now := time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)
	store := newLocalStore(t, &now)

	_, err := store.Open(context.Background(), "users/u1/podcasts/../../../etc/passwd")
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestStatReturnsSidecarMetadata(t *testing.T) {
	now := time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)
	store := newLocalStore(t, &now)

	saved, err := store.Save(context.Background(), "u1", "Interview #42.wav", "audio/wav", strings.NewReader("wav bytes"))
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	obj, err := store.Stat(context.Background(), saved.Path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if obj.OriginalName != "Interview #42.wav" {
		t.Fatalf("unexpected original name: %q", obj.OriginalName)
	}
	if obj.ContentType != "audio/wav" {
		t.Fatalf("unexpected content type: %q", obj.ContentType)
	}
	if !obj.UploadedAt.Equal(now) {
		t.Fatalf("unexpected uploaded at: %v", obj.UploadedAt)
	}
	if obj.Size != int64(len("wav bytes")) {
		t.Fatalf("unexpected size: %d", obj.Size)
	}
}

func TestDeleteRemovesObjectAndSidecar(t *testing.T) {
	now := time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)
	store := newLocalStore(t, &now)

	saved, err := store.Save(context.Background(), "u1", "ep.mp3", "audio/mpeg", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.Delete(context.Background(), saved.Path); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Stat(context.Background(), saved.Path); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	if err := store.Delete(context.Background(), saved.Path); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestListUserNewestFirst(t *testing.T) {
	now := time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)
	store := newLocalStore(t, &now)
	ctx := context.Background()

	for _, name := range []string{"first.mp3", "second.mp3", "third.mp3"} {
		if _, err := store.Save(ctx, "u1", name, "audio/mpeg", strings.NewReader("x")); err != nil {
			t.Fatalf("Save %s failed: %v", name, err)
		}
		now = now.Add(time.Minute)
	}
	if _, err := store.Save(ctx, "u2", "other.mp3", "audio/mpeg", strings.NewReader("x")); err != nil {
		t.Fatalf("Save for second user failed: %v", err)
	}

	objects, err := store.ListUser(ctx, "u1", 0)
	if err != nil {
		t.Fatalf("ListUser failed: %v", err)
	}
	if len(objects) != 3 {
		t.Fatalf("expected 3 objects, got %d", len(objects))
	}
	if !strings.HasSuffix(objects[0].Name, "_third.mp3") {
		t.Fatalf("expected newest first, got %q", objects[0].Name)
	}
	if !strings.HasSuffix(objects[2].Name, "_first.mp3") {
		t.Fatalf("expected oldest last, got %q", objects[2].Name)
	}

	limited, err := store.ListUser(ctx, "u1", 2)
	if err != nil {
		t.Fatalf("ListUser with limit failed: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("expected limit to apply, got %d objects", len(limited))
	}

	none, err := store.ListUser(ctx, "nobody", 0)
	if err != nil {
		t.Fatalf("ListUser for unknown user failed: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected no objects for unknown user, got %d", len(none))
	}
}

func TestURLSignatureRoundTrip(t *testing.T) {
	now := time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)
	store := newLocalStore(t, &now)

	saved, err := store.Save(context.Background(), "u1", "ep.mp3", "audio/mpeg", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	parsed, err := url.Parse(saved.URL)
	if err != nil {
		t.Fatalf("parse URL: %v", err)
	}
	if got := strings.TrimPrefix(parsed.Path, "/objects/"); got != saved.Path {
		t.Fatalf("URL path %q does not carry storage path %q", parsed.Path, saved.Path)
	}
	expires, err := strconv.ParseInt(parsed.Query().Get("expires"), 10, 64)
	if err != nil {
		t.Fatalf("parse expires: %v", err)
	}
	if want := now.Add(7 * 24 * time.Hour).Unix(); expires != want {
		t.Fatalf("expected expiry %d, got %d", want, expires)
	}
	token := parsed.Query().Get("token")
	if token == "" {
		t.Fatal("expected token query parameter")
	}

	if !store.VerifyToken(saved.Path, token, expires) {
		t.Fatal("expected valid token to verify")
	}
	if store.VerifyToken("users/u2/podcasts/other.mp3", token, expires) {
		t.Fatal("token must not verify for a different path")
	}
	if store.VerifyToken(saved.Path, token, expires+60) {
		t.Fatal("token must not verify with altered expiry")
	}
	if store.VerifyToken(saved.Path, "garbage", expires) {
		t.Fatal("malformed token must not verify")
	}

	now = now.Add(7*24*time.Hour + time.Second)
	if store.VerifyToken(saved.Path, token, expires) {
		t.Fatal("expired token must not verify")
	}
}

func TestURLsAreSingleIssue(t *testing.T) {
	now := time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)
	store := newLocalStore(t, &now)

	first, err := store.URL("users/u1/podcasts/ep.mp3")
	if err != nil {
		t.Fatalf("URL failed: %v", err)
	}
	second, err := store.URL("users/u1/podcasts/ep.mp3")
	if err != nil {
		t.Fatalf("URL failed: %v", err)
	}
	if first == second {
		t.Fatal("expected distinct tokens per issued URL")
	}
}

func TestPingChecksRootWritable(t *testing.T) {
	now := time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)
	store := newLocalStore(t, &now)
	if err := store.Ping(context.Background()); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
}

func TestNewLocalCreatesRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "objects", "nested")
	if _, err := storage.NewLocal(root, "http://files.test", []byte("k"), logging.NewNop()); err != nil {
		t.Fatalf("NewLocal failed: %v", err)
	}
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		t.Fatalf("expected root directory to exist: %v", err)
	}
}

func TestNewLocalRequiresRootAndKey(t *testing.T) {
	if _, err := storage.NewLocal("", "http://files.test", []byte("k"), logging.NewNop()); err == nil {
		t.Fatal("expected error for empty root")
	}
	if _, err := storage.NewLocal(t.TempDir(), "http://files.test", nil, logging.NewNop()); err == nil {
		t.Fatal("expected error for missing signing key")
	}
}
