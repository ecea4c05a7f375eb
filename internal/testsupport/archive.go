package testsupport

import (
	"testing"

	"podmill/internal/jobs"
)

// MustOpenArchive opens a job archive for tests and registers cleanup.
func MustOpenArchive(t testing.TB, path string) *jobs.Archive {
	t.Helper()

	archive, err := jobs.OpenArchive(path)
	if err != nil {
		t.Fatalf("jobs.OpenArchive: %v", err)
	}
	t.Cleanup(func() {
		_ = archive.Close()
	})
	return archive
}
