// Package staging manages the scratch directories the pipeline downloads
// audio into while a job is being processed.
package staging

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"podmill/internal/textutil"
)

// Workdir returns the staging directory for the given run or job identifier,
// creating it if necessary. The identifier is sanitized before it becomes a
// path component, so user-influenced values cannot escape the staging root.
func Workdir(root, id string) (string, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return "", errors.New("staging root not configured")
	}
	dir := filepath.Join(root, textutil.SanitizeToken(id))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}
