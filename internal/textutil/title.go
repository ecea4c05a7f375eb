package textutil

import (
	"path/filepath"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var titleSeparators = strings.NewReplacer("_", " ", "-", " ", ".", " ")

// TitleFromFilename derives a human-readable episode title from an uploaded
// filename. The extension is dropped, separators collapse to spaces, and the
// words are title-cased. Returns "Untitled Episode" when nothing survives.
func TitleFromFilename(name string) string {
	base := filepath.Base(strings.TrimSpace(name))
	base = strings.TrimSuffix(base, filepath.Ext(base))
	fields := strings.Fields(titleSeparators.Replace(base))
	if len(fields) == 0 {
		return "Untitled Episode"
	}
	return cases.Title(language.English).String(strings.Join(fields, " "))
}
