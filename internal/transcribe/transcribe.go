// Package transcribe converts stored podcast audio into transcripts with
// word-level timestamps and speaker labels. Client talks to the hosted
// speech-to-text vendor; Fake is the scripted double used by tests and
// development mode.
package transcribe

import (
	"context"
	"math"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Word is one transcript token with timing, confidence, and an optional
// speaker label from diarization.
type Word struct {
	Word       string  `json:"word"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Confidence float64 `json:"confidence"`
	Speaker    *int    `json:"speaker,omitempty"`
}

// Transcript is the normalized transcription result. Words is never nil; an
// audio file with no detected speech yields an empty Text and an empty slice.
type Transcript struct {
	Text         string `json:"transcript"`
	Words        []Word `json:"words"`
	Model        string `json:"model,omitempty"`
	WordCount    int    `json:"word_count"`
	SpeakerCount int    `json:"speaker_count"`
	SizeBytes    int64  `json:"file_size,omitempty"`
}

// Request identifies the staged audio file to transcribe. Filename is the
// user-supplied name and drives format validation; AudioPath points at the
// staged payload on local disk.
type Request struct {
	AudioPath   string
	Filename    string
	ContentType string
}

// Transcriber converts staged audio into a transcript.
type Transcriber interface {
	Transcribe(ctx context.Context, req Request) (Transcript, error)
}

// MaxAudioBytes is the largest accepted episode payload.
const MaxAudioBytes = 500 << 20

var supportedExtensions = map[string]bool{
	".mp3":  true,
	".m4a":  true,
	".wav":  true,
	".mp4":  true,
	".flac": true,
	".ogg":  true,
}

var supportedMIMETypes = map[string]bool{
	"audio/mpeg":  true,
	"audio/mp4":   true,
	"audio/wav":   true,
	"audio/x-wav": true,
	"audio/mp3":   true,
	"audio/m4a":   true,
	"audio/flac":  true,
	"audio/ogg":   true,
}

// SupportedFormat reports whether the content type or, failing that, the
// filename extension names an accepted podcast audio format.
func SupportedFormat(filename, contentType string) bool {
	if contentType != "" {
		mime, _, _ := strings.Cut(strings.ToLower(strings.TrimSpace(contentType)), ";")
		if supportedMIMETypes[strings.TrimSpace(mime)] {
			return true
		}
	}
	return supportedExtensions[strings.ToLower(filepath.Ext(filename))]
}

// SupportedFormats lists the accepted extensions for error messages.
func SupportedFormats() []string {
	formats := make([]string, 0, len(supportedExtensions))
	for ext := range supportedExtensions {
		formats = append(formats, ext)
	}
	sort.Strings(formats)
	return formats
}

// TimeoutFor returns the vendor deadline for a payload of the given size.
// Long episodes take the vendor proportionally longer, so the deadline
// scales in bands rather than linearly.
func TimeoutFor(sizeBytes int64) time.Duration {
	switch mb := sizeBytes >> 20; {
	case mb < 10:
		return 10 * time.Minute
	case mb < 50:
		return 30 * time.Minute
	case mb < 150:
		return 60 * time.Minute
	default:
		return 90 * time.Minute
	}
}

// round2 rounds to two decimal places, used for word timings.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// round3 rounds to three decimal places, used for confidence scores.
func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// countSpeakers returns the number of distinct speaker labels.
func countSpeakers(words []Word) int {
	seen := make(map[int]struct{})
	for _, word := range words {
		if word.Speaker != nil {
			seen[*word.Speaker] = struct{}{}
		}
	}
	return len(seen)
}
