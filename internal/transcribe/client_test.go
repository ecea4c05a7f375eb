package transcribe_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"podmill/internal/clients"
	"podmill/internal/logging"
	"podmill/internal/services"
	"podmill/internal/transcribe"
)

func writeAudio(t *testing.T, name string, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatalf("write audio fixture: %v", err)
	}
	return path
}

func newVendorClient(t *testing.T, handler http.HandlerFunc) *transcribe.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return transcribe.NewClient(transcribe.Config{
		APIKey:  "test-key",
		BaseURL: server.URL,
	}, logging.NewNop())
}

const vendorPayload = `{
  "results": {
    "channels": [
      {
        "alternatives": [
          {
            "transcript": "Hello world. Goodbye now.",
            "words": [
              {"word": "hello", "punctuated_word": "Hello", "start": 0.1234, "end": 0.5678, "confidence": 0.98765, "speaker": 0},
              {"word": "world", "punctuated_word": "world.", "start": 0.6, "end": 1.0, "confidence": 0.9, "speaker": 0},
              {"word": "goodbye", "start": 1.5, "end": 2.0, "confidence": 0.95, "speaker": 1},
              {"word": "now", "punctuated_word": "now.", "start": 2.0, "end": 2.4, "confidence": 0.97}
            ]
          }
        ]
      }
    ]
  }
}`

func TestTranscribeSendsVendorRequest(t *testing.T) {
	var (
		gotQuery       map[string][]string
		gotAuth        string
		gotContentType string
		gotBodyLen     int
	)
	client := newVendorClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		gotBodyLen = len(body)
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write([]byte(vendorPayload)); err != nil {
			t.Errorf("write response: %v", err)
		}
	})

	path := writeAudio(t, "episode.mp3", 2048)
	transcript, err := client.Transcribe(context.Background(), transcribe.Request{
		AudioPath:   path,
		Filename:    "episode.mp3",
		ContentType: "audio/mpeg",
	})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	wantQuery := map[string]string{
		"model":        "nova-2",
		"smart_format": "true",
		"punctuate":    "true",
		"diarize":      "true",
		"utterances":   "true",
		"utt_split":    "0.8",
		"language":     "en-US",
	}
	for key, want := range wantQuery {
		values := gotQuery[key]
		if len(values) != 1 || values[0] != want {
			t.Errorf("query %s = %v, want %q", key, values, want)
		}
	}
	if gotAuth != "Token test-key" {
		t.Errorf("Authorization = %q, want %q", gotAuth, "Token test-key")
	}
	if gotContentType != "audio/mpeg" {
		t.Errorf("Content-Type = %q, want audio/mpeg", gotContentType)
	}
	if gotBodyLen != 2048 {
		t.Errorf("uploaded %d bytes, want 2048", gotBodyLen)
	}

	if transcript.Text != "Hello world. Goodbye now." {
		t.Errorf("Text = %q", transcript.Text)
	}
	if transcript.Model != "nova-2" {
		t.Errorf("Model = %q, want nova-2", transcript.Model)
	}
	if transcript.SizeBytes != 2048 {
		t.Errorf("SizeBytes = %d, want 2048", transcript.SizeBytes)
	}
	if transcript.WordCount != 4 || len(transcript.Words) != 4 {
		t.Fatalf("WordCount = %d, len(Words) = %d, want 4", transcript.WordCount, len(transcript.Words))
	}
	if transcript.SpeakerCount != 2 {
		t.Errorf("SpeakerCount = %d, want 2", transcript.SpeakerCount)
	}

	first := transcript.Words[0]
	if first.Word != "Hello" {
		t.Errorf("first word = %q, want punctuated form %q", first.Word, "Hello")
	}
	if first.Start != 0.12 || first.End != 0.57 {
		t.Errorf("first word timing = (%v, %v), want (0.12, 0.57)", first.Start, first.End)
	}
	if first.Confidence != 0.988 {
		t.Errorf("first word confidence = %v, want 0.988", first.Confidence)
	}
	if first.Speaker == nil || *first.Speaker != 0 {
		t.Errorf("first word speaker = %v, want 0", first.Speaker)
	}

	bare := transcript.Words[2]
	if bare.Word != "goodbye" {
		t.Errorf("unpunctuated word = %q, want raw form %q", bare.Word, "goodbye")
	}
	if bare.Speaker == nil || *bare.Speaker != 1 {
		t.Errorf("third word speaker = %v, want 1", bare.Speaker)
	}
	if last := transcript.Words[3]; last.Speaker != nil {
		t.Errorf("word without diarization label has speaker %v, want nil", *last.Speaker)
	}
}

func TestTranscribeRoundsTimingsAndConfidence(t *testing.T) {
	payload := `{"results":{"channels":[{"alternatives":[{"transcript":"x","words":[
		{"word":"x","start":12.3456,"end":12.3456,"confidence":0.12345,"speaker":0}
	]}]}]}}`
	client := newVendorClient(t, func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte(payload)); err != nil {
			t.Errorf("write response: %v", err)
		}
	})

	path := writeAudio(t, "episode.mp3", 16)
	transcript, err := client.Transcribe(context.Background(), transcribe.Request{AudioPath: path, Filename: "episode.mp3"})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	word := transcript.Words[0]
	if word.Start != 12.35 || word.End != 12.35 {
		t.Errorf("timing = (%v, %v), want (12.35, 12.35)", word.Start, word.End)
	}
	if word.Confidence != 0.123 {
		t.Errorf("confidence = %v, want 0.123", word.Confidence)
	}
}

func TestTranscribeEmptyResults(t *testing.T) {
	payloads := map[string]string{
		"no channels":     `{"results":{"channels":[]}}`,
		"no alternatives": `{"results":{"channels":[{"alternatives":[]}]}}`,
		"empty words":     `{"results":{"channels":[{"alternatives":[{"transcript":"","words":[]}]}]}}`,
	}
	for name, payload := range payloads {
		t.Run(name, func(t *testing.T) {
			client := newVendorClient(t, func(w http.ResponseWriter, r *http.Request) {
				if _, err := w.Write([]byte(payload)); err != nil {
					t.Errorf("write response: %v", err)
				}
			})
			path := writeAudio(t, "silent.mp3", 16)
			transcript, err := client.Transcribe(context.Background(), transcribe.Request{AudioPath: path, Filename: "silent.mp3"})
			if err != nil {
				t.Fatalf("empty audio should not be an error, got %v", err)
			}
			if transcript.Text != "" {
				t.Errorf("Text = %q, want empty", transcript.Text)
			}
			if transcript.Words == nil {
				t.Fatal("Words is nil, want empty slice")
			}
			if len(transcript.Words) != 0 || transcript.WordCount != 0 || transcript.SpeakerCount != 0 {
				t.Errorf("expected empty transcript, got %+v", transcript)
			}
		})
	}
}

func TestTranscribeMissingAPIKey(t *testing.T) {
	client := transcribe.NewClient(transcribe.Config{}, logging.NewNop())
	path := writeAudio(t, "episode.mp3", 16)
	_, err := client.Transcribe(context.Background(), transcribe.Request{AudioPath: path, Filename: "episode.mp3"})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if services.Retryable(err) {
		t.Fatal("missing API key must not be retryable")
	}
}

func TestTranscribeRejectsUnsupportedFormat(t *testing.T) {
	client := newVendorClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("vendor should not be called for unsupported formats")
	})
	path := writeAudio(t, "notes.txt", 16)
	_, err := client.Transcribe(context.Background(), transcribe.Request{AudioPath: path, Filename: "notes.txt"})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !strings.Contains(err.Error(), ".mp3") {
		t.Errorf("error should list supported formats, got %q", err)
	}
}

func TestTranscribeMissingFile(t *testing.T) {
	client := newVendorClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("vendor should not be called when the staged file is gone")
	})
	_, err := client.Transcribe(context.Background(), transcribe.Request{
		AudioPath: filepath.Join(t.TempDir(), "vanished.mp3"),
		Filename:  "vanished.mp3",
	})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestTranscribeEmptyFile(t *testing.T) {
	client := newVendorClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("vendor should not be called for empty files")
	})
	path := writeAudio(t, "episode.mp3", 0)
	_, err := client.Transcribe(context.Background(), transcribe.Request{AudioPath: path, Filename: "episode.mp3"})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestTranscribeVendorStatusError(t *testing.T) {
	client := newVendorClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		if _, err := w.Write([]byte(`{"err_msg":"invalid credentials"}`)); err != nil {
			t.Errorf("write response: %v", err)
		}
	})
	path := writeAudio(t, "episode.mp3", 16)
	_, err := client.Transcribe(context.Background(), transcribe.Request{AudioPath: path, Filename: "episode.mp3"})

	var statusErr *clients.StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %T: %v", err, err)
	}
	if statusErr.Service != "transcriber" {
		t.Errorf("Service = %q, want transcriber", statusErr.Service)
	}
	if statusErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("StatusCode = %d, want 401", statusErr.StatusCode)
	}
	if !strings.Contains(statusErr.Body, "invalid credentials") {
		t.Errorf("Body = %q, want vendor message", statusErr.Body)
	}
}

func TestTranscribeMalformedResponse(t *testing.T) {
	client := newVendorClient(t, func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("<html>gateway error</html>")); err != nil {
			t.Errorf("write response: %v", err)
		}
	})
	path := writeAudio(t, "episode.mp3", 16)
	_, err := client.Transcribe(context.Background(), transcribe.Request{AudioPath: path, Filename: "episode.mp3"})
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if !services.Retryable(err) {
		t.Fatal("malformed vendor response should be retryable")
	}
}

func TestTranscribeDefaultContentType(t *testing.T) {
	var gotContentType string
	client := newVendorClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		if _, err := w.Write([]byte(`{"results":{"channels":[]}}`)); err != nil {
			t.Errorf("write response: %v", err)
		}
	})
	path := writeAudio(t, "episode.mp3", 16)
	if _, err := client.Transcribe(context.Background(), transcribe.Request{AudioPath: path, Filename: "episode.mp3"}); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if gotContentType != "audio/*" {
		t.Errorf("Content-Type = %q, want audio/* fallback", gotContentType)
	}
}

func TestTranscribeCancelledContext(t *testing.T) {
	client := newVendorClient(t, func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte(`{"results":{"channels":[]}}`)); err != nil {
			t.Errorf("write response: %v", err)
		}
	})
	path := writeAudio(t, "episode.mp3", 16)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.Transcribe(ctx, transcribe.Request{AudioPath: path, Filename: "episode.mp3"})
	if err == nil {
		t.Fatal("expected error from cancelled context")
	}
}
