package logging_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"podmill/internal/logging"
	"podmill/internal/services"
)

func TestNewConsoleWritesToFile(t *testing.T) {
	tempDir := t.TempDir()
	logPath := filepath.Join(tempDir, "console.log")

	logger, err := logging.New(logging.Options{
		Format:           "console",
		Level:            "info",
		OutputPaths:      []string{logPath},
		ErrorOutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("pipeline started", logging.String("upload_id", "upload_1700000000_user-1"))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(content)
	if !strings.Contains(line, "INFO") {
		t.Fatalf("expected level label in output, got %q", line)
	}
	if !strings.Contains(line, "pipeline started") {
		t.Fatalf("expected message in output, got %q", line)
	}
	if !strings.Contains(line, "upload_id=upload_1700000000_user-1") {
		t.Fatalf("expected key=value attribute in output, got %q", line)
	}
}

func TestConsoleLoggerOmitsCallerForInfo(t *testing.T) {
	tempDir := t.TempDir()
	logPath := filepath.Join(tempDir, "console-info.log")

	logger, err := logging.New(logging.Options{
		Format:           "console",
		Level:            "info",
		OutputPaths:      []string{logPath},
		ErrorOutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("message without caller")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if strings.Contains(string(content), ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", content)
	}
}

func TestConsoleLoggerIncludesCallerForDebug(t *testing.T) {
	tempDir := t.TempDir()
	logPath := filepath.Join(tempDir, "console-debug.log")

	logger, err := logging.New(logging.Options{
		Format:           "console",
		Level:            "debug",
		OutputPaths:      []string{logPath},
		ErrorOutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("message with caller")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), ".go:") {
		t.Fatalf("expected caller information in debug logs, got %q", content)
	}
}

func TestNewJSONLoggerEmitsLoweredKeys(t *testing.T) {
	tempDir := t.TempDir()
	logPath := filepath.Join(tempDir, "json.log")

	logger, err := logging.New(logging.Options{
		Format:           "json",
		Level:            "info",
		OutputPaths:      []string{logPath},
		ErrorOutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("json message", logging.String("k", "v"))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal(content, &entry); err != nil {
		t.Fatalf("decode json log line: %v (%q)", err, content)
	}
	if entry["level"] != "info" {
		t.Fatalf("expected lowered level key, got %v", entry["level"])
	}
	if entry["msg"] != "json message" {
		t.Fatalf("expected msg key, got %v", entry["msg"])
	}
	if _, ok := entry["ts"]; !ok {
		t.Fatal("expected ts key in json output")
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestNewInvalidLevelDefaultsToInfo(t *testing.T) {
	tempDir := t.TempDir()
	logPath := filepath.Join(tempDir, "level.log")

	logger, err := logging.New(logging.Options{
		Format:           "console",
		Level:            "invalid",
		OutputPaths:      []string{logPath},
		ErrorOutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Debug("should be filtered")
	logger.Info("should appear")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if strings.Contains(string(content), "should be filtered") {
		t.Fatalf("debug output should be filtered at default level, got %q", content)
	}
	if !strings.Contains(string(content), "should appear") {
		t.Fatalf("info output missing, got %q", content)
	}
}

func TestWithContextAddsFields(t *testing.T) {
	tempDir := t.TempDir()
	logPath := filepath.Join(tempDir, "ctx.log")

	logger, err := logging.New(logging.Options{
		Format:           "json",
		Level:            "info",
		OutputPaths:      []string{logPath},
		ErrorOutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := context.Background()
	ctx = services.WithJobID(ctx, "job_0011223344ff_1700000000")
	ctx = services.WithStage(ctx, "transcribing")
	ctx = services.WithUserID(ctx, "user-9")
	ctx = services.WithRequestID(ctx, "req-xyz")

	logging.WithContext(ctx, logger).Info("contextual log")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal(content, &entry); err != nil {
		t.Fatalf("decode json log line: %v", err)
	}
	if entry[logging.FieldJobID] != "job_0011223344ff_1700000000" {
		t.Fatalf("job id field missing: %v", entry)
	}
	if entry[logging.FieldStage] != "transcribing" {
		t.Fatalf("stage field missing: %v", entry)
	}
	if entry[logging.FieldUserID] != "user-9" {
		t.Fatalf("user id field missing: %v", entry)
	}
	if entry[logging.FieldCorrelationID] != "req-xyz" {
		t.Fatalf("correlation id field missing: %v", entry)
	}
}

func TestNewComponentLoggerTagsComponent(t *testing.T) {
	tempDir := t.TempDir()
	logPath := filepath.Join(tempDir, "component.log")

	base, err := logging.New(logging.Options{
		Format:           "json",
		Level:            "info",
		OutputPaths:      []string{logPath},
		ErrorOutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logging.NewComponentLogger(base, "rate-limiter").Info("window advanced")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), `"component":"rate-limiter"`) {
		t.Fatalf("expected component attribute, got %q", content)
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	tempDir := t.TempDir()
	logPath := filepath.Join(tempDir, "warn.log")

	logger, err := logging.New(logging.Options{
		Format:           "json",
		Level:            "warn",
		OutputPaths:      []string{logPath},
		ErrorOutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logging.WarnWithContext(logger, "cache unavailable", "cache_degraded")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal(content, &entry); err != nil {
		t.Fatalf("decode json log line: %v", err)
	}
	if entry[logging.FieldEventType] != "cache_degraded" {
		t.Fatalf("event_type missing: %v", entry)
	}
	if entry[logging.FieldErrorHint] == nil {
		t.Fatalf("error_hint default missing: %v", entry)
	}
	if entry[logging.FieldImpact] == nil {
		t.Fatalf("impact default missing: %v", entry)
	}
}
