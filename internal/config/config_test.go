package config_test

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"podmill/internal/config"
)

func setRequiredSecrets(t *testing.T) {
	t.Helper()
	t.Setenv("PODMILL_JWT_SECRET", "test-secret")
	t.Setenv("DEEPGRAM_API_KEY", "test-deepgram")
	t.Setenv("GEMINI_API_KEY", "test-gemini")
}

func TestLoadDefaultConfigUsesEnvSecretsAndExpandsPaths(t *testing.T) {
	setRequiredSecrets(t)
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("XDG_DATA_HOME", "")

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantStaging := filepath.Join(tempHome, ".local", "share", "podmill", "staging")
	if cfg.Paths.StagingDir != wantStaging {
		t.Fatalf("unexpected staging dir: got %q want %q", cfg.Paths.StagingDir, wantStaging)
	}
	if cfg.Server.Bind != "127.0.0.1:8264" {
		t.Fatalf("unexpected server bind: %q", cfg.Server.Bind)
	}
	if cfg.Auth.JWTSecret != "test-secret" {
		t.Fatalf("expected JWT secret from env, got %q", cfg.Auth.JWTSecret)
	}
	if cfg.Transcriber.APIKey != "test-deepgram" {
		t.Fatalf("expected transcriber key from env, got %q", cfg.Transcriber.APIKey)
	}
	if cfg.ContentGen.APIKey != "test-gemini" {
		t.Fatalf("expected contentgen key from env, got %q", cfg.ContentGen.APIKey)
	}
	if cfg.Transcriber.Model != "nova-2" {
		t.Fatalf("unexpected transcriber model: %q", cfg.Transcriber.Model)
	}
	if cfg.Redis.URL != config.Default().Redis.URL {
		t.Fatalf("unexpected redis url: %q", cfg.Redis.URL)
	}
	if cfg.Storage.MaxFileSizeMB != 500 {
		t.Fatalf("unexpected max file size: %d", cfg.Storage.MaxFileSizeMB)
	}
	wantObjects := filepath.Join(tempHome, ".local", "share", "podmill", "objects")
	if cfg.Storage.DataDir != wantObjects {
		t.Fatalf("unexpected storage data dir: got %q want %q", cfg.Storage.DataDir, wantObjects)
	}
	if cfg.Storage.SigningSecret != "test-secret" {
		t.Fatalf("expected signing secret to fall back to JWT secret, got %q", cfg.Storage.SigningSecret)
	}
	if cfg.Pipeline.Runner != "inprocess" {
		t.Fatalf("unexpected pipeline runner: %q", cfg.Pipeline.Runner)
	}
	if cfg.Jobs.RetentionHours != 24 {
		t.Fatalf("unexpected retention hours: %d", cfg.Jobs.RetentionHours)
	}
	if !cfg.Limits.FailOpen {
		t.Fatal("expected fail-open admission control by default")
	}
	if cfg.Pipeline.HeartbeatInterval != config.Default().Pipeline.HeartbeatInterval {
		t.Fatalf("unexpected heartbeat interval: %d", cfg.Pipeline.HeartbeatInterval)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}

	for _, dir := range []string{cfg.Paths.StagingDir, cfg.Paths.LogDir, cfg.Storage.DataDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	setRequiredSecrets(t)
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "podmill.toml")

	type payload struct {
		Server struct {
			Bind string `toml:"bind"`
		} `toml:"server"`
		Mongo struct {
			Database string `toml:"database"`
		} `toml:"mongo"`
		Pipeline struct {
			Workers           int `toml:"workers"`
			HeartbeatInterval int `toml:"heartbeat_interval"`
			HeartbeatTimeout  int `toml:"heartbeat_timeout"`
		} `toml:"pipeline"`
	}
	custom := payload{}
	custom.Server.Bind = "0.0.0.0:9000"
	custom.Mongo.Database = "podcasts"
	custom.Pipeline.Workers = 8
	custom.Pipeline.HeartbeatInterval = 20
	custom.Pipeline.HeartbeatTimeout = 200
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Server.Bind != "0.0.0.0:9000" {
		t.Fatalf("expected bind override, got %q", cfg.Server.Bind)
	}
	if cfg.Mongo.Database != "podcasts" {
		t.Fatalf("expected database override, got %q", cfg.Mongo.Database)
	}
	if cfg.Pipeline.Workers != 8 {
		t.Fatalf("expected 8 workers, got %d", cfg.Pipeline.Workers)
	}
	if cfg.Pipeline.HeartbeatTimeout != 200 {
		t.Fatalf("expected heartbeat timeout 200, got %d", cfg.Pipeline.HeartbeatTimeout)
	}
	if cfg.Mongo.Collection != "podcasts" {
		t.Fatalf("expected collection default to survive partial override, got %q", cfg.Mongo.Collection)
	}
}

func TestEnvVarOverridesConfigFileForSecrets(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "podmill.toml")

	type payload struct {
		Auth struct {
			JWTSecret string `toml:"jwt_secret"`
		} `toml:"auth"`
		Transcriber struct {
			APIKey string `toml:"api_key"`
		} `toml:"transcriber"`
		ContentGen struct {
			APIKey string `toml:"api_key"`
		} `toml:"contentgen"`
	}
	custom := payload{}
	custom.Auth.JWTSecret = "file-secret"
	custom.Transcriber.APIKey = "file-deepgram"
	custom.ContentGen.APIKey = "file-gemini"

	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	setRequiredSecrets(t)

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	// File values win when present; env fills the gaps.
	if cfg.Auth.JWTSecret != "file-secret" {
		t.Errorf("expected JWT secret from file, got %q", cfg.Auth.JWTSecret)
	}
	if cfg.Transcriber.APIKey != "file-deepgram" {
		t.Errorf("expected transcriber key from file, got %q", cfg.Transcriber.APIKey)
	}
	if cfg.ContentGen.APIKey != "file-gemini" {
		t.Errorf("expected contentgen key from file, got %q", cfg.ContentGen.APIKey)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "[transcriber]") {
		t.Fatalf("sample config missing transcriber section: %s", contents)
	}

	// Validate it decodes
	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}

	if runtime.GOOS != "windows" {
		if !strings.Contains(cfg.Paths.StagingDir, "podmill") {
			t.Fatalf("expected staging dir to contain podmill, got %q", cfg.Paths.StagingDir)
		}
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	base := func() config.Config {
		cfg := config.Default()
		cfg.Auth.JWTSecret = "secret"
		cfg.Transcriber.APIKey = "key"
		cfg.ContentGen.APIKey = "key"
		return cfg
	}

	cfg := base()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected base config to validate, got %v", err)
	}

	cfg = base()
	cfg.Auth.JWTSecret = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing JWT secret")
	}

	cfg = base()
	cfg.Transcriber.APIKey = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing transcriber key")
	}

	cfg = base()
	cfg.Server.RequestTimeout = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-positive timeout")
	}

	cfg = base()
	cfg.Pipeline.HeartbeatTimeout = cfg.Pipeline.HeartbeatInterval
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when timeout <= interval")
	}

	cfg = base()
	cfg.Pipeline.Runner = "celery"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown pipeline runner")
	}

	cfg = base()
	cfg.Redis.URL = "memcached://localhost"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-redis URL scheme")
	}

	cfg = base()
	cfg.Mongo.URI = "http://localhost"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-mongodb URI scheme")
	}

	cfg = base()
	cfg.RabbitMQ.URL = "kafka://localhost"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-amqp URL scheme")
	}
}
