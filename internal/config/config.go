package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	StagingDir string `toml:"staging_dir"`
	LogDir     string `toml:"log_dir"`
}

// Server contains HTTP API configuration.
type Server struct {
	Bind           string `toml:"bind"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Auth contains token verification settings for the HTTP API.
type Auth struct {
	JWTSecret       string `toml:"jwt_secret"`
	TokenTTLMinutes int    `toml:"token_ttl_minutes"`
}

// Redis contains connection settings for the shared Redis instance used by
// rate limiting, the priority queue, and response caching.
type Redis struct {
	URL         string `toml:"url"`
	DialTimeout int    `toml:"dial_timeout"`
}

// Mongo contains document store connection settings.
type Mongo struct {
	URI            string `toml:"uri"`
	Database       string `toml:"database"`
	Collection     string `toml:"collection"`
	ConnectTimeout int    `toml:"connect_timeout"`
}

// Storage contains upload object store settings. Uploaded audio lands under
// DataDir as users/<user_id>/podcasts/<object>; download URLs are signed with
// SigningSecret and expire after URLTTLDays.
type Storage struct {
	DataDir       string `toml:"data_dir"`
	BaseURL       string `toml:"base_url"`
	SigningSecret string `toml:"signing_secret"`
	MaxFileSizeMB int    `toml:"max_file_size_mb"`
	URLTTLDays    int    `toml:"url_ttl_days"`
}

// Transcriber contains configuration for the speech-to-text vendor.
type Transcriber struct {
	APIKey  string `toml:"api_key"`
	BaseURL string `toml:"base_url"`
	Model   string `toml:"model"`
}

// ContentGen contains configuration for the SEO content generation vendor.
type ContentGen struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// RabbitMQ contains message broker settings for background job dispatch.
type RabbitMQ struct {
	URL            string `toml:"url"`
	Exchange       string `toml:"exchange"`
	Queue          string `toml:"queue"`
	PublishTimeout int    `toml:"publish_timeout"`
}

// Pipeline contains worker pool timing and concurrency settings. Runner
// selects how background jobs are dispatched: "inprocess" runs them on a
// goroutine pool inside the daemon, "amqp" publishes them to RabbitMQ.
type Pipeline struct {
	Runner            string `toml:"runner"`
	Workers           int    `toml:"workers"`
	QueuePollInterval int    `toml:"queue_poll_interval"`
	HeartbeatInterval int    `toml:"heartbeat_interval"`
	HeartbeatTimeout  int    `toml:"heartbeat_timeout"`
}

// Jobs contains job tracker retention settings.
type Jobs struct {
	RetentionHours         int    `toml:"retention_hours"`
	CleanupIntervalMinutes int    `toml:"cleanup_interval_minutes"`
	ArchiveDB              string `toml:"archive_db"`
}

// Limits contains admission control settings.
type Limits struct {
	FailOpen        bool `toml:"fail_open"`
	QueueTTLSeconds int  `toml:"queue_ttl_seconds"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic          string `toml:"ntfy_topic"`
	RequestTimeout     int    `toml:"request_timeout"`
	JobComplete        bool   `toml:"job_complete"`
	JobFailed          bool   `toml:"job_failed"`
	Queue              bool   `toml:"queue"`
	Errors             bool   `toml:"errors"`
	DedupWindowSeconds int    `toml:"dedup_window_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for podmill.
//
// Configuration sections by subsystem:
//   - Paths: staging and log directories
//   - Server: HTTP API bind address and timeouts
//   - Auth: JWT verification settings
//   - Redis: shared Redis connection for limits, queue, and cache
//   - Mongo: document store connection
//   - Storage: upload object root, URL signing, and size caps
//   - Transcriber: speech-to-text vendor credentials
//   - ContentGen: SEO content vendor credentials
//   - RabbitMQ: background dispatch broker
//   - Pipeline: worker pool concurrency and polling
//   - Jobs: tracker retention and archive database
//   - Limits: admission control behavior
//   - Notifications: ntfy push notification settings
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Server        Server        `toml:"server"`
	Auth          Auth          `toml:"auth"`
	Redis         Redis         `toml:"redis"`
	Mongo         Mongo         `toml:"mongo"`
	Storage       Storage       `toml:"storage"`
	Transcriber   Transcriber   `toml:"transcriber"`
	ContentGen    ContentGen    `toml:"contentgen"`
	RabbitMQ      RabbitMQ      `toml:"rabbitmq"`
	Pipeline      Pipeline      `toml:"pipeline"`
	Jobs          Jobs          `toml:"jobs"`
	Limits        Limits        `toml:"limits"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/podmill/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath("~/.config/podmill/config.toml")
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("podmill.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StagingDir, c.Paths.LogDir, c.Storage.DataDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if trimmed := strings.TrimSpace(c.Jobs.ArchiveDB); trimmed != "" {
		if err := os.MkdirAll(filepath.Dir(trimmed), 0o755); err != nil {
			return fmt.Errorf("create archive directory for %q: %w", trimmed, err)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

func defaultArchiveDBPath() string {
	if base, ok := os.LookupEnv("XDG_DATA_HOME"); ok && strings.TrimSpace(base) != "" {
		return filepath.Join(base, "podmill", "jobs.db")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "~/.local/share/podmill/jobs.db"
	}
	return filepath.Join(home, ".local", "share", "podmill", "jobs.db")
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	sample := sampleConfig

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
