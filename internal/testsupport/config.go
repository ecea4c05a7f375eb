package testsupport

import (
	"path/filepath"
	"testing"

	"podmill/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// External backends are disabled so the assembled stack stays in process;
// options re-enable them where a test needs the real thing.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StagingDir = filepath.Join(base, "staging")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Storage.DataDir = filepath.Join(base, "objects")
	cfgVal.Storage.SigningSecret = "test-signing-secret"
	cfgVal.Server.Bind = "127.0.0.1:0"
	cfgVal.Auth.JWTSecret = "test-jwt-secret"
	cfgVal.Redis.URL = ""
	cfgVal.Mongo.URI = ""
	cfgVal.Jobs.ArchiveDB = ""

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithArchiveDB points the job archive at a SQLite file under the test's
// temp directory.
func WithArchiveDB() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Jobs.ArchiveDB = filepath.Join(b.baseDir, "jobs.db")
	}
}

// WithVendorKeys sets the transcriber and content generator API keys so the
// assembled stack builds real vendor clients instead of the scripted fakes.
func WithVendorKeys(transcriberKey, contentGenKey string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Transcriber.APIKey = transcriberKey
		b.cfg.ContentGen.APIKey = contentGenKey
	}
}

// WithNtfyTopic enables notification delivery against the given topic.
func WithNtfyTopic(topic string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Notifications.NtfyTopic = topic
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StagingDir)
}
