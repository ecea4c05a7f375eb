package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeServer()
	c.normalizeAuth()
	c.normalizeRedis()
	c.normalizeMongo()
	if err := c.normalizeStorage(); err != nil {
		return err
	}
	c.normalizeTranscriber()
	c.normalizeContentGen()
	c.normalizeRabbitMQ()
	c.normalizePipeline()
	if err := c.normalizeJobs(); err != nil {
		return err
	}
	c.normalizeLimits()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StagingDir) == "" {
		c.Paths.StagingDir = defaultStagingDir
	}
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeServer() {
	c.Server.Bind = strings.TrimSpace(c.Server.Bind)
	if c.Server.Bind == "" {
		c.Server.Bind = defaultServerBind
	}
	if c.Server.RequestTimeout <= 0 {
		c.Server.RequestTimeout = defaultServerRequestTimeout
	}
}

func (c *Config) normalizeAuth() {
	c.Auth.JWTSecret = strings.TrimSpace(c.Auth.JWTSecret)
	if c.Auth.JWTSecret == "" {
		if value, ok := os.LookupEnv("PODMILL_JWT_SECRET"); ok {
			c.Auth.JWTSecret = strings.TrimSpace(value)
		}
	}
	if c.Auth.TokenTTLMinutes <= 0 {
		c.Auth.TokenTTLMinutes = defaultTokenTTLMinutes
	}
}

func (c *Config) normalizeRedis() {
	c.Redis.URL = strings.TrimSpace(c.Redis.URL)
	if c.Redis.URL == "" {
		if value, ok := os.LookupEnv("REDIS_URL"); ok {
			c.Redis.URL = strings.TrimSpace(value)
		}
	}
	if c.Redis.URL == "" {
		c.Redis.URL = defaultRedisURL
	}
	if c.Redis.DialTimeout <= 0 {
		c.Redis.DialTimeout = defaultRedisDialTimeout
	}
}

func (c *Config) normalizeMongo() {
	c.Mongo.URI = strings.TrimSpace(c.Mongo.URI)
	if c.Mongo.URI == "" {
		if value, ok := os.LookupEnv("MONGODB_URI"); ok {
			c.Mongo.URI = strings.TrimSpace(value)
		}
	}
	if c.Mongo.URI == "" {
		c.Mongo.URI = defaultMongoURI
	}
	c.Mongo.Database = strings.TrimSpace(c.Mongo.Database)
	if c.Mongo.Database == "" {
		c.Mongo.Database = defaultMongoDatabase
	}
	c.Mongo.Collection = strings.TrimSpace(c.Mongo.Collection)
	if c.Mongo.Collection == "" {
		c.Mongo.Collection = defaultMongoCollection
	}
	if c.Mongo.ConnectTimeout <= 0 {
		c.Mongo.ConnectTimeout = defaultMongoConnectTimeout
	}
}

func (c *Config) normalizeStorage() error {
	var err error
	if strings.TrimSpace(c.Storage.DataDir) == "" {
		c.Storage.DataDir = defaultStorageDataDir
	}
	if c.Storage.DataDir, err = expandPath(c.Storage.DataDir); err != nil {
		return fmt.Errorf("storage.data_dir: %w", err)
	}
	c.Storage.BaseURL = strings.TrimSuffix(strings.TrimSpace(c.Storage.BaseURL), "/")
	if c.Storage.BaseURL == "" {
		c.Storage.BaseURL = defaultStorageBaseURL
	}
	c.Storage.SigningSecret = strings.TrimSpace(c.Storage.SigningSecret)
	if c.Storage.SigningSecret == "" {
		c.Storage.SigningSecret = c.Auth.JWTSecret
	}
	if c.Storage.MaxFileSizeMB <= 0 {
		c.Storage.MaxFileSizeMB = defaultMaxFileSizeMB
	}
	if c.Storage.URLTTLDays <= 0 {
		c.Storage.URLTTLDays = defaultStorageURLTTLDays
	}
	return nil
}

func (c *Config) normalizeTranscriber() {
	c.Transcriber.APIKey = strings.TrimSpace(c.Transcriber.APIKey)
	if c.Transcriber.APIKey == "" {
		if value, ok := os.LookupEnv("DEEPGRAM_API_KEY"); ok {
			c.Transcriber.APIKey = strings.TrimSpace(value)
		}
	}
	c.Transcriber.BaseURL = strings.TrimSpace(c.Transcriber.BaseURL)
	if c.Transcriber.BaseURL == "" {
		c.Transcriber.BaseURL = defaultTranscriberBaseURL
	}
	c.Transcriber.Model = strings.TrimSpace(c.Transcriber.Model)
	if c.Transcriber.Model == "" {
		c.Transcriber.Model = defaultTranscriberModel
	}
}

func (c *Config) normalizeContentGen() {
	c.ContentGen.APIKey = strings.TrimSpace(c.ContentGen.APIKey)
	if c.ContentGen.APIKey == "" {
		if value, ok := os.LookupEnv("GEMINI_API_KEY"); ok {
			c.ContentGen.APIKey = strings.TrimSpace(value)
		}
	}
	c.ContentGen.BaseURL = strings.TrimSpace(c.ContentGen.BaseURL)
	if c.ContentGen.BaseURL == "" {
		c.ContentGen.BaseURL = defaultContentGenBaseURL
	}
	c.ContentGen.Model = strings.TrimSpace(c.ContentGen.Model)
	if c.ContentGen.Model == "" {
		c.ContentGen.Model = defaultContentGenModel
	}
	if c.ContentGen.TimeoutSeconds <= 0 {
		c.ContentGen.TimeoutSeconds = defaultContentGenTimeout
	}
}

func (c *Config) normalizeRabbitMQ() {
	c.RabbitMQ.URL = strings.TrimSpace(c.RabbitMQ.URL)
	if c.RabbitMQ.URL == "" {
		if value, ok := os.LookupEnv("RABBITMQ_URL"); ok {
			c.RabbitMQ.URL = strings.TrimSpace(value)
		}
	}
	if c.RabbitMQ.URL == "" {
		c.RabbitMQ.URL = defaultRabbitURL
	}
	c.RabbitMQ.Exchange = strings.TrimSpace(c.RabbitMQ.Exchange)
	if c.RabbitMQ.Exchange == "" {
		c.RabbitMQ.Exchange = defaultRabbitExchange
	}
	c.RabbitMQ.Queue = strings.TrimSpace(c.RabbitMQ.Queue)
	if c.RabbitMQ.Queue == "" {
		c.RabbitMQ.Queue = defaultRabbitQueue
	}
	if c.RabbitMQ.PublishTimeout <= 0 {
		c.RabbitMQ.PublishTimeout = defaultRabbitPublishTimeout
	}
}

func (c *Config) normalizePipeline() {
	c.Pipeline.Runner = strings.ToLower(strings.TrimSpace(c.Pipeline.Runner))
	if c.Pipeline.Runner == "" {
		c.Pipeline.Runner = defaultPipelineRunner
	}
	if c.Pipeline.Workers <= 0 {
		c.Pipeline.Workers = defaultPipelineWorkers
	}
	if c.Pipeline.QueuePollInterval <= 0 {
		c.Pipeline.QueuePollInterval = defaultQueuePollInterval
	}
	if c.Pipeline.HeartbeatInterval <= 0 {
		c.Pipeline.HeartbeatInterval = defaultHeartbeatInterval
	}
	if c.Pipeline.HeartbeatTimeout <= 0 {
		c.Pipeline.HeartbeatTimeout = defaultHeartbeatTimeout
	}
}

func (c *Config) normalizeJobs() error {
	var err error
	if c.Jobs.RetentionHours <= 0 {
		c.Jobs.RetentionHours = defaultJobRetentionHours
	}
	if c.Jobs.CleanupIntervalMinutes <= 0 {
		c.Jobs.CleanupIntervalMinutes = defaultCleanupIntervalMinutes
	}
	if strings.TrimSpace(c.Jobs.ArchiveDB) == "" {
		c.Jobs.ArchiveDB = defaultArchiveDBPath()
	}
	if c.Jobs.ArchiveDB, err = expandPath(c.Jobs.ArchiveDB); err != nil {
		return fmt.Errorf("jobs.archive_db: %w", err)
	}
	return nil
}

func (c *Config) normalizeLimits() {
	if c.Limits.QueueTTLSeconds <= 0 {
		c.Limits.QueueTTLSeconds = defaultQueueTTLSeconds
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
	if c.Notifications.DedupWindowSeconds < 0 {
		c.Notifications.DedupWindowSeconds = 0
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
