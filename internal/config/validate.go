package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateAuth(); err != nil {
		return err
	}
	if err := c.validateVendors(); err != nil {
		return err
	}
	if err := c.validateConnections(); err != nil {
		return err
	}
	if err := c.validateTimings(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateAuth() error {
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/podmill/config.toml"
		}
		return fmt.Errorf("auth.jwt_secret is required. Set PODMILL_JWT_SECRET env var or edit %s (create with 'podmill config init')", defaultPath)
	}
	return nil
}

func (c *Config) validateVendors() error {
	if strings.TrimSpace(c.Transcriber.APIKey) == "" {
		return errors.New("transcriber.api_key is required. Set DEEPGRAM_API_KEY env var or add it to the config file")
	}
	if strings.TrimSpace(c.ContentGen.APIKey) == "" {
		return errors.New("contentgen.api_key is required. Set GEMINI_API_KEY env var or add it to the config file")
	}
	if _, err := url.Parse(c.Transcriber.BaseURL); err != nil {
		return fmt.Errorf("transcriber.base_url is not a valid URL: %w", err)
	}
	if _, err := url.Parse(c.ContentGen.BaseURL); err != nil {
		return fmt.Errorf("contentgen.base_url is not a valid URL: %w", err)
	}
	return nil
}

func (c *Config) validateConnections() error {
	if !strings.HasPrefix(c.Redis.URL, "redis://") && !strings.HasPrefix(c.Redis.URL, "rediss://") {
		return fmt.Errorf("redis.url must start with redis:// or rediss://, got %q", c.Redis.URL)
	}
	if !strings.HasPrefix(c.Mongo.URI, "mongodb://") && !strings.HasPrefix(c.Mongo.URI, "mongodb+srv://") {
		return fmt.Errorf("mongo.uri must start with mongodb:// or mongodb+srv://, got %q", c.Mongo.URI)
	}
	if !strings.HasPrefix(c.RabbitMQ.URL, "amqp://") && !strings.HasPrefix(c.RabbitMQ.URL, "amqps://") {
		return fmt.Errorf("rabbitmq.url must start with amqp:// or amqps://, got %q", c.RabbitMQ.URL)
	}
	return nil
}

func (c *Config) validateTimings() error {
	if err := ensurePositiveMap(map[string]int{
		"server.request_timeout":        c.Server.RequestTimeout,
		"redis.dial_timeout":            c.Redis.DialTimeout,
		"mongo.connect_timeout":         c.Mongo.ConnectTimeout,
		"contentgen.timeout_seconds":    c.ContentGen.TimeoutSeconds,
		"rabbitmq.publish_timeout":      c.RabbitMQ.PublishTimeout,
		"pipeline.workers":              c.Pipeline.Workers,
		"pipeline.queue_poll_interval":  c.Pipeline.QueuePollInterval,
		"jobs.retention_hours":          c.Jobs.RetentionHours,
		"jobs.cleanup_interval_minutes": c.Jobs.CleanupIntervalMinutes,
		"limits.queue_ttl_seconds":      c.Limits.QueueTTLSeconds,
		"storage.max_file_size_mb":      c.Storage.MaxFileSizeMB,
	}); err != nil {
		return err
	}
	switch c.Pipeline.Runner {
	case "inprocess", "amqp":
	default:
		return fmt.Errorf("pipeline.runner must be \"inprocess\" or \"amqp\", got %q", c.Pipeline.Runner)
	}
	if c.Pipeline.HeartbeatInterval <= 0 {
		return errors.New("pipeline.heartbeat_interval must be positive")
	}
	if c.Pipeline.HeartbeatTimeout <= 0 {
		return errors.New("pipeline.heartbeat_timeout must be positive")
	}
	if c.Pipeline.HeartbeatTimeout <= c.Pipeline.HeartbeatInterval {
		return errors.New("pipeline.heartbeat_timeout must be greater than pipeline.heartbeat_interval")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	if c.Notifications.DedupWindowSeconds < 0 {
		return errors.New("notifications.dedup_window_seconds must be >= 0")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
