package preflight

import (
	"context"
	"strings"

	"podmill/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
// Connectivity checks only run for the backends the configuration selects.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	results = append(results,
		CheckDirectoryAccess("Staging directory", cfg.Paths.StagingDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckDirectoryAccess("Object storage directory", cfg.Storage.DataDir),
	)

	results = append(results,
		CheckAuthSecret(cfg.Auth.JWTSecret),
		CheckVendorKey("Transcriber credentials", cfg.Transcriber.APIKey),
		CheckVendorKey("Content generator credentials", cfg.ContentGen.APIKey),
	)

	results = append(results,
		CheckRedis(ctx, cfg.Redis),
		CheckMongo(ctx, cfg.Mongo),
	)

	if strings.EqualFold(strings.TrimSpace(cfg.Pipeline.Runner), "amqp") {
		results = append(results, CheckBroker(cfg.RabbitMQ))
	}

	return results
}

// Failures filters results down to the failed checks.
func Failures(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
