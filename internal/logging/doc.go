// Package logging centralizes logger construction so every component logs
// through the same slog pipeline.
//
// Handlers support a human console format and machine JSON output, share one
// level variable, and can fan out to per-run daemon log files. Context-derived
// attributes (job, stage, user, request) keep log lines from deep inside the
// pipeline correlated with the request that triggered them.
package logging
