// Package server exposes the podcast processing API over HTTP.
//
// All processing routes live under /api/v1 and require a bearer token; the
// health probe at /healthz is unauthenticated. Authentication resolves the
// caller identity, admission control charges the caller's tier windows, and
// every handled request is recorded on the metrics collector. Success bodies
// are the domain objects themselves; failures share one envelope carrying an
// application code and message.
package server
