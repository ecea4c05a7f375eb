// Package resilience guards calls to downstream vendors with per-service
// circuit breakers and bounded retry.
//
// Each vendor gets one Breaker and one retry Policy; the Executor composes
// them so that every attempt first passes the breaker, failures count toward
// opening it, and retry pacing honors vendor Retry-After hints. An open
// breaker fails fast with a service-unavailable error instead of queueing
// work behind a dead dependency.
package resilience
