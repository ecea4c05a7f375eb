// Package cache provides the shared TTL cache used across the pipeline.
//
// Entries are namespaced as cache:<type>:<key> and each cache type carries a
// default TTL. The manager degrades on backend failure: reads become misses
// and writes become logged no-ops, so a cache outage never fails a request.
package cache
