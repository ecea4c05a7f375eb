// Package clients provides pooled HTTP clients for the downstream vendors.
//
// Each vendor gets its own transport sized for its traffic shape: the
// transcriber moves large audio bodies on few connections, the content
// generator holds long-lived requests, and the document store sees many short
// calls. StatusError carries the HTTP status and any Retry-After hint upstream
// so the resilience executor can classify and pace retries.
package clients
