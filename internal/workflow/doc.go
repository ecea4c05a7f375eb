// Package workflow drives an uploaded episode through the processing
// pipeline: upload to the object store, transcription, SEO content
// generation, and document persistence.
//
// Stages run in strict order and the result reports exactly which stages
// finished, so a failed run still returns everything the completed stages
// produced. Run executes all four stages synchronously; Submit performs only
// the upload, registers a job, and hands the rest to the background runner,
// which calls Process with the tracker updated at every stage boundary.
// Vendor calls go through the resilience executors and the per-service
// throttle, and their outcomes feed the metrics collector.
package workflow
