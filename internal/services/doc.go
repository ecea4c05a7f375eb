// Package services defines the shared error taxonomy and context plumbing
// used by the pipeline stages and the vendor clients.
//
// Errors produced anywhere in the processing path are tagged with one of the
// exported sentinel markers so that callers (the workflow orchestrator, the
// HTTP layer, the resilience executor) can classify failures without string
// matching. Context helpers carry job, stage, and user identity so log lines
// emitted deep inside a vendor client still correlate with the request that
// triggered them.
package services
