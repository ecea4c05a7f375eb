// Package jobs tracks processing jobs through their lifecycle.
//
// The Tracker is the in-process registry consulted by the HTTP layer and
// updated by the pipeline at stage boundaries. Status transitions are
// validated and terminal states are sticky. A periodic sweeper evicts jobs
// past the retention age, and terminal jobs are mirrored to a SQLite archive
// so history survives the sweep.
//
// Treat this package as the single source of truth for job semantics; when
// you add statuses or fields, update schema.sql and bump schemaVersion.
package jobs
