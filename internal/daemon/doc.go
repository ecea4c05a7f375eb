// Package daemon assembles the processing stack and supervises its runtime:
// the HTTP listener, the background runner, and the maintenance loops. A file
// lock enforces a single daemon instance per log directory, and the control
// socket drives the daemon through the facade methods on Daemon.
package daemon
