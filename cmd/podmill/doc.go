// Package main hosts the Podmill CLI entrypoint and command graph.
//
// The Cobra-based command tree runs the daemon in the foreground and
// translates the remaining invocations into IPC calls against it: status,
// job inspection and cancellation, deferred-queue maintenance, notification
// tests, and configuration scaffolding. It centralizes configuration
// resolution and socket discovery so subcommands can focus on output.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
