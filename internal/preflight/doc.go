// Package preflight provides readiness checks for the external services
// and filesystem paths the daemon depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll at startup and logs every failure before
//     deciding whether it can serve at all.
//   - The CLI "podmill preflight" and "podmill status" commands use the
//     results to display dependency health.
//
// Checks never mutate anything; directory creation stays with
// config.EnsureDirectories.
package preflight
