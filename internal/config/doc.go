// Package config loads, validates, and normalizes podmill configuration.
//
// Configuration lives in a TOML file (default ~/.config/podmill/config.toml)
// with one section per subsystem. Load applies defaults for missing values,
// expands paths, pulls secrets from the environment when the file omits them,
// and rejects configurations the daemon could not run with.
package config
