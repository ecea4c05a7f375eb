package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"config", "validate"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")

	tmp := t.TempDir()
	target := filepath.Join(tmp, "config.toml")
	out, _, err = runCLI(t, []string{"config", "init", "--path", target}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")

	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	_, _, err = runCLI(t, []string{"config", "init", "--path", target}, env.socketPath, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("expected already-exists error, got %v", err)
	}

	_, _, err = runCLI(t, []string{"config", "init", "--path", target, "--overwrite"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}
}

func TestConfigValidateRejectsIncompleteConfig(t *testing.T) {
	env := setupCLITestEnv(t)

	incomplete := filepath.Join(env.baseDir, "incomplete.toml")
	if err := os.WriteFile(incomplete, []byte("[server]\nbind = \"127.0.0.1:0\"\n"), 0o644); err != nil {
		t.Fatalf("write incomplete config: %v", err)
	}

	_, _, err := runCLI(t, []string{"config", "validate"}, env.socketPath, incomplete)
	if err == nil || !strings.Contains(err.Error(), "jwt_secret") {
		t.Fatalf("expected jwt_secret error, got %v", err)
	}
}

func TestConfigShow(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"config", "show"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, "== Configuration ==")
	requireContains(t, out, env.configPath)
	requireContains(t, out, "Bind:")
	requireContains(t, out, "JWT secret:")
	requireContains(t, out, "set")
	if strings.Contains(out, "test-jwt-secret") {
		t.Fatalf("config show must not print secret values: %q", out)
	}
}
