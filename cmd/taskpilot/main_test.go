package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/davenby/taskpilot/internal/auth"
)

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), &stdout, &stderr, args)
	return stdout.String(), err
}

func TestRun_Version(t *testing.T) {
	out, err := runCmd(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out, "Taskpilot") {
		t.Errorf("output = %q", out)
	}
}

func TestRun_VersionJSON(t *testing.T) {
	out, err := runCmd(t, "-o", "json", "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	var info map[string]string
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		t.Fatalf("not valid JSON: %v", err)
	}
	if info["version"] == "" {
		t.Error("version field missing")
	}
}

func TestRun_UnknownCommand(t *testing.T) {
	if _, err := runCmd(t, "bogus"); err == nil {
		t.Error("expected error for unknown command")
	}
}

func TestRun_UnknownFlag(t *testing.T) {
	if _, err := runCmd(t, "-bogus"); err == nil {
		t.Error("expected error for unknown flag")
	}
}

func TestRun_NoArgsPrintsUsage(t *testing.T) {
	out, err := runCmd(t)
	if err != nil {
		t.Fatalf("usage: %v", err)
	}
	if !strings.Contains(out, "Usage:") {
		t.Errorf("output = %q", out)
	}
}

func TestRun_BadOutputFormat(t *testing.T) {
	if _, err := runCmd(t, "-o", "xml", "version"); err == nil {
		t.Error("expected error for unknown output format")
	}
}

func TestInit_CreatesWorkspace(t *testing.T) {
	dir := t.TempDir()

	if _, err := runCmd(t, "init", dir); err != nil {
		t.Fatalf("init: %v", err)
	}

	configPath := filepath.Join(dir, "taskpilot.yaml")
	if _, err := os.Stat(configPath); err != nil {
		t.Errorf("config not created: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "db")); err != nil {
		t.Errorf("db dir not created: %v", err)
	}
}

func TestInit_NeverOverwrites(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "taskpilot.yaml")

	custom := []byte("log_level: debug\n")
	if err := os.WriteFile(configPath, custom, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := runCmd(t, "init", dir); err != nil {
		t.Fatalf("init: %v", err)
	}

	got, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, custom) {
		t.Error("init overwrote an existing config")
	}
}

func TestToken_MintsVerifiableToken(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "taskpilot.yaml")
	cfg := "auth:\n  secret: test-secret\n  token_ttl_hours: 1\n"
	if err := os.WriteFile(configPath, []byte(cfg), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	out, err := runCmd(t, "-config", configPath, "token", "alice")
	if err != nil {
		t.Fatalf("token: %v", err)
	}

	owner, err := auth.NewService("test-secret", time.Hour).VerifyToken(strings.TrimSpace(out))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if owner != "alice" {
		t.Errorf("owner = %q", owner)
	}
}

func TestToken_RequiresOwner(t *testing.T) {
	if _, err := runCmd(t, "token"); err == nil {
		t.Error("expected usage error")
	}
}
