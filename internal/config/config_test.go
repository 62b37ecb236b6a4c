package config

import (
	"os"
	"path/filepath"
	"syscall"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
}

func TestLoadOrdersJobsByDocumentPosition(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jobmon.yaml")
	writeFile(t, path, `
control_endpoint: unix://`+dir+`/control.sock
event_endpoint: unix://`+dir+`/event.sock
jobs:
  zeta:
    command: /bin/true
  alpha:
    command: /bin/true
  mid:
    command: /bin/true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"zeta", "alpha", "mid"}
	if len(cfg.JobOrder) != len(want) {
		t.Fatalf("job order length = %d, want %d", len(cfg.JobOrder), len(want))
	}
	for i, name := range want {
		if cfg.JobOrder[i] != name {
			t.Errorf("JobOrder[%d] = %q, want %q", i, cfg.JobOrder[i], name)
		}
	}
}

func TestLoadExpandsEnvironmentVariables(t *testing.T) {
	t.Setenv("JOBMON_TEST_DIR", "/var/log/app")

	dir := t.TempDir()
	path := filepath.Join(dir, "jobmon.yaml")
	writeFile(t, path, `
control_endpoint: unix://`+dir+`/control.sock
event_endpoint: unix://`+dir+`/event.sock
jobs:
  web:
    command: /bin/true
    stdout: $JOBMON_TEST_DIR/web.log
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := cfg.Jobs["web"].Stdout; got != "/var/log/app/web.log" {
		t.Errorf("Stdout = %q, want /var/log/app/web.log", got)
	}
}

func TestLoadDefaultsStopSignalToTerm(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jobmon.yaml")
	writeFile(t, path, `
control_endpoint: unix://`+dir+`/control.sock
event_endpoint: unix://`+dir+`/event.sock
jobs:
  web:
    command: /bin/true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := cfg.Jobs["web"].StopSignal; got != syscall.SIGTERM {
		t.Errorf("StopSignal = %v, want SIGTERM", got)
	}
}

func TestLoadRejectsEmptyCommand(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jobmon.yaml")
	writeFile(t, path, `
control_endpoint: unix://`+dir+`/control.sock
event_endpoint: unix://`+dir+`/event.sock
jobs:
  web:
    command: ""
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for empty command, got nil")
	}
}

func TestLoadRejectsMissingEndpoints(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jobmon.yaml")
	writeFile(t, path, `
jobs:
  web:
    command: /bin/true
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for missing endpoints, got nil")
	}
}
