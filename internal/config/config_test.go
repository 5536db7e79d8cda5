package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	if cfg.Dispatcher.ClientAddr != ":5000" {
		t.Errorf("expected client addr :5000, got %s", cfg.Dispatcher.ClientAddr)
	}
	if cfg.Dispatcher.WorkerAddr != ":5001" {
		t.Errorf("expected worker addr :5001, got %s", cfg.Dispatcher.WorkerAddr)
	}
	if cfg.Dispatcher.TaskTimeout != 10*time.Second {
		t.Errorf("expected 10s task timeout, got %v", cfg.Dispatcher.TaskTimeout)
	}
	if len(cfg.Worker.DispatcherAddrs) != 1 || cfg.Worker.DispatcherAddrs[0] != "127.0.0.1:5001" {
		t.Errorf("unexpected dispatcher addrs: %v", cfg.Worker.DispatcherAddrs)
	}
	if cfg.Worker.ReconnectDelay != 5*time.Second {
		t.Errorf("expected 5s reconnect delay, got %v", cfg.Worker.ReconnectDelay)
	}
	if cfg.Storage.DBPath == "" {
		t.Error("expected a default database path")
	}
}

func TestLoadCustomFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
dispatcher:
  client_addr: ":6000"
  task_timeout: 3s
worker:
  dispatcher_addrs:
    - "10.0.0.1:5001"
    - "10.0.0.2:5001"
  reconnect_delay: 2s
storage:
  db_path: "/tmp/test-matches.db"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("cannot write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Dispatcher.ClientAddr != ":6000" {
		t.Errorf("expected client addr :6000, got %s", cfg.Dispatcher.ClientAddr)
	}
	// Fields absent from the file keep their defaults.
	if cfg.Dispatcher.WorkerAddr != ":5001" {
		t.Errorf("expected default worker addr, got %s", cfg.Dispatcher.WorkerAddr)
	}
	if cfg.Dispatcher.TaskTimeout != 3*time.Second {
		t.Errorf("expected 3s task timeout, got %v", cfg.Dispatcher.TaskTimeout)
	}
	if len(cfg.Worker.DispatcherAddrs) != 2 {
		t.Errorf("expected 2 dispatcher addrs, got %v", cfg.Worker.DispatcherAddrs)
	}
	if cfg.Worker.ReconnectDelay != 2*time.Second {
		t.Errorf("expected 2s reconnect delay, got %v", cfg.Worker.ReconnectDelay)
	}
	if cfg.Storage.DBPath != "/tmp/test-matches.db" {
		t.Errorf("expected overridden db path, got %s", cfg.Storage.DBPath)
	}
}

func TestLoadMissingCustomFileIsAnError(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("an explicit config path that cannot be read should fail")
	}
}

func TestLoadMalformedCustomFileIsAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("dispatcher: [not a map"), 0o644); err != nil {
		t.Fatalf("cannot write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("a malformed explicit config should fail")
	}
}
