// Package config provides YAML-based configuration loading for the
// dispatcher and worker processes.
package config

import "time"

// Config is the top-level configuration shared by both binaries.
type Config struct {
	Dispatcher DispatcherConfig `yaml:"dispatcher"`
	Worker     WorkerConfig     `yaml:"worker"`
	Storage    StorageConfig    `yaml:"storage"`
}

// DispatcherConfig holds the dispatcher's listen endpoints and timing.
type DispatcherConfig struct {
	// ClientAddr is the host:port clients connect to.
	ClientAddr string `yaml:"client_addr"`

	// WorkerAddr is the host:port workers connect to.
	WorkerAddr string `yaml:"worker_addr"`

	// TaskTimeout bounds how long a dispatched task may stay unanswered
	// before the worker is presumed unresponsive.
	TaskTimeout time.Duration `yaml:"task_timeout"`
}

// WorkerConfig holds the worker agent's dial targets and recovery timing.
type WorkerConfig struct {
	// DispatcherAddrs are candidate dispatcher endpoints. The agent races
	// them on each connect attempt; the first success wins.
	DispatcherAddrs []string `yaml:"dispatcher_addrs"`

	// ReconnectDelay is the fixed wait between reconnect attempts.
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
}

// StorageConfig holds the match-history database location.
type StorageConfig struct {
	// DBPath is the SQLite database path. Empty disables persistence.
	DBPath string `yaml:"db_path"`
}

// Default returns the built-in configuration matching the original
// deployment: clients on 5000, workers on 5001, 5 second reconnects.
func Default() Config {
	return Config{
		Dispatcher: DispatcherConfig{
			ClientAddr:  ":5000",
			WorkerAddr:  ":5001",
			TaskTimeout: 10 * time.Second,
		},
		Worker: WorkerConfig{
			DispatcherAddrs: []string{"127.0.0.1:5001"},
			ReconnectDelay:  5 * time.Second,
		},
		Storage: StorageConfig{
			DBPath: "~/.gomokud/matches.db",
		},
	}
}
