package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/vovakirdan/gomoku-dispatch/internal/config"
	"github.com/vovakirdan/gomoku-dispatch/internal/dispatch"
	"github.com/vovakirdan/gomoku-dispatch/internal/storage"
	"github.com/vovakirdan/gomoku-dispatch/internal/tui"
)

var (
	flagClientAddr  string
	flagWorkerAddr  string
	flagTaskTimeout int
	flagDashboard   bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dispatcher",
	Long: `Start the dispatcher with two TCP endpoints: one for game clients and
one for workers. Every rule check and AI move a match needs is forwarded
to a registered worker; with no workers connected, moves are rejected
until one registers.

Examples:
  gomokud serve                              # Clients on :5000, workers on :5001
  gomokud serve --clients :6000              # Custom client port
  gomokud serve --dashboard                  # Live terminal dashboard
  gomokud serve --task-timeout 5             # Fail tasks after 5 seconds`,
	Run: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&flagClientAddr, "clients", "", "Client listen address (host:port)")
	serveCmd.Flags().StringVar(&flagWorkerAddr, "workers", "", "Worker listen address (host:port)")
	serveCmd.Flags().IntVar(&flagTaskTimeout, "task-timeout", 0, "Task timeout in seconds")
	serveCmd.Flags().BoolVar(&flagDashboard, "dashboard", false, "Show the live terminal dashboard")
}

func runServe(_ *cobra.Command, _ []string) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if flagClientAddr != "" {
		cfg.Dispatcher.ClientAddr = flagClientAddr
	}
	if flagWorkerAddr != "" {
		cfg.Dispatcher.WorkerAddr = flagWorkerAddr
	}
	if flagTaskTimeout > 0 {
		cfg.Dispatcher.TaskTimeout = time.Duration(flagTaskTimeout) * time.Second
	}
	if flagDBPath != "" {
		cfg.Storage.DBPath = flagDBPath
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "dispatcher",
	})

	server := dispatch.NewServer(dispatch.ServerConfig{
		ClientAddr:  cfg.Dispatcher.ClientAddr,
		WorkerAddr:  cfg.Dispatcher.WorkerAddr,
		TaskTimeout: cfg.Dispatcher.TaskTimeout,
	}, logger)

	var store *storage.Store
	if cfg.Storage.DBPath != "" {
		store, err = storage.Open(cfg.Storage.DBPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening match database: %v\n", err)
			os.Exit(1)
		}
		defer store.Close()
		server.Rooms.SetResultSaver(store)
	}

	if flagDashboard && term.IsTerminal(int(os.Stdout.Fd())) {
		// The dashboard owns the terminal; route logs into it instead of
		// interleaving with the rendered frames.
		logger.SetOutput(dashboardLogWriter{server: server})

		if err := server.StartAsync(); err != nil {
			fmt.Fprintf(os.Stderr, "Error starting dispatcher: %v\n", err)
			os.Exit(1)
		}
		defer server.Stop()

		model := tui.NewModel(server)
		if _, err := tea.NewProgram(model, tea.WithAltScreen()).Run(); err != nil {
			fmt.Fprintf(os.Stderr, "Dashboard error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := server.StartAsync(); err != nil {
		fmt.Fprintf(os.Stderr, "Error starting dispatcher: %v\n", err)
		os.Exit(1)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	server.Stop()
}

// dashboardLogWriter publishes raw log lines as dispatcher events so the
// dashboard's log tail shows them.
type dashboardLogWriter struct {
	server *dispatch.Server
}

func (w dashboardLogWriter) Write(p []byte) (int, error) {
	line := string(p)
	if n := len(line); n > 0 && line[n-1] == '\n' {
		line = line[:n-1]
	}
	w.server.PublishLog(line)
	return len(p), nil
}
