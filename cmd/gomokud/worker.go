package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/gomoku-dispatch/internal/agent"
	"github.com/vovakirdan/gomoku-dispatch/internal/config"
	"github.com/vovakirdan/gomoku-dispatch/internal/game"
	"github.com/vovakirdan/gomoku-dispatch/internal/protocol"
)

var (
	flagDispatchers    []string
	flagReconnectDelay int
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start a worker agent",
	Long: `Start a worker agent that connects to a dispatcher and processes rule
checks and AI move searches. The agent reconnects on its own whenever
the dispatcher goes away; stop it with Ctrl+C.

Multiple --dispatcher flags race on every connect attempt; the first
endpoint that answers wins.

Examples:
  gomokud worker                                      # Connect to 127.0.0.1:5001
  gomokud worker --dispatcher 10.0.0.5:5001
  gomokud worker --dispatcher a:5001 --dispatcher b:5001
  gomokud worker --reconnect-delay 2                  # Retry every 2 seconds`,
	Run: runWorker,
}

func init() {
	workerCmd.Flags().StringArrayVar(&flagDispatchers, "dispatcher", nil, "Dispatcher address (host:port), repeatable")
	workerCmd.Flags().IntVar(&flagReconnectDelay, "reconnect-delay", 0, "Seconds between reconnect attempts")
}

func runWorker(_ *cobra.Command, _ []string) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if len(flagDispatchers) > 0 {
		cfg.Worker.DispatcherAddrs = flagDispatchers
	}
	if flagReconnectDelay > 0 {
		cfg.Worker.ReconnectDelay = time.Duration(flagReconnectDelay) * time.Second
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "worker",
	})

	validate := func(board protocol.Board, row, col int, symbol string) (bool, bool, bool) {
		v := game.Validate(board, row, col, symbol)
		return v.Legal, v.Winning, v.Draw
	}

	a := agent.New(agent.Config{
		DispatcherAddrs: cfg.Worker.DispatcherAddrs,
		ReconnectDelay:  cfg.Worker.ReconnectDelay,
	}, validate, game.BestMove, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		a.Stop()
		cancel()
	}()

	a.Run(ctx)
}
