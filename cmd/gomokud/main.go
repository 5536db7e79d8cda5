// gomokud is a master/worker compute-offload platform for Gomoku matches.
//
// Usage:
//
//	gomokud serve            - Start the dispatcher (client + worker endpoints)
//	gomokud worker           - Start a worker agent
//	gomokud history          - Show recent match history
//
// Global flags:
//
//	--config <path>  - Use a specific config file
//	--db <path>      - Set database path (default: ~/.gomokud/matches.db)
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	flagConfig string
	flagDBPath string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "gomokud",
	Short: "Gomoku dispatch - distributed compute offload for Gomoku matches",
	Long: `gomokud runs a dispatcher that pairs players into Gomoku matches and
offloads every rule check and AI move to a pool of worker processes.

Available commands:
  serve    - Start the dispatcher (listens for clients and workers)
  worker   - Start a worker agent that connects to a dispatcher
  history  - View recent match results

Examples:
  gomokud serve
  gomokud serve --clients :5000 --workers :5001 --dashboard
  gomokud worker --dispatcher 127.0.0.1:5001
  gomokud history --limit 10
  gomokud history --player alice`,
}

func init() {
	// Global persistent flags
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to config file (default: ~/.gomokud/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagDBPath, "db", "", "Path to match history database (default: ~/.gomokud/matches.db)")

	// Add subcommands
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(historyCmd)
}
