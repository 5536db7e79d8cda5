package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/gomoku-dispatch/internal/config"
	"github.com/vovakirdan/gomoku-dispatch/internal/storage"
)

var (
	flagHistoryLimit  int
	flagHistoryPlayer string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent match history",
	Long: `Display recent finished matches from the dispatcher's database.

Examples:
  gomokud history
  gomokud history --limit 50
  gomokud history --player alice`,
	Run: runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&flagHistoryLimit, "limit", 20, "Maximum matches to show")
	historyCmd.Flags().StringVar(&flagHistoryPlayer, "player", "", "Only matches involving this player")
}

func runHistory(_ *cobra.Command, _ []string) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	dbPath := cfg.Storage.DBPath
	if flagDBPath != "" {
		dbPath = flagDBPath
	}
	if dbPath == "" {
		fmt.Fprintln(os.Stderr, "Error: no database path configured")
		os.Exit(1)
	}

	store, err := storage.Open(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening match database: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	var matches []storage.MatchRecord
	if flagHistoryPlayer != "" {
		matches, err = store.PlayerMatches(flagHistoryPlayer, flagHistoryLimit)
	} else {
		matches, err = store.RecentMatches(flagHistoryLimit)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error retrieving matches: %v\n", err)
		os.Exit(1)
	}

	if len(matches) == 0 {
		fmt.Println("No matches recorded yet.")
		return
	}

	// Print header
	fmt.Printf("  %-20s  %-16s  %-16s  %-16s  %-10s  %-8s  %s\n",
		"Date", "Player 1", "Player 2", "Winner", "Reason", "Duration", "Room")
	fmt.Printf("  %-20s  %-16s  %-16s  %-16s  %-10s  %-8s  %s\n",
		"----", "--------", "--------", "------", "------", "--------", "----")

	for _, m := range matches {
		winner := m.WinnerName
		if winner == "" {
			winner = "-"
		}
		fmt.Printf("  %-20s  %-16s  %-16s  %-16s  %-10s  %-8s  %s\n",
			m.CreatedAt.Format("2006-01-02 15:04"),
			m.Player1Name, m.Player2Name, winner, m.EndReason,
			fmt.Sprintf("%dm%02ds", m.Duration/60, m.Duration%60),
			m.RoomID)
	}
}
