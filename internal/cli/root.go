// Package cli implements the agentwatch inspection commands.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Tanmay-24/agentwatch/internal/store"
)

var dbPath string

var rootCmd = &cobra.Command{
	Use:   "agentwatch",
	Short: "Inspect agent drift telemetry",
	Long:  "Queries the local agentwatch database: drift incidents, trace events, run aggregates, and learned baselines.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to the agentwatch database (default ~/.agentwatch/agentwatch.db)")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func openStore() (*store.Store, error) {
	path := dbPath
	if path == "" {
		path = store.DefaultPath()
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("no database at %s (has the monitor recorded anything yet?)", path)
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return st, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
