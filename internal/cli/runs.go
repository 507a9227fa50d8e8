package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	runsAgent string
	runsLimit int
)

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.Flags().StringVar(&runsAgent, "agent", "", "Agent ID (required)")
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "Maximum runs to show")
	runsCmd.MarkFlagRequired("agent")
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent runs with aggregates",
	Long:  "Shows per-run totals (events, tokens, tool calls, duration), most recent first.",
	RunE:  runRuns,
}

func runRuns(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	runIDs, err := st.RunIDs(cmd.Context(), runsAgent, runsLimit)
	if err != nil {
		return fmt.Errorf("query runs: %w", err)
	}
	if len(runIDs) == 0 {
		fmt.Println("No runs recorded for agent.")
		return nil
	}

	fmt.Printf("%-16s %-8s %-8s %-7s %-7s %s\n", "RUN", "EVENTS", "TOKENS", "TOOLS", "MODELS", "WALL")
	for _, runID := range runIDs {
		agg, err := st.RunAggregates(cmd.Context(), runsAgent, runID)
		if err != nil {
			return fmt.Errorf("aggregate run %s: %w", runID, err)
		}
		wall := "-"
		if !agg.Start.IsZero() {
			wall = agg.End.Sub(agg.Start).Round(time.Millisecond).String()
		}
		fmt.Printf("%-16s %-8d %-8d %-7d %-7d %s\n",
			truncate(runID, 16),
			agg.EventCount,
			agg.TotalTokens,
			agg.ToolCalls,
			agg.ModelRequests,
			wall,
		)
	}
	return nil
}
