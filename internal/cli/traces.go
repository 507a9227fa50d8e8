package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var tracesAgent string

func init() {
	rootCmd.AddCommand(tracesCmd)
	tracesCmd.Flags().StringVar(&tracesAgent, "agent", "", "Agent ID (required)")
	tracesCmd.MarkFlagRequired("agent")
}

var tracesCmd = &cobra.Command{
	Use:   "traces [run-id]",
	Short: "Show trace events for a run",
	Long:  "Prints the events of one run in chronological order.\nWith no run-id, or with \"latest\", shows the most recent run.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runTraces,
}

func runTraces(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	runID := ""
	if len(args) == 1 {
		runID = args[0]
	}
	if runID == "" || runID == "latest" {
		runs, err := st.RunIDs(cmd.Context(), tracesAgent, 1)
		if err != nil {
			return fmt.Errorf("resolve latest run: %w", err)
		}
		if len(runs) == 0 {
			fmt.Println("No runs recorded for agent.")
			return nil
		}
		runID = runs[0]
	}

	events, err := st.RunEvents(cmd.Context(), tracesAgent, runID)
	if err != nil {
		return fmt.Errorf("query events: %w", err)
	}
	if len(events) == 0 {
		fmt.Printf("No events for run %s.\n", runID)
		return nil
	}

	fmt.Printf("Run %s (%d events)\n\n", runID, len(events))
	fmt.Printf("%-12s %-16s %-30s %-8s %s\n", "TIME", "TYPE", "ACTION", "TOKENS", "DURATION")
	for _, ev := range events {
		fmt.Printf("%-12s %-16s %-30s %-8d %.0fms\n",
			ev.Timestamp.Format("15:04:05.000"),
			ev.ActionType,
			truncate(ev.ActionName, 30),
			ev.TokenCount,
			ev.DurationMS,
		)
	}
	return nil
}
