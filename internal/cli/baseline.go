package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var baselineAgent string

func init() {
	rootCmd.AddCommand(baselineCmd)
	baselineCmd.Flags().StringVar(&baselineAgent, "agent", "", "Agent ID (required)")
	baselineCmd.MarkFlagRequired("agent")
}

var baselineCmd = &cobra.Command{
	Use:   "baseline",
	Short: "Show the learned baseline for an agent",
	Long:  "Prints the calibrated behavioral baseline: per-run resource statistics and common action sequences.",
	RunE:  runBaseline,
}

func runBaseline(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	base, err := st.GetBaseline(cmd.Context(), baselineAgent)
	if err != nil {
		return fmt.Errorf("query baseline: %w", err)
	}
	if base == nil {
		fmt.Println("No baseline recorded for agent.")
		return nil
	}

	status := "calibrating"
	if base.IsCalibrated {
		status = "calibrated"
	}
	fmt.Printf("Agent:     %s (%s, %d runs)\n\n", base.AgentID, status, base.CalibrationRuns)
	fmt.Printf("%-22s %10s %10s\n", "METRIC", "MEAN", "STD")
	fmt.Printf("%-22s %10.1f %10.1f\n", "tokens_per_run", base.MeanTokensPerRun, base.StdTokensPerRun)
	fmt.Printf("%-22s %10.1f %10.1f\n", "tools_per_run", base.MeanToolsPerRun, base.StdToolsPerRun)
	fmt.Printf("%-22s %10.1f %10.1f\n", "run_duration_ms", base.MeanDurationMS, base.StdDurationMS)

	if len(base.CommonSequences) > 0 {
		fmt.Println("\nCommon sequences:")
		for _, seq := range base.CommonSequences {
			fmt.Printf("  %s\n", strings.Join(seq, " -> "))
		}
	}
	return nil
}
