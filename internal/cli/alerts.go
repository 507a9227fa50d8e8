package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Tanmay-24/agentwatch/internal/model"
	"github.com/Tanmay-24/agentwatch/internal/store"
)

var (
	alertsLast     string
	alertsAgent    string
	alertsSeverity string
	alertsLimit    int
)

func init() {
	rootCmd.AddCommand(alertsCmd)
	alertsCmd.Flags().StringVar(&alertsLast, "last", "24h", "Lookback window (e.g. 30m, 24h, 7d)")
	alertsCmd.Flags().StringVar(&alertsAgent, "agent", "", "Filter by agent ID")
	alertsCmd.Flags().StringVar(&alertsSeverity, "severity", "", "Filter by severity (LOW, MED, HIGH, CRITICAL)")
	alertsCmd.Flags().IntVarP(&alertsLimit, "limit", "n", 50, "Maximum incidents to show")
}

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "List recent drift incidents",
	Long:  "Shows drift incidents recorded in the lookback window, most recent first.",
	RunE:  runAlerts,
}

func runAlerts(cmd *cobra.Command, args []string) error {
	window, err := parseWindow(alertsLast)
	if err != nil {
		return err
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	incidents, err := st.Incidents(cmd.Context(), store.IncidentFilter{
		AgentID:  alertsAgent,
		Since:    time.Now().Add(-window),
		Severity: model.Severity(strings.ToUpper(alertsSeverity)),
		Limit:    alertsLimit,
	})
	if err != nil {
		return fmt.Errorf("query incidents: %w", err)
	}

	if len(incidents) == 0 {
		fmt.Println("No drift incidents in window.")
		return nil
	}

	fmt.Printf("%-8s %-15s %-14s %-8s %-5s %s\n", "TIME", "AGENT", "DETECTOR", "SEVERITY", "SCORE", "MESSAGE")
	for _, inc := range incidents {
		fmt.Printf("%-8s %-15s %-14s %-8s %-5.2f %s\n",
			inc.Timestamp.Format("15:04:05"),
			truncate(inc.AgentID, 15),
			inc.Detector,
			inc.Severity,
			inc.Score,
			truncate(inc.Message, 60),
		)
	}
	return nil
}

// parseWindow accepts Go duration syntax plus a "d" suffix for days.
func parseWindow(s string) (time.Duration, error) {
	if strings.HasSuffix(s, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil {
			return 0, fmt.Errorf("invalid window %q", s)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid window %q", s)
	}
	return d, nil
}
