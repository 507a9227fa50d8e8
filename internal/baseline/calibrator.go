// Package baseline recomputes per-agent statistical norms from stored run
// history.
package baseline

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/Tanmay-24/agentwatch/internal/model"
	"github.com/Tanmay-24/agentwatch/internal/store"
)

const (
	// actionWindow caps how many trailing tool calls per run feed the
	// subsequence ranking.
	actionWindow = 50

	minSubsequence  = 2
	maxSubsequence  = 4
	topSubsequences = 5
)

// RunHistory is the slice of the store the calibrator reads from.
type RunHistory interface {
	RunIDs(ctx context.Context, agentID string, limit int) ([]string, error)
	RunAggregates(ctx context.Context, agentID, runID string) (*store.RunAggregates, error)
	RecentActionNames(ctx context.Context, agentID, runID string, window int) ([]string, error)
	PutBaseline(ctx context.Context, b *model.BaselineStats) error
}

// Calibrator rebuilds an agent's baseline from scratch at run boundaries.
// Recomputing the full lookback each time trades CPU for correctness: the
// result depends only on stored history, so it is idempotent.
type Calibrator struct {
	history      RunHistory
	requiredRuns int
}

// New creates a Calibrator. requiredRuns is the number of observed runs
// needed before a baseline counts as calibrated (minimum 1).
func New(history RunHistory, requiredRuns int) *Calibrator {
	if requiredRuns < 1 {
		requiredRuns = 1
	}
	return &Calibrator{history: history, requiredRuns: requiredRuns}
}

// Recompute rebuilds, persists, and returns the agent's baseline. With no
// stored runs it persists an empty, uncalibrated baseline.
func (c *Calibrator) Recompute(ctx context.Context, agentID string) (*model.BaselineStats, error) {
	runIDs, err := c.history.RunIDs(ctx, agentID, c.requiredRuns)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}

	if len(runIDs) == 0 {
		b := &model.BaselineStats{AgentID: agentID}
		if err := c.history.PutBaseline(ctx, b); err != nil {
			return nil, fmt.Errorf("persist empty baseline: %w", err)
		}
		return b, nil
	}

	tokens := make([]float64, 0, len(runIDs))
	tools := make([]float64, 0, len(runIDs))
	durations := make([]float64, 0, len(runIDs))
	var sequences [][]string

	for _, runID := range runIDs {
		agg, err := c.history.RunAggregates(ctx, agentID, runID)
		if err != nil {
			return nil, fmt.Errorf("aggregate run %s: %w", runID, err)
		}
		tokens = append(tokens, float64(agg.TotalTokens))
		tools = append(tools, float64(agg.ToolCalls))
		durations = append(durations, agg.TotalDurationMS)

		actions, err := c.history.RecentActionNames(ctx, agentID, runID, actionWindow)
		if err != nil {
			return nil, fmt.Errorf("actions for run %s: %w", runID, err)
		}
		if len(actions) > 0 {
			sequences = append(sequences, actions)
		}
	}

	b := &model.BaselineStats{
		AgentID:          agentID,
		CalibrationRuns:  len(runIDs),
		MeanTokensPerRun: mean(tokens),
		StdTokensPerRun:  stddev(tokens),
		MeanToolsPerRun:  mean(tools),
		StdToolsPerRun:   stddev(tools),
		MeanDurationMS:   mean(durations),
		StdDurationMS:    stddev(durations),
		CommonSequences:  commonSequences(sequences),
		IsCalibrated:     len(runIDs) >= c.requiredRuns,
	}

	if err := c.history.PutBaseline(ctx, b); err != nil {
		return nil, fmt.Errorf("persist baseline: %w", err)
	}
	return b, nil
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// stddev is the population standard deviation; zero when n <= 1.
func stddev(values []float64) float64 {
	if len(values) <= 1 {
		return 0
	}
	m := mean(values)
	var sum float64
	for _, v := range values {
		d := v - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)))
}

// commonSequences ranks contiguous action subsequences of length 2..4
// across runs. Each subsequence counts at most once per run so a single
// looping run cannot dominate the ranking. Ties keep first-seen order.
func commonSequences(runs [][]string) [][]string {
	counts := make(map[string]int)
	var order []string

	for _, seq := range runs {
		seen := make(map[string]bool)
		maxLen := maxSubsequence
		if len(seq) < maxLen {
			maxLen = len(seq)
		}
		for length := minSubsequence; length <= maxLen; length++ {
			for i := 0; i+length <= len(seq); i++ {
				key := strings.Join(seq[i:i+length], "\x1f")
				if seen[key] {
					continue
				}
				seen[key] = true
				if counts[key] == 0 {
					order = append(order, key)
				}
				counts[key]++
			}
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})

	top := order
	if len(top) > topSubsequences {
		top = top[:topSubsequences]
	}

	result := make([][]string, 0, len(top))
	for _, key := range top {
		result = append(result, strings.Split(key, "\x1f"))
	}
	return result
}
