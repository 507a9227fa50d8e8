package detector

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/Tanmay-24/agentwatch/internal/model"
)

const (
	// minOutputChars skips trivially short outputs that embed poorly.
	minOutputChars = 20
	// maxEmbedChars truncates long outputs before embedding.
	maxEmbedChars = 512
	// stdFloor keeps the calibrated band from collapsing on tight baselines.
	stdFloor = 0.05
)

// GoalDrift measures semantic distance between model outputs and the
// declared objective using an injected embedding capability. Without an
// embedder or a goal it is inert: every check reports no drift.
type GoalDrift struct {
	embedder  Embedder
	threshold float64
	logger    *slog.Logger

	mu      sync.Mutex
	goal    string
	goalVec []float64
}

// NewGoalDrift creates the detector. threshold <= 0 defaults to 0.5.
// A nil logger falls back to slog.Default().
func NewGoalDrift(embedder Embedder, goal string, threshold float64, logger *slog.Logger) *GoalDrift {
	if threshold <= 0 {
		threshold = 0.5
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GoalDrift{
		embedder:  embedder,
		threshold: threshold,
		logger:    logger,
		goal:      goal,
	}
}

func (d *GoalDrift) Name() model.DetectorType {
	return model.DetectorGoalDrift
}

// SetGoal replaces the objective. The cached goal vector is dropped and
// recomputed lazily on the next check.
func (d *GoalDrift) SetGoal(goal string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.goal = goal
	d.goalVec = nil
}

// Goal returns the current objective text.
func (d *GoalDrift) Goal() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.goal
}

// Check inspects model-request events carrying output text. An embedding
// failure is logged and treated as "no drift", never propagated.
func (d *GoalDrift) Check(ctx context.Context, ev *model.TraceEvent, base *model.BaselineStats) (*model.DriftIncident, error) {
	if ev.ActionType != model.ActionModelRequest || d.embedder == nil {
		return nil, nil
	}

	output := outputText(ev)
	if len(strings.TrimSpace(output)) < minOutputChars {
		return nil, nil
	}

	d.mu.Lock()
	goal := d.goal
	d.mu.Unlock()
	if goal == "" {
		return nil, nil
	}

	goalVec, err := d.goalVector(ctx, goal)
	if err != nil {
		d.logger.Warn("goal drift check skipped: goal embedding failed", "error", err)
		return nil, nil
	}

	if len(output) > maxEmbedChars {
		output = output[:maxEmbedChars]
	}
	outVec, err := d.embedder.Embed(ctx, output)
	if err != nil {
		d.logger.Warn("goal drift check skipped: output embedding failed", "error", err)
		return nil, nil
	}

	similarity := cosineSimilarity(goalVec, outVec)

	// Calibration can only tighten the bar, never loosen it.
	threshold := d.threshold
	calibrated := base != nil && base.IsCalibrated && base.MeanGoalSimilarity > 0
	if calibrated {
		band := base.MeanGoalSimilarity - 2*maxFloat(base.StdGoalSimilarity, stdFloor)
		if band > threshold {
			threshold = band
		}
	}

	if similarity >= threshold {
		return nil, nil
	}

	score := (threshold - similarity) / threshold
	if score > 1 {
		score = 1
	}

	message := fmt.Sprintf("Goal drift: similarity dropped to %.2f", similarity)
	if calibrated {
		message = fmt.Sprintf("%s (baseline: %.2f)", message, base.MeanGoalSimilarity)
	}

	return newIncident(ev, model.DetectorGoalDrift, score,
		message,
		"Review context window for off-topic injection or prompt degradation",
		map[string]any{
			"similarity":     similarity,
			"threshold":      threshold,
			"output_preview": preview(output, 200),
			"goal_preview":   preview(goal, 200),
		}), nil
}

func (d *GoalDrift) goalVector(ctx context.Context, goal string) ([]float64, error) {
	d.mu.Lock()
	if d.goalVec != nil && d.goal == goal {
		vec := d.goalVec
		d.mu.Unlock()
		return vec, nil
	}
	d.mu.Unlock()

	vec, err := d.embedder.Embed(ctx, goal)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	if d.goal == goal {
		d.goalVec = vec
	}
	d.mu.Unlock()
	return vec, nil
}

func outputText(ev *model.TraceEvent) string {
	for _, key := range []string{"text", "output"} {
		if v, ok := ev.OutputData[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func preview(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
