package detector

import (
	"context"
	"fmt"
	"strings"

	"github.com/Tanmay-24/agentwatch/internal/model"
)

// LoopConfig tunes the action-loop detector. Zero values take defaults.
type LoopConfig struct {
	WindowSize     int // sliding window of recent tool calls (default 20)
	MaxRepeats     int // repeats needed to flag (default 4)
	SequenceLength int // longest repeating pattern checked (default 3)
}

func (c *LoopConfig) applyDefaults() {
	if c.WindowSize <= 0 {
		c.WindowSize = 20
	}
	if c.MaxRepeats <= 0 {
		c.MaxRepeats = 4
	}
	if c.SequenceLength <= 0 {
		c.SequenceLength = 3
	}
}

// ActionLoop flags agents stuck in repetitive tool-call cycles. Plain
// sequence matching over a sliding window; no statistics involved.
type ActionLoop struct {
	history ActionHistory
	cfg     LoopConfig
}

// NewActionLoop creates the detector reading windows from history.
func NewActionLoop(history ActionHistory, cfg LoopConfig) *ActionLoop {
	cfg.applyDefaults()
	return &ActionLoop{history: history, cfg: cfg}
}

func (d *ActionLoop) Name() model.DetectorType {
	return model.DetectorActionLoop
}

// Check inspects tool-call events only. Single-tool repeats take priority
// over sequence repeats; sequence patterns are tried shortest first and
// the first qualifying length is reported.
func (d *ActionLoop) Check(ctx context.Context, ev *model.TraceEvent, _ *model.BaselineStats) (*model.DriftIncident, error) {
	if ev.ActionType != model.ActionToolCall {
		return nil, nil
	}

	recent, err := d.history.RecentActionNames(ctx, ev.AgentID, ev.RunID, d.cfg.WindowSize)
	if err != nil {
		return nil, fmt.Errorf("load recent actions: %w", err)
	}
	if len(recent) < d.cfg.MaxRepeats {
		return nil, nil
	}

	if inc := d.checkSingleRepeat(recent, ev); inc != nil {
		return inc, nil
	}
	return d.checkSequenceRepeat(recent, ev), nil
}

func (d *ActionLoop) checkSingleRepeat(recent []string, ev *model.TraceEvent) *model.DriftIncident {
	tail := recent[len(recent)-d.cfg.MaxRepeats:]
	tool := tail[0]
	for _, name := range tail[1:] {
		if name != tool {
			return nil
		}
	}

	// Count the full trailing run length, not just the checked tail.
	repeats := 0
	for i := len(recent) - 1; i >= 0 && recent[i] == tool; i-- {
		repeats++
	}

	score := loopScore(repeats, d.cfg.MaxRepeats)
	return newIncident(ev, model.DetectorActionLoop, score,
		fmt.Sprintf("Action loop: %s called %dx consecutively", tool, repeats),
		fmt.Sprintf("Check %s input/output for stale data or error loops", tool),
		map[string]any{
			"tool_name":      tool,
			"repeat_count":   repeats,
			"recent_actions": tailOf(recent, 10),
		})
}

func (d *ActionLoop) checkSequenceRepeat(recent []string, ev *model.TraceEvent) *model.DriftIncident {
	for seqLen := 2; seqLen <= d.cfg.SequenceLength; seqLen++ {
		if len(recent) < seqLen*d.cfg.MaxRepeats {
			continue
		}

		pattern := recent[len(recent)-seqLen:]
		repeats := 0
		for idx := len(recent) - seqLen; idx >= 0; idx -= seqLen {
			if !equalStrings(recent[idx:idx+seqLen], pattern) {
				break
			}
			repeats++
		}

		if repeats >= d.cfg.MaxRepeats {
			score := loopScore(repeats, d.cfg.MaxRepeats)
			return newIncident(ev, model.DetectorActionLoop, score,
				fmt.Sprintf("Action loop: sequence [%s] repeated %dx", strings.Join(pattern, " → "), repeats),
				"Review agent logic for circular tool dependencies",
				map[string]any{
					"sequence":       append([]string(nil), pattern...),
					"repeat_count":   repeats,
					"recent_actions": tailOf(recent, 15),
				})
		}
	}
	return nil
}

func loopScore(repeats, maxRepeats int) float64 {
	score := float64(repeats) / float64(2*maxRepeats)
	if score > 1 {
		score = 1
	}
	return score
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func tailOf(names []string, n int) []string {
	if len(names) > n {
		names = names[len(names)-n:]
	}
	return append([]string(nil), names...)
}
