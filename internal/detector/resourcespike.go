package detector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Tanmay-24/agentwatch/internal/model"
)

// maxTrackedRuns bounds the per-run accumulator map. When exceeded, the
// oldest-created run is evicted.
const maxTrackedRuns = 10

// SpikeConfig tunes the resource-spike detector. Zero values take defaults.
type SpikeConfig struct {
	Multiplier            float64       // std multiplier over baseline (default 2.5)
	AbsoluteTokenLimit    int           // hard token cap per run (default 50000)
	AbsoluteDurationLimit time.Duration // hard wall-time cap per run (default 5m)
}

func (c *SpikeConfig) applyDefaults() {
	if c.Multiplier <= 0 {
		c.Multiplier = 2.5
	}
	if c.AbsoluteTokenLimit <= 0 {
		c.AbsoluteTokenLimit = 50_000
	}
	if c.AbsoluteDurationLimit <= 0 {
		c.AbsoluteDurationLimit = 5 * time.Minute
	}
}

// runCounter accumulates per-run consumption. Process-local state: spike
// detection across processes is independently scoped.
type runCounter struct {
	totalTokens     int
	totalDurationMS float64
	toolCalls       int
	modelRequests   int
	start           time.Time
}

// ResourceSpike flags abnormal consumption: token burn, wall time, or tool
// call counts exceeding baseline norms, plus absolute safety nets that work
// without any baseline.
type ResourceSpike struct {
	cfg SpikeConfig

	mu       sync.Mutex
	counters map[string]*runCounter
	order    []string // run ids in creation order, for eviction
	now      func() time.Time
}

// NewResourceSpike creates the detector.
func NewResourceSpike(cfg SpikeConfig) *ResourceSpike {
	cfg.applyDefaults()
	return &ResourceSpike{
		cfg:      cfg,
		counters: make(map[string]*runCounter),
		now:      time.Now,
	}
}

func (d *ResourceSpike) Name() model.DetectorType {
	return model.DetectorResourceSpike
}

// Check updates the run's accumulator, then applies baseline-relative
// thresholds (when calibrated) followed by the absolute safety nets.
func (d *ResourceSpike) Check(_ context.Context, ev *model.TraceEvent, base *model.BaselineStats) (*model.DriftIncident, error) {
	counter := d.updateCounter(ev)

	if base != nil && base.IsCalibrated {
		if inc := d.checkBaselineSpike(ev, base, counter); inc != nil {
			return inc, nil
		}
	}
	return d.checkAbsoluteLimits(ev, counter), nil
}

func (d *ResourceSpike) updateCounter(ev *model.TraceEvent) runCounter {
	d.mu.Lock()
	defer d.mu.Unlock()

	c, ok := d.counters[ev.RunID]
	if !ok {
		c = &runCounter{start: d.now()}
		d.counters[ev.RunID] = c
		d.order = append(d.order, ev.RunID)
		if len(d.order) > maxTrackedRuns {
			delete(d.counters, d.order[0])
			d.order = d.order[1:]
		}
	}

	c.totalTokens += ev.TokenCount
	c.totalDurationMS += ev.DurationMS
	switch ev.ActionType {
	case model.ActionToolCall:
		c.toolCalls++
	case model.ActionModelRequest:
		c.modelRequests++
	}
	return *c
}

func (d *ResourceSpike) checkBaselineSpike(ev *model.TraceEvent, base *model.BaselineStats, c runCounter) *model.DriftIncident {
	checks := []struct {
		metric  string
		current float64
		mean    float64
		std     float64
		unit    string
	}{
		{"token_burn", float64(c.totalTokens), base.MeanTokensPerRun, base.StdTokensPerRun, "tokens"},
		{"duration", c.totalDurationMS, base.MeanDurationMS, base.StdDurationMS, "ms"},
		{"tool_calls", float64(c.toolCalls), base.MeanToolsPerRun, base.StdToolsPerRun, "calls"},
	}

	for _, chk := range checks {
		if chk.mean == 0 && chk.std == 0 {
			continue
		}
		threshold := chk.mean + d.cfg.Multiplier*maxFloat(chk.std, chk.mean*0.1)
		if chk.current <= threshold || chk.current <= chk.mean*1.5 {
			continue
		}

		score := (chk.current - threshold) / maxFloat(threshold, 1)
		if score > 1 {
			score = 1
		}
		return newIncident(ev, model.DetectorResourceSpike, score,
			fmt.Sprintf("Resource spike: %s at %.0f %s (baseline: %.0f ± %.0f)",
				chk.metric, chk.current, chk.unit, chk.mean, chk.std),
			fmt.Sprintf("Check for malformed input or error loops causing elevated %s", chk.metric),
			map[string]any{
				"metric":        chk.metric,
				"current":       chk.current,
				"baseline_mean": chk.mean,
				"baseline_std":  chk.std,
				"threshold":     threshold,
				"run_totals": map[string]any{
					"total_tokens":      c.totalTokens,
					"total_duration_ms": c.totalDurationMS,
					"tool_calls":        c.toolCalls,
					"llm_calls":         c.modelRequests,
				},
			})
	}
	return nil
}

func (d *ResourceSpike) checkAbsoluteLimits(ev *model.TraceEvent, c runCounter) *model.DriftIncident {
	if c.totalTokens > d.cfg.AbsoluteTokenLimit {
		over := float64(c.totalTokens-d.cfg.AbsoluteTokenLimit) / float64(d.cfg.AbsoluteTokenLimit)
		score := over
		if score > 1 {
			score = 1
		}
		// Severity floor: breaching the hard cap is at least HIGH.
		if score < 0.7 {
			score = 0.7
		}
		return newIncident(ev, model.DetectorResourceSpike, score,
			fmt.Sprintf("Resource spike: token count %d exceeds absolute limit (%d)",
				c.totalTokens, d.cfg.AbsoluteTokenLimit),
			"Investigate agent run — token consumption is abnormally high",
			map[string]any{
				"metric":         "absolute_token_limit",
				"current_tokens": c.totalTokens,
				"limit":          d.cfg.AbsoluteTokenLimit,
			})
	}

	elapsed := d.now().Sub(c.start)
	if elapsed > d.cfg.AbsoluteDurationLimit {
		return newIncident(ev, model.DetectorResourceSpike, 0.8,
			fmt.Sprintf("Resource spike: run duration %.1fs exceeds limit (%.0fs)",
				elapsed.Seconds(), d.cfg.AbsoluteDurationLimit.Seconds()),
			"Agent may be hung or stuck — consider terminating the run",
			map[string]any{
				"metric":     "absolute_duration_limit",
				"elapsed_ms": float64(elapsed.Milliseconds()),
				"limit_ms":   float64(d.cfg.AbsoluteDurationLimit.Milliseconds()),
			})
	}
	return nil
}
