package detector

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/Tanmay-24/agentwatch/internal/model"
)

func spikeEvent(runID string, tokens int) *model.TraceEvent {
	return &model.TraceEvent{
		ID:         model.NewID(),
		AgentID:    "a1",
		RunID:      runID,
		ActionType: model.ActionToolCall,
		ActionName: "tool",
		Timestamp:  time.Now(),
		TokenCount: tokens,
	}
}

func TestResourceSpikeAbsoluteTokenLimit(t *testing.T) {
	d := NewResourceSpike(SpikeConfig{AbsoluteTokenLimit: 500})
	ctx := context.Background()

	var fired *model.DriftIncident
	firedAt := 0
	for i := 1; i <= 10; i++ {
		inc, err := d.Check(ctx, spikeEvent("r1", 100), nil)
		if err != nil {
			t.Fatalf("check %d: %v", i, err)
		}
		if inc != nil && fired == nil {
			fired = inc
			firedAt = i
		}
	}

	if fired == nil {
		t.Fatal("absolute token limit never fired")
	}
	if firedAt > 6 {
		t.Errorf("first incident at event %d, want by the 6th", firedAt)
	}
	if fired.Score < 0.7 {
		t.Errorf("score = %v, want >= 0.7", fired.Score)
	}
	if fired.Severity.Rank() < model.SeverityHigh.Rank() {
		t.Errorf("severity = %v, want at least HIGH", fired.Severity)
	}
}

func TestResourceSpikeBaselineTokenBurn(t *testing.T) {
	d := NewResourceSpike(SpikeConfig{Multiplier: 2.0})
	ctx := context.Background()
	base := &model.BaselineStats{
		AgentID:          "a1",
		IsCalibrated:     true,
		MeanTokensPerRun: 200,
		StdTokensPerRun:  50,
	}

	// Threshold = 200 + 2*max(50, 20) = 300; must also exceed 1.5*200 = 300.
	var fired *model.DriftIncident
	total := 0
	for i := 1; i <= 5; i++ {
		total += 100
		inc, err := d.Check(ctx, spikeEvent("r1", 100), base)
		if err != nil {
			t.Fatalf("check %d: %v", i, err)
		}
		if inc != nil {
			fired = inc
			break
		}
		if total > 300 {
			t.Fatalf("no incident at %d cumulative tokens", total)
		}
	}

	if fired == nil {
		t.Fatal("baseline token spike never fired")
	}
	if !strings.Contains(strings.ToLower(fired.Message), "token") {
		t.Errorf("message %q should mention tokens", fired.Message)
	}
	if fired.Context["metric"] != "token_burn" {
		t.Errorf("metric = %v", fired.Context["metric"])
	}
}

func TestResourceSpikeUncalibratedBaselineIgnored(t *testing.T) {
	d := NewResourceSpike(SpikeConfig{Multiplier: 2.0, AbsoluteTokenLimit: 1_000_000})
	base := &model.BaselineStats{AgentID: "a1", MeanTokensPerRun: 10, StdTokensPerRun: 1}

	inc, err := d.Check(context.Background(), spikeEvent("r1", 500), base)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if inc != nil {
		t.Fatalf("uncalibrated baseline used for spike detection: %+v", inc)
	}
}

func TestResourceSpikeAbsoluteDuration(t *testing.T) {
	d := NewResourceSpike(SpikeConfig{AbsoluteDurationLimit: time.Minute})

	clock := time.Now()
	d.now = func() time.Time { return clock }

	if inc, err := d.Check(context.Background(), spikeEvent("r1", 1), nil); err != nil || inc != nil {
		t.Fatalf("fresh run flagged: inc=%v err=%v", inc, err)
	}

	clock = clock.Add(2 * time.Minute)
	inc, err := d.Check(context.Background(), spikeEvent("r1", 1), nil)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if inc == nil {
		t.Fatal("duration limit never fired")
	}
	if inc.Score != 0.8 || inc.Severity != model.SeverityHigh {
		t.Errorf("duration breach: score=%v severity=%v, want 0.8/HIGH", inc.Score, inc.Severity)
	}
}

func TestResourceSpikeCounterEviction(t *testing.T) {
	d := NewResourceSpike(SpikeConfig{})
	ctx := context.Background()

	for i := 0; i < maxTrackedRuns+1; i++ {
		if _, err := d.Check(ctx, spikeEvent(fmt.Sprintf("run-%02d", i), 10), nil); err != nil {
			t.Fatalf("check: %v", err)
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.counters) != maxTrackedRuns {
		t.Errorf("tracking %d runs, cap is %d", len(d.counters), maxTrackedRuns)
	}
	if _, ok := d.counters["run-00"]; ok {
		t.Error("oldest-created run should have been evicted")
	}
	if _, ok := d.counters[fmt.Sprintf("run-%02d", maxTrackedRuns)]; !ok {
		t.Error("newest run missing from counters")
	}
}

func TestResourceSpikeTracksToolAndModelCounts(t *testing.T) {
	d := NewResourceSpike(SpikeConfig{})
	ctx := context.Background()

	ev := spikeEvent("r1", 10)
	if _, err := d.Check(ctx, ev, nil); err != nil {
		t.Fatalf("check: %v", err)
	}
	llm := spikeEvent("r1", 20)
	llm.ActionType = model.ActionModelRequest
	if _, err := d.Check(ctx, llm, nil); err != nil {
		t.Fatalf("check: %v", err)
	}

	d.mu.Lock()
	c := d.counters["r1"]
	d.mu.Unlock()
	if c.toolCalls != 1 || c.modelRequests != 1 || c.totalTokens != 30 {
		t.Errorf("counter = %+v", *c)
	}
}
