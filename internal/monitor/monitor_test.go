package monitor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/Tanmay-24/agentwatch/internal/detector"
	"github.com/Tanmay-24/agentwatch/internal/model"
)

func newTestMonitor(t *testing.T, cfg Config) *Monitor {
	t.Helper()
	if cfg.AgentID == "" {
		cfg.AgentID = "test-agent"
	}
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(t.TempDir(), "agentwatch.db")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	m, err := New(cfg)
	if err != nil {
		t.Fatalf("new monitor: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func TestCleanRunProducesNoIncidents(t *testing.T) {
	m := newTestMonitor(t, Config{})
	ctx := context.Background()

	m.StartRun("", "")
	for _, name := range []string{"search", "format", "send"} {
		incidents, err := m.RecordEvent(ctx, Record{
			ActionType: model.ActionToolCall,
			ActionName: name,
			TokenCount: 10,
		})
		if err != nil {
			t.Fatalf("record %s: %v", name, err)
		}
		if len(incidents) != 0 {
			t.Fatalf("clean run produced incidents: %+v", incidents)
		}
	}
	if err := m.EndRun(ctx, ""); err != nil {
		t.Fatalf("end run: %v", err)
	}
}

func TestEndToEndCalibration(t *testing.T) {
	m := newTestMonitor(t, Config{CalibrationRuns: 5})
	ctx := context.Background()

	for run := 0; run < 6; run++ {
		m.StartRun("", "")
		for _, name := range []string{"search", "format", "send"} {
			if _, err := m.RecordEvent(ctx, Record{
				ActionType: model.ActionToolCall,
				ActionName: name,
				TokenCount: 100,
			}); err != nil {
				t.Fatalf("record: %v", err)
			}
		}
		if err := m.EndRun(ctx, ""); err != nil {
			t.Fatalf("end run %d: %v", run, err)
		}
	}

	base := m.Baseline()
	if base == nil {
		t.Fatal("no baseline after 6 runs")
	}
	if !base.IsCalibrated {
		t.Errorf("baseline not calibrated after 6 runs with requirement 5: %+v", base)
	}
	if base.MeanTokensPerRun < 299 || base.MeanTokensPerRun > 301 {
		t.Errorf("mean tokens per run = %v, want ≈300", base.MeanTokensPerRun)
	}
	if base.MeanToolsPerRun != 3 {
		t.Errorf("mean tools per run = %v, want 3", base.MeanToolsPerRun)
	}
	if len(base.CommonSequences) == 0 {
		t.Error("calibrated baseline has no common sequences")
	}
}

func TestActionLoopDetectedEndToEnd(t *testing.T) {
	m := newTestMonitor(t, Config{
		Loop: detector.LoopConfig{MaxRepeats: 3},
	})
	ctx := context.Background()

	m.StartRun("loop-run", "")
	var last []*model.DriftIncident
	for i := 0; i < 5; i++ {
		incidents, err := m.RecordEvent(ctx, Record{
			ActionType: model.ActionToolCall,
			ActionName: "search_db",
		})
		if err != nil {
			t.Fatalf("record: %v", err)
		}
		last = incidents
	}

	if len(last) == 0 {
		t.Fatal("5 consecutive identical tool calls produced no incident")
	}
	if last[0].Detector != model.DetectorActionLoop {
		t.Errorf("detector = %v", last[0].Detector)
	}

	// Persisted for audit as well as returned.
	stored, err := m.RecentIncidents(ctx, time.Hour, 10)
	if err != nil {
		t.Fatalf("recent incidents: %v", err)
	}
	if len(stored) == 0 {
		t.Error("incident not persisted")
	}
}

func TestAdHocRun(t *testing.T) {
	m := newTestMonitor(t, Config{})

	// No StartRun: recording must implicitly open a run.
	if _, err := m.RecordEvent(context.Background(), Record{
		ActionType: model.ActionToolCall,
		ActionName: "search",
	}); err != nil {
		t.Fatalf("record without run: %v", err)
	}

	m.mu.Lock()
	runID := m.runID
	m.mu.Unlock()
	if runID == "" {
		t.Error("ad-hoc run id not assigned")
	}
}

func TestCallbacksReceiveIncidents(t *testing.T) {
	m := newTestMonitor(t, Config{Loop: detector.LoopConfig{MaxRepeats: 3}})
	ctx := context.Background()

	var seen []*model.DriftIncident
	m.OnDrift(func(inc *model.DriftIncident) { seen = append(seen, inc) })

	m.StartRun("", "")
	for i := 0; i < 5; i++ {
		if _, err := m.RecordEvent(ctx, Record{
			ActionType: model.ActionToolCall,
			ActionName: "stuck_tool",
		}); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	if len(seen) == 0 {
		t.Fatal("callback never fired")
	}
}

func TestCallbackPanicIsolated(t *testing.T) {
	m := newTestMonitor(t, Config{Loop: detector.LoopConfig{MaxRepeats: 3}})
	ctx := context.Background()

	var delivered int
	m.OnDrift(func(*model.DriftIncident) { panic("broken consumer") })
	m.OnDrift(func(*model.DriftIncident) { delivered++ })

	m.StartRun("", "")
	var incidents []*model.DriftIncident
	for i := 0; i < 5; i++ {
		out, err := m.RecordEvent(ctx, Record{
			ActionType: model.ActionToolCall,
			ActionName: "stuck_tool",
		})
		if err != nil {
			t.Fatalf("record: %v", err)
		}
		incidents = append(incidents, out...)
	}

	if delivered == 0 {
		t.Error("second callback starved by panicking first callback")
	}
	if len(incidents) == 0 {
		t.Error("incident list corrupted by callback panic")
	}
}

// failingDetector always errors; used to prove pipeline isolation.
type failingDetector struct{}

func (failingDetector) Name() model.DetectorType { return model.DetectorType("failing") }

func (failingDetector) Check(context.Context, *model.TraceEvent, *model.BaselineStats) (*model.DriftIncident, error) {
	return nil, errors.New("detector exploded")
}

// panickingDetector panics; the orchestrator must contain it.
type panickingDetector struct{}

func (panickingDetector) Name() model.DetectorType { return model.DetectorType("panicking") }

func (panickingDetector) Check(context.Context, *model.TraceEvent, *model.BaselineStats) (*model.DriftIncident, error) {
	panic("detector bug")
}

func TestDetectorFailureIsolated(t *testing.T) {
	m := newTestMonitor(t, Config{Loop: detector.LoopConfig{MaxRepeats: 3}})
	ctx := context.Background()

	// Failing detectors run ahead of the real pipeline.
	m.detectors = append([]detector.Detector{failingDetector{}, panickingDetector{}}, m.detectors...)

	m.StartRun("", "")
	var last []*model.DriftIncident
	for i := 0; i < 5; i++ {
		out, err := m.RecordEvent(ctx, Record{
			ActionType: model.ActionToolCall,
			ActionName: "stuck_tool",
		})
		if err != nil {
			t.Fatalf("record: %v", err)
		}
		last = out
	}

	if len(last) == 0 {
		t.Error("healthy detector skipped after earlier detector failures")
	}

	// The underlying events must still be persisted.
	events, err := m.Store().RunEvents(ctx, m.AgentID(), last[0].RunID)
	if err != nil {
		t.Fatalf("run events: %v", err)
	}
	if len(events) != 5 {
		t.Errorf("persisted %d events, want 5", len(events))
	}
}

func TestStartRunUpdatesGoal(t *testing.T) {
	m := newTestMonitor(t, Config{Goal: "initial objective"})

	m.StartRun("", "new objective for this run")
	if got := m.goalDrift.Goal(); got != "new objective for this run" {
		t.Errorf("goal = %q", got)
	}
}

func TestBaselineCachedBetweenCalibrations(t *testing.T) {
	m := newTestMonitor(t, Config{CalibrationRuns: 1})
	ctx := context.Background()

	if m.Baseline() != nil {
		t.Fatal("fresh monitor should have no baseline")
	}

	m.StartRun("", "")
	if _, err := m.RecordEvent(ctx, Record{ActionType: model.ActionToolCall, ActionName: "t", TokenCount: 50}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := m.EndRun(ctx, ""); err != nil {
		t.Fatalf("end run: %v", err)
	}

	first := m.Baseline()
	if first == nil || !first.IsCalibrated {
		t.Fatalf("baseline after first run: %+v", first)
	}

	// Recording events must not touch the cached baseline.
	m.StartRun("", "")
	if _, err := m.RecordEvent(ctx, Record{ActionType: model.ActionToolCall, ActionName: "t", TokenCount: 50}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if m.Baseline() != first {
		t.Error("baseline refreshed outside a run boundary")
	}
}
