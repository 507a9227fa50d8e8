// Package monitor orchestrates the drift engine: it owns run lifecycle,
// routes every event through the store and the detector pipeline, and
// recalibrates the baseline at run boundaries.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Tanmay-24/agentwatch/internal/baseline"
	"github.com/Tanmay-24/agentwatch/internal/detector"
	"github.com/Tanmay-24/agentwatch/internal/model"
	"github.com/Tanmay-24/agentwatch/internal/store"
)

// Config holds monitor configuration. Zero values take defaults.
type Config struct {
	AgentID string

	// DBPath locates the SQLite database; empty uses store.DefaultPath.
	DBPath string

	// Goal seeds the goal-drift detector's objective.
	Goal string

	// Embedder is the injected embedding capability for goal drift.
	// When nil, goal drift is inert.
	Embedder detector.Embedder

	// CalibrationRuns is how many runs calibrate the baseline (default 30).
	CalibrationRuns int

	Loop                detector.LoopConfig
	Spike               detector.SpikeConfig
	SimilarityThreshold float64

	Logger *slog.Logger
}

// Record is one observed action handed to RecordEvent.
type Record struct {
	ActionType model.ActionType
	ActionName string
	RunID      string // empty uses the current run (or starts an ad-hoc one)
	TokenCount int
	DurationMS float64
	InputData  map[string]any
	OutputData map[string]any
	Metadata   map[string]any
}

// IncidentCallback receives every produced incident synchronously inside
// RecordEvent.
type IncidentCallback func(*model.DriftIncident)

// Monitor is the in-process drift engine for one agent. Safe for
// concurrent use; detectors see a cached baseline that is refreshed only
// at run boundaries.
type Monitor struct {
	agentID    string
	st         *store.Store
	calibrator *baseline.Calibrator
	goalDrift  *detector.GoalDrift
	detectors  []detector.Detector
	logger     *slog.Logger

	mu        sync.Mutex
	base      *model.BaselineStats
	runID     string
	callbacks []IncidentCallback
}

// New opens the store, loads any persisted baseline, and wires the
// detector pipeline in its fixed order: action loop, goal drift, resource
// spike.
func New(cfg Config) (*Monitor, error) {
	if cfg.AgentID == "" {
		return nil, fmt.Errorf("monitor: agent id is required")
	}
	if cfg.CalibrationRuns <= 0 {
		cfg.CalibrationRuns = 30
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("monitor: open store: %w", err)
	}

	base, err := st.GetBaseline(context.Background(), cfg.AgentID)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("monitor: load baseline: %w", err)
	}

	goalDrift := detector.NewGoalDrift(cfg.Embedder, cfg.Goal, cfg.SimilarityThreshold, cfg.Logger)

	m := &Monitor{
		agentID:    cfg.AgentID,
		st:         st,
		calibrator: baseline.New(st, cfg.CalibrationRuns),
		goalDrift:  goalDrift,
		detectors: []detector.Detector{
			detector.NewActionLoop(st, cfg.Loop),
			goalDrift,
			detector.NewResourceSpike(cfg.Spike),
		},
		logger: cfg.Logger,
		base:   base,
	}

	status := "pending"
	if base != nil && base.IsCalibrated {
		status = "calibrated"
	}
	cfg.Logger.Info("drift monitor initialised", "agent", cfg.AgentID, "baseline", status)
	return m, nil
}

// AgentID returns the monitored agent's identifier.
func (m *Monitor) AgentID() string {
	return m.agentID
}

// Store exposes the underlying event store for inspection tooling.
func (m *Monitor) Store() *store.Store {
	return m.st
}

// StartRun begins a monitored run. An empty runID generates one. A
// non-empty goal updates the goal-drift objective for this and later runs.
func (m *Monitor) StartRun(runID, goal string) string {
	if runID == "" {
		runID = model.NewID()
	}
	if goal != "" {
		m.goalDrift.SetGoal(goal)
	}

	m.mu.Lock()
	m.runID = runID
	m.mu.Unlock()

	m.logger.Debug("run started", "agent", m.agentID, "run", runID)
	return runID
}

// SetGoal updates the goal-drift objective outside of run boundaries.
func (m *Monitor) SetGoal(goal string) {
	m.goalDrift.SetGoal(goal)
}

// EndRun finishes a run and synchronously recalibrates the baseline from
// stored history. The refreshed baseline serves all subsequent checks.
func (m *Monitor) EndRun(ctx context.Context, runID string) error {
	m.mu.Lock()
	if runID == "" {
		runID = m.runID
	}
	m.runID = ""
	m.mu.Unlock()

	if runID == "" {
		return nil
	}

	base, err := m.calibrator.Recompute(ctx, m.agentID)
	if err != nil {
		return fmt.Errorf("monitor: recalibrate: %w", err)
	}

	m.mu.Lock()
	m.base = base
	m.mu.Unlock()

	m.logger.Debug("run ended", "agent", m.agentID, "run", runID,
		"calibrated", base.IsCalibrated, "calibration_runs", base.CalibrationRuns)
	return nil
}

// RecordEvent persists one trace event and routes it through every
// detector in order. It returns all incidents this single event produced.
// A persistence failure is fatal to the call; a detector failure is
// logged, isolated, and skipped.
func (m *Monitor) RecordEvent(ctx context.Context, rec Record) ([]*model.DriftIncident, error) {
	m.mu.Lock()
	runID := rec.RunID
	if runID == "" {
		if m.runID == "" {
			// Ad-hoc run: recording without StartRun still works.
			m.runID = model.NewID()
		}
		runID = m.runID
	}
	base := m.base
	callbacks := append([]IncidentCallback(nil), m.callbacks...)
	m.mu.Unlock()

	ev := &model.TraceEvent{
		ID:         model.NewID(),
		AgentID:    m.agentID,
		RunID:      runID,
		ActionType: rec.ActionType,
		ActionName: rec.ActionName,
		Timestamp:  time.Now(),
		TokenCount: rec.TokenCount,
		DurationMS: rec.DurationMS,
		InputData:  rec.InputData,
		OutputData: rec.OutputData,
		Metadata:   rec.Metadata,
	}

	if err := m.st.Append(ctx, ev); err != nil {
		return nil, fmt.Errorf("monitor: persist event: %w", err)
	}

	var incidents []*model.DriftIncident
	for _, det := range m.detectors {
		inc, err := m.checkOne(ctx, det, ev, base)
		if err != nil {
			m.logger.Error("detector failed", "detector", det.Name(), "error", err)
			continue
		}
		if inc == nil {
			continue
		}

		if err := m.st.AppendIncident(ctx, inc); err != nil {
			return incidents, fmt.Errorf("monitor: persist incident: %w", err)
		}
		incidents = append(incidents, inc)

		m.logger.Warn("drift detected", "severity", inc.Severity,
			"detector", inc.Detector, "message", inc.Message)
		for _, cb := range callbacks {
			m.dispatch(cb, inc)
		}
	}
	return incidents, nil
}

// checkOne isolates a single detector: a panic inside Check becomes an
// error instead of aborting the pipeline.
func (m *Monitor) checkOne(ctx context.Context, det detector.Detector, ev *model.TraceEvent, base *model.BaselineStats) (inc *model.DriftIncident, err error) {
	defer func() {
		if r := recover(); r != nil {
			inc = nil
			err = fmt.Errorf("detector panic: %v", r)
		}
	}()
	return det.Check(ctx, ev, base)
}

// dispatch isolates one callback: a panic is logged and must not affect
// other callbacks or the incident list returned to the caller.
func (m *Monitor) dispatch(cb IncidentCallback, inc *model.DriftIncident) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Warn("incident callback panicked", "error", fmt.Sprint(r))
		}
	}()
	cb(inc)
}

// OnDrift registers a callback fired synchronously for every incident.
func (m *Monitor) OnDrift(cb IncidentCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, cb)
}

// Baseline returns the cached baseline, or nil before any calibration.
func (m *Monitor) Baseline() *model.BaselineStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.base
}

// RecentIncidents returns this agent's incidents from the given lookback
// window, most recent first.
func (m *Monitor) RecentIncidents(ctx context.Context, lookback time.Duration, limit int) ([]*model.DriftIncident, error) {
	return m.st.Incidents(ctx, store.IncidentFilter{
		AgentID: m.agentID,
		Since:   time.Now().Add(-lookback),
		Limit:   limit,
	})
}

// Close releases the underlying store.
func (m *Monitor) Close() error {
	return m.st.Close()
}
