package agentwatch

import (
	"context"
	"fmt"
	"time"

	"github.com/Tanmay-24/agentwatch/internal/alert"
	"github.com/Tanmay-24/agentwatch/internal/config"
	"github.com/Tanmay-24/agentwatch/internal/detector"
	"github.com/Tanmay-24/agentwatch/internal/model"
	"github.com/Tanmay-24/agentwatch/internal/monitor"
)

// Watcher is the drift-detection handle for one agent. Thread-safe for
// concurrent recording.
type Watcher struct {
	mon        *monitor.Monitor
	alerts     *alert.Dispatcher
	configPath string
}

// Watch opens (or creates) the agent's drift monitor with the given
// options.
func Watch(agentID string, opts ...Option) (*Watcher, error) {
	var cfg watchConfig
	for _, o := range opts {
		o(&cfg)
	}

	fileCfg, err := config.Load(cfg.configPath)
	if err != nil {
		return nil, fmt.Errorf("agentwatch: load config: %w", err)
	}
	applyFileDefaults(&cfg, fileCfg)

	var emb detector.Embedder
	if cfg.embedder != nil {
		emb = detector.EmbedderFunc(cfg.embedder)
	}

	mon, err := monitor.New(monitor.Config{
		AgentID:             agentID,
		DBPath:              cfg.dbPath,
		Goal:                cfg.goal,
		Embedder:            emb,
		CalibrationRuns:     cfg.calibrationRuns,
		Loop:                cfg.loop,
		Spike:               cfg.spike,
		SimilarityThreshold: cfg.similarityThreshold,
		Logger:              cfg.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("agentwatch: %w", err)
	}

	w := &Watcher{mon: mon, configPath: cfg.configPath}

	if len(cfg.webhooks) > 0 {
		configs := make([]alert.Config, len(cfg.webhooks))
		for i, wh := range cfg.webhooks {
			configs[i] = alert.Config{
				URL:         wh.URL,
				Format:      wh.Format,
				MinSeverity: model.Severity(wh.MinSeverity),
				Cooldown:    wh.Cooldown,
				Headers:     wh.Headers,
			}
		}
		w.alerts = alert.NewDispatcher(configs, cfg.logger)
		if w.alerts != nil {
			mon.OnDrift(w.alerts.Callback())
		}
	}

	return w, nil
}

// applyFileDefaults fills unset options from the loaded config file.
func applyFileDefaults(cfg *watchConfig, file *config.Config) {
	if cfg.dbPath == "" {
		cfg.dbPath = file.DBPath
	}
	if cfg.goal == "" {
		cfg.goal = file.Goal
	}
	if cfg.calibrationRuns == 0 {
		cfg.calibrationRuns = file.CalibrationRuns
	}
	if cfg.similarityThreshold == 0 {
		cfg.similarityThreshold = file.SimilarityThreshold
	}
	if cfg.loop == (detector.LoopConfig{}) {
		cfg.loop = detector.LoopConfig{
			WindowSize:     file.Loop.WindowSize,
			MaxRepeats:     file.Loop.MaxRepeats,
			SequenceLength: file.Loop.SequenceLength,
		}
	}
	if cfg.spike == (detector.SpikeConfig{}) {
		cfg.spike = detector.SpikeConfig{
			Multiplier:            file.Spike.Multiplier,
			AbsoluteTokenLimit:    file.Spike.AbsoluteTokenLimit,
			AbsoluteDurationLimit: file.Spike.AbsoluteDurationLimit,
		}
	}
	for _, a := range file.Alerts {
		cfg.webhooks = append(cfg.webhooks, Webhook{
			URL:         a.URL,
			Format:      a.Format,
			MinSeverity: Severity(a.MinSeverity),
			Cooldown:    a.Cooldown,
			Headers:     a.Headers,
		})
	}
}

// StartRun begins a new run. Empty runID generates one; a non-empty
// goal updates the goal-drift objective for this run. Returns the run
// ID in use.
func (w *Watcher) StartRun(runID, goal string) string {
	return w.mon.StartRun(runID, goal)
}

// SetGoal replaces the goal-drift objective mid-run.
func (w *Watcher) SetGoal(goal string) {
	w.mon.SetGoal(goal)
}

// EndRun closes a run and recalibrates the baseline from recent run
// history. Empty runID closes the current run.
func (w *Watcher) EndRun(ctx context.Context, runID string) error {
	return w.mon.EndRun(ctx, runID)
}

// Record persists one event and runs the detector pipeline over it.
// Returns the incidents produced, if any.
func (w *Watcher) Record(ctx context.Context, ev Event) ([]Incident, error) {
	incidents, err := w.mon.RecordEvent(ctx, monitor.Record{
		ActionType: model.ActionType(ev.Type),
		ActionName: ev.Name,
		RunID:      ev.RunID,
		TokenCount: ev.TokenCount,
		DurationMS: ev.DurationMS,
		InputData:  ev.Input,
		OutputData: ev.Output,
		Metadata:   ev.Metadata,
	})
	if err != nil {
		return nil, err
	}
	return fromIncidents(incidents), nil
}

// RecordToolCall records a tool invocation.
func (w *Watcher) RecordToolCall(ctx context.Context, name string, opts ...RecordOption) ([]Incident, error) {
	return w.record(ctx, ToolCall, name, opts)
}

// RecordLLMRequest records a model request. Put the response text under
// Output's "text" key to feed goal-drift scoring.
func (w *Watcher) RecordLLMRequest(ctx context.Context, name string, opts ...RecordOption) ([]Incident, error) {
	return w.record(ctx, LLMRequest, name, opts)
}

// RecordStateTransition records an agent state change.
func (w *Watcher) RecordStateTransition(ctx context.Context, name string, opts ...RecordOption) ([]Incident, error) {
	return w.record(ctx, StateTransition, name, opts)
}

func (w *Watcher) record(ctx context.Context, typ ActionType, name string, opts []RecordOption) ([]Incident, error) {
	ev := Event{Type: typ, Name: name}
	for _, o := range opts {
		o(&ev)
	}
	return w.Record(ctx, ev)
}

// OnDrift registers a callback invoked synchronously for every
// incident.
func (w *Watcher) OnDrift(fn func(Incident)) {
	w.mon.OnDrift(func(inc *model.DriftIncident) {
		fn(fromIncident(inc))
	})
}

// Baseline returns the current learned baseline, or nil before the
// first calibration.
func (w *Watcher) Baseline() *Baseline {
	return fromBaseline(w.mon.Baseline())
}

// RecentIncidents returns incidents from the lookback window, most
// recent first.
func (w *Watcher) RecentIncidents(ctx context.Context, lookback time.Duration, limit int) ([]Incident, error) {
	incidents, err := w.mon.RecentIncidents(ctx, lookback, limit)
	if err != nil {
		return nil, err
	}
	return fromIncidents(incidents), nil
}

// WatchConfig hot-reloads the config file given via WithConfigFile,
// re-applying the goal and similarity settings as the file changes.
// Blocks until ctx is cancelled.
func (w *Watcher) WatchConfig(ctx context.Context) error {
	if w.configPath == "" {
		return fmt.Errorf("agentwatch: no config file to watch")
	}
	r, err := config.NewReloader(w.configPath, func(c *config.Config) {
		if c.Goal != "" {
			w.mon.SetGoal(c.Goal)
		}
	}, nil)
	if err != nil {
		return fmt.Errorf("agentwatch: %w", err)
	}
	return r.Run(ctx)
}

// Close flushes pending alert deliveries and closes the store.
func (w *Watcher) Close() error {
	if w.alerts != nil {
		w.alerts.Wait()
	}
	return w.mon.Close()
}
