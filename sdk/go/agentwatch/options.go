package agentwatch

import (
	"log/slog"
	"time"

	"github.com/Tanmay-24/agentwatch/internal/detector"
)

// Option configures a Watcher at creation time.
type Option func(*watchConfig)

type watchConfig struct {
	dbPath              string
	configPath          string
	goal                string
	embedder            Embedder
	calibrationRuns     int
	similarityThreshold float64
	loop                detector.LoopConfig
	spike               detector.SpikeConfig
	webhooks            []Webhook
	logger              *slog.Logger
}

// WithDB sets the database path (default ~/.agentwatch/agentwatch.db).
func WithDB(path string) Option {
	return func(c *watchConfig) { c.dbPath = path }
}

// WithConfigFile loads settings from a YAML file before the other
// options apply. Options given alongside it take precedence.
func WithConfigFile(path string) Option {
	return func(c *watchConfig) { c.configPath = path }
}

// WithGoal sets the agent's objective for goal-drift scoring.
func WithGoal(goal string) Option {
	return func(c *watchConfig) { c.goal = goal }
}

// WithEmbedder injects the embedding backend. Without one, goal drift
// is inert.
func WithEmbedder(e Embedder) Option {
	return func(c *watchConfig) { c.embedder = e }
}

// WithCalibrationRuns sets how many runs calibrate the baseline
// (default 30).
func WithCalibrationRuns(n int) Option {
	return func(c *watchConfig) { c.calibrationRuns = n }
}

// WithSimilarityThreshold sets the goal-drift similarity floor
// (default 0.5).
func WithSimilarityThreshold(t float64) Option {
	return func(c *watchConfig) { c.similarityThreshold = t }
}

// WithLoopDetection tunes the action-loop detector. Zero values keep
// defaults.
func WithLoopDetection(windowSize, maxRepeats, sequenceLength int) Option {
	return func(c *watchConfig) {
		c.loop = detector.LoopConfig{
			WindowSize:     windowSize,
			MaxRepeats:     maxRepeats,
			SequenceLength: sequenceLength,
		}
	}
}

// WithSpikeDetection tunes the resource-spike detector. Zero values
// keep defaults.
func WithSpikeDetection(multiplier float64, tokenLimit int, durationLimit time.Duration) Option {
	return func(c *watchConfig) {
		c.spike = detector.SpikeConfig{
			Multiplier:            multiplier,
			AbsoluteTokenLimit:    tokenLimit,
			AbsoluteDurationLimit: durationLimit,
		}
	}
}

// WithWebhook adds an alert destination for drift incidents.
func WithWebhook(w Webhook) Option {
	return func(c *watchConfig) { c.webhooks = append(c.webhooks, w) }
}

// WithLogger sets the structured logger (default slog.Default).
func WithLogger(l *slog.Logger) Option {
	return func(c *watchConfig) { c.logger = l }
}

// RecordOption annotates a single convenience record call.
type RecordOption func(*Event)

// Tokens sets the token count consumed by the action.
func Tokens(n int) RecordOption {
	return func(e *Event) { e.TokenCount = n }
}

// Duration sets the wall time the action took.
func Duration(d time.Duration) RecordOption {
	return func(e *Event) { e.DurationMS = float64(d.Milliseconds()) }
}

// Input attaches the action's input payload.
func Input(m map[string]any) RecordOption {
	return func(e *Event) { e.Input = m }
}

// Output attaches the action's output payload.
func Output(m map[string]any) RecordOption {
	return func(e *Event) { e.Output = m }
}

// InRun targets an explicit run instead of the current one.
func InRun(runID string) RecordOption {
	return func(e *Event) { e.RunID = runID }
}
