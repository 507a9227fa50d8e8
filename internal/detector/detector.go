// Package detector implements the drift detectors: action loops, goal
// drift, and resource spikes. Each detector consumes one trace event plus
// the current baseline and optionally emits a drift incident.
package detector

import (
	"context"
	"math"

	"github.com/Tanmay-24/agentwatch/internal/model"
)

// Detector evaluates one trace event against the agent's baseline.
// A nil incident with a nil error is the normal "no drift" outcome.
// Detectors never persist incidents themselves; the orchestrator does.
type Detector interface {
	Name() model.DetectorType
	Check(ctx context.Context, ev *model.TraceEvent, base *model.BaselineStats) (*model.DriftIncident, error)
}

// ActionHistory is the read-through store slice used by loop detection.
type ActionHistory interface {
	RecentActionNames(ctx context.Context, agentID, runID string, window int) ([]string, error)
}

// Embedder turns text into a fixed-length vector. It is an injected
// capability; the engine never implements or imports an embedding model.
// Must be deterministic for the same input within a calibration window.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// EmbedderFunc adapts a plain function to the Embedder interface.
type EmbedderFunc func(ctx context.Context, text string) ([]float64, error)

func (f EmbedderFunc) Embed(ctx context.Context, text string) ([]float64, error) {
	return f(ctx, text)
}

func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	norm := math.Sqrt(na) * math.Sqrt(nb)
	if norm == 0 {
		return 0
	}
	return dot / norm
}

func newIncident(ev *model.TraceEvent, detector model.DetectorType, score float64, message, suggested string, context map[string]any) *model.DriftIncident {
	return &model.DriftIncident{
		ID:              model.NewID(),
		AgentID:         ev.AgentID,
		RunID:           ev.RunID,
		Detector:        detector,
		Severity:        model.SeverityFromScore(score),
		Score:           score,
		Message:         message,
		SuggestedAction: suggested,
		Timestamp:       ev.Timestamp,
		Context:         context,
	}
}
