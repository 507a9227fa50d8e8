package agentwatch

import (
	"context"
	"time"

	"github.com/Tanmay-24/agentwatch/internal/model"
)

// ActionType classifies a recorded agent action.
type ActionType string

const (
	ToolCall        ActionType = ActionType(model.ActionToolCall)
	LLMRequest      ActionType = ActionType(model.ActionModelRequest)
	StateTransition ActionType = ActionType(model.ActionStateTransition)
)

// Severity grades a drift incident.
type Severity string

const (
	Low      Severity = Severity(model.SeverityLow)
	Medium   Severity = Severity(model.SeverityMedium)
	High     Severity = Severity(model.SeverityHigh)
	Critical Severity = Severity(model.SeverityCritical)
)

// Embedder turns text into a vector for goal-drift scoring. Any
// embedding backend works: a local model, an HTTP service, a test stub.
type Embedder func(ctx context.Context, text string) ([]float64, error)

// Event describes one agent action handed to Record.
type Event struct {
	Type       ActionType
	Name       string
	RunID      string // empty uses the current run
	TokenCount int
	DurationMS float64
	Input      map[string]any
	Output     map[string]any
	Metadata   map[string]any
}

// Incident is a detected deviation from normal behavior.
type Incident struct {
	ID              string
	AgentID         string
	RunID           string
	Detector        string
	Severity        Severity
	Score           float64
	Message         string
	SuggestedAction string
	Timestamp       time.Time
	Context         map[string]any
}

// Baseline is the learned per-agent statistical profile.
type Baseline struct {
	AgentID          string
	CalibrationRuns  int
	MeanTokensPerRun float64
	StdTokensPerRun  float64
	MeanToolsPerRun  float64
	StdToolsPerRun   float64
	MeanDurationMS   float64
	StdDurationMS    float64
	CommonSequences  [][]string
	IsCalibrated     bool
}

// Webhook is an alert destination for drift incidents.
type Webhook struct {
	URL         string
	Format      string // "slack", "discord", "generic"; empty auto-detects
	MinSeverity Severity
	Cooldown    time.Duration
	Headers     map[string]string
}

func fromIncident(inc *model.DriftIncident) Incident {
	return Incident{
		ID:              inc.ID,
		AgentID:         inc.AgentID,
		RunID:           inc.RunID,
		Detector:        string(inc.Detector),
		Severity:        Severity(inc.Severity),
		Score:           inc.Score,
		Message:         inc.Message,
		SuggestedAction: inc.SuggestedAction,
		Timestamp:       inc.Timestamp,
		Context:         inc.Context,
	}
}

func fromIncidents(list []*model.DriftIncident) []Incident {
	out := make([]Incident, len(list))
	for i, inc := range list {
		out[i] = fromIncident(inc)
	}
	return out
}

func fromBaseline(b *model.BaselineStats) *Baseline {
	if b == nil {
		return nil
	}
	return &Baseline{
		AgentID:          b.AgentID,
		CalibrationRuns:  b.CalibrationRuns,
		MeanTokensPerRun: b.MeanTokensPerRun,
		StdTokensPerRun:  b.StdTokensPerRun,
		MeanToolsPerRun:  b.MeanToolsPerRun,
		StdToolsPerRun:   b.StdToolsPerRun,
		MeanDurationMS:   b.MeanDurationMS,
		StdDurationMS:    b.StdDurationMS,
		CommonSequences:  b.CommonSequences,
		IsCalibrated:     b.IsCalibrated,
	}
}
