// Package model defines the core data types shared by the drift engine:
// trace events, drift incidents, baselines, and severity scoring.
package model

import "time"

// ActionType classifies what kind of agent action a trace event records.
type ActionType string

const (
	ActionToolCall        ActionType = "tool_call"
	ActionModelRequest    ActionType = "llm_request"
	ActionStateTransition ActionType = "state_transition"
)

// DetectorType identifies which detector produced a drift incident.
type DetectorType string

const (
	DetectorActionLoop    DetectorType = "action_loop"
	DetectorGoalDrift     DetectorType = "goal_drift"
	DetectorResourceSpike DetectorType = "resource_spike"
)

// Severity grades a drift incident. MED keeps the short wire form so
// stored rows and CLI filters stay compatible across versions.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MED"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// severityRank orders severities for threshold comparisons.
var severityRank = map[Severity]int{
	SeverityLow:      0,
	SeverityMedium:   1,
	SeverityHigh:     2,
	SeverityCritical: 3,
}

// Rank returns the ordering index of a severity. Unknown severities rank
// lowest.
func (s Severity) Rank() int {
	return severityRank[s]
}

// SeverityFromScore maps a normalized score in [0,1] to a severity.
func SeverityFromScore(score float64) Severity {
	switch {
	case score >= 0.9:
		return SeverityCritical
	case score >= 0.7:
		return SeverityHigh
	case score >= 0.5:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// TraceEvent is a single captured action from an agent run. Immutable once
// built; owned by the store after Append.
type TraceEvent struct {
	ID         string         `json:"event_id"`
	AgentID    string         `json:"agent_id"`
	RunID      string         `json:"run_id"`
	ActionType ActionType     `json:"action_type"`
	ActionName string         `json:"action_name"`
	Timestamp  time.Time      `json:"timestamp"`
	TokenCount int            `json:"token_count"`
	InputData  map[string]any `json:"input_data,omitempty"`
	OutputData map[string]any `json:"output_data,omitempty"`
	DurationMS float64        `json:"duration_ms"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// DriftIncident is a detected anomaly. Produced only by detectors,
// persisted for audit and alerting.
type DriftIncident struct {
	ID              string         `json:"event_id"`
	AgentID         string         `json:"agent_id"`
	RunID           string         `json:"run_id"`
	Detector        DetectorType   `json:"detector"`
	Severity        Severity       `json:"severity"`
	Score           float64        `json:"score"`
	Message         string         `json:"message"`
	SuggestedAction string         `json:"suggested_action"`
	Timestamp       time.Time      `json:"timestamp"`
	Context         map[string]any `json:"context,omitempty"`
}

// BaselineStats is the per-agent statistical model of normal behavior.
// Exactly one current baseline exists per agent; recalculation replaces it
// wholesale.
type BaselineStats struct {
	AgentID            string     `json:"agent_id"`
	CalibrationRuns    int        `json:"calibration_runs"`
	MeanTokensPerRun   float64    `json:"mean_tokens_per_run"`
	StdTokensPerRun    float64    `json:"std_tokens_per_run"`
	MeanToolsPerRun    float64    `json:"mean_tools_per_run"`
	StdToolsPerRun     float64    `json:"std_tools_per_run"`
	MeanDurationMS     float64    `json:"mean_duration_ms"`
	StdDurationMS      float64    `json:"std_duration_ms"`
	CommonSequences    [][]string `json:"common_sequences"`
	MeanGoalSimilarity float64    `json:"mean_goal_similarity"`
	StdGoalSimilarity  float64    `json:"std_goal_similarity"`
	IsCalibrated       bool       `json:"is_calibrated"`
}
