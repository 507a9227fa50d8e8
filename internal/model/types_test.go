package model

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"
)

func TestSeverityFromScore(t *testing.T) {
	tests := []struct {
		score float64
		want  Severity
	}{
		{0.0, SeverityLow},
		{0.49, SeverityLow},
		{0.5, SeverityMedium},
		{0.69, SeverityMedium},
		{0.7, SeverityHigh},
		{0.89, SeverityHigh},
		{0.9, SeverityCritical},
		{1.0, SeverityCritical},
	}
	for _, tt := range tests {
		if got := SeverityFromScore(tt.score); got != tt.want {
			t.Errorf("SeverityFromScore(%v) = %v, want %v", tt.score, got, tt.want)
		}
	}
}

func TestSeverityFromScoreMonotone(t *testing.T) {
	prev := SeverityFromScore(0)
	for s := 0.0; s <= 1.0; s += 0.01 {
		cur := SeverityFromScore(s)
		if cur.Rank() < prev.Rank() {
			t.Fatalf("severity decreased from %v to %v at score %v", prev, cur, s)
		}
		prev = cur
	}
}

func TestSeverityRankOrder(t *testing.T) {
	order := []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}
	for i := 1; i < len(order); i++ {
		if order[i].Rank() <= order[i-1].Rank() {
			t.Errorf("%v should rank above %v", order[i], order[i-1])
		}
	}
}

func TestTraceEventRoundTrip(t *testing.T) {
	ev := &TraceEvent{
		ID:         NewID(),
		AgentID:    "agent-1",
		RunID:      "run-1",
		ActionType: ActionToolCall,
		ActionName: "search_db",
		Timestamp:  time.Now().UTC().Truncate(time.Microsecond),
		TokenCount: 120,
		InputData:  map[string]any{"query": "orders"},
		OutputData: map[string]any{"rows": "41"},
		DurationMS: 12.5,
		Metadata:   map[string]any{"source": "test"},
	}

	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got TraceEvent
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(*ev, got) {
		t.Errorf("round trip mismatch:\n  in:  %+v\n  out: %+v", *ev, got)
	}
}

func TestDriftIncidentRoundTrip(t *testing.T) {
	inc := &DriftIncident{
		ID:              NewID(),
		AgentID:         "agent-1",
		RunID:           "run-1",
		Detector:        DetectorActionLoop,
		Severity:        SeverityHigh,
		Score:           0.75,
		Message:         "Action loop: search_db called 6x consecutively",
		SuggestedAction: "Check search_db input/output for stale data or error loops",
		Timestamp:       time.Now().UTC().Truncate(time.Microsecond),
		Context:         map[string]any{"tool_name": "search_db"},
	}

	data, err := json.Marshal(inc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got DriftIncident
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(*inc, got) {
		t.Errorf("round trip mismatch:\n  in:  %+v\n  out: %+v", *inc, got)
	}
}

func TestNewID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewID()
		if len(id) != 12 {
			t.Fatalf("id %q has length %d, want 12", id, len(id))
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}
