package baseline

import (
	"context"
	"reflect"
	"testing"

	"github.com/Tanmay-24/agentwatch/internal/model"
	"github.com/Tanmay-24/agentwatch/internal/store"
)

// fakeHistory serves canned run data, newest run first.
type fakeHistory struct {
	runs      []string
	aggs      map[string]*store.RunAggregates
	actions   map[string][]string
	persisted *model.BaselineStats
}

func (f *fakeHistory) RunIDs(_ context.Context, _ string, limit int) ([]string, error) {
	if limit > len(f.runs) {
		limit = len(f.runs)
	}
	return f.runs[:limit], nil
}

func (f *fakeHistory) RunAggregates(_ context.Context, _, runID string) (*store.RunAggregates, error) {
	if agg, ok := f.aggs[runID]; ok {
		return agg, nil
	}
	return &store.RunAggregates{}, nil
}

func (f *fakeHistory) RecentActionNames(_ context.Context, _, runID string, window int) ([]string, error) {
	actions := f.actions[runID]
	if len(actions) > window {
		actions = actions[len(actions)-window:]
	}
	return actions, nil
}

func (f *fakeHistory) PutBaseline(_ context.Context, b *model.BaselineStats) error {
	f.persisted = b
	return nil
}

func TestRecomputeNoRuns(t *testing.T) {
	h := &fakeHistory{}
	c := New(h, 5)

	b, err := c.Recompute(context.Background(), "a1")
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if b.IsCalibrated {
		t.Error("empty baseline must not be calibrated")
	}
	if b.CalibrationRuns != 0 {
		t.Errorf("calibration runs = %d, want 0", b.CalibrationRuns)
	}
	if h.persisted == nil {
		t.Error("empty baseline must still be persisted")
	}
}

func TestRecomputeStats(t *testing.T) {
	h := &fakeHistory{
		runs: []string{"r3", "r2", "r1"},
		aggs: map[string]*store.RunAggregates{
			"r1": {TotalTokens: 100, ToolCalls: 2, TotalDurationMS: 10},
			"r2": {TotalTokens: 200, ToolCalls: 4, TotalDurationMS: 20},
			"r3": {TotalTokens: 300, ToolCalls: 6, TotalDurationMS: 30},
		},
	}
	c := New(h, 3)

	b, err := c.Recompute(context.Background(), "a1")
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if !b.IsCalibrated {
		t.Error("3 runs with requiredRuns=3 should calibrate")
	}
	if b.MeanTokensPerRun != 200 {
		t.Errorf("mean tokens = %v, want 200", b.MeanTokensPerRun)
	}
	// Population std of {100, 200, 300} is sqrt(20000/3) ≈ 81.65.
	if b.StdTokensPerRun < 81.6 || b.StdTokensPerRun > 81.7 {
		t.Errorf("std tokens = %v, want ≈81.65", b.StdTokensPerRun)
	}
	if b.MeanToolsPerRun != 4 {
		t.Errorf("mean tools = %v, want 4", b.MeanToolsPerRun)
	}
	if b.MeanDurationMS != 20 {
		t.Errorf("mean duration = %v, want 20", b.MeanDurationMS)
	}
}

func TestRecomputeSingleRunZeroStd(t *testing.T) {
	h := &fakeHistory{
		runs: []string{"r1"},
		aggs: map[string]*store.RunAggregates{
			"r1": {TotalTokens: 500, ToolCalls: 3, TotalDurationMS: 50},
		},
	}
	c := New(h, 5)

	b, err := c.Recompute(context.Background(), "a1")
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if b.IsCalibrated {
		t.Error("1 of 5 runs must not calibrate")
	}
	if b.StdTokensPerRun != 0 || b.StdToolsPerRun != 0 || b.StdDurationMS != 0 {
		t.Errorf("std must be 0 for a single run: %+v", b)
	}
	if b.MeanTokensPerRun != 500 {
		t.Errorf("mean tokens = %v, want 500", b.MeanTokensPerRun)
	}
}

func TestRecomputeIdempotent(t *testing.T) {
	h := &fakeHistory{
		runs: []string{"r2", "r1"},
		aggs: map[string]*store.RunAggregates{
			"r1": {TotalTokens: 100, ToolCalls: 2, TotalDurationMS: 10},
			"r2": {TotalTokens: 200, ToolCalls: 4, TotalDurationMS: 20},
		},
		actions: map[string][]string{
			"r1": {"a", "b", "c"},
			"r2": {"a", "b", "c"},
		},
	}
	c := New(h, 2)
	ctx := context.Background()

	first, err := c.Recompute(ctx, "a1")
	if err != nil {
		t.Fatalf("first recompute: %v", err)
	}
	second, err := c.Recompute(ctx, "a1")
	if err != nil {
		t.Fatalf("second recompute: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("recompute not idempotent:\n  first:  %+v\n  second: %+v", first, second)
	}
}

func TestCommonSequencesRanking(t *testing.T) {
	// "a b" appears in all three runs; "x y" only in one (despite looping
	// inside that run, the per-run dedup counts it once).
	runs := [][]string{
		{"a", "b", "c"},
		{"a", "b", "d"},
		{"a", "b", "e", "x", "y", "x", "y", "x", "y"},
	}

	got := commonSequences(runs)
	if len(got) == 0 {
		t.Fatal("no sequences extracted")
	}
	if !reflect.DeepEqual(got[0], []string{"a", "b"}) {
		t.Errorf("top sequence = %v, want [a b]", got[0])
	}
	if len(got) > topSubsequences {
		t.Errorf("got %d sequences, cap is %d", len(got), topSubsequences)
	}
}

func TestCommonSequencesTieOrder(t *testing.T) {
	// All subsequences occur once; first-seen order must win ties.
	got := commonSequences([][]string{{"a", "b", "c"}})
	want := [][]string{
		{"a", "b"},
		{"b", "c"},
		{"a", "b", "c"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("tie order mismatch:\n  got:  %v\n  want: %v", got, want)
	}
}

func TestCommonSequencesShortRun(t *testing.T) {
	if got := commonSequences([][]string{{"solo"}}); len(got) != 0 {
		t.Errorf("single-action run produced sequences: %v", got)
	}
}
