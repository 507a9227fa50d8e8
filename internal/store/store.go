// Package store persists trace events, drift incidents, and per-agent
// baselines in a local SQLite database.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Tanmay-24/agentwatch/internal/model"
)

// Store is a SQLite-backed log of everything the engine observes.
// Safe for concurrent use; per-run write ordering follows event timestamps.
type Store struct {
	db *sql.DB
}

// RunAggregates summarizes one run for baseline calibration and inspection.
type RunAggregates struct {
	EventCount      int
	TotalTokens     int
	ToolCalls       int
	ModelRequests   int
	TotalDurationMS float64
	Start           time.Time
	End             time.Time
}

// EventFilter narrows an Events query. Zero values mean no constraint.
type EventFilter struct {
	AgentID string
	RunID   string
	Since   time.Time
	Limit   int // default 100
}

// IncidentFilter narrows an Incidents query. Zero values mean no constraint.
type IncidentFilter struct {
	AgentID  string
	Since    time.Time
	Severity model.Severity
	Limit    int // default 50
}

// DefaultPath returns the standard database location under the user's home.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".agentwatch", "agentwatch.db")
	}
	return filepath.Join(home, ".agentwatch", "agentwatch.db")
}

// Open opens (creating if needed) the database at path. An empty path uses
// DefaultPath.
func Open(path string) (*Store, error) {
	if path == "" {
		path = DefaultPath()
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL; PRAGMA busy_timeout=5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set pragmas: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS trace_events (
			event_id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL,
			run_id TEXT NOT NULL,
			action_type TEXT NOT NULL,
			action_name TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			token_count INTEGER NOT NULL DEFAULT 0,
			input_data TEXT NOT NULL DEFAULT '{}',
			output_data TEXT NOT NULL DEFAULT '{}',
			duration_ms REAL NOT NULL DEFAULT 0,
			metadata TEXT NOT NULL DEFAULT '{}'
		)`,
		`CREATE TABLE IF NOT EXISTS drift_incidents (
			event_id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL,
			run_id TEXT NOT NULL,
			detector TEXT NOT NULL,
			severity TEXT NOT NULL,
			score REAL NOT NULL,
			message TEXT NOT NULL,
			suggested_action TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			context TEXT NOT NULL DEFAULT '{}'
		)`,
		`CREATE TABLE IF NOT EXISTS baselines (
			agent_id TEXT PRIMARY KEY,
			data TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_traces_agent ON trace_events(agent_id, timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_traces_run ON trace_events(run_id, timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_drift_agent ON drift_incidents(agent_id, timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_drift_severity ON drift_incidents(severity, timestamp)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("execute schema statement: %w", err)
		}
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append durably persists one trace event.
func (s *Store) Append(ctx context.Context, ev *model.TraceEvent) error {
	input, err := marshalMap(ev.InputData)
	if err != nil {
		return fmt.Errorf("marshal input data: %w", err)
	}
	output, err := marshalMap(ev.OutputData)
	if err != nil {
		return fmt.Errorf("marshal output data: %w", err)
	}
	meta, err := marshalMap(ev.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO trace_events
		 (event_id, agent_id, run_id, action_type, action_name,
		  timestamp, token_count, input_data, output_data, duration_ms, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.AgentID, ev.RunID, string(ev.ActionType), ev.ActionName,
		ev.Timestamp.UnixNano(), ev.TokenCount, input, output, ev.DurationMS, meta,
	)
	if err != nil {
		return fmt.Errorf("insert trace event: %w", err)
	}
	return nil
}

// AppendIncident durably persists one drift incident.
func (s *Store) AppendIncident(ctx context.Context, inc *model.DriftIncident) error {
	ctxData, err := marshalMap(inc.Context)
	if err != nil {
		return fmt.Errorf("marshal incident context: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO drift_incidents
		 (event_id, agent_id, run_id, detector, severity, score,
		  message, suggested_action, timestamp, context)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inc.ID, inc.AgentID, inc.RunID, string(inc.Detector), string(inc.Severity),
		inc.Score, inc.Message, inc.SuggestedAction, inc.Timestamp.UnixNano(), ctxData,
	)
	if err != nil {
		return fmt.Errorf("insert drift incident: %w", err)
	}
	return nil
}

// Events returns trace events matching the filter, most recent first.
func (s *Store) Events(ctx context.Context, f EventFilter) ([]*model.TraceEvent, error) {
	query := `SELECT event_id, agent_id, run_id, action_type, action_name,
	                 timestamp, token_count, input_data, output_data, duration_ms, metadata
	          FROM trace_events WHERE 1=1`
	var args []any
	if f.AgentID != "" {
		query += " AND agent_id = ?"
		args = append(args, f.AgentID)
	}
	if f.RunID != "" {
		query += " AND run_id = ?"
		args = append(args, f.RunID)
	}
	if !f.Since.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, f.Since.UnixNano())
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " ORDER BY timestamp DESC, rowid DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query trace events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// RunEvents returns every event of one run in chronological order.
func (s *Store) RunEvents(ctx context.Context, agentID, runID string) ([]*model.TraceEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT event_id, agent_id, run_id, action_type, action_name,
		        timestamp, token_count, input_data, output_data, duration_ms, metadata
		 FROM trace_events WHERE agent_id = ? AND run_id = ?
		 ORDER BY timestamp ASC, rowid ASC`,
		agentID, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query run events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// RecentActionNames returns the last window tool-call action names for a
// run, oldest first. This is the sliding window used by loop detection.
func (s *Store) RecentActionNames(ctx context.Context, agentID, runID string, window int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT action_name FROM trace_events
		 WHERE agent_id = ? AND run_id = ? AND action_type = ?
		 ORDER BY timestamp DESC, rowid DESC LIMIT ?`,
		agentID, runID, string(model.ActionToolCall), window,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent actions: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan action name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Query walks backward; callers want chronological order.
	for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
		names[i], names[j] = names[j], names[i]
	}
	return names, nil
}

// RunIDs returns distinct run ids for an agent, most recently active first.
func (s *Store) RunIDs(ctx context.Context, agentID string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id FROM trace_events WHERE agent_id = ?
		 GROUP BY run_id ORDER BY MAX(timestamp) DESC LIMIT ?`,
		agentID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query run ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan run id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// RunAggregates computes summary statistics for one run.
func (s *Store) RunAggregates(ctx context.Context, agentID, runID string) (*RunAggregates, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(token_count), 0),
		        COALESCE(SUM(CASE WHEN action_type = ? THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN action_type = ? THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(duration_ms), 0),
		        COALESCE(MIN(timestamp), 0),
		        COALESCE(MAX(timestamp), 0)
		 FROM trace_events WHERE agent_id = ? AND run_id = ?`,
		string(model.ActionToolCall), string(model.ActionModelRequest), agentID, runID,
	)

	var agg RunAggregates
	var startNano, endNano int64
	if err := row.Scan(&agg.EventCount, &agg.TotalTokens, &agg.ToolCalls,
		&agg.ModelRequests, &agg.TotalDurationMS, &startNano, &endNano); err != nil {
		return nil, fmt.Errorf("scan run aggregates: %w", err)
	}
	if startNano > 0 {
		agg.Start = time.Unix(0, startNano)
	}
	if endNano > 0 {
		agg.End = time.Unix(0, endNano)
	}
	return &agg, nil
}

// Incidents returns drift incidents matching the filter, most recent first.
func (s *Store) Incidents(ctx context.Context, f IncidentFilter) ([]*model.DriftIncident, error) {
	query := `SELECT event_id, agent_id, run_id, detector, severity, score,
	                 message, suggested_action, timestamp, context
	          FROM drift_incidents WHERE 1=1`
	var args []any
	if f.AgentID != "" {
		query += " AND agent_id = ?"
		args = append(args, f.AgentID)
	}
	if !f.Since.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, f.Since.UnixNano())
	}
	if f.Severity != "" {
		query += " AND severity = ?"
		args = append(args, string(f.Severity))
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	query += " ORDER BY timestamp DESC, rowid DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query drift incidents: %w", err)
	}
	defer rows.Close()

	var incidents []*model.DriftIncident
	for rows.Next() {
		var inc model.DriftIncident
		var detector, severity, ctxData string
		var nano int64
		if err := rows.Scan(&inc.ID, &inc.AgentID, &inc.RunID, &detector, &severity,
			&inc.Score, &inc.Message, &inc.SuggestedAction, &nano, &ctxData); err != nil {
			return nil, fmt.Errorf("scan drift incident: %w", err)
		}
		inc.Detector = model.DetectorType(detector)
		inc.Severity = model.Severity(severity)
		inc.Timestamp = time.Unix(0, nano)
		if err := json.Unmarshal([]byte(ctxData), &inc.Context); err != nil {
			return nil, fmt.Errorf("decode incident context: %w", err)
		}
		incidents = append(incidents, &inc)
	}
	return incidents, rows.Err()
}

// GetBaseline returns the current baseline for an agent, or (nil, nil) when
// the agent has not been calibrated yet.
func (s *Store) GetBaseline(ctx context.Context, agentID string) (*model.BaselineStats, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		"SELECT data FROM baselines WHERE agent_id = ?", agentID,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query baseline: %w", err)
	}

	var b model.BaselineStats
	if err := json.Unmarshal([]byte(data), &b); err != nil {
		return nil, fmt.Errorf("decode baseline: %w", err)
	}
	return &b, nil
}

// PutBaseline replaces the agent's baseline wholesale.
func (s *Store) PutBaseline(ctx context.Context, b *model.BaselineStats) error {
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("encode baseline: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO baselines (agent_id, data, updated_at) VALUES (?, ?, ?)",
		b.AgentID, string(data), time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert baseline: %w", err)
	}
	return nil
}

func scanEvents(rows *sql.Rows) ([]*model.TraceEvent, error) {
	var events []*model.TraceEvent
	for rows.Next() {
		var ev model.TraceEvent
		var actionType, input, output, meta string
		var nano int64
		if err := rows.Scan(&ev.ID, &ev.AgentID, &ev.RunID, &actionType, &ev.ActionName,
			&nano, &ev.TokenCount, &input, &output, &ev.DurationMS, &meta); err != nil {
			return nil, fmt.Errorf("scan trace event: %w", err)
		}
		ev.ActionType = model.ActionType(actionType)
		ev.Timestamp = time.Unix(0, nano)
		if err := json.Unmarshal([]byte(input), &ev.InputData); err != nil {
			return nil, fmt.Errorf("decode input data: %w", err)
		}
		if err := json.Unmarshal([]byte(output), &ev.OutputData); err != nil {
			return nil, fmt.Errorf("decode output data: %w", err)
		}
		if err := json.Unmarshal([]byte(meta), &ev.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
		events = append(events, &ev)
	}
	return events, rows.Err()
}

func marshalMap(m map[string]any) (string, error) {
	if m == nil {
		return "{}", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
