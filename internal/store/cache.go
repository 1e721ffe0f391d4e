// Package store provides the SQLite-backed cache of parsed sessions and
// the global aggregate.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/theirongolddev/ccdash/internal/model"

	_ "modernc.org/sqlite" // register sqlite driver
)

var (
	// ErrNotFound is returned by SessionDetail for an unknown session id.
	ErrNotFound = errors.New("session not found")
	// ErrNotBuilt is returned by Aggregate before the first successful rebuild.
	ErrNotBuilt = errors.New("aggregate not built")
)

// timeLayout is fixed-width UTC so that start_time orders lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store provides SQLite-backed session caching. Reads may run concurrently
// with a Batch; WAL keeps them on the last committed state.
type Store struct {
	db *sql.DB
}

// Open opens or creates the cache database at the given path.
func Open(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}

	dsn := dbPath + "?_pragma=journal_mode(wal)&_pragma=synchronous(normal)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening cache db: %w", err)
	}

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the cache database.
func (s *Store) Close() error {
	return s.db.Close()
}

// FileState is the tracked identity of one source file. SessionID is
// empty when the file parsed to an empty session.
type FileState struct {
	MtimeNs   int64
	SizeBytes int64
	SessionID string
}

// TrackedFiles returns file_path -> FileState for all tracked files.
func (s *Store) TrackedFiles(ctx context.Context) (map[string]FileState, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT file_path, mtime_ns, size_bytes, session_id FROM file_cache")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	result := make(map[string]FileState)
	for rows.Next() {
		var path string
		var fs FileState
		if err := rows.Scan(&path, &fs.MtimeNs, &fs.SizeBytes, &fs.SessionID); err != nil {
			return nil, err
		}
		result[path] = fs
	}
	return result, rows.Err()
}

const summaryColumns = `session_id, project, slug, prompt_preview, start_time, end_time, model,
	total_tools, total_actions, turn_count, subagent_count, subagent_tools,
	active_duration_ms, total_active_duration_ms, cost_estimate, permission_mode,
	interrupt_count, thinking_level, tool_errors,
	input_tokens, output_tokens, cache_creation_tokens, cache_read_tokens,
	tool_counts_json, file_extensions_json`

// Summaries returns cached session summaries, most recent first. An empty
// project returns every session.
func (s *Store) Summaries(ctx context.Context, project string) ([]model.SessionSummary, error) {
	query := "SELECT " + summaryColumns + " FROM session_summaries"
	var args []any
	if project != "" {
		query += " WHERE project = ?"
		args = append(args, project)
	}
	query += " ORDER BY start_time DESC, session_id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	sessions := []model.SessionSummary{}
	for rows.Next() {
		sum, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sum)
	}
	return sessions, rows.Err()
}

func scanSummary(rows *sql.Rows) (model.SessionSummary, error) {
	var (
		s                  model.SessionSummary
		startStr, endStr   string
		toolJSON, extsJSON string
	)
	err := rows.Scan(
		&s.SessionID, &s.Project, &s.Slug, &s.PromptPreview, &startStr, &endStr, &s.Model,
		&s.TotalTools, &s.TotalActions, &s.TurnCount, &s.SubagentCount, &s.SubagentTools,
		&s.ActiveDurationMs, &s.TotalActiveDurationMs, &s.CostEstimate, &s.PermissionMode,
		&s.InterruptCount, &s.ThinkingLevel, &s.ToolErrors,
		&s.Tokens.Input, &s.Tokens.Output, &s.Tokens.CacheCreation, &s.Tokens.CacheRead,
		&toolJSON, &extsJSON,
	)
	if err != nil {
		return s, err
	}
	s.StartTime = parseTime(startStr)
	s.EndTime = parseTime(endStr)
	if err := json.Unmarshal([]byte(toolJSON), &s.ToolCounts); err != nil {
		return s, fmt.Errorf("decoding tool counts for %s: %w", s.SessionID, err)
	}
	if err := json.Unmarshal([]byte(extsJSON), &s.FileExtensions); err != nil {
		return s, fmt.Errorf("decoding file extensions for %s: %w", s.SessionID, err)
	}
	return s, nil
}

// SessionDetail returns the full record of one session.
func (s *Store) SessionDetail(ctx context.Context, sessionID string) (*model.SessionRecord, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, "SELECT detail_json FROM session_details WHERE session_id = ?", sessionID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var rec model.SessionRecord
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return nil, fmt.Errorf("decoding session %s: %w", sessionID, err)
	}
	return &rec, nil
}

// Aggregate returns the stored global aggregate.
func (s *Store) Aggregate(ctx context.Context) (*model.GlobalAggregate, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, "SELECT payload_json FROM global_aggregates WHERE id = 1").Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotBuilt
	}
	if err != nil {
		return nil, err
	}

	var agg model.GlobalAggregate
	if err := json.Unmarshal([]byte(payload), &agg); err != nil {
		return nil, fmt.Errorf("decoding aggregate: %w", err)
	}
	return &agg, nil
}

// PutAggregate replaces the singleton aggregate row in its own transaction.
func (s *Store) PutAggregate(ctx context.Context, agg *model.GlobalAggregate) error {
	payload, err := json.Marshal(agg)
	if err != nil {
		return fmt.Errorf("encoding aggregate: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `INSERT OR REPLACE INTO global_aggregates (id, payload_json, generated_at)
		VALUES (1, ?, ?)`, string(payload), formatTime(agg.GeneratedAt))
	if err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteAggregate removes the aggregate row, so Aggregate reports ErrNotBuilt.
func (s *Store) DeleteAggregate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM global_aggregates")
	return err
}

// SessionCount returns the number of cached sessions.
func (s *Store) SessionCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM session_summaries").Scan(&count)
	return count, err
}

// Projects returns the distinct project names of cached sessions, sorted.
func (s *Store) Projects(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT project FROM session_summaries ORDER BY project")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	projects := []string{}
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
