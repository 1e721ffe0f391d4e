package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/theirongolddev/ccdash/internal/model"
)

// Batch groups one rebuild cycle's writes in a single transaction. A Batch
// must end with Commit or Rollback; Rollback after Commit is a no-op.
type Batch struct {
	tx  *sql.Tx
	now string
}

// Begin starts a write batch.
func (s *Store) Begin(ctx context.Context) (*Batch, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning batch: %w", err)
	}
	return &Batch{tx: tx, now: formatTime(time.Now())}, nil
}

// Commit makes the batch visible to readers.
func (b *Batch) Commit() error {
	return b.tx.Commit()
}

// Rollback discards the batch.
func (b *Batch) Rollback() error {
	err := b.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

// UpsertSession stores a parsed session's summary and detail and tracks
// its source file under the session's id.
func (b *Batch) UpsertSession(ctx context.Context, path string, fs FileState, rec *model.SessionRecord) error {
	sum := rec.Summary()

	toolJSON, err := json.Marshal(sum.ToolCounts)
	if err != nil {
		return fmt.Errorf("encoding tool counts: %w", err)
	}
	extsJSON, err := json.Marshal(sum.FileExtensions)
	if err != nil {
		return fmt.Errorf("encoding file extensions: %w", err)
	}
	detail, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding session %s: %w", rec.SessionID, err)
	}

	_, err = b.tx.ExecContext(ctx, `INSERT OR REPLACE INTO session_summaries
		(`+summaryColumns+`, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sum.SessionID, sum.Project, sum.Slug, sum.PromptPreview,
		formatTime(sum.StartTime), formatTime(sum.EndTime), sum.Model,
		sum.TotalTools, sum.TotalActions, sum.TurnCount, sum.SubagentCount, sum.SubagentTools,
		sum.ActiveDurationMs, sum.TotalActiveDurationMs, sum.CostEstimate, sum.PermissionMode,
		sum.InterruptCount, sum.ThinkingLevel, sum.ToolErrors,
		sum.Tokens.Input, sum.Tokens.Output, sum.Tokens.CacheCreation, sum.Tokens.CacheRead,
		string(toolJSON), string(extsJSON), b.now,
	)
	if err != nil {
		return fmt.Errorf("writing summary %s: %w", rec.SessionID, err)
	}

	_, err = b.tx.ExecContext(ctx, `INSERT OR REPLACE INTO session_details (session_id, detail_json)
		VALUES (?, ?)`, rec.SessionID, string(detail))
	if err != nil {
		return fmt.Errorf("writing detail %s: %w", rec.SessionID, err)
	}

	fs.SessionID = rec.SessionID
	return b.TrackFile(ctx, path, fs)
}

// TrackFile records a file's identity without a session, as for files that
// parsed to an empty session. If the file previously produced a session
// that no other file maps to, that session is removed.
func (b *Batch) TrackFile(ctx context.Context, path string, fs FileState) error {
	var prev string
	err := b.tx.QueryRowContext(ctx, "SELECT session_id FROM file_cache WHERE file_path = ?", path).Scan(&prev)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	_, err = b.tx.ExecContext(ctx, `INSERT OR REPLACE INTO file_cache (file_path, mtime_ns, size_bytes, session_id, parsed_at)
		VALUES (?, ?, ?, ?, ?)`, path, fs.MtimeNs, fs.SizeBytes, fs.SessionID, b.now)
	if err != nil {
		return fmt.Errorf("tracking %s: %w", path, err)
	}

	if prev != "" && prev != fs.SessionID {
		err = b.dropOrphan(ctx, prev)
	}
	return err
}

// DeleteMissing removes tracking rows for every file not in keep, along
// with the sessions left without a source file. It returns the number of
// file rows removed.
func (b *Batch) DeleteMissing(ctx context.Context, keep map[string]struct{}) (int, error) {
	rows, err := b.tx.QueryContext(ctx, "SELECT file_path, session_id FROM file_cache")
	if err != nil {
		return 0, err
	}

	var gone []string
	sessions := make(map[string]struct{})
	for rows.Next() {
		var path, sid string
		if err := rows.Scan(&path, &sid); err != nil {
			_ = rows.Close()
			return 0, err
		}
		if _, ok := keep[path]; ok {
			continue
		}
		gone = append(gone, path)
		if sid != "" {
			sessions[sid] = struct{}{}
		}
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return 0, err
	}
	_ = rows.Close()

	for _, path := range gone {
		if _, err := b.tx.ExecContext(ctx, "DELETE FROM file_cache WHERE file_path = ?", path); err != nil {
			return 0, fmt.Errorf("untracking %s: %w", path, err)
		}
	}
	for sid := range sessions {
		if err := b.dropOrphan(ctx, sid); err != nil {
			return 0, err
		}
	}
	return len(gone), nil
}

// dropOrphan deletes a session's rows if no tracked file maps to it.
func (b *Batch) dropOrphan(ctx context.Context, sessionID string) error {
	var refs int
	err := b.tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM file_cache WHERE session_id = ?", sessionID).Scan(&refs)
	if err != nil {
		return err
	}
	if refs > 0 {
		return nil
	}
	if _, err := b.tx.ExecContext(ctx, "DELETE FROM session_summaries WHERE session_id = ?", sessionID); err != nil {
		return fmt.Errorf("deleting summary %s: %w", sessionID, err)
	}
	if _, err := b.tx.ExecContext(ctx, "DELETE FROM session_details WHERE session_id = ?", sessionID); err != nil {
		return fmt.Errorf("deleting detail %s: %w", sessionID, err)
	}
	return nil
}
