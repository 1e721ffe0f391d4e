package store

import (
	"database/sql"
	"fmt"
)

// schemaVersion is stored in PRAGMA user_version. The cache is derived
// data, so a mismatch drops every table and re-creates it; the next
// rebuild repopulates from the logs.
const schemaVersion = 1

const schemaSQL = `
CREATE TABLE IF NOT EXISTS file_cache (
    file_path            TEXT PRIMARY KEY,
    mtime_ns             INTEGER NOT NULL,
    size_bytes           INTEGER NOT NULL,
    session_id           TEXT NOT NULL DEFAULT '',
    parsed_at            TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS session_summaries (
    session_id               TEXT PRIMARY KEY,
    project                  TEXT NOT NULL,
    slug                     TEXT NOT NULL DEFAULT '',
    prompt_preview           TEXT NOT NULL DEFAULT '',
    start_time               TEXT NOT NULL DEFAULT '',
    end_time                 TEXT NOT NULL DEFAULT '',
    model                    TEXT NOT NULL DEFAULT '',
    total_tools              INTEGER NOT NULL DEFAULT 0,
    total_actions            INTEGER NOT NULL DEFAULT 0,
    turn_count               INTEGER NOT NULL DEFAULT 0,
    subagent_count           INTEGER NOT NULL DEFAULT 0,
    subagent_tools           INTEGER NOT NULL DEFAULT 0,
    active_duration_ms       INTEGER NOT NULL DEFAULT 0,
    total_active_duration_ms INTEGER NOT NULL DEFAULT 0,
    cost_estimate            REAL NOT NULL DEFAULT 0,
    permission_mode          TEXT NOT NULL DEFAULT '',
    interrupt_count          INTEGER NOT NULL DEFAULT 0,
    thinking_level           TEXT NOT NULL DEFAULT '',
    tool_errors              INTEGER NOT NULL DEFAULT 0,
    input_tokens             INTEGER NOT NULL DEFAULT 0,
    output_tokens            INTEGER NOT NULL DEFAULT 0,
    cache_creation_tokens    INTEGER NOT NULL DEFAULT 0,
    cache_read_tokens        INTEGER NOT NULL DEFAULT 0,
    tool_counts_json         TEXT NOT NULL DEFAULT '{}',
    file_extensions_json     TEXT NOT NULL DEFAULT '{}',
    updated_at               TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS session_details (
    session_id           TEXT PRIMARY KEY,
    detail_json          TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS global_aggregates (
    id                   INTEGER PRIMARY KEY CHECK (id = 1),
    payload_json         TEXT NOT NULL,
    generated_at         TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_file_cache_session ON file_cache(session_id);
CREATE INDEX IF NOT EXISTS idx_summaries_start ON session_summaries(start_time);
CREATE INDEX IF NOT EXISTS idx_summaries_project ON session_summaries(project);
`

var dropSQL = []string{
	"DROP TABLE IF EXISTS file_cache",
	"DROP TABLE IF EXISTS session_summaries",
	"DROP TABLE IF EXISTS session_details",
	"DROP TABLE IF EXISTS global_aggregates",
}

func migrate(db *sql.DB) error {
	var current int
	if err := db.QueryRow("PRAGMA user_version").Scan(&current); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}
	if current != 0 && current != schemaVersion {
		for _, stmt := range dropSQL {
			if _, err := db.Exec(stmt); err != nil {
				return fmt.Errorf("resetting schema: %w", err)
			}
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return fmt.Errorf("writing schema version: %w", err)
	}
	return nil
}
