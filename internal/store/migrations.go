package store

import (
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "memories: per-user memory records with supersession lineage",
		SQL: `
CREATE TABLE memories (
    id                TEXT PRIMARY KEY,
    user_id           TEXT NOT NULL,
    memory_type       TEXT NOT NULL CHECK (memory_type IN ('fact', 'preference', 'pattern', 'relationship', 'goal', 'emotion_trigger')),
    category          TEXT NOT NULL CHECK (category IN ('work', 'health', 'hobby', 'family', 'personal', 'general')),
    content           TEXT NOT NULL,

    confidence        REAL NOT NULL CHECK (confidence >= 0.0 AND confidence <= 1.0),
    importance        INTEGER NOT NULL CHECK (importance BETWEEN 1 AND 10),

    first_observed_at INTEGER NOT NULL,
    last_confirmed_at INTEGER NOT NULL,
    last_decayed_at   INTEGER,
    mention_count     INTEGER NOT NULL DEFAULT 1,

    is_active         INTEGER NOT NULL DEFAULT 1,
    superseded_by     TEXT REFERENCES memories(id),
    user_confirmed    INTEGER NOT NULL DEFAULT 0,

    source_entry_ids  TEXT NOT NULL DEFAULT '[]'
);

CREATE INDEX idx_memories_user_active ON memories(user_id, is_active);
CREATE INDEX idx_memories_superseded  ON memories(superseded_by);
`,
	},
	{
		Version:     2,
		Description: "entries: local journal entry storage",
		SQL: `
CREATE TABLE entries (
    id         TEXT PRIMARY KEY,
    user_id    TEXT NOT NULL,
    entry_date INTEGER NOT NULL,
    detail     TEXT NOT NULL,
    mood_label TEXT,
    created_at INTEGER NOT NULL
);

CREATE INDEX idx_entries_user_date ON entries(user_id, entry_date DESC);
`,
	},
	{
		Version:     3,
		Description: "pipeline_runs: durable step log for extraction and consolidation",
		SQL: `
CREATE TABLE pipeline_runs (
    id         TEXT PRIMARY KEY,
    user_id    TEXT NOT NULL,
    entry_id   TEXT,
    kind       TEXT NOT NULL CHECK (kind IN ('extraction', 'consolidation')),
    step       TEXT NOT NULL,
    status     TEXT NOT NULL DEFAULT 'running' CHECK (status IN ('running', 'completed', 'failed')),
    attempts   INTEGER NOT NULL DEFAULT 0,
    state      TEXT NOT NULL DEFAULT '{}',
    error      TEXT,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE INDEX idx_runs_user  ON pipeline_runs(user_id, kind);
CREATE INDEX idx_runs_entry ON pipeline_runs(entry_id);
`,
	},
}

func (db *DB) migrate() error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// SchemaVersion returns the current schema version.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}
