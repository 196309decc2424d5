package storage

import (
	"context"
	"fmt"
)

// migration is one forward-only schema step. Steps run in order inside a
// single transaction each and are recorded in schema_migrations, so re-open
// is idempotent.
type migration struct {
	version int
	name    string
	sql     string
}

var migrations = []migration{
	{
		version: 1,
		name:    "core tables",
		sql: `
CREATE TABLE IF NOT EXISTS repositories (
	id TEXT PRIMARY KEY,
	full_name TEXT NOT NULL UNIQUE,
	git_url TEXT NOT NULL,
	created_at TEXT NOT NULL,
	last_indexed_at TEXT
);

CREATE TABLE IF NOT EXISTS files (
	id TEXT PRIMARY KEY,
	repository_id TEXT NOT NULL REFERENCES repositories(id) ON DELETE CASCADE,
	path TEXT NOT NULL,
	language TEXT NOT NULL DEFAULT '',
	content_hash TEXT NOT NULL,
	size INTEGER NOT NULL DEFAULT 0,
	indexed_at TEXT NOT NULL,
	content BLOB,
	UNIQUE(repository_id, path)
);
CREATE INDEX IF NOT EXISTS idx_files_repo_path ON files(repository_id, path);
CREATE INDEX IF NOT EXISTS idx_files_indexed_at ON files(indexed_at);

CREATE TABLE IF NOT EXISTS symbols (
	id TEXT PRIMARY KEY,
	file_id TEXT NOT NULL REFERENCES files(id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	kind TEXT NOT NULL CHECK(kind IN (
		'function','class','interface','type','variable','constant',
		'method','property','module','namespace','enum','enum_member')),
	signature TEXT,
	documentation TEXT,
	line_start INTEGER NOT NULL,
	line_end INTEGER NOT NULL,
	metadata TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_symbols_name ON symbols(name);
CREATE INDEX IF NOT EXISTS idx_symbols_file_line ON symbols(file_id, line_start);

CREATE TABLE IF NOT EXISTS refs (
	id TEXT PRIMARY KEY,
	file_id TEXT NOT NULL REFERENCES files(id) ON DELETE CASCADE,
	target_file_path TEXT,
	target_symbol_name TEXT,
	reference_type TEXT NOT NULL CHECK(reference_type IN (
		'import','re_export','export_all','dynamic_import')),
	metadata TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_refs_file ON refs(file_id);
CREATE INDEX IF NOT EXISTS idx_refs_target ON refs(target_file_path);
`,
	},
	{
		version: 2,
		name:    "memory tables",
		sql: `
CREATE TABLE IF NOT EXISTS decisions (
	id TEXT PRIMARY KEY,
	repository_id TEXT,
	title TEXT NOT NULL,
	context TEXT NOT NULL DEFAULT '',
	decision TEXT NOT NULL DEFAULT '',
	scope TEXT NOT NULL DEFAULT 'pattern' CHECK(scope IN (
		'architecture','pattern','convention','workaround')),
	rationale TEXT,
	alternatives TEXT NOT NULL DEFAULT '[]',
	related_files TEXT NOT NULL DEFAULT '[]',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS failures (
	id TEXT PRIMARY KEY,
	repository_id TEXT,
	title TEXT NOT NULL,
	problem TEXT NOT NULL DEFAULT '',
	approach TEXT NOT NULL DEFAULT '',
	failure_reason TEXT NOT NULL DEFAULT '',
	related_files TEXT NOT NULL DEFAULT '[]',
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS patterns (
	id TEXT PRIMARY KEY,
	repository_id TEXT,
	pattern_type TEXT NOT NULL UNIQUE,
	file_path TEXT,
	description TEXT NOT NULL DEFAULT '',
	example TEXT,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS insights (
	id TEXT PRIMARY KEY,
	session_id TEXT,
	content TEXT NOT NULL,
	insight_type TEXT NOT NULL CHECK(insight_type IN (
		'discovery','failure','workaround')),
	related_file TEXT,
	created_at TEXT NOT NULL
);
`,
	},
	{
		version: 3,
		name:    "memory full-text search",
		sql: `
CREATE VIRTUAL TABLE IF NOT EXISTS decisions_fts USING fts5(
	title, context, decision, rationale,
	content='decisions', content_rowid='rowid'
);
CREATE TRIGGER IF NOT EXISTS decisions_ai AFTER INSERT ON decisions BEGIN
	INSERT INTO decisions_fts(rowid, title, context, decision, rationale)
	VALUES (new.rowid, new.title, new.context, new.decision, new.rationale);
END;
CREATE TRIGGER IF NOT EXISTS decisions_ad AFTER DELETE ON decisions BEGIN
	INSERT INTO decisions_fts(decisions_fts, rowid, title, context, decision, rationale)
	VALUES ('delete', old.rowid, old.title, old.context, old.decision, old.rationale);
END;
CREATE TRIGGER IF NOT EXISTS decisions_au AFTER UPDATE ON decisions BEGIN
	INSERT INTO decisions_fts(decisions_fts, rowid, title, context, decision, rationale)
	VALUES ('delete', old.rowid, old.title, old.context, old.decision, old.rationale);
	INSERT INTO decisions_fts(rowid, title, context, decision, rationale)
	VALUES (new.rowid, new.title, new.context, new.decision, new.rationale);
END;

CREATE VIRTUAL TABLE IF NOT EXISTS failures_fts USING fts5(
	title, problem, approach, failure_reason,
	content='failures', content_rowid='rowid'
);
CREATE TRIGGER IF NOT EXISTS failures_ai AFTER INSERT ON failures BEGIN
	INSERT INTO failures_fts(rowid, title, problem, approach, failure_reason)
	VALUES (new.rowid, new.title, new.problem, new.approach, new.failure_reason);
END;
CREATE TRIGGER IF NOT EXISTS failures_ad AFTER DELETE ON failures BEGIN
	INSERT INTO failures_fts(failures_fts, rowid, title, problem, approach, failure_reason)
	VALUES ('delete', old.rowid, old.title, old.problem, old.approach, old.failure_reason);
END;
`,
	},
	{
		version: 4,
		name:    "workflow contexts",
		sql: `
CREATE TABLE IF NOT EXISTS workflow_contexts (
	id TEXT PRIMARY KEY,
	workflow_id TEXT NOT NULL,
	phase TEXT NOT NULL CHECK(phase IN ('analysis','plan','build','improve')),
	context_data TEXT NOT NULL DEFAULT '{}',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	UNIQUE(workflow_id, phase)
);
`,
	},
	{
		version: 5,
		name:    "sync bookkeeping",
		sql: `
CREATE TABLE IF NOT EXISTS export_hashes (
	table_name TEXT PRIMARY KEY,
	content_hash TEXT NOT NULL,
	exported_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sync_deletions (
	table_name TEXT NOT NULL,
	row_id TEXT NOT NULL,
	deleted_at TEXT NOT NULL,
	PRIMARY KEY(table_name, row_id)
);
`,
	},
}

// migrate applies all pending migrations in order.
func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	applied_at TEXT NOT NULL
)`)
	if err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	var current int

	err = s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}

		err = s.applyMigration(ctx, m)
		if err != nil {
			return err
		}

		s.logger.Debug("applied migration", "version", m.version, "name", m.name)
	}

	return nil
}

func (s *Store) applyMigration(ctx context.Context, m migration) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration %d: %w", m.version, err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, m.sql)
	if err != nil {
		return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)`,
		m.version, m.name, nowISO())
	if err != nil {
		return fmt.Errorf("record migration %d: %w", m.version, err)
	}

	return tx.Commit()
}
