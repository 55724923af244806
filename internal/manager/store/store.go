// Package store persists what the script manager needs to survive a
// restart: a script's last-known source (for resetScript and process
// restart replay), its diagnostic history, and the link bus's dead-letter
// log for messages dropped on queue overflow (spec §4.10, §9 Open
// Question). Grounded on the teacher's internal/database package (same
// open/migrate/prepare shape), with github.com/Masterminds/squirrel taking
// over the hand-built query strings the teacher writes by hand in
// internal/proxy/streaming/update_trackers.go.
package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	"glitchscript/internal/protocol"
)

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question)

// ScriptRecord is a script's durable state: enough to reload it after a
// process restart or replay it via resetScript.
type ScriptRecord struct {
	ScriptID    string
	ContainerID string
	LinkNumber  int
	Name        string
	Source      string
	Status      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// DeadLetter is one link-bus message dropped by drop-oldest overflow
// (internal/linkbus), kept for operator inspection.
type DeadLetter struct {
	ID          int64
	ContainerID string
	Message     protocol.LinkMessage
	RecipientID string
	DroppedAt   time.Time
}

// Store wraps a SQLite handle with the script manager's schema.
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) the SQLite database at path and applies
// pending migrations. Pass ":memory:" for an ephemeral store, e.g. in tests
// or a stateless preview session (spec §6 "Preview / iframe channel").
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping %s: %w", path, err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// migration mirrors the teacher's internal/database/migrations.go shape: a
// linear, ID-ordered list applied against a schema_version table.
type migration struct {
	id  int
	sql string
}

var migrations = []migration{
	{
		id: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY,
	applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS scripts (
	script_id    TEXT PRIMARY KEY,
	container_id TEXT NOT NULL,
	link_number  INTEGER NOT NULL DEFAULT 0,
	name         TEXT NOT NULL DEFAULT '',
	source       TEXT NOT NULL,
	status       TEXT NOT NULL,
	created_at   DATETIME NOT NULL,
	updated_at   DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS diagnostics (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	script_id  TEXT NOT NULL,
	severity   TEXT NOT NULL,
	stage      TEXT NOT NULL,
	message    TEXT NOT NULL,
	file       TEXT NOT NULL DEFAULT '',
	line       INTEGER NOT NULL DEFAULT 0,
	column     INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS link_dead_letters (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	container_id  TEXT NOT NULL,
	sender_id     TEXT NOT NULL,
	sender_link   INTEGER NOT NULL,
	recipient_id  TEXT NOT NULL,
	num           INTEGER NOT NULL,
	str           TEXT NOT NULL,
	link_id       TEXT NOT NULL,
	dropped_at    DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS bundle_loads (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	scene_name     TEXT NOT NULL,
	region         TEXT NOT NULL,
	script_count   INTEGER NOT NULL,
	loaded_at      DATETIME NOT NULL
);`,
	},
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(migrations[0].sql); err != nil {
		return err
	}
	var current int
	row := s.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`)
	if err := row.Scan(&current); err != nil {
		return err
	}
	for _, m := range migrations {
		if m.id <= current {
			continue
		}
		if _, err := s.db.Exec(`INSERT INTO schema_version (version) VALUES (?)`, m.id); err != nil {
			return err
		}
	}
	return nil
}

// SaveScript upserts a script's durable record (spec §4.10 loadScript /
// resetScript).
func (s *Store) SaveScript(rec ScriptRecord) error {
	now := rec.UpdatedAt
	_, err := psql.Insert("scripts").
		Columns("script_id", "container_id", "link_number", "name", "source", "status", "created_at", "updated_at").
		Values(rec.ScriptID, rec.ContainerID, rec.LinkNumber, rec.Name, rec.Source, rec.Status, rec.CreatedAt, now).
		Suffix(`ON CONFLICT(script_id) DO UPDATE SET
			container_id = excluded.container_id,
			link_number  = excluded.link_number,
			name         = excluded.name,
			source       = excluded.source,
			status       = excluded.status,
			updated_at   = excluded.updated_at`).
		RunWith(s.db).
		Exec()
	return err
}

// UpdateStatus records a script's lifecycle transition (ready/error/terminated)
// without rewriting its source.
func (s *Store) UpdateStatus(scriptID, status string, at time.Time) error {
	_, err := psql.Update("scripts").
		Set("status", status).
		Set("updated_at", at).
		Where(squirrel.Eq{"script_id": scriptID}).
		RunWith(s.db).
		Exec()
	return err
}

// LoadScript fetches a script's durable record, e.g. to replay resetScript
// after a process restart.
func (s *Store) LoadScript(scriptID string) (ScriptRecord, error) {
	row := psql.Select("script_id", "container_id", "link_number", "name", "source", "status", "created_at", "updated_at").
		From("scripts").
		Where(squirrel.Eq{"script_id": scriptID}).
		RunWith(s.db).
		QueryRow()

	var rec ScriptRecord
	err := row.Scan(&rec.ScriptID, &rec.ContainerID, &rec.LinkNumber, &rec.Name, &rec.Source, &rec.Status, &rec.CreatedAt, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return ScriptRecord{}, fmt.Errorf("store: no script record for %s", scriptID)
	}
	return rec, err
}

// DeleteScript removes a script's durable record, called from
// terminateScript once the worker/bus/dispatcher cleanup completes.
func (s *Store) DeleteScript(scriptID string) error {
	_, err := psql.Delete("scripts").Where(squirrel.Eq{"script_id": scriptID}).RunWith(s.db).Exec()
	return err
}

// RecordDiagnostics appends a load's diagnostic list for later inspection
// (spec §7 "succeed with warnings"). A clean load with zero diagnostics is
// a no-op.
func (s *Store) RecordDiagnostics(scriptID string, diags protocol.Diagnostics, at time.Time) error {
	for _, d := range diags {
		_, err := psql.Insert("diagnostics").
			Columns("script_id", "severity", "stage", "message", "file", "line", "column", "created_at").
			Values(scriptID, d.Severity.String(), d.Stage, d.Message, d.Location.File, d.Location.Line, d.Location.Column, at).
			RunWith(s.db).
			Exec()
		if err != nil {
			return err
		}
	}
	return nil
}

// RecordBundleLoad logs one loadBundle call for operator inspection: which
// scene, how many scripts it placed (spec §4.11 host adapter facade
// `loadBundle`, §6 bundle format boundary).
func (s *Store) RecordBundleLoad(sceneName, region string, scriptCount int, at time.Time) error {
	_, err := psql.Insert("bundle_loads").
		Columns("scene_name", "region", "script_count", "loaded_at").
		Values(sceneName, region, scriptCount, at).
		RunWith(s.db).
		Exec()
	return err
}

// RecordDeadLetter logs a link message the bus dropped on overflow
// (internal/linkbus drop-oldest policy), keyed by the recipient that lost
// it.
func (s *Store) RecordDeadLetter(containerID, recipientID string, msg protocol.LinkMessage, at time.Time) error {
	_, err := psql.Insert("link_dead_letters").
		Columns("container_id", "sender_id", "sender_link", "recipient_id", "num", "str", "link_id", "dropped_at").
		Values(containerID, msg.SenderScriptID, msg.SenderLink, recipientID, msg.Num, msg.Str, msg.ID, at).
		RunWith(s.db).
		Exec()
	return err
}
