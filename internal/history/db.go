// Package history keeps an append-only log of gate runs in SQLite or
// PostgreSQL. It is an audit trail only; evaluation never reads it.
package history

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

type dialect struct {
	name   string
	driver string
	schema string
}

var (
	sqlite = dialect{name: "sqlite", driver: "sqlite3", schema: sqliteSchemaV1}
	pg     = dialect{name: "postgres", driver: "pgx", schema: postgresSchemaV1}
)

func dialectFor(dsn string) dialect {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return pg
	}
	return sqlite
}

// rebind rewrites ? placeholders as $1, $2, ... for PostgreSQL.
func (d dialect) rebind(query string) string {
	if d.name != pg.name {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// DB wraps the history database connection.
type DB struct {
	conn    *sql.DB
	dialect dialect
	now     func() time.Time
}

// Open connects to dsn: postgres:// and postgresql:// URLs use PostgreSQL,
// anything else is a SQLite path or file: URI.
func Open(dsn string) (*DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("open history: empty DSN")
	}
	d := dialectFor(dsn)
	conn, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if d.name == sqlite.name {
		conn.SetMaxOpenConns(1)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if d.name == sqlite.name {
		if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
			conn.Close()
			return nil, fmt.Errorf("set journal mode: %w", err)
		}
		if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
			conn.Close()
			return nil, fmt.Errorf("enable foreign keys: %w", err)
		}
	}
	return &DB{conn: conn, dialect: d, now: time.Now}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.conn.Close()
}

// Dialect returns "sqlite" or "postgres".
func (d *DB) Dialect() string {
	return d.dialect.name
}

const sqliteSchemaV1 = `
CREATE TABLE IF NOT EXISTS schema_version (
    version    INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS gate_runs (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    project      TEXT NOT NULL,
    pr           INTEGER NOT NULL DEFAULT 0,
    commit_sha   TEXT NOT NULL DEFAULT '',
    passed       BOOLEAN NOT NULL,
    reasons      TEXT NOT NULL,
    flags        TEXT NOT NULL DEFAULT '',
    quality_gate TEXT NOT NULL DEFAULT '',
    created_at   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_gate_runs_project ON gate_runs(project, created_at DESC);

CREATE TABLE IF NOT EXISTS stage_results (
    run_id   INTEGER NOT NULL REFERENCES gate_runs(id) ON DELETE CASCADE,
    position INTEGER NOT NULL,
    stage    TEXT NOT NULL,
    reported TEXT NOT NULL,
    expected TEXT NOT NULL,
    core     BOOLEAN NOT NULL,
    passed   BOOLEAN NOT NULL,
    reason   TEXT NOT NULL,
    PRIMARY KEY (run_id, stage)
);
`

const postgresSchemaV1 = `
CREATE TABLE IF NOT EXISTS schema_version (
    version    INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS gate_runs (
    id           BIGSERIAL PRIMARY KEY,
    project      TEXT NOT NULL,
    pr           INTEGER NOT NULL DEFAULT 0,
    commit_sha   TEXT NOT NULL DEFAULT '',
    passed       BOOLEAN NOT NULL,
    reasons      TEXT NOT NULL,
    flags        TEXT NOT NULL DEFAULT '',
    quality_gate TEXT NOT NULL DEFAULT '',
    created_at   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_gate_runs_project ON gate_runs(project, created_at DESC);

CREATE TABLE IF NOT EXISTS stage_results (
    run_id   BIGINT NOT NULL REFERENCES gate_runs(id) ON DELETE CASCADE,
    position INTEGER NOT NULL,
    stage    TEXT NOT NULL,
    reported TEXT NOT NULL,
    expected TEXT NOT NULL,
    core     BOOLEAN NOT NULL,
    passed   BOOLEAN NOT NULL,
    reason   TEXT NOT NULL,
    PRIMARY KEY (run_id, stage)
);
`

// Migrate applies the schema. It is safe to call on every start.
func (d *DB) Migrate() error {
	var count int
	err := d.conn.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = 1").Scan(&count)
	if err == nil && count > 0 {
		return nil
	}

	tx, err := d.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(d.dialect.schema); err != nil {
		return fmt.Errorf("apply %s schema v1: %w", d.dialect.name, err)
	}
	if _, err := tx.Exec(d.dialect.rebind("INSERT INTO schema_version (version, applied_at) VALUES (1, ?)"), formatTime(d.now())); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return tx.Commit()
}

// timeLayout sorts lexically in chronological order.
const timeLayout = "2006-01-02T15:04:05.000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}
