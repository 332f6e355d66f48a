// Package catalogstore mirrors parsed catalog blobs and a command audit
// trail to a local SQLite database, so a restarted process can come up
// with warm catalogs without re-parsing JSON, and operators can inspect
// what the ingress actually applied.
package catalogstore

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// DB wraps the SQLite connection.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates the store at path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open catalog store: %w", err)
	}
	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate catalog store: %w", err)
	}
	return db, nil
}

// Close closes the connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS catalogs (
		kind TEXT PRIMARY KEY,
		blob TEXT NOT NULL,
		updated_tick INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS command_audit (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tick INTEGER NOT NULL,
		kind TEXT NOT NULL,
		detail TEXT NOT NULL
	);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// SaveCatalog upserts one catalog's raw JSON blob.
func (db *DB) SaveCatalog(kind string, blob []byte, tick uint64) error {
	_, err := db.conn.Exec(
		`INSERT INTO catalogs (kind, blob, updated_tick) VALUES (?, ?, ?)
		 ON CONFLICT(kind) DO UPDATE SET blob=excluded.blob, updated_tick=excluded.updated_tick`,
		kind, string(blob), int64(tick),
	)
	if err != nil {
		return fmt.Errorf("save catalog %q: %w", kind, err)
	}
	return nil
}

// LoadCatalog fetches one catalog's blob; ok is false when the kind has
// never been saved.
func (db *DB) LoadCatalog(kind string) ([]byte, bool, error) {
	var blob string
	err := db.conn.Get(&blob, `SELECT blob FROM catalogs WHERE kind = ?`, kind)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("load catalog %q: %w", kind, err)
	}
	return []byte(blob), true, nil
}

// AppendAudit records one applied command. Failures are logged, never
// propagated: the audit trail is best-effort and must not perturb the
// simulation.
func (db *DB) AppendAudit(tick uint64, kind, detail string) {
	_, err := db.conn.Exec(
		`INSERT INTO command_audit (tick, kind, detail) VALUES (?, ?, ?)`,
		int64(tick), kind, detail,
	)
	if err != nil {
		slog.Warn("command audit write failed", "kind", kind, "error", err)
	}
}

// RecentAudit returns the latest n audit rows, newest first.
func (db *DB) RecentAudit(n int) ([]AuditRow, error) {
	rows := []AuditRow{}
	err := db.conn.Select(&rows,
		`SELECT tick, kind, detail FROM command_audit ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("read audit: %w", err)
	}
	return rows, nil
}

// AuditRow is one audit record.
type AuditRow struct {
	Tick   int64  `db:"tick"`
	Kind   string `db:"kind"`
	Detail string `db:"detail"`
}
