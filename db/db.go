package db

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

const schema = `
CREATE TABLE IF NOT EXISTS kv (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS command_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	kind TEXT NOT NULL,
	pulse_ms INTEGER NOT NULL,
	ok BOOLEAN NOT NULL,
	status INTEGER NOT NULL DEFAULT 0,
	error TEXT,
	issued_at TEXT NOT NULL,
	duration_ms INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS command_log_issued_at ON command_log (issued_at);
`

// Open opens the sqlite database at path and applies the schema. A single
// connection is used so ":memory:" databases behave like files.
func Open(path string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	if err := ApplyMigrations(conn); err != nil {
		conn.Close()
		return nil, err
	}

	log.Debug().Str("path", path).Msg("Database ready")
	return conn, nil
}

func ApplyMigrations(conn *sql.DB) error {
	tx, err := StartTransaction(conn)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(schema); err != nil {
		RollbackTransaction(tx)
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return CommitTransaction(tx)
}
