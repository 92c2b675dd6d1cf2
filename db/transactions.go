package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/thatsimonsguy/ozone-monitor/internal/model"
)

// StartTransaction starts a new database transaction.
func StartTransaction(db *sql.DB) (*sql.Tx, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	return tx, nil
}

// CommitTransaction commits the given transaction.
func CommitTransaction(tx *sql.Tx) error {
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RollbackTransaction rolls back the given transaction.
func RollbackTransaction(tx *sql.Tx) {
	tx.Rollback()
}

func SetValue(db *sql.DB, key, value string) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("start transaction: %w", err)
	}
	if err := SetValueWithTx(tx, key, value); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func SetValueWithTx(tx *sql.Tx, key, value string) error {
	_, err := tx.Exec(`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func DeleteValue(db *sql.DB, key string) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("start transaction: %w", err)
	}
	if err := DeleteValueWithTx(tx, key); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func DeleteValueWithTx(tx *sql.Tx, key string) error {
	if _, err := tx.Exec(`DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func InsertCommandRecord(db *sql.DB, rec model.CommandRecord) (int64, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, fmt.Errorf("start transaction: %w", err)
	}

	var errText *string
	if rec.Error != "" {
		errText = &rec.Error
	}

	res, err := tx.Exec(`INSERT INTO command_log (kind, pulse_ms, ok, status, error, issued_at, duration_ms) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.Kind, rec.PulseMs, rec.OK, rec.Status, errText, rec.IssuedAt.UTC().Format(time.RFC3339Nano), rec.Duration.Milliseconds())
	if err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("insert command record: %w", err)
	}
	id, _ := res.LastInsertId()
	return id, tx.Commit()
}

// PruneCommandLog keeps only the newest keep records.
func PruneCommandLog(db *sql.DB, keep int) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("start transaction: %w", err)
	}
	_, err = tx.Exec(`DELETE FROM command_log WHERE id NOT IN (SELECT id FROM command_log ORDER BY id DESC LIMIT ?)`, keep)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prune command log: %w", err)
	}
	return tx.Commit()
}
