package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/thatsimonsguy/ozone-monitor/internal/model"
)

// GetValue returns the value stored under key and whether it exists.
func GetValue(db *sql.DB, key string) (string, bool, error) {
	var value string
	err := db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return value, true, nil
}

// RecentCommands returns up to limit command records, newest first.
func RecentCommands(db *sql.DB, limit int) ([]model.CommandRecord, error) {
	rows, err := db.Query(`SELECT id, kind, pulse_ms, ok, status, error, issued_at, duration_ms FROM command_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query command log: %w", err)
	}
	defer rows.Close()

	var records []model.CommandRecord
	for rows.Next() {
		var rec model.CommandRecord
		var errText sql.NullString
		var issuedAt string
		var durationMs int64
		if err := rows.Scan(&rec.ID, &rec.Kind, &rec.PulseMs, &rec.OK, &rec.Status, &errText, &issuedAt, &durationMs); err != nil {
			return nil, fmt.Errorf("failed to scan command record: %w", err)
		}
		if errText.Valid {
			rec.Error = errText.String
		}
		rec.IssuedAt, _ = time.Parse(time.RFC3339Nano, issuedAt)
		rec.Duration = time.Duration(durationMs) * time.Millisecond
		records = append(records, rec)
	}
	return records, rows.Err()
}
