package db

import (
	"database/sql"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/ozone-monitor/internal/model"
)

// CommandLog persists dispatched commands, keeping the newest keep entries.
type CommandLog struct {
	conn *sql.DB
	keep int
}

func NewCommandLog(conn *sql.DB, keep int) *CommandLog {
	return &CommandLog{conn: conn, keep: keep}
}

func (c *CommandLog) RecordCommand(rec model.CommandRecord) error {
	if _, err := InsertCommandRecord(c.conn, rec); err != nil {
		return err
	}
	if c.keep > 0 {
		if err := PruneCommandLog(c.conn, c.keep); err != nil {
			log.Warn().Err(err).Msg("Failed to prune command log")
		}
	}
	return nil
}

func (c *CommandLog) Recent(limit int) ([]model.CommandRecord, error) {
	return RecentCommands(c.conn, limit)
}
