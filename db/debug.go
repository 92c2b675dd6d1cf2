package db

import (
	"github.com/thatsimonsguy/ozone-monitor/internal/model"
)

// ShowCycleCLI reads the persisted cycle. The cycle keys are only ever
// written by the running service.
func ShowCycleCLI(dbPath string) (model.CycleState, bool, error) {
	conn, err := Open(dbPath)
	if err != nil {
		return model.CycleState{}, false, err
	}
	defer conn.Close()

	start, okStart, err := GetValue(conn, model.KeyCycleStart)
	if err != nil {
		return model.CycleState{}, false, err
	}
	total, okTotal, err := GetValue(conn, model.KeyCycleTotal)
	if err != nil {
		return model.CycleState{}, false, err
	}
	if !okStart || !okTotal {
		return model.CycleState{}, false, nil
	}
	return model.ParseCycleState(start, total)
}

func RecentCommandsCLI(dbPath string, limit int) ([]model.CommandRecord, error) {
	conn, err := Open(dbPath)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	return RecentCommands(conn, limit)
}
