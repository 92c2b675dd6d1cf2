package engine

import (
	"github.com/thatsimonsguy/ozone-monitor/internal/coerce"
	"github.com/thatsimonsguy/ozone-monitor/internal/model"
	"github.com/thatsimonsguy/ozone-monitor/internal/tags"
)

// MotorStatusOf never reports running while the fault bit is set.
func MotorStatusOf(run, fault any) model.MotorStatus {
	if coerce.ToBool(fault) {
		return model.MotorFault
	}
	if coerce.ToBool(run) {
		return model.MotorRunning
	}
	return model.MotorStopped
}

// CycleStatusOf gives the finished bit precedence over the start bit.
func CycleStatusOf(started, finished any) model.CycleStatus {
	if coerce.ToBool(finished) {
		return model.CycleFinished
	}
	if coerce.ToBool(started) {
		return model.CycleInitialized
	}
	return model.CycleStopped
}

func onOff(v any) model.MotorStatus {
	if coerce.ToBool(v) {
		return model.MotorRunning
	}
	return model.MotorStopped
}

func buildMotors(snap tags.Snapshot) []model.Motor {
	return []model.Motor{
		{ID: "effluent_pump", Label: "Effluent pump", Status: MotorStatusOf(snap.Get(TagMotor1Run), snap.Get(TagMotor1Fault))},
		{ID: "process_pump", Label: "Process pump", Status: MotorStatusOf(snap.Get(TagMotor2Run), snap.Get(TagMotor2Fault))},
	}
}

func buildOzone(snap tags.Snapshot) model.Motor {
	return model.Motor{ID: "ozone", Label: "Ozone generator", Status: onOff(snap.Get(TagOzone))}
}

func buildCycle(snap tags.Snapshot) model.Cycle {
	return model.Cycle{
		Status:  CycleStatusOf(snap.Get(TagCycleStart), snap.Get(TagCycleFinished)),
		Running: coerce.ToBool(snap.Get(TagCycleStart)),
		Paused:  coerce.ToBool(snap.Get(TagCyclePaused)),
	}
}
