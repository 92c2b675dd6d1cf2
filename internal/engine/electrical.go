package engine

import (
	"math"

	"github.com/thatsimonsguy/ozone-monitor/internal/coerce"
	"github.com/thatsimonsguy/ozone-monitor/internal/model"
	"github.com/thatsimonsguy/ozone-monitor/internal/tags"
)

type readingDef struct {
	tag   string
	label string
	unit  string
}

var (
	lineVoltageDefs = []readingDef{
		{"multimedidor_1", "L1-L2", "V"},
		{"multimedidor_2", "L2-L3", "V"},
		{"multimedidor_3", "L3-L1", "V"},
	}
	phaseVoltageDefs = []readingDef{
		{"multimedidor_4", "L1-N", "V"},
		{"multimedidor_5", "L2-N", "V"},
		{"multimedidor_6", "L3-N", "V"},
	}
	currentDefs = []readingDef{
		{"multimedidor_7", "L1", "A"},
		{"multimedidor_8", "L2", "A"},
		{"multimedidor_9", "L3", "A"},
	}
	kpiDefs = []readingDef{
		{"multimedidor_11", "Active power", "W"},
		{"multimedidor_12", "Demand", "VA"},
		{"multimedidor_13", "Power factor", "cos φ"},
		{"multimedidor_10", "Frequency", "Hz"},
		{"multimedidor_14", "Temperature", "°C"},
	}
)

func buildElectrical(snap tags.Snapshot) model.Electrical {
	return model.Electrical{
		LineVoltages:  readings(snap, lineVoltageDefs),
		PhaseVoltages: readings(snap, phaseVoltageDefs),
		Currents:      readings(snap, currentDefs),
		KPIs:          readings(snap, kpiDefs),
	}
}

func readings(snap tags.Snapshot, defs []readingDef) []model.Reading {
	out := make([]model.Reading, 0, len(defs))
	for _, d := range defs {
		raw := snap.Get(d.tag)
		r := model.Reading{
			ID:      d.tag,
			Label:   d.label,
			Unit:    d.unit,
			Display: coerce.Format(raw),
		}
		if n := coerce.ToNumber(raw, math.NaN()); !math.IsNaN(n) {
			r.Value = &n
		}
		out = append(out, r)
	}
	return out
}
