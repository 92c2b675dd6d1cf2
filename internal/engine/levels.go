package engine

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/thatsimonsguy/ozone-monitor/internal/coerce"
	"github.com/thatsimonsguy/ozone-monitor/internal/model"
	"github.com/thatsimonsguy/ozone-monitor/internal/tags"
)

// FullPercent is the fill percentage, at one decimal, from which a tank reads as full.
var FullPercent = decimal.NewFromFloat(99.5)

// BuildLevel derives a tank level from raw current and capacity values.
// Current is clamped at zero, capacity at one litre and the percentage to [0,100].
func BuildLevel(current, total any) model.TankLevel {
	t := math.Max(1, coerce.ToFinite(total, 1))
	c := math.Max(0, coerce.ToFinite(current, 0))

	rawPct := c / t * 100
	pct := int(math.Floor(math.Min(100, math.Max(0, rawPct)) + 0.5))
	isFull := c >= t || decimal.NewFromFloat(rawPct).Round(1).GreaterThanOrEqual(FullPercent)

	return model.TankLevel{
		Current: c,
		Total:   t,
		Percent: pct,
		IsFull:  isFull,
	}
}

func buildTanks(snap tags.Snapshot) []model.Tank {
	capEffluent := coerce.ToFinite(snap.First(TagCapEffluent, TagCapShared), DefaultCapEffluent)
	capTreatment := coerce.ToFinite(snap.First(TagCapTreatment, TagCapShared), DefaultCapTreatment)
	capEvaporator := coerce.ToFinite(snap.First(TagCapEvaporator, TagCapShared), DefaultCapEvaporator)
	minTreatment := coerce.ToFinite(snap.First(TagMinTreatment, TagMinShared), DefaultMinTreatment)

	return []model.Tank{
		{
			ID:        "effluent",
			Label:     "Effluent",
			TankLevel: BuildLevel(snap.Get(TagLevelEffluent), capEffluent),
		},
		{
			ID:        "treatment",
			Label:     "Treatment",
			TankLevel: BuildLevel(snap.Get(TagLevelTreatment), capTreatment),
			Minimum:   &minTreatment,
		},
		{
			ID:        "evaporator",
			Label:     "Evaporator",
			TankLevel: BuildLevel(snap.Get(TagLevelEvaporator), capEvaporator),
		},
	}
}
