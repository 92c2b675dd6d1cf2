package engine

import (
	"github.com/shopspring/decimal"

	"github.com/thatsimonsguy/ozone-monitor/internal/coerce"
	"github.com/thatsimonsguy/ozone-monitor/internal/model"
)

var (
	// kg of CO2 avoided per unit of treated water
	co2PerUnit = decimal.RequireFromString("0.109")
	// kWh the ozone generator spends per unit
	ozoneKWhPerUnit = decimal.RequireFromString("0.08")
	// grid emission factor, kg CO2 per kWh
	gridKgPerKWh = decimal.RequireFromString("0.035")

	netCO2PerUnit = co2PerUnit.Sub(ozoneKWhPerUnit.Mul(gridKgPerKWh))
)

// GreenImpact derives the environmental metrics from the cumulative treated
// volume counter. Stored quantities are exact; only the texts are rounded.
func GreenImpact(treated any) model.Impact {
	volume := coerce.ToFinite(treated, 0)
	if volume < 0 {
		volume = 0
	}

	co2 := decimal.NewFromFloat(volume).Mul(netCO2PerUnit)
	if co2.IsNegative() {
		co2 = decimal.Zero
	}
	co2Kg, _ := co2.Float64()

	return model.Impact{
		TreatedM3:     volume,
		Trees:         volume,
		CO2AvoidedKg:  co2Kg,
		TreatedText:   coerce.Format(volume),
		TreesText:     coerce.FormatRounded(volume),
		CO2AvoidedTxt: coerce.FormatRounded(co2Kg),
	}
}
