package money

import "github.com/shopspring/decimal"

var centsPerUnit = decimal.NewFromInt(100)

// ToMinorUnits converts a major-unit amount (for example 12.345 dollars) into
// integer minor units, rounding half away from zero. 12.345 -> 1235,
// -12.345 -> -1235.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(centsPerUnit).Round(0).IntPart()
}

// FloatToMinorUnits converts a float major-unit amount into minor units.
// The float is routed through decimal so binary representation noise
// (19.99 stored as 19.989999...) does not shift the rounded result.
func FloatToMinorUnits(amount float64) int64 {
	return ToMinorUnits(decimal.NewFromFloat(amount))
}
