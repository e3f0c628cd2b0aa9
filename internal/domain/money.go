package domain

import "github.com/shopspring/decimal"

// MoneyPlaces is the number of decimal places prices and totals are rounded to.
const MoneyPlaces = 2

var hundred = decimal.NewFromInt(100)

// RoundMoney rounds half away from zero to two decimal places.
func RoundMoney(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(MoneyPlaces)
}

// MinorUnits converts an amount to the smallest currency unit (e.g. paise, cents).
func MinorUnits(amount decimal.Decimal) int64 {
	return RoundMoney(amount).Mul(hundred).IntPart()
}

// FromMinorUnits converts a minor-unit amount back to a decimal amount.
func FromMinorUnits(amount int64) decimal.Decimal {
	return decimal.New(amount, -MoneyPlaces)
}
