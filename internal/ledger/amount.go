package ledger

import "github.com/govalues/money"

// Zero returns a zero amount in the given currency.
func Zero(curr string) (money.Amount, error) {
	return money.NewAmountFromMinorUnits(curr, 0)
}

// MinorUnits returns a in the currency's minor units (cents, paise). Use it only on
// amounts the service has already normalized; out-of-range values read as 0.
func MinorUnits(a money.Amount) int64 {
	units, _ := a.MinorUnits()
	return units
}

// SameAmount compares currency and minor units.
func SameAmount(a, b money.Amount) bool {
	return a.Curr() == b.Curr() && MinorUnits(a) == MinorUnits(b)
}

// FormatAmount renders a as a plain decimal string without the currency code.
func FormatAmount(a money.Amount) string {
	return a.Decimal().String()
}
