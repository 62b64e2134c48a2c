package domain

import "github.com/shopspring/decimal"

// P&L is computed in decimal and stored as float rounded to cents, so that
// repeated marks of the same price always produce the same stored value.

// Round2 rounds a dollar amount to cents.
func Round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// IsCents reports whether v is a whole number of cents. Balances are kept
// to the cent, so a finer amount could not be debited exactly.
func IsCents(v float64) bool {
	return Round2(v) == v
}

// UnrealizedPnL is (price - entry) * amount, rounded to cents.
func UnrealizedPnL(entry, price, amount float64) float64 {
	d := decimal.NewFromFloat(price).Sub(decimal.NewFromFloat(entry))
	return d.Mul(decimal.NewFromFloat(amount)).Round(2).InexactFloat64()
}

// RealizedPnL is amount * (exit - entry), rounded to cents. exit is 0 or 1.
func RealizedPnL(entry, exit, amount float64) float64 {
	return UnrealizedPnL(entry, exit, amount)
}

// CashReturned is what settlement credits back: the full stake on a win,
// nothing on a loss.
func CashReturned(amount, exit float64) float64 {
	if exit == 1 {
		return amount
	}
	return 0
}

// SumPnL adds cent values without accumulating float drift.
func SumPnL(values ...float64) float64 {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(decimal.NewFromFloat(v))
	}
	return total.Round(2).InexactFloat64()
}

// AvgPnL divides total by count, 0 when there is nothing to average.
func AvgPnL(total float64, count int) float64 {
	if count <= 0 {
		return 0
	}
	return decimal.NewFromFloat(total).Div(decimal.NewFromInt(int64(count))).Round(2).InexactFloat64()
}

// AddMoney and SubMoney keep balances exact to the cent.
func AddMoney(a, b float64) float64 {
	return decimal.NewFromFloat(a).Add(decimal.NewFromFloat(b)).Round(2).InexactFloat64()
}

func SubMoney(a, b float64) float64 {
	return decimal.NewFromFloat(a).Sub(decimal.NewFromFloat(b)).Round(2).InexactFloat64()
}
