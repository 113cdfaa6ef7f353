// Package pricing derives check totals from cart lines.
package pricing

import (
	"github.com/nikolayk812/till/internal/domain"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// ComputeTotals sums the lines and applies taxRate. Amounts are carried in minor
// units of cur and rounded half-up to the currency scale only when converted back.
// An empty slice yields zero totals in cur.
func ComputeTotals(lines []domain.CartLine, taxRate decimal.Decimal, cur currency.Unit) domain.Totals {
	scale := minorScale(cur)

	subtotalMinor := decimal.Zero
	for _, line := range lines {
		lineMinor := line.UnitPriceSnapshot.Amount.Shift(scale).Mul(decimal.NewFromInt(int64(line.Quantity)))
		subtotalMinor = subtotalMinor.Add(lineMinor)
	}
	subtotalMinor = roundHalfUp(subtotalMinor)

	taxMinor := roundHalfUp(subtotalMinor.Mul(taxRate))
	grandMinor := subtotalMinor.Add(taxMinor)

	return domain.Totals{
		Subtotal:   fromMinor(subtotalMinor, scale, cur),
		Tax:        fromMinor(taxMinor, scale, cur),
		GrandTotal: fromMinor(grandMinor, scale, cur),
	}
}

// Round rounds an amount half-up to the scale of cur.
func Round(amount decimal.Decimal, cur currency.Unit) decimal.Decimal {
	scale := minorScale(cur)
	return roundHalfUp(amount.Shift(scale)).Shift(-scale)
}

func minorScale(cur currency.Unit) int32 {
	scale, _ := currency.Standard.Rounding(cur)
	return int32(scale)
}

// roundHalfUp rounds to an integer; totals are never negative so half-away-from-zero is half-up.
func roundHalfUp(minor decimal.Decimal) decimal.Decimal {
	return minor.Round(0)
}

func fromMinor(minor decimal.Decimal, scale int32, cur currency.Unit) domain.Money {
	return domain.Money{
		Amount:   minor.Shift(-scale),
		Currency: cur,
	}
}
