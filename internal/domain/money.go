package domain

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

type Money struct {
	Amount   decimal.Decimal
	Currency currency.Unit
}

func NewMoney(amount decimal.Decimal, cur currency.Unit) Money {
	return Money{Amount: amount, Currency: cur}
}

// Scale is the number of minor-unit digits of the currency, e.g. 2 for UAH.
func (m Money) Scale() int32 {
	scale, _ := currency.Standard.Rounding(m.Currency)
	return int32(scale)
}

func (m Money) Add(other Money) Money {
	return Money{Amount: m.Amount.Add(other.Amount), Currency: m.Currency}
}

func (m Money) Mul(qty int) Money {
	return Money{Amount: m.Amount.Mul(decimal.NewFromInt(int64(qty))), Currency: m.Currency}
}

func (m Money) IsNegative() bool {
	return m.Amount.IsNegative()
}

// SameCurrency compares by ISO code; currency.Unit has no exported equality.
func (m Money) SameCurrency(other Money) bool {
	return m.Currency.String() == other.Currency.String()
}

// String renders the amount fixed to the currency scale, e.g. "25.50 UAH".
func (m Money) String() string {
	return m.Amount.StringFixed(m.Scale()) + " " + m.Currency.String()
}

// UAH is the default sale currency; x/text/currency declares no constant for it.
var UAH = currency.MustParseISO("UAH")
