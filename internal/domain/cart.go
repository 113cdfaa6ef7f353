package domain

import (
	"time"
)

type CatalogItem struct {
	ItemID            string
	DisplayName       string
	UnitPrice         Money
	AvailableQuantity int
}

type CartLine struct {
	ItemID            string
	Quantity          int
	UnitPriceSnapshot Money
	DisplayName       string
}

func (l CartLine) Total() Money {
	return l.UnitPriceSnapshot.Mul(l.Quantity)
}

type Cart struct {
	Lines         []CartLine
	CustomerRef   string
	TransactionID string
	// Totals are priced by the engine on every change to Lines.
	Totals Totals

	CreatedAt time.Time
}

func (c Cart) IsEmpty() bool {
	return len(c.Lines) == 0
}

// Find returns the index of the line holding itemID, or -1.
func (c Cart) Find(itemID string) int {
	for i, line := range c.Lines {
		if line.ItemID == itemID {
			return i
		}
	}
	return -1
}

// Clone copies the line slice so callers cannot mutate engine-owned state.
func (c Cart) Clone() Cart {
	out := c
	if c.Lines != nil {
		out.Lines = make([]CartLine, len(c.Lines))
		copy(out.Lines, c.Lines)
	}
	return out
}

type Totals struct {
	Subtotal   Money
	Tax        Money
	GrandTotal Money
}
