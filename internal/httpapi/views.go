package httpapi

import (
	"encoding/json"

	"github.com/nikolayk812/till/internal/domain"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

type CatalogItemView struct {
	ItemID            string      `json:"itemId"`
	DisplayName       string      `json:"displayName"`
	UnitPrice         json.Number `json:"unitPrice"`
	Currency          string      `json:"currency"`
	AvailableQuantity int         `json:"availableQuantity"`
}

type CartLineView struct {
	ItemID      string      `json:"itemId"`
	DisplayName string      `json:"displayName"`
	Quantity    int         `json:"quantity"`
	UnitPrice   json.Number `json:"unitPrice"`
	LineTotal   json.Number `json:"lineTotal"`
}

type TotalsView struct {
	Subtotal   json.Number `json:"subtotal"`
	Tax        json.Number `json:"tax"`
	GrandTotal json.Number `json:"grandTotal"`
	TaxRate    json.Number `json:"taxRate"`
	Currency   string      `json:"currency"`
}

type CartView struct {
	TransactionID string         `json:"transactionId"`
	CustomerRef   *string        `json:"customerRef"`
	State         string         `json:"state"`
	Lines         []CartLineView `json:"lines"`
	Totals        TotalsView     `json:"totals"`
}

type RejectionView struct {
	Kind    string `json:"kind"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

type SubmitView struct {
	Outcome       string         `json:"outcome"`
	TransactionID string         `json:"transactionId,omitempty"`
	Rejection     *RejectionView `json:"rejection,omitempty"`
	Error         string         `json:"error,omitempty"`
	Cart          CartView       `json:"cart"`
}

type AddLineRequest struct {
	ItemID   string `json:"itemId"`
	Quantity *int   `json:"quantity"`
}

type SetQuantityRequest struct {
	Quantity *int `json:"quantity"`
}

type CustomerRequest struct {
	CustomerRef string `json:"customerRef"`
}

type SubmitRequest struct {
	CustomerRef string `json:"customerRef"`
}

type SessionRequest struct {
	Token string `json:"token"`
}

func money(m domain.Money) json.Number {
	return json.Number(m.Amount.StringFixed(m.Scale()))
}

func toCatalogItemView(item domain.CatalogItem) CatalogItemView {
	return CatalogItemView{
		ItemID:            item.ItemID,
		DisplayName:       item.DisplayName,
		UnitPrice:         money(item.UnitPrice),
		Currency:          item.UnitPrice.Currency.String(),
		AvailableQuantity: item.AvailableQuantity,
	}
}

// toCartView renders the totals the engine priced with the snapshot, the same ones a submit sends.
func toCartView(c domain.Cart, state string, taxRate decimal.Decimal, cur currency.Unit) CartView {
	totals := c.Totals

	lines := make([]CartLineView, 0, len(c.Lines))
	for _, line := range c.Lines {
		lines = append(lines, CartLineView{
			ItemID:      line.ItemID,
			DisplayName: line.DisplayName,
			Quantity:    line.Quantity,
			UnitPrice:   money(line.UnitPriceSnapshot),
			LineTotal:   money(line.Total()),
		})
	}

	var customerRef *string
	if c.CustomerRef != "" {
		ref := c.CustomerRef
		customerRef = &ref
	}

	return CartView{
		TransactionID: c.TransactionID,
		CustomerRef:   customerRef,
		State:         state,
		Lines:         lines,
		Totals: TotalsView{
			Subtotal:   money(totals.Subtotal),
			Tax:        money(totals.Tax),
			GrandTotal: money(totals.GrandTotal),
			TaxRate:    json.Number(taxRate.String()),
			Currency:   cur.String(),
		},
	}
}
