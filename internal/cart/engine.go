// Package cart owns the in-progress sale. Engine is the only mutator of the cart
// and refuses every mutation while a submission is in flight.
package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nikolayk812/till/internal/domain"
	"github.com/nikolayk812/till/internal/observability"
	"github.com/nikolayk812/till/internal/port"
	"github.com/nikolayk812/till/internal/pricing"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/text/currency"
)

type State int

// maxIDAttempts bounds redraws when the generator repeats the previous identifier.
const maxIDAttempts = 8

const (
	StateEmpty State = iota
	StateBuilding
	StateSubmitting
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateBuilding:
		return "building"
	case StateSubmitting:
		return "submitting"
	default:
		return "unknown"
	}
}

type Config struct {
	TaxRate  decimal.Decimal
	Currency currency.Unit
	Now      func() time.Time
	Logger   *zap.Logger
}

type Engine struct {
	catalog port.CatalogReader
	ids     port.TransactionIDGenerator
	taxRate decimal.Decimal
	cur     currency.Unit
	now     func() time.Time
	logger  *zap.Logger

	mu         sync.Mutex
	cart       domain.Cart
	submitting bool
	// epoch advances whenever a submission begins or the sale is reset.
	epoch uint64
}

func NewEngine(catalog port.CatalogReader, ids port.TransactionIDGenerator, cfg Config) (*Engine, error) {
	if catalog == nil {
		return nil, errors.New("catalog is nil")
	}
	if ids == nil {
		return nil, errors.New("transaction id generator is nil")
	}
	if cfg.TaxRate.IsNegative() {
		return nil, fmt.Errorf("tax rate[%s] is negative", cfg.TaxRate)
	}

	cur := cfg.Currency
	if cur.String() == "XXX" {
		cur = domain.UAH
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	e := &Engine{
		catalog: catalog,
		ids:     ids,
		taxRate: cfg.TaxRate,
		cur:     cur,
		now: func() time.Time {
			return now().UTC()
		},
		logger: observability.OrNop(cfg.Logger),
	}
	e.cart = domain.Cart{CreatedAt: e.now()}
	e.recompute()

	return e, nil
}

// Cart returns a copy of the cart. The transaction id is assigned here on first render.
func (e *Engine) Cart() domain.Cart {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.ensureTransactionID()
	return e.cart.Clone()
}

func (e *Engine) Totals() domain.Totals {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.cart.Totals
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.stateLocked()
}

func (e *Engine) Currency() currency.Unit {
	return e.cur
}

func (e *Engine) TaxRate() decimal.Decimal {
	return e.taxRate
}

// AddOrIncrement adds delta to the line for itemID, inserting it with the current
// catalog price when absent. The catalog lookup runs without holding the engine lock;
// the cart is re-checked afterwards, so a concurrent add of the same item merges and
// a submission or reset that started meanwhile wins with ErrCartBusy.
func (e *Engine) AddOrIncrement(ctx context.Context, itemID string, delta int) (_ domain.Cart, err error) {
	defer func() { observability.RecordCartMutation("add_or_increment", err) }()

	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		return domain.Cart{}, fmt.Errorf("itemID is empty: %w", domain.ErrUnknownItem)
	}

	e.mu.Lock()
	if e.submitting {
		e.mu.Unlock()
		return domain.Cart{}, domain.ErrCartBusy
	}
	if e.cart.Find(itemID) >= 0 {
		defer e.mu.Unlock()
		return e.incrementLocked(itemID, delta)
	}
	if delta <= 0 {
		e.mu.Unlock()
		return domain.Cart{}, fmt.Errorf("itemID[%s] quantity %d: %w", itemID, delta, domain.ErrInvalidQuantity)
	}
	epoch := e.epoch
	e.mu.Unlock()

	line, err := e.newLine(ctx, itemID, delta)
	if err != nil {
		return domain.Cart{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.submitting || e.epoch != epoch {
		return domain.Cart{}, fmt.Errorf("itemID[%s]: sale changed during lookup: %w", itemID, domain.ErrCartBusy)
	}
	if e.cart.Find(itemID) >= 0 {
		return e.incrementLocked(itemID, delta)
	}

	e.cart.Lines = append(e.cart.Lines, line)
	e.recompute()
	e.logger.Debug("cart line added",
		zap.String("item_id", itemID),
		zap.Int("delta", delta),
		zap.Int("lines", len(e.cart.Lines)),
	)

	return e.cart.Clone(), nil
}

func (e *Engine) incrementLocked(itemID string, delta int) (domain.Cart, error) {
	idx := e.cart.Find(itemID)
	newQuantity := e.cart.Lines[idx].Quantity + delta
	if newQuantity <= 0 {
		return domain.Cart{}, fmt.Errorf("itemID[%s] quantity would become %d: %w", itemID, newQuantity, domain.ErrInvalidQuantity)
	}
	e.cart.Lines[idx].Quantity = newQuantity
	e.recompute()

	return e.cart.Clone(), nil
}

// SetQuantity replaces the quantity of a line. A quantity <= 0 removes the line.
func (e *Engine) SetQuantity(itemID string, quantity int) (_ domain.Cart, err error) {
	defer func() { observability.RecordCartMutation("set_quantity", err) }()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.submitting {
		return domain.Cart{}, domain.ErrCartBusy
	}

	if quantity <= 0 {
		e.removeLocked(itemID)
		return e.cart.Clone(), nil
	}

	idx := e.cart.Find(itemID)
	if idx < 0 {
		return domain.Cart{}, fmt.Errorf("itemID[%s] is not in the cart: %w", itemID, domain.ErrUnknownItem)
	}
	e.cart.Lines[idx].Quantity = quantity
	e.recompute()

	return e.cart.Clone(), nil
}

// Remove deletes the line for itemID; removing an absent item is a no-op.
func (e *Engine) Remove(itemID string) (_ domain.Cart, err error) {
	defer func() { observability.RecordCartMutation("remove", err) }()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.submitting {
		return domain.Cart{}, domain.ErrCartBusy
	}

	e.removeLocked(itemID)
	return e.cart.Clone(), nil
}

// Reset cancels the sale: lines and customer are cleared and a fresh transaction id is issued.
func (e *Engine) Reset() (_ domain.Cart, err error) {
	defer func() { observability.RecordCartMutation("reset", err) }()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.submitting {
		return domain.Cart{}, domain.ErrCartBusy
	}

	e.resetLocked()
	return e.cart.Clone(), nil
}

func (e *Engine) SetCustomerRef(ref string) (_ domain.Cart, err error) {
	defer func() { observability.RecordCartMutation("set_customer", err) }()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.submitting {
		return domain.Cart{}, domain.ErrCartBusy
	}

	e.cart.CustomerRef = strings.TrimSpace(ref)
	return e.cart.Clone(), nil
}

// BeginSubmit moves a non-empty cart into the submitting state and returns the
// request snapshot built from the last computed totals. PrintedAt is left to the caller.
func (e *Engine) BeginSubmit() (domain.CheckRequest, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.submitting {
		return domain.CheckRequest{}, domain.ErrCartBusy
	}
	if e.cart.IsEmpty() {
		return domain.CheckRequest{}, domain.ErrEmptyCart
	}

	e.ensureTransactionID()
	e.submitting = true
	e.epoch++

	snapshot := e.cart.Clone()
	return domain.CheckRequest{
		TransactionID: snapshot.TransactionID,
		Header:        domain.Header{CustomerRef: snapshot.CustomerRef},
		Lines:         snapshot.Lines,
		Totals:        snapshot.Totals,
	}, nil
}

// FinishSubmit applies a terminal submission outcome. Only an accepted result
// clears the cart; every other outcome returns it to building with lines intact.
func (e *Engine) FinishSubmit(result domain.SubmissionResult) domain.Cart {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.submitting {
		e.logger.Warn("finish submit without a submission in flight", zap.Stringer("outcome", result.Outcome))
		return e.cart.Clone()
	}
	e.submitting = false

	switch {
	case result.IsAccepted():
		e.resetLocked()
	case result.IsDuplicateTransactionID():
		previous := e.cart.TransactionID
		e.cart.TransactionID = e.freshID(previous)
		e.logger.Info("transaction id reissued after duplicate rejection",
			zap.String("previous", previous),
			zap.String("transaction_id", e.cart.TransactionID),
		)
	}

	return e.cart.Clone()
}

func (e *Engine) newLine(ctx context.Context, itemID string, quantity int) (domain.CartLine, error) {
	item, err := e.catalog.Lookup(ctx, itemID)
	if err != nil {
		return domain.CartLine{}, fmt.Errorf("catalog.Lookup[%s]: %w: %w", itemID, domain.ErrUnknownItem, err)
	}
	if item.UnitPrice.IsNegative() {
		return domain.CartLine{}, fmt.Errorf("itemID[%s] has negative price %s: %w", itemID, item.UnitPrice, domain.ErrUnknownItem)
	}
	if item.UnitPrice.Currency.String() != e.cur.String() {
		return domain.CartLine{}, fmt.Errorf("itemID[%s] priced in %s, cart in %s: %w",
			itemID, item.UnitPrice.Currency, e.cur, domain.ErrCurrencyMismatch)
	}

	// sub-unit catalog prices are snapshotted at the currency scale so Σ qty×price equals the subtotal
	price := domain.NewMoney(pricing.Round(item.UnitPrice.Amount, e.cur), e.cur)

	return domain.CartLine{
		ItemID:            item.ItemID,
		Quantity:          quantity,
		UnitPriceSnapshot: price,
		DisplayName:       item.DisplayName,
	}, nil
}

func (e *Engine) removeLocked(itemID string) {
	idx := e.cart.Find(itemID)
	if idx < 0 {
		return
	}
	e.cart.Lines = append(e.cart.Lines[:idx:idx], e.cart.Lines[idx+1:]...)
	e.recompute()
}

func (e *Engine) resetLocked() {
	e.epoch++
	e.cart = domain.Cart{
		TransactionID: e.freshID(e.cart.TransactionID),
		CreatedAt:     e.now(),
	}
	e.recompute()
}

// freshID draws identifiers until one differs from previous.
func (e *Engine) freshID(previous string) string {
	id := e.ids.Generate()
	for attempt := 1; id == previous && attempt < maxIDAttempts; attempt++ {
		id = e.ids.Generate()
	}
	if id == previous {
		e.logger.Error("transaction id generator keeps repeating", zap.String("transaction_id", id))
	}
	return id
}

func (e *Engine) ensureTransactionID() {
	if e.cart.TransactionID == "" {
		e.cart.TransactionID = e.ids.Generate()
	}
}

func (e *Engine) recompute() {
	e.cart.Totals = pricing.ComputeTotals(e.cart.Lines, e.taxRate, e.cur)
}

func (e *Engine) stateLocked() State {
	switch {
	case e.submitting:
		return StateSubmitting
	case e.cart.IsEmpty():
		return StateEmpty
	default:
		return StateBuilding
	}
}
