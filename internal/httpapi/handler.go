// Package httpapi is the console API the cashier screen talks to.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/nikolayk812/till/internal/cart"
	"github.com/nikolayk812/till/internal/domain"
	"github.com/nikolayk812/till/internal/observability"
	"github.com/nikolayk812/till/internal/port"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/text/currency"
)

const maxBodyBytes = 64 << 10

// CartService is the cart engine surface the console drives.
type CartService interface {
	Cart() domain.Cart
	State() cart.State
	TaxRate() decimal.Decimal
	Currency() currency.Unit
	AddOrIncrement(ctx context.Context, itemID string, delta int) (domain.Cart, error)
	SetQuantity(itemID string, quantity int) (domain.Cart, error)
	Remove(itemID string) (domain.Cart, error)
	Reset() (domain.Cart, error)
	SetCustomerRef(ref string) (domain.Cart, error)
}

type Submitter interface {
	Submit(ctx context.Context, header domain.Header) (domain.SubmissionResult, error)
}

// Session is the credential store the console signs in and out of.
type Session interface {
	port.SessionGuard
	SetToken(token string) domain.Credential
}

type Handler struct {
	cart      CartService
	submitter Submitter
	session   Session
	catalog   port.CatalogReader
	logger    *zap.Logger
}

func NewHandler(engine CartService, submitter Submitter, session Session, catalog port.CatalogReader, logger *zap.Logger) (*Handler, error) {
	if engine == nil {
		return nil, errors.New("cart is nil")
	}
	if submitter == nil {
		return nil, errors.New("submitter is nil")
	}
	if session == nil {
		return nil, errors.New("session is nil")
	}
	if catalog == nil {
		return nil, errors.New("catalog is nil")
	}

	return &Handler{
		cart:      engine,
		submitter: submitter,
		session:   session,
		catalog:   catalog,
		logger:    observability.OrNop(logger),
	}, nil
}

func (h *Handler) ListCatalog(w http.ResponseWriter, r *http.Request) {
	items, err := h.catalog.ListAvailable(r.Context())
	if err != nil {
		if errors.Is(err, domain.ErrAuthExpired) {
			h.respondDomainError(w, err)
			return
		}
		h.logger.Warn("catalog unavailable", zap.Error(err))
		h.respondError(w, http.StatusBadGateway, "catalog_unavailable", "catalog is unavailable")
		return
	}

	views := make([]CatalogItemView, 0, len(items))
	for _, item := range items {
		views = append(views, toCatalogItemView(item))
	}
	h.respondJSON(w, http.StatusOK, views)
}

func (h *Handler) GetCart(w http.ResponseWriter, _ *http.Request) {
	state := h.cart.State()
	h.respondJSON(w, http.StatusOK, h.view(h.cart.Cart(), state.String()))
}

func (h *Handler) AddLine(w http.ResponseWriter, r *http.Request) {
	var req AddLineRequest
	if !h.decode(w, r, &req) {
		return
	}

	delta := 1
	if req.Quantity != nil {
		delta = *req.Quantity
	}

	c, err := h.cart.AddOrIncrement(r.Context(), req.ItemID, delta)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	h.respondCart(w, c)
}

func (h *Handler) SetQuantity(w http.ResponseWriter, r *http.Request) {
	var req SetQuantityRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Quantity == nil {
		h.respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity is required")
		return
	}

	c, err := h.cart.SetQuantity(chi.URLParam(r, "itemID"), *req.Quantity)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	h.respondCart(w, c)
}

func (h *Handler) RemoveLine(w http.ResponseWriter, r *http.Request) {
	c, err := h.cart.Remove(chi.URLParam(r, "itemID"))
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	h.respondCart(w, c)
}

func (h *Handler) SetCustomer(w http.ResponseWriter, r *http.Request) {
	var req CustomerRequest
	if !h.decode(w, r, &req) {
		return
	}

	c, err := h.cart.SetCustomerRef(req.CustomerRef)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	h.respondCart(w, c)
}

func (h *Handler) Cancel(w http.ResponseWriter, _ *http.Request) {
	c, err := h.cart.Reset()
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	h.respondCart(w, c)
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}

	result, err := h.submitter.Submit(r.Context(), domain.Header{CustomerRef: req.CustomerRef})
	if err != nil {
		h.respondDomainError(w, err)
		return
	}

	c := h.cart.Cart()
	view := SubmitView{
		Outcome:       result.Outcome.String(),
		TransactionID: result.TransactionID,
		Cart:          h.view(c, stateOf(c)),
	}
	if result.Outcome == domain.OutcomeRejected {
		view.Rejection = &RejectionView{
			Kind:    result.Rejection.Kind.String(),
			Code:    result.Rejection.Code,
			Message: result.Rejection.Message,
		}
	}
	if result.Outcome == domain.OutcomeTransportFailure && result.Cause != nil {
		view.Error = result.Cause.Error()
	}

	h.respondJSON(w, submitStatus(result), view)
}

func (h *Handler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req SessionRequest
	if !h.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Token) == "" {
		h.respondError(w, http.StatusBadRequest, "invalid_token", "token is required")
		return
	}

	h.session.SetToken(req.Token)
	if _, ok := h.session.CurrentCredential(); !ok {
		h.respondError(w, http.StatusUnauthorized, "auth_expired", "token is already expired")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) SignOut(w http.ResponseWriter, _ *http.Request) {
	h.session.Invalidate()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	_, signedIn := h.session.CurrentCredential()
	h.respondJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"cartState": h.cart.State().String(),
		"signedIn":  signedIn,
	})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return false
	}
	return true
}

func (h *Handler) respondCart(w http.ResponseWriter, c domain.Cart) {
	h.respondJSON(w, http.StatusOK, h.view(c, stateOf(c)))
}

func (h *Handler) view(c domain.Cart, state string) CartView {
	return toCartView(c, state, h.cart.TaxRate(), h.cart.Currency())
}

// stateOf names the state of a cart returned by a completed mutation; no submission can be in flight.
func stateOf(c domain.Cart) string {
	if c.IsEmpty() {
		return cart.StateEmpty.String()
	}
	return cart.StateBuilding.String()
}

func submitStatus(result domain.SubmissionResult) int {
	switch result.Outcome {
	case domain.OutcomeAccepted:
		return http.StatusOK
	case domain.OutcomeRejected:
		if result.Rejection.Kind == domain.RejectStockConflict {
			return http.StatusConflict
		}
		return http.StatusUnprocessableEntity
	case domain.OutcomeAuthExpired:
		return http.StatusUnauthorized
	default:
		return http.StatusBadGateway
	}
}
