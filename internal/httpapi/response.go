package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nikolayk812/till/internal/domain"
	"go.uber.org/zap"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

type errorMapping struct {
	status  int
	code    string
	message string
}

// errorMappings is ordered: the first match wins for errors wrapping several sentinels.
var errorMappings = []struct {
	err     error
	mapping errorMapping
}{
	{domain.ErrCartBusy, errorMapping{http.StatusConflict, "cart_busy", "a submission is in progress"}},
	{domain.ErrAuthExpired, errorMapping{http.StatusUnauthorized, "auth_expired", "session expired, sign in again"}},
	{domain.ErrInvalidQuantity, errorMapping{http.StatusBadRequest, "invalid_quantity", "invalid quantity"}},
	{domain.ErrCurrencyMismatch, errorMapping{http.StatusUnprocessableEntity, "currency_mismatch", "item is priced in another currency"}},
	{domain.ErrUnknownItem, errorMapping{http.StatusNotFound, "unknown_item", "unknown item"}},
	{domain.ErrItemNotFound, errorMapping{http.StatusNotFound, "unknown_item", "unknown item"}},
}

func mapError(err error) errorMapping {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return m.mapping
		}
	}
	return errorMapping{http.StatusInternalServerError, "internal_error", "internal server error"}
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Warn("failed to encode response", zap.Error(err))
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, code, message string) {
	h.respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

func (h *Handler) respondDomainError(w http.ResponseWriter, err error) {
	m := mapError(err)
	if m.status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.Error(err))
	}
	h.respondJSON(w, m.status, ErrorResponse{
		Error:   m.message,
		Code:    m.code,
		Details: err.Error(),
	})
}
