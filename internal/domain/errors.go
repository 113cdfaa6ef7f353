package domain

import "errors"

var (
	ErrInvalidQuantity  = errors.New("invalid quantity")
	ErrUnknownItem      = errors.New("unknown item")
	ErrCartBusy         = errors.New("cart is busy with a submission")
	ErrItemNotFound     = errors.New("item not found")
	ErrCurrencyMismatch = errors.New("currency mismatch")
	ErrEmptyCart        = errors.New("empty cart")

	ErrValidationFailure = errors.New("validation failure")
	ErrStockConflict     = errors.New("stock conflict")
	ErrAuthExpired       = errors.New("authentication expired")
	ErrTransportFailure  = errors.New("transport failure")
)
