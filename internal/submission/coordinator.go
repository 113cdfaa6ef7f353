// Package submission drives the one-shot delivery of a completed cart to the backend.
package submission

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/nikolayk812/till/internal/domain"
	"github.com/nikolayk812/till/internal/observability"
	"github.com/nikolayk812/till/internal/port"
	"go.uber.org/zap"
)

const defaultTimeout = 10 * time.Second

// stockReasonCodes mark a rejection as a stock conflict whatever 4xx status carried it.
var stockReasonCodes = map[string]struct{}{
	"stock_conflict":     {},
	"insufficient_stock": {},
	"out_of_stock":       {},
}

// Cart is the part of the cart engine the coordinator drives.
type Cart interface {
	BeginSubmit() (domain.CheckRequest, error)
	FinishSubmit(result domain.SubmissionResult) domain.Cart
}

type Coordinator struct {
	cart      Cart
	session   port.SessionGuard
	transport port.SubmissionTransport
	timeout   time.Duration
	now       func() time.Time
	logger    *zap.Logger
}

type Option func(*Coordinator)

// WithTimeout bounds a single submission; expiry is reported as a transport failure.
func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		c.now = now
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

func NewCoordinator(cart Cart, session port.SessionGuard, transport port.SubmissionTransport, opts ...Option) (*Coordinator, error) {
	if cart == nil {
		return nil, errors.New("cart is nil")
	}
	if session == nil {
		return nil, errors.New("session guard is nil")
	}
	if transport == nil {
		return nil, errors.New("transport is nil")
	}

	c := &Coordinator{
		cart:      cart,
		session:   session,
		transport: transport,
		timeout:   defaultTimeout,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = observability.OrNop(c.logger)

	return c, nil
}

// Submit sends the cart once. Every backend or local outcome is reported in the
// result; the error is non-nil only when a submission is already in flight.
// A non-empty header.CustomerRef overrides the one recorded on the cart.
func (c *Coordinator) Submit(ctx context.Context, header domain.Header) (domain.SubmissionResult, error) {
	started := time.Now()

	req, err := c.cart.BeginSubmit()
	if errors.Is(err, domain.ErrEmptyCart) {
		result := domain.Rejected(domain.RejectValidation, "empty_cart", "empty cart")
		c.record(result, "", started)
		return result, nil
	}
	if err != nil {
		return domain.SubmissionResult{}, fmt.Errorf("cart.BeginSubmit: %w", err)
	}

	if ref := strings.TrimSpace(header.CustomerRef); ref != "" {
		req.Header.CustomerRef = ref
	}
	req.PrintedAt = c.now().UTC()

	result := c.send(ctx, req)
	if result.Outcome == domain.OutcomeAuthExpired {
		c.session.Invalidate()
	}

	c.cart.FinishSubmit(result)
	c.record(result, req.TransactionID, started)

	return result, nil
}

func (c *Coordinator) send(ctx context.Context, req domain.CheckRequest) domain.SubmissionResult {
	cred, ok := c.session.CurrentCredential()
	if !ok {
		return domain.AuthExpired()
	}

	// once sent the request is not recalled: the caller going away must not abort it
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	resp, err := c.transport.SubmitCheck(sendCtx, cred, req)
	if err != nil {
		return domain.TransportFailure(fmt.Errorf("transport.SubmitCheck: %w", err))
	}

	return interpret(resp, req.TransactionID)
}

func interpret(resp domain.CheckResponse, transactionID string) domain.SubmissionResult {
	message := strings.TrimSpace(resp.Message)
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}
	code := strings.ToLower(strings.TrimSpace(resp.Code))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if id := strings.TrimSpace(resp.TransactionID); id != "" {
			return domain.Accepted(id)
		}
		return domain.Accepted(transactionID)
	case resp.StatusCode == http.StatusUnauthorized:
		return domain.AuthExpired()
	case resp.StatusCode >= 400 && resp.StatusCode < 500 && isStockCode(code):
		return domain.Rejected(domain.RejectStockConflict, code, message)
	case resp.StatusCode == http.StatusConflict && code != domain.ReasonDuplicateTransactionID:
		return domain.Rejected(domain.RejectStockConflict, code, message)
	case resp.StatusCode == http.StatusConflict,
		resp.StatusCode == http.StatusBadRequest,
		resp.StatusCode == http.StatusForbidden,
		resp.StatusCode == http.StatusUnprocessableEntity:
		return domain.Rejected(domain.RejectValidation, code, message)
	default:
		return domain.TransportFailure(fmt.Errorf("unexpected status %d: %s", resp.StatusCode, message))
	}
}

func isStockCode(code string) bool {
	_, ok := stockReasonCodes[code]
	return ok
}

func (c *Coordinator) record(result domain.SubmissionResult, transactionID string, started time.Time) {
	observability.RecordSubmission(result.Outcome.String(), started)

	fields := []zap.Field{
		zap.String("transaction_id", transactionID),
		zap.Stringer("outcome", result.Outcome),
		zap.Duration("elapsed", time.Since(started)),
	}

	switch result.Outcome {
	case domain.OutcomeAccepted:
		c.logger.Info("check submitted", fields...)
	case domain.OutcomeRejected:
		c.logger.Warn("check rejected", append(fields,
			zap.Stringer("kind", result.Rejection.Kind),
			zap.String("code", result.Rejection.Code),
			zap.String("message", result.Rejection.Message),
		)...)
	default:
		c.logger.Warn("check not submitted", append(fields, zap.Error(result.Err()))...)
	}
}
