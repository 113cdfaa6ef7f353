package submission_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/nikolayk812/till/internal/cart"
	"github.com/nikolayk812/till/internal/catalog"
	"github.com/nikolayk812/till/internal/domain"
	"github.com/nikolayk812/till/internal/session"
	"github.com/nikolayk812/till/internal/submission"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap/zaptest"
)

type fakeTransport struct {
	mu       sync.Mutex
	calls    []domain.CheckRequest
	creds    []domain.Credential
	resp     domain.CheckResponse
	err      error
	onSubmit func(ctx context.Context)
}

func (f *fakeTransport) SubmitCheck(ctx context.Context, cred domain.Credential, req domain.CheckRequest) (domain.CheckResponse, error) {
	if f.onSubmit != nil {
		f.onSubmit(ctx)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	f.creds = append(f.creds, cred)
	return f.resp, f.err
}

func (f *fakeTransport) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type sequenceIDs struct {
	n int
}

func (s *sequenceIDs) Generate() string {
	s.n++
	return fmt.Sprintf("TX-%d", s.n)
}

type coordinatorSuite struct {
	suite.Suite

	engine      *cart.Engine
	guard       *session.Guard
	transport   *fakeTransport
	coordinator *submission.Coordinator
}

func TestCoordinatorSuite(t *testing.T) {
	suite.Run(t, new(coordinatorSuite))
}

func (suite *coordinatorSuite) SetupTest() {
	t := suite.T()

	mem := catalog.NewMemory(
		catalogItem("A", "10.00"),
		catalogItem("B", "5.50"),
	)

	var err error
	suite.engine, err = cart.NewEngine(mem, &sequenceIDs{}, cart.Config{
		TaxRate:  decimal.RequireFromString("0.20"),
		Currency: domain.UAH,
	})
	suite.Require().NoError(err)

	suite.guard = session.NewGuard()
	suite.guard.SetToken("cashier-token")

	suite.transport = &fakeTransport{resp: domain.CheckResponse{StatusCode: http.StatusCreated}}

	suite.coordinator, err = submission.NewCoordinator(suite.engine, suite.guard, suite.transport,
		submission.WithLogger(zaptest.NewLogger(t)),
		submission.WithClock(func() time.Time { return time.Date(2026, 10, 17, 10, 0, 0, 0, time.UTC) }),
	)
	suite.Require().NoError(err)
}

func (suite *coordinatorSuite) fillCart() domain.Cart {
	ctx := suite.T().Context()

	_, err := suite.engine.AddOrIncrement(ctx, "A", 2)
	suite.Require().NoError(err)
	_, err = suite.engine.AddOrIncrement(ctx, "B", 1)
	suite.Require().NoError(err)

	return suite.engine.Cart()
}

func (suite *coordinatorSuite) TestSubmit_EmptyCartIsRejectedLocally() {
	t := suite.T()

	result, err := suite.coordinator.Submit(t.Context(), domain.Header{})
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeRejected, result.Outcome)
	assert.Equal(t, domain.RejectValidation, result.Rejection.Kind)
	assert.Equal(t, "empty cart", result.Rejection.Message)
	assert.ErrorIs(t, result.Err(), domain.ErrValidationFailure)
	assert.Zero(t, suite.transport.callCount())
	assert.Equal(t, cart.StateEmpty, suite.engine.State())
}

func (suite *coordinatorSuite) TestSubmit_Accepted() {
	t := suite.T()
	before := suite.fillCart()

	result, err := suite.coordinator.Submit(t.Context(), domain.Header{CustomerRef: "CARD-1"})
	require.NoError(t, err)

	require.True(t, result.IsAccepted())
	assert.Equal(t, before.TransactionID, result.TransactionID)

	require.Equal(t, 1, suite.transport.callCount())
	sent := suite.transport.calls[0]
	assert.Equal(t, before.TransactionID, sent.TransactionID)
	assert.Equal(t, "CARD-1", sent.Header.CustomerRef)
	assert.Len(t, sent.Lines, 2)
	assert.Equal(t, "25.50", sent.Totals.Subtotal.Amount.StringFixed(2))
	assert.Equal(t, "5.10", sent.Totals.Tax.Amount.StringFixed(2))
	assert.Equal(t, "30.60", sent.Totals.GrandTotal.Amount.StringFixed(2))
	assert.Equal(t, time.Date(2026, 10, 17, 10, 0, 0, 0, time.UTC), sent.PrintedAt)
	assert.Equal(t, "cashier-token", suite.transport.creds[0].Token)

	after := suite.engine.Cart()
	assert.True(t, after.IsEmpty())
	assert.NotEqual(t, sent.TransactionID, after.TransactionID)
	assert.Equal(t, cart.StateEmpty, suite.engine.State())
}

func (suite *coordinatorSuite) TestSubmit_AcceptedUsesBackendTransactionID() {
	t := suite.T()
	suite.fillCart()
	suite.transport.resp = domain.CheckResponse{StatusCode: http.StatusOK, TransactionID: "SRV-42"}

	result, err := suite.coordinator.Submit(t.Context(), domain.Header{})
	require.NoError(t, err)

	assert.Equal(t, domain.Accepted("SRV-42"), result)
}

func (suite *coordinatorSuite) TestSubmit_FailuresKeepLines() {
	tests := []struct {
		name        string
		resp        domain.CheckResponse
		err         error
		wantOutcome domain.Outcome
		wantKind    domain.RejectKind
		wantMessage string
		wantErr     error
		wantLogout  bool
	}{
		{
			name:        "stock conflict",
			resp:        domain.CheckResponse{StatusCode: http.StatusConflict, Code: "out_of_stock", Message: "only 1 of A left"},
			wantOutcome: domain.OutcomeRejected,
			wantKind:    domain.RejectStockConflict,
			wantMessage: "only 1 of A left",
			wantErr:     domain.ErrStockConflict,
		},
		{
			name:        "stock code on unprocessable entity",
			resp:        domain.CheckResponse{StatusCode: http.StatusUnprocessableEntity, Code: "insufficient_stock", Message: "B"},
			wantOutcome: domain.OutcomeRejected,
			wantKind:    domain.RejectStockConflict,
			wantMessage: "B",
			wantErr:     domain.ErrStockConflict,
		},
		{
			name:        "validation failure",
			resp:        domain.CheckResponse{StatusCode: http.StatusBadRequest, Code: "invalid_card", Message: "card number is invalid"},
			wantOutcome: domain.OutcomeRejected,
			wantKind:    domain.RejectValidation,
			wantMessage: "card number is invalid",
			wantErr:     domain.ErrValidationFailure,
		},
		{
			name:        "validation failure without message",
			resp:        domain.CheckResponse{StatusCode: http.StatusUnprocessableEntity},
			wantOutcome: domain.OutcomeRejected,
			wantKind:    domain.RejectValidation,
			wantMessage: "Unprocessable Entity",
			wantErr:     domain.ErrValidationFailure,
		},
		{
			name:        "auth expired",
			resp:        domain.CheckResponse{StatusCode: http.StatusUnauthorized},
			wantOutcome: domain.OutcomeAuthExpired,
			wantErr:     domain.ErrAuthExpired,
			wantLogout:  true,
		},
		{
			name:        "server error",
			resp:        domain.CheckResponse{StatusCode: http.StatusBadGateway},
			wantOutcome: domain.OutcomeTransportFailure,
			wantErr:     domain.ErrTransportFailure,
		},
		{
			name:        "network error",
			err:         errors.New("connection refused"),
			wantOutcome: domain.OutcomeTransportFailure,
			wantErr:     domain.ErrTransportFailure,
		},
		{
			name:        "timeout",
			err:         context.DeadlineExceeded,
			wantOutcome: domain.OutcomeTransportFailure,
			wantErr:     context.DeadlineExceeded,
		},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			suite.SetupTest()
			t := suite.T()

			before := suite.fillCart()
			suite.transport.resp = tt.resp
			suite.transport.err = tt.err

			result, err := suite.coordinator.Submit(t.Context(), domain.Header{})
			require.NoError(t, err)

			assert.Equal(t, tt.wantOutcome, result.Outcome)
			if tt.wantOutcome == domain.OutcomeRejected {
				assert.Equal(t, tt.wantKind, result.Rejection.Kind)
				assert.Equal(t, tt.wantMessage, result.Rejection.Message)
			}
			assert.ErrorIs(t, result.Err(), tt.wantErr)
			assert.Equal(t, 1, suite.transport.callCount())

			after := suite.engine.Cart()
			assert.Equal(t, before.Lines, after.Lines)
			assert.Equal(t, before.TransactionID, after.TransactionID)
			assert.Equal(t, cart.StateBuilding, suite.engine.State())

			_, loggedIn := suite.guard.CurrentCredential()
			assert.Equal(t, !tt.wantLogout, loggedIn)
		})
	}
}

func (suite *coordinatorSuite) TestSubmit_DuplicateTransactionIDReissuesID() {
	t := suite.T()
	before := suite.fillCart()
	suite.transport.resp = domain.CheckResponse{
		StatusCode: http.StatusConflict,
		Code:       domain.ReasonDuplicateTransactionID,
		Message:    "check number already used",
	}

	result, err := suite.coordinator.Submit(t.Context(), domain.Header{})
	require.NoError(t, err)

	assert.Equal(t, domain.RejectValidation, result.Rejection.Kind)
	assert.True(t, result.IsDuplicateTransactionID())

	after := suite.engine.Cart()
	assert.Equal(t, before.Lines, after.Lines)
	assert.NotEqual(t, before.TransactionID, after.TransactionID)
}

func (suite *coordinatorSuite) TestSubmit_NoCredentialSkipsNetwork() {
	t := suite.T()
	before := suite.fillCart()
	suite.guard.Invalidate()

	result, err := suite.coordinator.Submit(t.Context(), domain.Header{})
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeAuthExpired, result.Outcome)
	assert.Zero(t, suite.transport.callCount())
	assert.Equal(t, before.Lines, suite.engine.Cart().Lines)
}

func (suite *coordinatorSuite) TestSubmit_ResubmitAfterReauthentication() {
	t := suite.T()
	suite.fillCart()
	suite.transport.resp = domain.CheckResponse{StatusCode: http.StatusUnauthorized}

	result, err := suite.coordinator.Submit(t.Context(), domain.Header{})
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeAuthExpired, result.Outcome)

	suite.guard.SetToken("fresh-token")
	suite.transport.resp = domain.CheckResponse{StatusCode: http.StatusCreated}

	result, err = suite.coordinator.Submit(t.Context(), domain.Header{})
	require.NoError(t, err)

	assert.True(t, result.IsAccepted())
	assert.Equal(t, 2, suite.transport.callCount())
	assert.Equal(t, suite.transport.calls[0].TransactionID, suite.transport.calls[1].TransactionID)
	assert.Equal(t, "fresh-token", suite.transport.creds[1].Token)
}

func (suite *coordinatorSuite) TestSubmit_MutationsRefusedWhileInFlight() {
	t := suite.T()
	suite.fillCart()

	var (
		addErr   error
		state    cart.State
		innerErr error
	)
	suite.transport.onSubmit = func(context.Context) {
		_, addErr = suite.engine.AddOrIncrement(context.Background(), "A", 1)
		state = suite.engine.State()
		_, innerErr = suite.coordinator.Submit(context.Background(), domain.Header{})
	}

	result, err := suite.coordinator.Submit(t.Context(), domain.Header{})
	require.NoError(t, err)

	assert.True(t, result.IsAccepted())
	assert.ErrorIs(t, addErr, domain.ErrCartBusy)
	assert.ErrorIs(t, innerErr, domain.ErrCartBusy)
	assert.Equal(t, cart.StateSubmitting, state)
	assert.Equal(t, 1, suite.transport.callCount())
	assert.Equal(t, 2, suite.transport.calls[0].Lines[0].Quantity)
}

func (suite *coordinatorSuite) TestSubmit_CallerCancellationDoesNotAbortSend() {
	t := suite.T()
	suite.fillCart()

	ctx, cancel := context.WithCancel(t.Context())
	var sendErr error
	suite.transport.onSubmit = func(sendCtx context.Context) {
		cancel()
		sendErr = sendCtx.Err()
	}

	result, err := suite.coordinator.Submit(ctx, domain.Header{})
	require.NoError(t, err)

	assert.True(t, result.IsAccepted())
	assert.NoError(t, sendErr)
}

func TestNewCoordinator_RequiresCollaborators(t *testing.T) {
	engine, err := cart.NewEngine(catalog.NewMemory(), &sequenceIDs{}, cart.Config{})
	require.NoError(t, err)
	guard := session.NewGuard()
	transport := &fakeTransport{}

	_, err = submission.NewCoordinator(nil, guard, transport)
	assert.EqualError(t, err, "cart is nil")

	_, err = submission.NewCoordinator(engine, nil, transport)
	assert.EqualError(t, err, "session guard is nil")

	_, err = submission.NewCoordinator(engine, guard, nil)
	assert.EqualError(t, err, "transport is nil")
}

func catalogItem(id, price string) domain.CatalogItem {
	return domain.CatalogItem{
		ItemID:            id,
		DisplayName:       "item " + id,
		UnitPrice:         domain.NewMoney(decimal.RequireFromString(price), domain.UAH),
		AvailableQuantity: 10,
	}
}
