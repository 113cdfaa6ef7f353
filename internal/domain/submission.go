package domain

import (
	"fmt"
	"time"
)

type Outcome int

const (
	OutcomeAccepted Outcome = iota + 1
	OutcomeRejected
	OutcomeAuthExpired
	OutcomeTransportFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAccepted:
		return "accepted"
	case OutcomeRejected:
		return "rejected"
	case OutcomeAuthExpired:
		return "auth_expired"
	case OutcomeTransportFailure:
		return "transport_failure"
	default:
		return "unknown"
	}
}

type RejectKind int

const (
	RejectValidation RejectKind = iota + 1
	RejectStockConflict
)

func (k RejectKind) String() string {
	switch k {
	case RejectValidation:
		return "validation_failure"
	case RejectStockConflict:
		return "stock_conflict"
	default:
		return "unknown"
	}
}

// ReasonDuplicateTransactionID is the backend code for a transaction id it has already recorded.
const ReasonDuplicateTransactionID = "duplicate_transaction_id"

type Rejection struct {
	Kind RejectKind
	// Code is the machine-readable reason from the backend, empty for local rejections.
	Code string
	// Message is shown to the cashier verbatim.
	Message string
}

// SubmissionResult is a closed variant; exactly the fields relevant to Outcome are set.
type SubmissionResult struct {
	Outcome       Outcome
	TransactionID string
	Rejection     Rejection
	Cause         error
}

func Accepted(transactionID string) SubmissionResult {
	return SubmissionResult{Outcome: OutcomeAccepted, TransactionID: transactionID}
}

func Rejected(kind RejectKind, code, message string) SubmissionResult {
	return SubmissionResult{
		Outcome:   OutcomeRejected,
		Rejection: Rejection{Kind: kind, Code: code, Message: message},
	}
}

func AuthExpired() SubmissionResult {
	return SubmissionResult{Outcome: OutcomeAuthExpired}
}

func TransportFailure(cause error) SubmissionResult {
	return SubmissionResult{Outcome: OutcomeTransportFailure, Cause: cause}
}

func (r SubmissionResult) IsAccepted() bool {
	return r.Outcome == OutcomeAccepted
}

func (r SubmissionResult) IsDuplicateTransactionID() bool {
	return r.Outcome == OutcomeRejected && r.Rejection.Code == ReasonDuplicateTransactionID
}

// Err maps a non-accepted result onto the error taxonomy, nil when accepted.
func (r SubmissionResult) Err() error {
	switch r.Outcome {
	case OutcomeAccepted:
		return nil
	case OutcomeRejected:
		if r.Rejection.Kind == RejectStockConflict {
			return fmt.Errorf("%w: %s", ErrStockConflict, r.Rejection.Message)
		}
		return fmt.Errorf("%w: %s", ErrValidationFailure, r.Rejection.Message)
	case OutcomeAuthExpired:
		return ErrAuthExpired
	default:
		if r.Cause != nil {
			return fmt.Errorf("%w: %w", ErrTransportFailure, r.Cause)
		}
		return ErrTransportFailure
	}
}

type Header struct {
	CustomerRef string
}

// CheckRequest is the snapshot sent to the backend for one submit action.
type CheckRequest struct {
	TransactionID string
	Header        Header
	Lines         []CartLine
	Totals        Totals
	PrintedAt     time.Time
}

// CheckResponse is the raw backend answer; interpretation belongs to the submission coordinator.
type CheckResponse struct {
	StatusCode    int
	TransactionID string
	Code          string
	Message       string
}

type Credential struct {
	Token     string
	ExpiresAt time.Time
}
