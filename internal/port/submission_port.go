package port

import (
	"context"
	"github.com/nikolayk812/till/internal/domain"
)

// SubmissionTransport delivers a check to the backend. A non-nil error means the
// request did not produce an HTTP response (dial failure, timeout, cancellation).
type SubmissionTransport interface {
	SubmitCheck(ctx context.Context, cred domain.Credential, req domain.CheckRequest) (domain.CheckResponse, error)
}

type TransactionIDGenerator interface {
	Generate() string
}
