package port

import "github.com/nikolayk812/till/internal/domain"

type SessionGuard interface {
	CurrentCredential() (domain.Credential, bool)
	Invalidate()
}
