// Package session keeps the cashier's bearer credential between requests.
package session

import (
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/nikolayk812/till/internal/domain"
	"github.com/nikolayk812/till/internal/observability"
	"go.uber.org/zap"
)

// expirySkew treats a token as expired slightly early so it does not lapse in transit.
const expirySkew = 5 * time.Second

// Guard holds one credential. JWT tokens carrying an exp claim are reported
// absent once expired; opaque tokens are trusted until the backend rejects them.
type Guard struct {
	mu     sync.Mutex
	cred   domain.Credential
	now    func() time.Time
	logger *zap.Logger
}

type Option func(*Guard)

func WithClock(now func() time.Time) Option {
	return func(g *Guard) {
		g.now = now
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(g *Guard) {
		g.logger = logger
	}
}

func NewGuard(opts ...Option) *Guard {
	g := &Guard{now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = observability.OrNop(g.logger)
	return g
}

// SetToken stores token as the current credential and returns it.
func (g *Guard) SetToken(token string) domain.Credential {
	token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))

	cred := domain.Credential{
		Token:     token,
		ExpiresAt: tokenExpiry(token),
	}

	g.mu.Lock()
	g.cred = cred
	g.mu.Unlock()

	return cred
}

func (g *Guard) CurrentCredential() (domain.Credential, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.cred.Token == "" {
		return domain.Credential{}, false
	}
	if !g.cred.ExpiresAt.IsZero() && !g.now().Add(expirySkew).Before(g.cred.ExpiresAt) {
		g.logger.Info("credential expired", zap.Time("expires_at", g.cred.ExpiresAt))
		g.cred = domain.Credential{}
		return domain.Credential{}, false
	}
	return g.cred, true
}

func (g *Guard) Invalidate() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.cred.Token != "" {
		g.logger.Info("credential invalidated")
	}
	g.cred = domain.Credential{}
}

// tokenExpiry reads exp without verifying the signature; the backend remains the
// authority, this only avoids sending a token that is known to be stale.
func tokenExpiry(token string) time.Time {
	if strings.Count(token, ".") != 2 {
		return time.Time{}
	}

	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}
