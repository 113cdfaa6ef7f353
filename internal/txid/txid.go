// Package txid issues the reference printed on a check.
package txid

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"time"
)

const (
	timeLayout   = "060102-1504"
	randomDigits = 4
)

var randomSpace = big.NewInt(10000)

// Length is the fixed length of every generated identifier.
const Length = len(timeLayout) + 1 + randomDigits

// Generator combines a minute-coarse UTC timestamp with random digits,
// e.g. "261017-1432-0457". Uniqueness is enforced by the backend, not here.
type Generator struct {
	now     func() time.Time
	entropy io.Reader
}

type Option func(*Generator)

func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		g.now = now
	}
}

func WithEntropy(r io.Reader) Option {
	return func(g *Generator) {
		g.entropy = r
	}
}

func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		now:     time.Now,
		entropy: rand.Reader,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Generator) Generate() string {
	stamp := g.now().UTC().Format(timeLayout)

	n, err := rand.Int(g.entropy, randomSpace)
	if err != nil {
		// entropy exhausted: fall back to sub-minute clock digits so the length stays fixed
		return fmt.Sprintf("%s-%0*d", stamp, randomDigits, g.now().UnixNano()%randomSpace.Int64())
	}
	return fmt.Sprintf("%s-%0*d", stamp, randomDigits, n.Int64())
}
