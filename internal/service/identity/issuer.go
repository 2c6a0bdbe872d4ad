// Package identity issues AX agent identifiers.
package identity

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	domainagent "github.com/alanyang/agentlink/internal/domain/agent"
	"github.com/alanyang/agentlink/internal/metrics"
	portagent "github.com/alanyang/agentlink/internal/port/agent"
)

// MaxAttempts bounds the collision retry loop.
const MaxAttempts = 10

// Generator produces a candidate id. region is already normalized.
type Generator func(kind domainagent.Kind, region string) domainagent.ID

// HashGenerator derives the 4-digit suffix from a name-based UUID over a seed of
// kind, region, current time and a random value.
func HashGenerator(kind domainagent.Kind, region string) domainagent.ID {
	seed := fmt.Sprintf("%s.%s.%d.%v", kind.Prefix(), region, time.Now().UnixNano(), rand.Float64())
	u := uuid.NewSHA1(uuid.NameSpaceDNS, []byte(seed))
	n := binary.BigEndian.Uint32(u[:4]) % 10000
	return domainagent.Format(kind, region, int(n))
}

type Option func(*Issuer)

func WithGenerator(g Generator) Option {
	return func(i *Issuer) { i.generate = g }
}

func WithMetrics(m *metrics.Collector) Option {
	return func(i *Issuer) { i.metrics = m }
}

// Issuer checks each candidate against the identity store and retries on
// collision. After MaxAttempts it returns the last candidate anyway.
type Issuer struct {
	store    portagent.ExistenceChecker
	generate Generator
	metrics  *metrics.Collector
}

func NewIssuer(store portagent.ExistenceChecker, opts ...Option) *Issuer {
	i := &Issuer{store: store, generate: HashGenerator}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Issue returns a fresh id. Only validation and storage errors are returned.
func (i *Issuer) Issue(ctx context.Context, kind domainagent.Kind, region string) (domainagent.ID, error) {
	if !kind.Valid() {
		return "", fmt.Errorf("issue id: %w: %q", domainagent.ErrInvalidKind, kind)
	}
	region, err := domainagent.NormalizeRegion(region)
	if err != nil {
		return "", fmt.Errorf("issue id: %w", err)
	}

	var candidate domainagent.ID
	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		candidate = i.generate(kind, region)
		exists, err := i.store.Exists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("issue id: check %s: %w", candidate, err)
		}
		if !exists {
			return candidate, nil
		}
		i.metrics.IdentityCollision()
	}

	i.metrics.IdentityExhausted()
	slog.WarnContext(ctx, "identity retry budget exhausted, returning last candidate",
		"candidate", candidate, "attempts", MaxAttempts)
	return candidate, nil
}
