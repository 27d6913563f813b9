package retrieval

import (
	"context"

	"github.com/sells-group/evidence-cli/internal/evidence"
	"github.com/sells-group/evidence-cli/internal/resilience"
)

// guarded runs a tier behind a circuit breaker.
type guarded struct {
	inner Tier
	cb    *resilience.CircuitBreaker
}

// Guard wraps t with cb. A nil breaker returns t unchanged.
func Guard(t Tier, cb *resilience.CircuitBreaker) Tier {
	if cb == nil {
		return t
	}
	return &guarded{inner: t, cb: cb}
}

func (g *guarded) Tier() evidence.SourceTier { return g.inner.Tier() }

func (g *guarded) Search(ctx context.Context, q Query, limit int) ([]Candidate, error) {
	return resilience.ExecuteVal(ctx, g.cb, func(ctx context.Context) ([]Candidate, error) {
		return g.inner.Search(ctx, q, limit)
	})
}
