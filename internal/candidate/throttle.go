package candidate

import (
	"context"
	"math"

	"golang.org/x/time/rate"

	"github.com/ricesearch/rice-letor/internal/query"
)

// Throttled limits the query rate of a provider. Workers wrapping different
// instances share one limiter, so the limit applies to the whole run.
type Throttled struct {
	Provider
	limiter *rate.Limiter
}

// NewLimiter creates a limiter for perSecond queries with a matching burst.
func NewLimiter(perSecond float64) *rate.Limiter {
	burst := max(1, int(math.Ceil(perSecond)))
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

// Throttle wraps p with limiter.
func Throttle(p Provider, limiter *rate.Limiter) *Throttled {
	return &Throttled{Provider: p, limiter: limiter}
}

// Candidates waits for the limiter before delegating.
func (t *Throttled) Candidates(ctx context.Context, queryNum int, fields query.Fields, maxQty int) (*Set, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return t.Provider.Candidates(ctx, queryNum, fields, maxQty)
}
