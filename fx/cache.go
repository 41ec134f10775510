package fx

import (
	"context"
	"time"

	"github.com/etnz/fiscal/date"
	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// Cache memoizes successful lookups of an underlying Lookup.
// Failures are never cached so that a rate supplied later is picked up.
type Cache struct {
	next  Lookup
	store *cache.Cache
}

// NewCache wraps next. A zero ttl keeps entries forever.
func NewCache(next Lookup, ttl time.Duration) *Cache {
	expiration, cleanup := ttl, 2*ttl
	if ttl <= 0 {
		expiration, cleanup = cache.NoExpiration, 0
	}
	return &Cache{next: next, store: cache.New(expiration, cleanup)}
}

func cacheKey(pair Pair, on date.Date) string { return pair.String() + "@" + on.String() }

// LookupRate implements Lookup.
func (c *Cache) LookupRate(ctx context.Context, pair Pair, on date.Date) (decimal.Decimal, error) {
	key := cacheKey(pair, on)
	if v, ok := c.store.Get(key); ok {
		return v.(decimal.Decimal), nil
	}
	r, err := c.next.LookupRate(ctx, pair, on)
	if err != nil {
		return decimal.Zero, err
	}
	c.store.Set(key, r, cache.DefaultExpiration)
	return r, nil
}

// Len returns the number of cached rates.
func (c *Cache) Len() int { return c.store.ItemCount() }

// Throttle limits the rate of calls made to an underlying Lookup, typically
// a remote rate provider with a quota.
type Throttle struct {
	next    Lookup
	limiter *rate.Limiter
}

// NewThrottle allows perSecond calls on average with bursts of burst calls.
func NewThrottle(next Lookup, perSecond float64, burst int) *Throttle {
	return &Throttle{next: next, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// LookupRate implements Lookup. It blocks until the limiter allows the call
// or ctx is done.
func (t *Throttle) LookupRate(ctx context.Context, pair Pair, on date.Date) (decimal.Decimal, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return decimal.Zero, err
	}
	return t.next.LookupRate(ctx, pair, on)
}
