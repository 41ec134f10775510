package fiscal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/etnz/fiscal/date"
	"github.com/etnz/fiscal/fx"
	"github.com/shopspring/decimal"
)

// divisionPrecision is the number of decimal places kept by divisions.
const divisionPrecision = 16

// RateLookup is the exchange rate capability the engine depends on.
type RateLookup = fx.Lookup

// Normalizer converts amounts between currencies using exact rates.
//
// It never rounds: rounding to the minor unit happens once, when a taxable
// event is produced.
type Normalizer struct {
	rates RateLookup
	loc   *time.Location
}

// NewNormalizer returns a Normalizer reading rates from rates. Rate days are
// the calendar days of instants in loc (UTC when nil).
func NewNormalizer(rates RateLookup, loc *time.Location) *Normalizer {
	if loc == nil {
		loc = time.UTC
	}
	return &Normalizer{rates: rates, loc: loc}
}

// Convert returns amount expressed in currency to, using the rate of the day
// of at. The direct pair is tried first, then the inverse pair of the same
// day. A missing rate fails with ErrRateUnavailable: no interpolation, no
// carry forward.
func (n *Normalizer) Convert(ctx context.Context, amount Money, to string, at time.Time) (Money, error) {
	if amount.Currency() == to || amount.IsZero() {
		return amount.In(to), nil
	}
	if n.rates == nil {
		return Money{}, fmt.Errorf("%s%s on %s: no rate source: %w", amount.Currency(), to, date.Of(at, n.loc), ErrRateUnavailable)
	}
	rate, err := n.Rate(ctx, amount.Currency(), to, at)
	if err != nil {
		return Money{}, err
	}
	return amount.MulRate(rate).In(to), nil
}

// Rate returns the exact rate converting from into to on the day of at.
func (n *Normalizer) Rate(ctx context.Context, from, to string, at time.Time) (decimal.Decimal, error) {
	if from == to {
		return decimal.NewFromInt(1), nil
	}
	on := date.Of(at, n.loc)
	pair := fx.NewPair(from, to)
	rate, err := n.rates.LookupRate(ctx, pair, on)
	if err == nil {
		return rate, nil
	}
	if !errors.Is(err, fx.ErrNotFound) {
		return decimal.Decimal{}, fmt.Errorf("%s on %s: %w", pair, on, err)
	}
	inv, err := n.rates.LookupRate(ctx, pair.Inverse(), on)
	if err == nil && !inv.IsZero() {
		return decimal.NewFromInt(1).DivRound(inv, divisionPrecision), nil
	}
	if err != nil && !errors.Is(err, fx.ErrNotFound) {
		return decimal.Decimal{}, fmt.Errorf("%s on %s: %w", pair.Inverse(), on, err)
	}
	return decimal.Decimal{}, fmt.Errorf("%s on %s: %w", pair, on, ErrRateUnavailable)
}
