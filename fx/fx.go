// Package fx provides foreign exchange rates lookups.
//
// A rate for the pair "USDEUR" on a given day is the price of 1 USD
// expressed in EUR. Lookups are exact: a missing day is reported with
// ErrNotFound, never filled with a neighbouring value.
package fx

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/etnz/fiscal/date"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when no rate exists for a pair on a day.
var ErrNotFound = errors.New("rate not found")

// Pair is a currency pair, Base is priced in Quote.
type Pair struct {
	Base, Quote string
}

// NewPair returns the pair for base priced in quote.
func NewPair(base, quote string) Pair { return Pair{Base: base, Quote: quote} }

// ParsePair parses "USDEUR" or "USD/EUR".
func ParsePair(s string) (Pair, error) {
	s = strings.ToUpper(strings.ReplaceAll(s, "/", ""))
	if len(s) != 6 {
		return Pair{}, fmt.Errorf("invalid currency pair %q", s)
	}
	return Pair{Base: s[:3], Quote: s[3:]}, nil
}

// Inverse returns the pair with base and quote swapped.
func (p Pair) Inverse() Pair { return Pair{Base: p.Quote, Quote: p.Base} }

func (p Pair) String() string { return p.Base + p.Quote }

// MarshalText implements encoding.TextMarshaler.
func (p Pair) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Pair) UnmarshalText(text []byte) error {
	v, err := ParsePair(string(text))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Lookup is the rate lookup capability.
type Lookup interface {
	// LookupRate returns the rate for pair on day or an error wrapping ErrNotFound.
	LookupRate(ctx context.Context, pair Pair, on date.Date) (decimal.Decimal, error)
}

// LookupFunc adapts a function to the Lookup interface.
type LookupFunc func(ctx context.Context, pair Pair, on date.Date) (decimal.Decimal, error)

func (f LookupFunc) LookupRate(ctx context.Context, pair Pair, on date.Date) (decimal.Decimal, error) {
	return f(ctx, pair, on)
}

// notFound builds an error wrapping ErrNotFound for pair and day.
func notFound(pair Pair, on date.Date) error {
	return fmt.Errorf("%s on %s: %w", pair, on, ErrNotFound)
}

// Fallback returns a Lookup asking each lookup in turn until one knows the
// rate. Errors other than ErrNotFound stop the search.
func Fallback(lookups ...Lookup) Lookup {
	return LookupFunc(func(ctx context.Context, pair Pair, on date.Date) (decimal.Decimal, error) {
		for _, l := range lookups {
			r, err := l.LookupRate(ctx, pair, on)
			if err == nil || !errors.Is(err, ErrNotFound) {
				return r, err
			}
		}
		return decimal.Zero, notFound(pair, on)
	})
}
