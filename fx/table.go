package fx

import (
	"bufio"
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"log"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/etnz/fiscal/date"
	"github.com/shopspring/decimal"
)

// Table is an in-memory rate table. It is safe for concurrent use.
type Table struct {
	mu    sync.RWMutex
	pairs map[Pair]*date.History[decimal.Decimal]
}

// NewTable returns an empty rate table.
func NewTable() *Table {
	return &Table{pairs: make(map[Pair]*date.History[decimal.Decimal])}
}

// Set records the rate of pair on day, replacing any previous value.
func (t *Table) Set(pair Pair, on date.Date, rate decimal.Decimal) {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.pairs[pair]
	if !ok {
		h = new(date.History[decimal.Decimal])
		t.pairs[pair] = h
	}
	if h.Append(on, rate) {
		log.Printf("%v: replace %s rate with %s", on, pair, rate)
	}
}

// LookupRate implements Lookup with exact-day semantics.
func (t *Table) LookupRate(_ context.Context, pair Pair, on date.Date) (decimal.Decimal, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if h, ok := t.pairs[pair]; ok {
		if rate, ok := h.Get(on); ok {
			return rate, nil
		}
	}
	return decimal.Zero, notFound(pair, on)
}

// Rate is a single rate observation.
type Rate struct {
	Pair Pair            `json:"pair"`
	Date date.Date       `json:"date"`
	Rate decimal.Decimal `json:"rate"`
}

// Rates iterates over all observations sorted by pair then date.
func (t *Table) Rates() iter.Seq[Rate] {
	return func(yield func(Rate) bool) {
		t.mu.RLock()
		defer t.mu.RUnlock()
		pairs := slices.SortedFunc(maps.Keys(t.pairs), func(a, b Pair) int {
			return cmp.Or(strings.Compare(a.Base, b.Base), strings.Compare(a.Quote, b.Quote))
		})
		for _, p := range pairs {
			for on, rate := range t.pairs[p].Values() {
				if !yield(Rate{Pair: p, Date: on, Rate: rate}) {
					return
				}
			}
		}
	}
}

// DecodeTable reads JSONL rate observations.
func DecodeTable(r io.Reader) (*Table, error) {
	t := NewTable()
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		b := scanner.Bytes()
		if len(b) == 0 {
			continue
		}
		var rate Rate
		if err := json.Unmarshal(b, &rate); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if !rate.Rate.IsPositive() {
			return nil, fmt.Errorf("line %d: %s rate on %s must be positive, got %s", line, rate.Pair, rate.Date, rate.Rate)
		}
		t.Set(rate.Pair, rate.Date, rate.Rate)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return t, nil
}

// EncodeTable writes all observations as JSONL, sorted.
func EncodeTable(w io.Writer, t *Table) error {
	enc := json.NewEncoder(w)
	for rate := range t.Rates() {
		if err := enc.Encode(rate); err != nil {
			return err
		}
	}
	return nil
}
