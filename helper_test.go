package fiscal

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/etnz/fiscal/date"
	"github.com/etnz/fiscal/fx"
	"github.com/shopspring/decimal"
)

// t0 is the reference instant of the tests.
var t0 = time.Date(2024, time.January, 10, 14, 30, 0, 0, time.UTC)

// day returns t0 shifted by n days.
func day(n int) time.Time { return t0.AddDate(0, 0, n) }

// USD is a helper for test to create usd money from a decimal string.
func USD(v string) Money { return MustM(v, "USD") }

// EUR is a helper for test to create euro money from a decimal string.
func EUR(v string) Money { return MustM(v, "EUR") }

// op returns an operation on account "broker".
func op(id string, kind Kind, at time.Time, asset string, quantity string, price Money) Operation {
	return Operation{
		ID:       id,
		Kind:     kind,
		Account:  "broker",
		Asset:    asset,
		Quantity: MustQ(quantity),
		Price:    price,
		Time:     at,
	}
}

func buy(id string, at time.Time, asset, quantity, price string) Operation {
	return op(id, Acquisition, at, asset, quantity, USD(price))
}

func sell(id string, at time.Time, asset, quantity, price string) Operation {
	return op(id, Disposal, at, asset, quantity, USD(price))
}

// cash returns an income, expense or fee operation of amount USD.
func cash(id string, kind Kind, at time.Time, amount string) Operation {
	return op(id, kind, at, "USD", amount, USD("1"))
}

// testConfig returns a USD configuration without discount.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ReportingCurrency = "USD"
	return cfg
}

// rates returns a rate table from "PAIR DATE RATE" triples.
func rates(t *testing.T, triples ...string) *fx.Table {
	t.Helper()
	tbl := fx.NewTable()
	for i := 0; i+2 < len(triples); i += 3 {
		pair, err := fx.ParsePair(triples[i])
		if err != nil {
			t.Fatal(err)
		}
		tbl.Set(pair, date.MustParse(triples[i+1]), decimal.RequireFromString(triples[i+2]))
	}
	return tbl
}

func newEngine(t *testing.T, cfg Config, lookup RateLookup) *Engine {
	t.Helper()
	e, err := NewEngine(cfg, lookup)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	return e
}

// run runs ops and fails the test on any error.
func run(t *testing.T, e *Engine, ops ...Operation) *Result {
	t.Helper()
	res, err := e.Run(context.Background(), ops)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	return res
}

// encodeResult returns the JSONL events and the JSON ledger of res.
func encodeResult(t *testing.T, res *Result) (events, ledger string) {
	t.Helper()
	var buf bytes.Buffer
	if err := EncodeEvents(&buf, res.Events); err != nil {
		t.Fatalf("EncodeEvents() error = %v", err)
	}
	l, err := res.Ledger.MarshalJSON()
	if err != nil {
		t.Fatalf("Ledger.MarshalJSON() error = %v", err)
	}
	return buf.String(), string(l)
}

// eventByID returns the event with id or fails.
func eventByID(t *testing.T, res *Result, id string) TaxableEvent {
	t.Helper()
	for _, e := range res.Events {
		if e.ID == id {
			return e
		}
	}
	t.Fatalf("no event %q in %v", id, res.Events)
	return TaxableEvent{}
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}
