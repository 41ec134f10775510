package cmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/etnz/fiscal"
	"github.com/etnz/fiscal/date"
	"github.com/etnz/fiscal/fx"
	"github.com/etnz/fiscal/store"
	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
)

func TestRequiredRates(t *testing.T) {
	ops, err := fiscal.DecodeOperations(strings.NewReader(`{"id":"a1","kind":"acquisition","time":"2024-01-10T10:00:00Z","account":"broker","asset":"ASML","quantity":1,"price":600,"currency":"EUR","fee":2,"feeCurrency":"GBP"}
{"id":"a2","kind":"acquisition","time":"2024-01-10T23:30:00Z","account":"broker","asset":"ASML","quantity":1,"price":610,"currency":"EUR"}
{"id":"a3","kind":"acquisition","time":"2024-01-10T11:00:00Z","account":"broker","asset":"ASML","quantity":1,"price":605,"currency":"EUR"}
{"id":"a4","kind":"acquisition","time":"2024-01-11T10:00:00Z","account":"broker","asset":"AAPL","quantity":1,"price":100,"currency":"USD"}
`))
	if err != nil {
		t.Fatal(err)
	}
	paris, err := time.LoadLocation("Europe/Paris")
	if err != nil {
		t.Fatal(err)
	}

	var got []string
	for _, n := range requiredRates(ops, "USD", paris) {
		got = append(got, fmt.Sprintf("%s %s", n.Pair, n.Day))
	}
	want := []string{
		"EURUSD 2024-01-10",
		"EURUSD 2024-01-11", // a2 is past midnight in Paris
		"GBPUSD 2024-01-10",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("requiredRates() mismatch (-want +got):\n%s", diff)
	}
}

func TestFetchRates(t *testing.T) {
	ctx := context.Background()
	s, err := store.Open(filepath.Join(t.TempDir(), "fiscal.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	eurusd := fx.NewPair("EUR", "USD")
	known := fx.NewTable()
	known.Set(eurusd, date.New(2024, 1, 10), decimal.RequireFromString("1.1"))
	if _, err := s.AddRates(ctx, known); err != nil {
		t.Fatal(err)
	}

	var calls atomic.Int32
	remote := fx.LookupFunc(func(_ context.Context, pair fx.Pair, on date.Date) (decimal.Decimal, error) {
		calls.Add(1)
		if pair == eurusd && on == date.New(2024, 1, 11) {
			return decimal.RequireFromString("1.2"), nil
		}
		return decimal.Zero, fmt.Errorf("%s on %s: %w", pair, on, fx.ErrNotFound)
	})
	needs := []rateNeed{
		{eurusd, date.New(2024, 1, 10)},
		{eurusd, date.New(2024, 1, 11)},
		{fx.NewPair("GBP", "USD"), date.New(2024, 1, 10)},
	}

	fetched, missing, err := fetchRates(ctx, s, remote, needs, 2)
	if err != nil {
		t.Fatalf("fetchRates() failed: %v", err)
	}
	if fetched != 1 || missing != 1 {
		t.Errorf("fetchRates() = %d fetched, %d missing, want 1 and 1", fetched, missing)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("remote was called %d times, want 2", got)
	}
	rate, err := s.LookupRate(ctx, eurusd, date.New(2024, 1, 11))
	if err != nil || !rate.Equal(decimal.RequireFromString("1.2")) {
		t.Errorf("stored EURUSD rate = %v, %v, want 1.2", rate, err)
	}
}

func TestFetchRatesError(t *testing.T) {
	s, err := store.Open(filepath.Join(t.TempDir(), "fiscal.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	boom := errors.New("boom")
	remote := fx.LookupFunc(func(context.Context, fx.Pair, date.Date) (decimal.Decimal, error) {
		return decimal.Zero, boom
	})
	needs := []rateNeed{{fx.NewPair("EUR", "USD"), date.New(2024, 1, 10)}}
	if _, _, err := fetchRates(context.Background(), s, remote, needs, 0); !errors.Is(err, boom) {
		t.Errorf("fetchRates() error = %v, want %v", err, boom)
	}
}
