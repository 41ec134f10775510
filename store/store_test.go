package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/etnz/fiscal"
	"github.com/etnz/fiscal/date"
	"github.com/etnz/fiscal/fx"
	"github.com/shopspring/decimal"
)

var t0 = time.Date(2024, time.January, 10, 14, 30, 0, 0, time.UTC)

func open(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "fiscal.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func op(id string, kind fiscal.Kind, days int, quantity, price string) fiscal.Operation {
	return fiscal.Operation{
		ID:       id,
		Kind:     kind,
		Account:  "broker",
		Asset:    "AAPL",
		Quantity: fiscal.MustQ(quantity),
		Price:    fiscal.MustM(price, "USD"),
		Time:     t0.AddDate(0, 0, days),
	}
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fiscal.db")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddOperations(context.Background(), []fiscal.Operation{op("a", fiscal.Acquisition, 0, "1", "1")}); err != nil {
		t.Fatal(err)
	}
	s.Close()

	// migrations are not applied twice.
	s, err = Open(path)
	if err != nil {
		t.Fatalf("Open() again error = %v", err)
	}
	defer s.Close()
	ops, err := s.Operations(context.Background())
	if err != nil || len(ops) != 1 {
		t.Errorf("Operations() = %v, %v; want the stored operation", ops, err)
	}
}

func TestAddOperations(t *testing.T) {
	ctx := context.Background()
	s := open(t)
	ops := []fiscal.Operation{
		op("b", fiscal.Acquisition, 1, "5", "120"),
		op("a", fiscal.Acquisition, 0, "10", "100"),
	}
	n, err := s.AddOperations(ctx, ops)
	if err != nil || n != 2 {
		t.Fatalf("AddOperations() = %d, %v; want 2", n, err)
	}

	// re-importing is idempotent.
	n, err = s.AddOperations(ctx, append(ops, op("c", fiscal.Disposal, 2, "12", "150")))
	if err != nil || n != 1 {
		t.Fatalf("AddOperations() again = %d, %v; want 1", n, err)
	}

	got, err := s.Operations(ctx)
	if err != nil {
		t.Fatal(err)
	}
	var ids []string
	for _, o := range got {
		ids = append(ids, o.ID)
	}
	if len(ids) != 3 || ids[0] != "b" || ids[1] != "a" || ids[2] != "c" {
		t.Errorf("Operations() ids = %v, want import order [b a c]", ids)
	}
	if !got[0].Price.Equal(fiscal.MustM("120", "USD")) || !got[0].Time.Equal(t0.AddDate(0, 0, 1)) {
		t.Errorf("Operations()[0] = %+v", got[0])
	}
}

func TestAddOperations_Conflict(t *testing.T) {
	ctx := context.Background()
	s := open(t)
	if _, err := s.AddOperations(ctx, []fiscal.Operation{op("a", fiscal.Acquisition, 0, "10", "100")}); err != nil {
		t.Fatal(err)
	}
	_, err := s.AddOperations(ctx, []fiscal.Operation{
		op("new", fiscal.Acquisition, 1, "1", "1"),
		op("a", fiscal.Acquisition, 0, "11", "100"),
	})
	if !errors.Is(err, fiscal.ErrDuplicateOperation) {
		t.Fatalf("AddOperations() error = %v, want ErrDuplicateOperation", err)
	}
	got, _ := s.Operations(ctx)
	if len(got) != 1 {
		t.Errorf("a failed import wrote %d operations, want nothing new", len(got)-1)
	}

	bad := op("x", fiscal.Acquisition, 0, "1", "1")
	bad.Account = ""
	if _, err := s.AddOperations(ctx, []fiscal.Operation{bad}); !errors.Is(err, fiscal.ErrInvalidOperation) {
		t.Errorf("AddOperations(invalid) error = %v, want ErrInvalidOperation", err)
	}
}

func TestRates(t *testing.T) {
	ctx := context.Background()
	s := open(t)
	day := date.New(2024, time.January, 10)
	eurusd := fx.NewPair("EUR", "USD")

	tbl := fx.NewTable()
	tbl.Set(eurusd, day, decimal.RequireFromString("1.1"))
	tbl.Set(eurusd, day.Add(1), decimal.RequireFromString("1.2"))
	if n, err := s.AddRates(ctx, tbl); err != nil || n != 2 {
		t.Fatalf("AddRates() = %d, %v; want 2", n, err)
	}
	update := fx.NewTable()
	update.Set(eurusd, day, decimal.RequireFromString("1.15"))
	if _, err := s.AddRates(ctx, update); err != nil {
		t.Fatal(err)
	}

	r, err := s.LookupRate(ctx, eurusd, day)
	if err != nil || !r.Equal(decimal.RequireFromString("1.15")) {
		t.Errorf("LookupRate() = %s, %v; want the replaced 1.15", r, err)
	}
	if _, err := s.LookupRate(ctx, eurusd, day.Add(2)); !errors.Is(err, fx.ErrNotFound) {
		t.Errorf("LookupRate(missing) error = %v, want fx.ErrNotFound", err)
	}

	all, err := s.Rates(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if r, err := all.LookupRate(ctx, eurusd, day.Add(1)); err != nil || !r.Equal(decimal.RequireFromString("1.2")) {
		t.Errorf("Rates() lookup = %s, %v; want 1.2", r, err)
	}
}

func TestSaveRun(t *testing.T) {
	ctx := context.Background()
	s := open(t)
	if _, err := s.LatestRun(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("LatestRun() on an empty store error = %v, want ErrNotFound", err)
	}

	cfg := fiscal.DefaultConfig()
	cfg.ReportingCurrency = "USD"
	cfg.DiscountRate = decimal.RequireFromString("0.5")
	cfg.Methods = []fiscal.MethodScope{{Scope: fiscal.Scope{Asset: "BTC"}, Method: fiscal.AverageCost}}
	e, err := fiscal.NewEngine(cfg, s)
	if err != nil {
		t.Fatal(err)
	}
	ops := []fiscal.Operation{
		op("a", fiscal.Acquisition, 0, "10", "100"),
		op("s", fiscal.Disposal, 400, "4", "150"),
		{ID: "i", Kind: fiscal.Income, Account: "bank", Asset: "USD", Quantity: fiscal.MustQ("7"), Price: fiscal.MustM("1", "USD"), Time: t0},
	}
	res, err := e.Run(ctx, ops)
	if err != nil {
		t.Fatal(err)
	}
	saved, err := s.SaveRun(ctx, cfg, len(ops), res)
	if err != nil {
		t.Fatalf("SaveRun() error = %v", err)
	}

	run, err := s.LatestRun(ctx)
	if err != nil {
		t.Fatalf("LatestRun() error = %v", err)
	}
	if run.ID != saved.ID || run.Operations != 3 || len(run.Failures) != 0 {
		t.Errorf("LatestRun() = %+v, want %+v", run, saved)
	}
	if !run.Config.DiscountRate.Equal(cfg.DiscountRate) || run.Config.MethodFor(fiscal.Partition{Asset: "BTC"}) != fiscal.AverageCost {
		t.Errorf("config not restored: %+v", run.Config)
	}
	if got := run.Ledger.Holding("broker", "AAPL"); !got.Equal(fiscal.MustQ("6")) {
		t.Errorf("restored holding = %s, want 6", got)
	}

	events, err := s.Events(ctx, run.ID, "")
	if err != nil || len(events) != 2 {
		t.Fatalf("Events() = %v, %v; want 2 events", events, err)
	}
	if events[0].ID != "i" || events[1].ID != "s" || !events[1].Amount.Equal(fiscal.MustM("200", "USD")) {
		t.Errorf("Events() = %+v", events)
	}
	fy2025, err := s.Events(ctx, run.ID, "FY2025")
	if err != nil || len(fy2025) != 1 || fy2025[0].ID != "s" {
		t.Errorf("Events(FY2025) = %v, %v; want only s", fy2025, err)
	}

	if _, err := s.GetRun(ctx, "not-a-uuid"); err == nil {
		t.Error("GetRun() accepted an invalid id")
	}
	if got, err := s.GetRun(ctx, saved.ID); err != nil || got.ID != saved.ID {
		t.Errorf("GetRun() = %v, %v", got.ID, err)
	}
	if runs, err := s.Runs(ctx); err != nil || len(runs) != 1 {
		t.Errorf("Runs() = %d runs, %v; want 1", len(runs), err)
	}
}
