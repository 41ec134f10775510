package fx

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/etnz/fiscal/date"
	"github.com/shopspring/decimal"
)

func TestParsePair(t *testing.T) {
	testCases := []struct {
		in      string
		want    Pair
		wantErr bool
	}{
		{in: "USDEUR", want: Pair{"USD", "EUR"}},
		{in: "usd/eur", want: Pair{"USD", "EUR"}},
		{in: "USD", wantErr: true},
	}
	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParsePair(tc.in)
			if (err != nil) != tc.wantErr {
				t.Fatalf("ParsePair(%q) error = %v, wantErr %v", tc.in, err, tc.wantErr)
			}
			if got != tc.want {
				t.Errorf("ParsePair(%q) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestTable_ExactDay(t *testing.T) {
	tbl := NewTable()
	day := date.New(2024, time.March, 1)
	tbl.Set(NewPair("USD", "EUR"), day, decimal.RequireFromString("0.92"))

	got, err := tbl.LookupRate(context.Background(), NewPair("USD", "EUR"), day)
	if err != nil {
		t.Fatalf("LookupRate() error = %v", err)
	}
	if !got.Equal(decimal.RequireFromString("0.92")) {
		t.Errorf("LookupRate() = %v, want 0.92", got)
	}

	// The next day is not filled with the previous rate.
	_, err = tbl.LookupRate(context.Background(), NewPair("USD", "EUR"), day.Add(1))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("LookupRate(next day) error = %v, want ErrNotFound", err)
	}
}

func TestDecodeEncodeTable(t *testing.T) {
	in := `{"pair":"USDEUR","date":"2024-03-01","rate":0.92}
{"pair":"GBPEUR","date":"2024-03-01","rate":"1.17"}

{"pair":"USDEUR","date":"2024-02-29","rate":0.925}
`
	tbl, err := DecodeTable(strings.NewReader(in))
	if err != nil {
		t.Fatalf("DecodeTable() error = %v", err)
	}
	var buf bytes.Buffer
	if err := EncodeTable(&buf, tbl); err != nil {
		t.Fatalf("EncodeTable() error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("EncodeTable() wrote %d lines, want 3:\n%s", len(lines), buf.String())
	}
	if !strings.Contains(lines[0], `"GBPEUR"`) || !strings.Contains(lines[1], `"2024-02-29"`) {
		t.Errorf("EncodeTable() is not sorted by pair then date:\n%s", buf.String())
	}
}

func TestDecodeTable_RejectsNonPositive(t *testing.T) {
	_, err := DecodeTable(strings.NewReader(`{"pair":"USDEUR","date":"2024-03-01","rate":0}`))
	if err == nil {
		t.Errorf("DecodeTable() with zero rate: error = nil, want error")
	}
}

func TestCache(t *testing.T) {
	calls := 0
	next := LookupFunc(func(ctx context.Context, pair Pair, on date.Date) (decimal.Decimal, error) {
		calls++
		if pair.Base == "XXX" {
			return decimal.Zero, notFound(pair, on)
		}
		return decimal.NewFromInt(2), nil
	})
	c := NewCache(next, 0)
	day := date.New(2024, time.January, 2)
	for i := 0; i < 3; i++ {
		if _, err := c.LookupRate(context.Background(), NewPair("USD", "EUR"), day); err != nil {
			t.Fatalf("LookupRate() error = %v", err)
		}
	}
	if calls != 1 {
		t.Errorf("underlying lookup called %d times, want 1", calls)
	}
	for i := 0; i < 2; i++ {
		if _, err := c.LookupRate(context.Background(), NewPair("XXX", "EUR"), day); !errors.Is(err, ErrNotFound) {
			t.Fatalf("LookupRate(XXX) error = %v, want ErrNotFound", err)
		}
	}
	if calls != 3 {
		t.Errorf("failures must not be cached: calls = %d, want 3", calls)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}

func TestThrottle_Cancelled(t *testing.T) {
	next := LookupFunc(func(ctx context.Context, pair Pair, on date.Date) (decimal.Decimal, error) {
		return decimal.NewFromInt(1), nil
	})
	th := NewThrottle(next, 0.001, 1)
	ctx := context.Background()
	if _, err := th.LookupRate(ctx, NewPair("USD", "EUR"), date.New(2024, 1, 1)); err != nil {
		t.Fatalf("first call error = %v", err)
	}
	ctx, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := th.LookupRate(ctx, NewPair("USD", "EUR"), date.New(2024, 1, 1)); err == nil {
		t.Errorf("call with cancelled context: error = nil, want error")
	}
}

func TestFallback(t *testing.T) {
	day := date.New(2024, time.March, 1)
	usdeur := NewPair("USD", "EUR")
	first, second := NewTable(), NewTable()
	first.Set(usdeur, day, decimal.RequireFromString("0.9"))
	second.Set(usdeur, day, decimal.RequireFromString("0.8"))
	second.Set(usdeur, day.Add(1), decimal.RequireFromString("0.7"))

	l := Fallback(first, second)
	if r, err := l.LookupRate(context.Background(), usdeur, day); err != nil || !r.Equal(decimal.RequireFromString("0.9")) {
		t.Errorf("LookupRate(first) = %s, %v; want 0.9", r, err)
	}
	if r, err := l.LookupRate(context.Background(), usdeur, day.Add(1)); err != nil || !r.Equal(decimal.RequireFromString("0.7")) {
		t.Errorf("LookupRate(second) = %s, %v; want 0.7", r, err)
	}
	if _, err := l.LookupRate(context.Background(), usdeur, day.Add(2)); !errors.Is(err, ErrNotFound) {
		t.Errorf("LookupRate(missing) error = %v, want ErrNotFound", err)
	}

	broken := LookupFunc(func(context.Context, Pair, date.Date) (decimal.Decimal, error) {
		return decimal.Zero, errors.New("connection refused")
	})
	if _, err := Fallback(broken, second).LookupRate(context.Background(), usdeur, day); err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("LookupRate() error = %v, want the transport error", err)
	}
}
