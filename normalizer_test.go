package fiscal

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNormalizer_Convert(t *testing.T) {
	tbl := rates(t,
		"EURUSD", "2024-01-10", "1.1",
		"USDJPY", "2024-01-10", "125",
	)
	n := NewNormalizer(tbl, time.UTC)
	ctx := context.Background()

	testCases := []struct {
		name   string
		amount Money
		to     string
		want   string
	}{
		{name: "same currency", amount: USD("12.345"), to: "USD", want: "12.345"},
		{name: "direct pair", amount: EUR("100"), to: "USD", want: "110"},
		{name: "inverse pair", amount: MustM("250", "JPY"), to: "USD", want: "2"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := n.Convert(ctx, tc.amount, tc.to, t0)
			if err != nil {
				t.Fatalf("Convert() error = %v", err)
			}
			if want := MustM(tc.want, tc.to); !got.Equal(want) {
				t.Errorf("Convert() = %s %s, want %s", got.Decimal(), got.Currency(), tc.want)
			}
		})
	}
}

func TestNormalizer_RateUnavailable(t *testing.T) {
	n := NewNormalizer(rates(t, "EURUSD", "2024-01-10", "1.1"), time.UTC)
	// no carry forward to the next day.
	_, err := n.Convert(context.Background(), EUR("1"), "USD", day(1))
	if !errors.Is(err, ErrRateUnavailable) {
		t.Errorf("Convert() error = %v, want ErrRateUnavailable", err)
	}
	// no rate source at all.
	_, err = NewNormalizer(nil, nil).Convert(context.Background(), EUR("1"), "USD", t0)
	if !errors.Is(err, ErrRateUnavailable) {
		t.Errorf("Convert(nil lookup) error = %v, want ErrRateUnavailable", err)
	}
}

func TestNormalizer_TimeZone(t *testing.T) {
	tbl := rates(t,
		"EURUSD", "2024-01-10", "1.1",
		"EURUSD", "2024-01-11", "1.2",
	)
	// 2024-01-10 23:30 in New York is 2024-01-11 in UTC.
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("no time zone database")
	}
	at := time.Date(2024, time.January, 10, 23, 30, 0, 0, ny)

	got, err := NewNormalizer(tbl, time.UTC).Convert(context.Background(), EUR("1"), "USD", at)
	if err != nil || !got.Equal(USD("1.2")) {
		t.Errorf("Convert(UTC day) = %s, %v; want 1.2", got.Decimal(), err)
	}
	got, err = NewNormalizer(tbl, ny).Convert(context.Background(), EUR("1"), "USD", at)
	if err != nil || !got.Equal(USD("1.1")) {
		t.Errorf("Convert(New York day) = %s, %v; want 1.1", got.Decimal(), err)
	}
}

func TestRoundingHalfEven(t *testing.T) {
	n := NewNormalizer(rates(t, "EURUSD", "2024-01-10", "1"), time.UTC)
	testCases := []struct {
		amount, want string
	}{
		{"100.005", "100"},
		{"100.015", "100.02"},
		{"100.025", "100.02"},
		{"-100.005", "-100"},
		{"100.0051", "100.01"},
	}
	for _, tc := range testCases {
		t.Run(tc.amount, func(t *testing.T) {
			var first Money
			for i := 0; i < 100; i++ {
				got, err := n.Convert(context.Background(), EUR(tc.amount), "USD", t0)
				if err != nil {
					t.Fatal(err)
				}
				got = got.Round()
				if i == 0 {
					first = got
				}
				if !got.Equal(first) {
					t.Fatalf("conversion %d gave %s, first gave %s", i, got.Decimal(), first.Decimal())
				}
			}
			if !first.Equal(USD(tc.want)) {
				t.Errorf("round(%s) = %s, want %s", tc.amount, first.Decimal(), tc.want)
			}
		})
	}

	// the minor unit comes from the currency.
	if got := MustM("100.5", "JPY").Round(); !got.Equal(MustM("100", "JPY")) {
		t.Errorf("round(100.5 JPY) = %s, want 100", got.Decimal())
	}
}
