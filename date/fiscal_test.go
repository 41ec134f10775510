package date

import (
	"encoding/json"
	"testing"
	"time"
)

func TestFiscalYear_Year(t *testing.T) {
	july := FiscalYear{Month: time.July, Day: 1}
	testCases := []struct {
		name string
		fy   FiscalYear
		on   Date
		want int
	}{
		{name: "calendar start", fy: CalendarYear, on: New(2025, time.January, 1), want: 2025},
		{name: "calendar end", fy: CalendarYear, on: New(2025, time.December, 31), want: 2025},
		{name: "zero is calendar", fy: FiscalYear{}, on: New(2025, time.March, 3), want: 2025},
		{name: "july last day", fy: july, on: New(2025, time.June, 30), want: 2025},
		{name: "july first day", fy: july, on: New(2025, time.July, 1), want: 2026},
		{name: "july in january", fy: july, on: New(2025, time.January, 15), want: 2025},
		{name: "april sixth", fy: FiscalYear{Month: time.April, Day: 6}, on: New(2025, time.April, 5), want: 2025},
		{name: "april sixth boundary", fy: FiscalYear{Month: time.April, Day: 6}, on: New(2025, time.April, 6), want: 2026},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.fy.Year(tc.on); got != tc.want {
				t.Errorf("Year(%v) = %d, want %d", tc.on, got, tc.want)
			}
			if r := tc.fy.Range(tc.want); !r.Contains(tc.on) {
				t.Errorf("Range(%d) = %v does not contain %v", tc.want, r, tc.on)
			}
		})
	}
}

func TestFiscalYear_Range(t *testing.T) {
	july := FiscalYear{Month: time.July, Day: 1}
	got := july.Range(2025)
	want := Range{From: New(2024, time.July, 1), To: New(2025, time.June, 30)}
	if got != want {
		t.Errorf("Range(2025) = %v, want %v", got, want)
	}
}

func TestFiscalYear_UnmarshalJSON(t *testing.T) {
	testCases := []struct {
		in      string
		want    FiscalYear
		wantErr bool
	}{
		{in: `"07-01"`, want: FiscalYear{Month: time.July, Day: 1}},
		{in: `{"month":4,"day":6}`, want: FiscalYear{Month: time.April, Day: 6}},
		{in: `"02-29"`, wantErr: true},
		{in: `"13-01"`, wantErr: true},
		{in: `"july"`, wantErr: true},
	}
	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			var got FiscalYear
			err := json.Unmarshal([]byte(tc.in), &got)
			if (err != nil) != tc.wantErr {
				t.Fatalf("Unmarshal(%s) error = %v, wantErr %v", tc.in, err, tc.wantErr)
			}
			if !tc.wantErr && got != tc.want {
				t.Errorf("Unmarshal(%s) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestParseLabel(t *testing.T) {
	y, err := ParseLabel(Label(2031))
	if err != nil || y != 2031 {
		t.Errorf("ParseLabel(Label(2031)) = %d, %v", y, err)
	}
}
