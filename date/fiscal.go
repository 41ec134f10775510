package date

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FiscalYear is the boundary at which a financial year starts.
//
// Fiscal years are named after the calendar year in which they end: with a
// July 1 boundary, FY2025 runs from 2024-07-01 to 2025-06-30. A January 1
// boundary gives plain calendar years.
type FiscalYear struct {
	Month time.Month `json:"month"`
	Day   int        `json:"day"`
}

// CalendarYear is the January 1 boundary.
var CalendarYear = FiscalYear{Month: time.January, Day: 1}

// Validate checks that the boundary is a day that exists in every year.
func (f FiscalYear) Validate() error {
	if f.Month < time.January || f.Month > time.December {
		return fmt.Errorf("invalid fiscal year month %d", f.Month)
	}
	// February 29 would not exist every year.
	if f.Day < 1 || f.Day > New(2023, f.Month+1, 0).Day() {
		return fmt.Errorf("invalid fiscal year day %d for %s", f.Day, f.Month)
	}
	return nil
}

// Year returns the fiscal year d belongs to.
func (f FiscalYear) Year(d Date) int {
	start := New(d.Year(), f.Month, f.Day)
	if f == CalendarYear || f.IsZero() {
		return d.Year()
	}
	if d.Before(start) {
		return d.Year()
	}
	return d.Year() + 1
}

// Range returns the dates of the fiscal year named year.
func (f FiscalYear) Range(year int) Range {
	if f == CalendarYear || f.IsZero() {
		return Range{From: New(year, time.January, 1), To: New(year, time.December, 31)}
	}
	from := New(year-1, f.Month, f.Day)
	return Range{From: from, To: New(year, f.Month, f.Day).Add(-1)}
}

// Label returns the name of the fiscal year d belongs to, like "FY2025".
func (f FiscalYear) Label(d Date) string { return Label(f.Year(d)) }

// IsZero reports whether f is unset.
func (f FiscalYear) IsZero() bool { return f.Month == 0 && f.Day == 0 }

// Label formats a fiscal year number.
func Label(year int) string { return "FY" + strconv.Itoa(year) }

// ParseLabel is the inverse of Label.
func ParseLabel(label string) (int, error) {
	y, err := strconv.Atoi(strings.TrimPrefix(label, "FY"))
	if err != nil {
		return 0, fmt.Errorf("invalid fiscal year %q: %w", label, err)
	}
	return y, nil
}

func (f FiscalYear) String() string {
	return fmt.Sprintf("%02d-%02d", int(f.Month), f.Day)
}

// UnmarshalJSON accepts both {"month":7,"day":1} and "07-01".
func (f *FiscalYear) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		var m, d int
		if _, err := fmt.Sscanf(str, "%d-%d", &m, &d); err != nil {
			return fmt.Errorf("invalid fiscal year boundary %q want format MM-DD: %w", str, err)
		}
		*f = FiscalYear{Month: time.Month(m), Day: d}
		return f.Validate()
	}
	type plain FiscalYear
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*f = FiscalYear(p)
	return f.Validate()
}
