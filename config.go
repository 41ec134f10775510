package fiscal

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/etnz/fiscal/date"
	"github.com/shopspring/decimal"
)

// Config is the policy data of a run. It is loaded once and never mutated
// while an engine uses it.
type Config struct {
	// ReportingCurrency is the currency every taxable event is expressed in.
	ReportingCurrency string `json:"reportingCurrency"`
	// Method is the default identification method.
	Method Method `json:"method"`
	// Methods overrides Method for some partitions, first match wins.
	Methods []MethodScope `json:"methods,omitempty"`
	// DiscountThreshold is the minimum holding period for a capital gain to
	// be discount eligible. Zero disables the discount.
	DiscountThreshold Duration `json:"discountThreshold"`
	// DiscountRate is the share of an eligible gain that is discounted.
	DiscountRate decimal.Decimal `json:"discountRate"`
	// FiscalYear is the boundary of financial years.
	FiscalYear date.FiscalYear `json:"fiscalYear"`
	// TimeZone names the location used to find the calendar day of an
	// instant, for rates and fiscal years.
	TimeZone string `json:"timeZone,omitempty"`
	// Revenue lists the partitions whose disposals are revenue in nature.
	Revenue []Scope `json:"revenue,omitempty"`
	// PerParcelEvents emits one event per consumed parcel instead of one per
	// match.
	PerParcelEvents bool `json:"perParcelEvents"`
	// AllowLateOperations recomputes a partition from its history when an
	// operation older than its last one arrives. Otherwise such operations
	// fail the partition with ErrLateOperation.
	AllowLateOperations bool `json:"allowLateOperations"`
	// Workers bounds the number of partitions processed in parallel. Zero
	// means no limit.
	Workers int `json:"workers,omitempty"`
}

// DefaultConfig returns the configuration omitted fields default to.
func DefaultConfig() Config {
	return Config{
		Method:              FIFO,
		FiscalYear:          date.CalendarYear,
		AllowLateOperations: true,
	}
}

// Scope selects partitions. An empty or "*" field matches everything.
type Scope struct {
	Account string `json:"account,omitempty"`
	Asset   string `json:"asset,omitempty"`
}

// Matches reports whether p is in scope.
func (s Scope) Matches(p Partition) bool {
	return matchField(s.Account, p.Account) && matchField(s.Asset, p.Asset)
}

func matchField(pattern, value string) bool {
	return pattern == "" || pattern == "*" || pattern == value
}

// MethodScope sets the identification method of the partitions in scope.
type MethodScope struct {
	Scope
	Method Method `json:"method"`
}

// MethodFor returns the identification method configured for p.
func (c Config) MethodFor(p Partition) Method {
	for _, m := range c.Methods {
		if m.Matches(p) {
			return m.Method
		}
	}
	return c.Method
}

// Location returns the configured time zone, UTC by default.
func (c Config) Location() (*time.Location, error) {
	if c.TimeZone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.TimeZone)
}

// Validate checks the configuration and reports every problem found.
func (c Config) Validate() error {
	var errs []error
	if err := ValidateCurrency(c.ReportingCurrency); err != nil {
		errs = append(errs, fmt.Errorf("reportingCurrency: %w", err))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, fmt.Errorf("timeZone: %w", err))
	}
	if err := c.FiscalYear.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("fiscalYear: %w", err))
	}
	if c.DiscountThreshold < 0 {
		errs = append(errs, fmt.Errorf("discountThreshold must not be negative, got %s", c.DiscountThreshold))
	}
	if c.DiscountRate.IsNegative() || c.DiscountRate.GreaterThan(decimal.NewFromInt(1)) {
		errs = append(errs, fmt.Errorf("discountRate must be within [0, 1], got %s", c.DiscountRate))
	}
	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers must not be negative, got %d", c.Workers))
	}
	for _, m := range append([]Method{c.Method}, methods(c.Methods)...) {
		if _, err := m.MarshalText(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func methods(scopes []MethodScope) []Method {
	ms := make([]Method, len(scopes))
	for i, s := range scopes {
		ms[i] = s.Method
	}
	return ms
}

// DecodeConfig reads a JSON configuration over DefaultConfig and validates it.
func DecodeConfig(r io.Reader) (Config, error) {
	cfg := DefaultConfig()
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadConfig reads the configuration file at path.
func LoadConfig(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer f.Close()
	cfg, err := DecodeConfig(f)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Duration is a time.Duration written either as a Go duration ("8760h") or
// as a whole number of days ("365d").
type Duration time.Duration

// ParseDuration parses "365d" or any time.ParseDuration format.
func ParseDuration(s string) (Duration, error) {
	s = strings.TrimSpace(s)
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q: %w", s, err)
		}
		return Duration(time.Duration(n) * 24 * time.Hour), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	return Duration(d), nil
}

func (d Duration) String() string {
	if d != 0 && time.Duration(d)%(24*time.Hour) == 0 {
		return strconv.FormatInt(int64(time.Duration(d)/(24*time.Hour)), 10) + "d"
	}
	return time.Duration(d).String()
}

func (d Duration) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = v
	return nil
}
