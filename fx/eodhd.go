package fx

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/etnz/fiscal/date"
	"github.com/shopspring/decimal"
)

// EODHDKeyEnv is the environment variable holding the EODHD API key.
const EODHDKeyEnv = "EODHD_API_KEY"

// EODHD reads daily forex rates from eodhd.com.
//
// The provider's daily close for forex is unreliable, usually equal to the
// open. The open of the next day is used as the rate of a day instead.
type EODHD struct {
	APIKey  string
	BaseURL string       // defaults to https://eodhd.com/api
	Client  *http.Client // defaults to DailyClient()
}

func (s *EODHD) client() *http.Client {
	if s.Client == nil {
		return DailyClient()
	}
	return s.Client
}

// LookupRate implements Lookup.
func (s *EODHD) LookupRate(ctx context.Context, pair Pair, on date.Date) (decimal.Decimal, error) {
	if s.APIKey == "" {
		return decimal.Zero, fmt.Errorf("eodhd: missing API key, set %s", EODHDKeyEnv)
	}
	base := s.BaseURL
	if base == "" {
		base = "https://eodhd.com/api"
	}
	next := on.Add(1)
	addr := fmt.Sprintf("%s/eod/%s.FOREX?fmt=json&api_token=%s&from=%s&to=%s",
		base, url.PathEscape(pair.String()), url.QueryEscape(s.APIKey), next, next)

	// bounds are included in the response.
	type info struct {
		Date date.Date       `json:"date"`
		Open decimal.Decimal `json:"open"`
	}
	content := make([]info, 0)
	if err := jwget(ctx, s.client(), addr, &content); err != nil {
		return decimal.Zero, fmt.Errorf("eodhd %s: %w", pair, err)
	}
	for _, i := range content {
		if i.Date == next && i.Open.IsPositive() {
			return i.Open, nil
		}
	}
	return decimal.Zero, notFound(pair, on)
}
