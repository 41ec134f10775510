package fiscal

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Rhymond/go-money"
)

// AssetKind tells what an asset identifier denotes.
type AssetKind int

const (
	// Token is any asset that is neither a security nor a currency.
	Token AssetKind = iota
	// Security is an asset identified by its ISIN.
	Security
	// Currency is a fiat currency, identified by its ISO 4217 code.
	Currency
)

func (k AssetKind) String() string {
	switch k {
	case Security:
		return "security"
	case Currency:
		return "currency"
	default:
		return "token"
	}
}

// isinFormat is the shape of an ISO 6166 identifier, dashes removed.
var isinFormat = regexp.MustCompile(`^[A-Z]{2}[\dA-Z]{10}$`)

// ParseISIN validates an International Securities Identification Number and
// returns it with dashes removed. "US-000402625-0" gives "US0004026250".
func ParseISIN(s string) (string, error) {
	isin := strings.ReplaceAll(strings.TrimSpace(s), "-", "")
	if !isinFormat.MatchString(isin) {
		return "", fmt.Errorf("invalid ISIN %q", s)
	}
	return isin, nil
}

// KindOf guesses the kind of an asset identifier.
func KindOf(asset string) AssetKind {
	if len(asset) == 3 && strings.ToUpper(asset) == asset && money.GetCurrency(asset) != nil {
		return Currency
	}
	if _, err := ParseISIN(asset); err == nil {
		return Security
	}
	return Token
}
