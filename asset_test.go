package fiscal

import "testing"

func TestParseISIN(t *testing.T) {
	testCases := []struct {
		in, want string
		ok       bool
	}{
		{"US0378331005", "US0378331005", true},
		{"US-000402625-0", "US0004026250", true},
		{" FR0000120271 ", "FR0000120271", true},
		{"us0378331005", "", false},
		{"US03783310", "", false},
		{"AAPL", "", false},
	}
	for _, tc := range testCases {
		got, err := ParseISIN(tc.in)
		if (err == nil) != tc.ok || got != tc.want {
			t.Errorf("ParseISIN(%q) = %q, %v; want %q", tc.in, got, err, tc.want)
		}
	}
}

func TestKindOf(t *testing.T) {
	testCases := []struct {
		asset string
		want  AssetKind
	}{
		{"USD", Currency},
		{"EUR", Currency},
		{"usd", Token},
		{"US0378331005", Security},
		{"BTC", Token},
		{"AAPL", Token},
	}
	for _, tc := range testCases {
		if got := KindOf(tc.asset); got != tc.want {
			t.Errorf("KindOf(%q) = %s, want %s", tc.asset, got, tc.want)
		}
	}
}
