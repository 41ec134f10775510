package fiscal

import (
	"errors"
	"strings"
	"testing"
)

func TestOperation_Validate(t *testing.T) {
	valid := buy("a", day(0), "AAPL", "1", "10")
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	testCases := []struct {
		name   string
		modify func(*Operation)
		want   string
	}{
		{"no id", func(o *Operation) { o.ID = "" }, "missing id"},
		{"no account", func(o *Operation) { o.Account = "" }, "missing account"},
		{"unknown kind", func(o *Operation) { o.Kind = "gift" }, "gift"},
		{"zero quantity", func(o *Operation) { o.Quantity = Q(0) }, "quantity"},
		{"negative price", func(o *Operation) { o.Price = USD("-1") }, "price"},
		{"unknown currency", func(o *Operation) { o.Price = MustM("1", "ABC") }, "ABC"},
		{"negative fee", func(o *Operation) { o.Fee = USD("-1") }, "fee"},
		{"negative income", func(o *Operation) { *o = cash("i", Income, day(0), "-25") }, "income quantity must be positive"},
		{"negative expense", func(o *Operation) { *o = cash("x", Expense, day(0), "-25") }, "expense quantity must be positive"},
		{"negative fee operation", func(o *Operation) { *o = cash("f", Fee, day(0), "-1") }, "fee quantity must be positive"},
		{"selection on acquisition", func(o *Operation) { o.Parcels = []Selection{{"p", Q(1)}} }, "selection"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			o := valid
			tc.modify(&o)
			err := o.Validate()
			if !errors.Is(err, ErrInvalidOperation) || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("Validate() error = %v, want ErrInvalidOperation mentioning %q", err, tc.want)
			}
		})
	}
}

func TestOperation_Direction(t *testing.T) {
	in := op("t", Transfer, day(0), "AAPL", "2", USD("1"))
	out := op("t", Transfer, day(0), "AAPL", "-2", USD("1"))
	if !in.IsInbound() || in.IsOutbound() || out.IsInbound() || !out.IsOutbound() {
		t.Error("transfer direction does not follow the quantity sign")
	}
	if !out.Value().Equal(USD("2")) {
		t.Errorf("Value() = %s, want 2", out.Value().Decimal())
	}
	if out.TxID() != "t" {
		t.Errorf("TxID() = %q, want the operation id", out.TxID())
	}
}
