package fiscal

import (
	"errors"
	"testing"
)

func parcel(id string, at int, quantity, cost string) Parcel {
	return NewParcel(buy(id, day(at), "AAPL", quantity, "0"), MustQ(quantity), USD(cost))
}

func ids(parcels []Parcel) []string {
	var out []string
	for _, p := range parcels {
		out = append(out, p.ID)
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestLedger_OpenParcelsOrder(t *testing.T) {
	l := NewLedger()
	for _, p := range []Parcel{
		parcel("b", 2, "1", "10"),
		parcel("a", 1, "1", "10"),
		parcel("c", 2, "1", "10"), // same time as b, inserted after it
		parcel("d", 3, "1", "10"),
	} {
		if _, err := l.Insert(p); err != nil {
			t.Fatalf("Insert(%s) error = %v", p.ID, err)
		}
	}
	got := ids(l.OpenParcels("broker", "AAPL"))
	if want := []string{"a", "b", "c", "d"}; !equalStrings(got, want) {
		t.Errorf("OpenParcels() = %v, want %v", got, want)
	}
	if p, _ := l.Parcel("c"); p.Seq != 3 {
		t.Errorf("Parcel(c).Seq = %d, want 3", p.Seq)
	}
	if got := l.OpenParcels("broker", "MSFT"); len(got) != 0 {
		t.Errorf("OpenParcels(unknown) = %v, want none", got)
	}
}

func TestLedger_InsertRejectsDuplicate(t *testing.T) {
	l := NewLedger()
	if _, err := l.Insert(parcel("a", 0, "1", "10")); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Insert(parcel("a", 1, "2", "10")); err == nil {
		t.Error("Insert(duplicate) succeeded")
	}
}

func TestLedger_Consume(t *testing.T) {
	l := NewLedger()
	l.Insert(parcel("a", 0, "10", "1000"))
	l.Insert(parcel("b", 1, "3", "100"))

	cost, err := l.Consume("a", MustQ("4"))
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}
	if !cost.Equal(USD("400")) {
		t.Errorf("Consume(4) cost = %v, want 400", cost.Decimal())
	}
	a, _ := l.Parcel("a")
	if !a.Remaining.Equal(MustQ("6")) || !a.RemainingCost.Equal(USD("600")) {
		t.Errorf("after Consume(4): remaining %s cost %s, want 6 and 600", a.Remaining, a.RemainingCost.Decimal())
	}

	// consuming everything left takes the exact remaining cost.
	cost, err = l.Consume("b", MustQ("1"))
	if err != nil {
		t.Fatal(err)
	}
	cost2, err := l.Consume("b", MustQ("2"))
	if err != nil {
		t.Fatal(err)
	}
	if !cost.Add(cost2).Equal(USD("100")) {
		t.Errorf("sum of consumed cost = %s, want exactly 100", cost.Add(cost2).Decimal())
	}

	if got := ids(l.OpenParcels("broker", "AAPL")); !equalStrings(got, []string{"a"}) {
		t.Errorf("OpenParcels() = %v, want [a]", got)
	}
	if b, ok := l.Parcel("b"); !ok || b.IsOpen() {
		t.Errorf("closed parcel b: found %v, open %v; want retrievable and closed", ok, b.IsOpen())
	}
	if got := len(l.Parcels("broker", "AAPL")); got != 2 {
		t.Errorf("Parcels() has %d parcels, want 2", got)
	}
}

func TestLedger_ConsumeErrors(t *testing.T) {
	l := NewLedger()
	l.Insert(parcel("a", 0, "5", "500"))

	if _, err := l.Consume("a", MustQ("6")); !errors.Is(err, ErrInsufficientParcelQuantity) {
		t.Errorf("Consume(6 of 5) error = %v, want ErrInsufficientParcelQuantity", err)
	}
	if _, err := l.Consume("a", MustQ("0")); err == nil {
		t.Error("Consume(0) succeeded")
	}
	if _, err := l.Consume("zz", MustQ("1")); err == nil {
		t.Error("Consume(unknown) succeeded")
	}
	if a, _ := l.Parcel("a"); !a.Remaining.Equal(MustQ("5")) {
		t.Errorf("failed consumption changed remaining to %s", a.Remaining)
	}
}

func TestLedger_Clone(t *testing.T) {
	l := NewLedger()
	l.Insert(parcel("a", 0, "5", "500"))
	c := l.Clone()
	if _, err := c.Consume("a", MustQ("5")); err != nil {
		t.Fatal(err)
	}
	if a, _ := l.Parcel("a"); !a.Remaining.Equal(MustQ("5")) {
		t.Errorf("consuming the clone changed the original: remaining %s", a.Remaining)
	}
	if _, err := c.Insert(parcel("b", 1, "1", "1")); err != nil {
		t.Fatal(err)
	}
	if _, ok := l.Parcel("b"); ok {
		t.Error("inserting in the clone changed the original")
	}
}

func TestLedger_SetMethod(t *testing.T) {
	l := NewLedger()
	p := Partition{Account: "broker", Asset: "AAPL"}
	if err := l.SetMethod(p, FIFO); err != nil {
		t.Fatal(err)
	}
	if err := l.SetMethod(p, FIFO); err != nil {
		t.Errorf("SetMethod(same) error = %v", err)
	}
	if err := l.SetMethod(p, LIFO); !errors.Is(err, ErrPolicyChangeNotSupported) {
		t.Errorf("SetMethod(LIFO) error = %v, want ErrPolicyChangeNotSupported", err)
	}
	if m, ok := l.Method(p); !ok || m != FIFO {
		t.Errorf("Method() = %v, %v; want fifo, true", m, ok)
	}
}

func TestLedger_JSON(t *testing.T) {
	l := NewLedger()
	l.Insert(parcel("a", 0, "5", "500"))
	l.Insert(parcel("b", 1, "2", "210.5"))
	l.Consume("a", MustQ("2"))
	l.SetMethod(Partition{Account: "broker", Asset: "AAPL"}, LIFO)

	data, err := l.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	var got Ledger
	if err := got.UnmarshalJSON(data); err != nil {
		t.Fatalf("UnmarshalJSON() error = %v", err)
	}
	again, err := got.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	if string(again) != string(data) {
		t.Errorf("round trip changed the ledger:\n got %s\nwant %s", again, data)
	}
	if m, _ := got.Method(Partition{Account: "broker", Asset: "AAPL"}); m != LIFO {
		t.Errorf("restored method = %v, want lifo", m)
	}
}
