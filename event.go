package fiscal

import (
	"encoding/json"
	"time"
)

// Match links a disposal to the parcels it consumed. It is created once per
// disposal and never changed afterwards.
type Match struct {
	Disposal    string       `json:"disposal"`
	Account     string       `json:"account"`
	Asset       string       `json:"asset"`
	Time        time.Time    `json:"time"`
	Quantity    Quantity     `json:"quantity"`
	Allocations []Allocation `json:"allocations"`
	seq         int
}

// Partition returns the (account, asset) of the disposal.
func (m Match) Partition() Partition { return Partition{Account: m.Account, Asset: m.Asset} }

// TaxableEvent is the tax relevant outcome of a match or of an income or
// expense operation.
//
// Amount is the gross amount of the event and is never negative: the class
// tells gains from losses. All amounts are in the reporting currency and
// rounded to its minor unit.
type TaxableEvent struct {
	ID           string
	Class        Class
	Account      string
	Asset        string
	Time         time.Time
	FiscalYear   string
	Quantity     Quantity // disposed quantity, zero for income and expenses
	Proceeds     Money
	Cost         Money
	Amount       Money
	Eligible     bool  // discount eligible
	EligibleGain Money // part of Amount coming from discount eligible parcels
	Operations   []string
	Parcels      []string
	seq          int
}

// Partition returns the (account, asset) the event was produced in.
func (e TaxableEvent) Partition() Partition { return Partition{Account: e.Account, Asset: e.Asset} }

// compareEvents orders events by time, partition then production sequence.
func compareEvents(a, b TaxableEvent) int {
	if c := a.Time.Compare(b.Time); c != 0 {
		return c
	}
	if c := a.Partition().Compare(b.Partition()); c != 0 {
		return c
	}
	return a.seq - b.seq
}

func compareMatches(a, b Match) int {
	if c := a.Time.Compare(b.Time); c != 0 {
		return c
	}
	if c := a.Partition().Compare(b.Partition()); c != 0 {
		return c
	}
	return a.seq - b.seq
}

// MarshalJSON implements json.Marshaler.
func (e TaxableEvent) MarshalJSON() ([]byte, error) {
	var w jsonObjectWriter
	w.Append("id", e.ID)
	w.Append("class", e.Class)
	w.Append("fiscalYear", e.FiscalYear)
	w.Append("time", e.Time)
	w.Append("account", e.Account)
	w.Append("asset", e.Asset)
	w.Append("currency", e.Amount.Currency())
	w.Append("amount", e.Amount.Decimal())
	if !e.Quantity.IsZero() {
		w.Append("quantity", e.Quantity)
		w.Append("proceeds", e.Proceeds.Decimal())
		w.Append("cost", e.Cost.Decimal())
	}
	w.Optional("eligible", e.Eligible)
	if !e.EligibleGain.IsZero() {
		w.Append("eligibleGain", e.EligibleGain.Decimal())
	}
	w.Optional("operations", e.Operations)
	w.Optional("parcels", e.Parcels)
	return w.MarshalJSON()
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *TaxableEvent) UnmarshalJSON(data []byte) error {
	var temp struct {
		ID           string    `json:"id"`
		Class        string    `json:"class"`
		FiscalYear   string    `json:"fiscalYear"`
		Time         time.Time `json:"time"`
		Account      string    `json:"account"`
		Asset        string    `json:"asset"`
		Quantity     Quantity  `json:"quantity"`
		Currency     string    `json:"currency"`
		Amount       Quantity  `json:"amount"`
		Proceeds     Quantity  `json:"proceeds"`
		Cost         Quantity  `json:"cost"`
		Eligible     bool      `json:"eligible"`
		EligibleGain Quantity  `json:"eligibleGain"`
		Operations   []string  `json:"operations"`
		Parcels      []string  `json:"parcels"`
	}
	if err := json.Unmarshal(data, &temp); err != nil {
		return err
	}
	class, err := ParseClass(temp.Class)
	if err != nil {
		return err
	}
	cur := temp.Currency
	*e = TaxableEvent{
		ID:           temp.ID,
		Class:        class,
		Account:      temp.Account,
		Asset:        temp.Asset,
		Time:         temp.Time,
		FiscalYear:   temp.FiscalYear,
		Quantity:     temp.Quantity,
		Proceeds:     M(temp.Proceeds.Decimal(), cur),
		Cost:         M(temp.Cost.Decimal(), cur),
		Amount:       M(temp.Amount.Decimal(), cur),
		Eligible:     temp.Eligible,
		EligibleGain: M(temp.EligibleGain.Decimal(), cur),
		Operations:   temp.Operations,
		Parcels:      temp.Parcels,
	}
	return nil
}
