package fiscal

import (
	"encoding/json"
	"time"
)

// Parcel is a quantity of one asset held in one account, created by an
// acquisition or an inbound transfer. It is the unit of cost basis tracking.
//
// Parcels are owned by a Ledger and mutated only through Ledger.Consume. A
// parcel whose remaining quantity reaches zero is closed: it is no longer
// open but remains retrievable for audit.
type Parcel struct {
	ID            string
	Account       string
	Asset         string
	Original      Quantity
	Remaining     Quantity
	Acquired      time.Time
	Seq           int   // insertion sequence number within its ledger
	Cost          Money // cost basis in the reporting currency, fees included
	RemainingCost Money // cost basis of the remaining quantity
	Source        string
}

// NewParcel returns an open parcel created by op for quantity q and cost.
func NewParcel(op Operation, q Quantity, cost Money) Parcel {
	return Parcel{
		ID:            op.ID,
		Account:       op.Account,
		Asset:         op.Asset,
		Original:      q,
		Remaining:     q,
		Acquired:      op.Time,
		Cost:          cost,
		RemainingCost: cost,
		Source:        op.ID,
	}
}

// Partition returns the (account, asset) the parcel is held in.
func (p Parcel) Partition() Partition { return Partition{Account: p.Account, Asset: p.Asset} }

// IsOpen reports whether the parcel has quantity left.
func (p Parcel) IsOpen() bool { return p.Remaining.IsPositive() }

// Consumed returns the quantity consumed so far.
func (p Parcel) Consumed() Quantity { return p.Original.Sub(p.Remaining) }

// Compare orders parcels by acquisition time then insertion sequence.
func (p Parcel) Compare(q Parcel) int {
	if c := p.Acquired.Compare(q.Acquired); c != 0 {
		return c
	}
	return p.Seq - q.Seq
}

// MarshalJSON implements json.Marshaler.
func (p Parcel) MarshalJSON() ([]byte, error) {
	var w jsonObjectWriter
	w.Append("id", p.ID)
	w.Append("account", p.Account)
	w.Append("asset", p.Asset)
	w.Append("seq", p.Seq)
	w.Append("acquired", p.Acquired)
	w.Append("original", p.Original)
	w.Append("remaining", p.Remaining)
	w.Append("cost", p.Cost)
	w.Append("remainingCost", p.RemainingCost)
	w.Optional("source", p.Source)
	return w.MarshalJSON()
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *Parcel) UnmarshalJSON(data []byte) error {
	var temp struct {
		ID            string    `json:"id"`
		Account       string    `json:"account"`
		Asset         string    `json:"asset"`
		Original      Quantity  `json:"original"`
		Remaining     Quantity  `json:"remaining"`
		Acquired      time.Time `json:"acquired"`
		Seq           int       `json:"seq"`
		Cost          Money     `json:"cost"`
		RemainingCost Money     `json:"remainingCost"`
		Source        string    `json:"source"`
	}
	if err := json.Unmarshal(data, &temp); err != nil {
		return err
	}
	*p = Parcel(temp)
	return nil
}
