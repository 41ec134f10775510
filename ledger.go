package fiscal

import (
	"encoding/json"
	"fmt"
	"slices"
)

// Ledger indexes parcels per (account, asset).
//
// Within a partition parcels are ordered by acquisition time, ties broken by
// insertion sequence. Closed parcels are kept for audit.
//
// A Ledger is not safe for concurrent use: during a run each partition is
// owned by exactly one worker.
type Ledger struct {
	books map[Partition]*book
	index map[string]*Parcel // all parcels by id
}

// book holds the parcels of one partition and the identification method
// it was built with.
type book struct {
	parcels []*Parcel
	seq     int
	method  Method
	fixed   bool // method has been set
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		books: make(map[Partition]*book),
		index: make(map[string]*Parcel),
	}
}

func (l *Ledger) book(p Partition) *book {
	b, ok := l.books[p]
	if !ok {
		b = &book{}
		l.books[p] = b
	}
	return b
}

// Insert adds a parcel to its partition, assigning its insertion sequence
// number. The inserted parcel is returned.
func (l *Ledger) Insert(p Parcel) (Parcel, error) {
	if p.ID == "" {
		return Parcel{}, fmt.Errorf("parcel without id")
	}
	if _, exists := l.index[p.ID]; exists {
		return Parcel{}, fmt.Errorf("parcel %q already exists", p.ID)
	}
	if !p.Original.IsPositive() {
		return Parcel{}, fmt.Errorf("parcel %q: original quantity must be positive, got %s", p.ID, p.Original)
	}
	if p.Remaining.GreaterThan(p.Original) || p.Remaining.IsNegative() {
		return Parcel{}, fmt.Errorf("parcel %q: remaining quantity %s out of [0, %s]", p.ID, p.Remaining, p.Original)
	}
	b := l.book(p.Partition())
	b.seq++
	p.Seq = b.seq
	ptr := &p
	// insert after every parcel acquired at or before this one.
	i := slices.IndexFunc(b.parcels, func(q *Parcel) bool { return q.Acquired.After(p.Acquired) })
	if i < 0 {
		b.parcels = append(b.parcels, ptr)
	} else {
		b.parcels = slices.Insert(b.parcels, i, ptr)
	}
	l.index[p.ID] = ptr
	return p, nil
}

// OpenParcels returns the parcels of (account, asset) with quantity left,
// in ledger order.
func (l *Ledger) OpenParcels(account, asset string) []Parcel {
	b, ok := l.books[Partition{Account: account, Asset: asset}]
	if !ok {
		return nil
	}
	var open []Parcel
	for _, p := range b.parcels {
		if p.IsOpen() {
			open = append(open, *p)
		}
	}
	return open
}

// Parcels returns every parcel of (account, asset), closed ones included,
// in ledger order.
func (l *Ledger) Parcels(account, asset string) []Parcel {
	b, ok := l.books[Partition{Account: account, Asset: asset}]
	if !ok {
		return nil
	}
	all := make([]Parcel, len(b.parcels))
	for i, p := range b.parcels {
		all[i] = *p
	}
	return all
}

// Parcel retrieves any parcel by id, closed ones included.
func (l *Ledger) Parcel(id string) (Parcel, bool) {
	p, ok := l.index[id]
	if !ok {
		return Parcel{}, false
	}
	return *p, true
}

// Holding returns the open quantity of (account, asset).
func (l *Ledger) Holding(account, asset string) Quantity {
	var total Quantity
	for _, p := range l.OpenParcels(account, asset) {
		total = total.Add(p.Remaining)
	}
	return total
}

// Consume reduces the remaining quantity of a parcel by q and returns the
// cost basis of the consumed portion. The remaining cost is reduced
// proportionally; consuming everything left takes the exact remaining cost.
func (l *Ledger) Consume(id string, q Quantity) (Money, error) {
	p, ok := l.index[id]
	if !ok {
		return Money{}, fmt.Errorf("unknown parcel %q", id)
	}
	if !q.IsPositive() {
		return Money{}, fmt.Errorf("parcel %q: consumed quantity must be positive, got %s", id, q)
	}
	if q.GreaterThan(p.Remaining) {
		return Money{}, fmt.Errorf("parcel %q: consume %s, remaining %s: %w", id, q, p.Remaining, ErrInsufficientParcelQuantity)
	}
	var cost Money
	if q.Equal(p.Remaining) {
		cost = p.RemainingCost
	} else {
		cost = p.RemainingCost.Mul(q).Div(p.Remaining)
	}
	p.Remaining = p.Remaining.Sub(q)
	p.RemainingCost = p.RemainingCost.Sub(cost)
	return cost, nil
}

// Method returns the identification method the partition was built with.
func (l *Ledger) Method(p Partition) (Method, bool) {
	b, ok := l.books[p]
	if !ok || !b.fixed {
		return 0, false
	}
	return b.method, true
}

// SetMethod fixes the identification method of a partition. It fails with
// ErrPolicyChangeNotSupported when a different method is already set.
func (l *Ledger) SetMethod(p Partition, m Method) error {
	b := l.book(p)
	if b.fixed && b.method != m {
		return fmt.Errorf("%s built with %s, configured %s: %w", p, b.method, m, ErrPolicyChangeNotSupported)
	}
	b.method, b.fixed = m, true
	return nil
}

// Partitions returns the partitions known to the ledger, sorted.
func (l *Ledger) Partitions() []Partition {
	keys := make([]Partition, 0, len(l.books))
	for p := range l.books {
		keys = append(keys, p)
	}
	slices.SortFunc(keys, Partition.Compare)
	return keys
}

// Clone returns a deep copy of the ledger.
func (l *Ledger) Clone() *Ledger {
	c := NewLedger()
	for p := range l.books {
		c.copyBook(l, p)
	}
	return c
}

// Extract returns a new ledger holding a deep copy of partition p only.
func (l *Ledger) Extract(p Partition) *Ledger {
	c := NewLedger()
	if _, ok := l.books[p]; ok {
		c.copyBook(l, p)
	}
	return c
}

// replace swaps partition p for the one held by src.
func (l *Ledger) replace(p Partition, src *Ledger) {
	if old, ok := l.books[p]; ok {
		for _, q := range old.parcels {
			delete(l.index, q.ID)
		}
		delete(l.books, p)
	}
	if _, ok := src.books[p]; ok {
		l.copyBook(src, p)
	}
}

// copyBook deep copies partition p of src into l.
func (l *Ledger) copyBook(src *Ledger, p Partition) {
	from := src.books[p]
	to := &book{seq: from.seq, method: from.method, fixed: from.fixed}
	to.parcels = make([]*Parcel, len(from.parcels))
	for i, q := range from.parcels {
		cp := *q
		to.parcels[i] = &cp
		l.index[cp.ID] = &cp
	}
	l.books[p] = to
}

// MarshalJSON writes every parcel, partitions in order.
func (l *Ledger) MarshalJSON() ([]byte, error) {
	type entry struct {
		Partition
		Method  string   `json:"method,omitempty"`
		Parcels []Parcel `json:"parcels"`
	}
	entries := []entry{}
	for _, p := range l.Partitions() {
		e := entry{Partition: p, Parcels: l.Parcels(p.Account, p.Asset)}
		if m, ok := l.Method(p); ok {
			e.Method = m.String()
		}
		entries = append(entries, e)
	}
	return json.Marshal(entries)
}

// UnmarshalJSON restores a ledger written by MarshalJSON.
func (l *Ledger) UnmarshalJSON(data []byte) error {
	var entries []struct {
		Partition
		Method  string   `json:"method"`
		Parcels []Parcel `json:"parcels"`
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	*l = *NewLedger()
	for _, e := range entries {
		b := l.book(e.Partition)
		if e.Method != "" {
			m, err := ParseMethod(e.Method)
			if err != nil {
				return fmt.Errorf("%s: %w", e.Partition, err)
			}
			b.method, b.fixed = m, true
		}
		for _, p := range e.Parcels {
			if _, exists := l.index[p.ID]; exists {
				return fmt.Errorf("parcel %q already exists", p.ID)
			}
			if p.Partition() != e.Partition {
				return fmt.Errorf("parcel %q listed under %s", p.ID, e.Partition)
			}
			ptr := &p
			b.parcels = append(b.parcels, ptr)
			b.seq = max(b.seq, p.Seq)
			l.index[p.ID] = ptr
		}
		slices.SortStableFunc(b.parcels, func(a, c *Parcel) int { return a.Compare(*c) })
	}
	return nil
}
