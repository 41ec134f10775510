package fiscal

import (
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// Allocation is the quantity a disposal consumes from one parcel.
//
// Allocations reference parcels by id; parcels stay owned by the Ledger.
type Allocation struct {
	Parcel   string    `json:"parcel"`
	Quantity Quantity  `json:"quantity"`
	Acquired time.Time `json:"acquired"` // pooled acquisition time for average cost
	Cost     Money     `json:"cost"`     // set once the parcel has been consumed
}

// Identify selects the open parcels a disposal of quantity q consumes.
//
// open must be in ledger order, as returned by Ledger.OpenParcels. The
// returned allocations sum to q. Identify is pure: it neither reads nor
// changes a ledger.
func Identify(method Method, q Quantity, open []Parcel, selection []Selection) ([]Allocation, error) {
	if !q.IsPositive() {
		return nil, fmt.Errorf("%w: disposed quantity must be positive, got %s", ErrInvalidOperation, q)
	}
	if len(selection) > 0 && method != SpecificID {
		return nil, fmt.Errorf("parcel selection on a %s ledger: %w", method, ErrPolicyChangeNotSupported)
	}
	if method != SpecificID {
		var held Quantity
		for _, p := range open {
			held = held.Add(p.Remaining)
		}
		if held.LessThan(q) {
			return nil, fmt.Errorf("dispose %s, hold %s: %w", q, held, ErrInsufficientHoldings)
		}
	}

	switch method {
	case FIFO:
		return consumeInOrder(q, open), nil
	case LIFO:
		reversed := slices.Clone(open)
		slices.Reverse(reversed)
		return consumeInOrder(q, reversed), nil
	case SpecificID:
		return identifySpecific(q, open, selection)
	case AverageCost:
		return identifyAverage(q, open), nil
	default:
		return nil, fmt.Errorf("unknown identification method %d", int(method))
	}
}

// consumeInOrder takes from parcels in the given order until q is covered.
func consumeInOrder(q Quantity, parcels []Parcel) []Allocation {
	var allocs []Allocation
	left := q
	for _, p := range parcels {
		if !left.IsPositive() {
			break
		}
		take := MinQ(left, p.Remaining)
		if !take.IsPositive() {
			continue
		}
		allocs = append(allocs, Allocation{Parcel: p.ID, Quantity: take, Acquired: p.Acquired})
		left = left.Sub(take)
	}
	return allocs
}

func identifySpecific(q Quantity, open []Parcel, selection []Selection) ([]Allocation, error) {
	if len(selection) == 0 {
		return nil, fmt.Errorf("%w: specific identification requires a parcel selection", ErrInvalidOperation)
	}
	byID := make(map[string]Parcel, len(open))
	for _, p := range open {
		byID[p.ID] = p
	}
	taken := make(map[string]Quantity)
	var total Quantity
	allocs := make([]Allocation, 0, len(selection))
	for _, s := range selection {
		p, ok := byID[s.Parcel]
		if !ok {
			return nil, fmt.Errorf("parcel %q is not open: %w", s.Parcel, ErrInsufficientHoldings)
		}
		if !s.Quantity.IsPositive() {
			return nil, fmt.Errorf("%w: parcel %q: selected quantity must be positive", ErrInvalidOperation, s.Parcel)
		}
		t := taken[s.Parcel].Add(s.Quantity)
		if t.GreaterThan(p.Remaining) {
			return nil, fmt.Errorf("parcel %q: select %s, remaining %s: %w", s.Parcel, t, p.Remaining, ErrInsufficientHoldings)
		}
		taken[s.Parcel] = t
		total = total.Add(s.Quantity)
		allocs = append(allocs, Allocation{Parcel: p.ID, Quantity: s.Quantity, Acquired: p.Acquired})
	}
	if !total.Equal(q) {
		return nil, fmt.Errorf("%w: selection covers %s, disposal is %s", ErrInvalidOperation, total, q)
	}
	return allocs, nil
}

// identifyAverage consumes every open parcel proportionally to its remaining
// quantity. All allocations carry the pool's weighted-average acquisition
// time. Rounding leftovers are taken from the last parcels.
func identifyAverage(q Quantity, open []Parcel) []Allocation {
	var held Quantity
	var weighted decimal.Decimal
	for _, p := range open {
		held = held.Add(p.Remaining)
		weighted = weighted.Add(decimal.NewFromInt(p.Acquired.UnixNano()).Mul(p.Remaining.Decimal()))
	}
	avg := time.Unix(0, weighted.DivRound(held.Decimal(), 0).IntPart()).In(open[0].Acquired.Location())

	takes := make([]Quantity, len(open))
	if q.Equal(held) {
		for i, p := range open {
			takes[i] = p.Remaining
		}
	} else {
		var sum Quantity
		for i, p := range open {
			share := Q(q.Decimal().Mul(p.Remaining.Decimal()).DivRound(held.Decimal(), divisionPrecision).RoundDown(divisionPrecision))
			takes[i] = MinQ(share, p.Remaining)
			sum = sum.Add(takes[i])
		}
		left := q.Sub(sum)
		for i := len(open) - 1; i >= 0 && left.IsPositive(); i-- {
			extra := MinQ(left, open[i].Remaining.Sub(takes[i]))
			takes[i] = takes[i].Add(extra)
			left = left.Sub(extra)
		}
	}

	var allocs []Allocation
	for i, p := range open {
		if !takes[i].IsPositive() {
			continue
		}
		allocs = append(allocs, Allocation{Parcel: p.ID, Quantity: takes[i], Acquired: avg})
	}
	return allocs
}

// sumAllocations returns the total quantity of allocs.
func sumAllocations(allocs []Allocation) Quantity {
	var total Quantity
	for _, a := range allocs {
		total = total.Add(a.Quantity)
	}
	return total
}
