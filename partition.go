package fiscal

import (
	"context"
	"fmt"
	"time"

	"github.com/etnz/fiscal/date"
)

// State is the lifecycle state of a partition.
type State int

const (
	// Empty partitions have not processed any operation yet.
	Empty State = iota
	// Accruing partitions are applying operations.
	Accruing
	// Reconciled partitions have applied every operation they were given.
	Reconciled
)

func (s State) String() string {
	switch s {
	case Empty:
		return "empty"
	case Accruing:
		return "accruing"
	case Reconciled:
		return "reconciled"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// partition processes the steps of one (account, asset) sequentially. It
// owns its ledger: nothing it holds is shared with other partitions until it
// is published.
type partition struct {
	engine  *Engine
	key     Partition
	method  Method
	ledger  *Ledger
	state   State
	seq     int
	last    time.Time // time of the last applied step
	history []step
	events  []TaxableEvent
	matches []Match

	recomputed bool // replaces everything published before
}

func (r *partition) advance(to State) error {
	switch {
	case r.state == Empty && to == Accruing,
		r.state == Accruing && to == Reconciled,
		r.state == Reconciled && to == Accruing:
		r.state = to
		return nil
	}
	return fmt.Errorf("%s: invalid transition from %s to %s", r.key, r.state, to)
}

// run applies steps in order. It stops at the first failure or when ctx is
// done between two steps.
func (r *partition) run(ctx context.Context, steps []step) error {
	if len(steps) == 0 {
		return nil
	}
	if err := r.advance(Accruing); err != nil {
		return err
	}
	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.apply(ctx, s); err != nil {
			return err
		}
		r.history = append(r.history, s)
		r.last = s.time
	}
	return r.advance(Reconciled)
}

// apply applies the items of a step.
func (r *partition) apply(ctx context.Context, s step) error {
	for _, it := range s.items {
		var err error
		switch {
		case it.op.IsInbound():
			err = r.acquire(ctx, it)
		case it.op.IsOutbound():
			err = r.dispose(ctx, it)
		default:
			err = r.recognize(ctx, it)
		}
		if err != nil {
			return &PartitionError{Partition: r.key, Operation: it.op.ID, Time: it.op.Time, Err: err}
		}
	}
	return nil
}

// value returns the value of the item and its fees in the reporting currency.
func (r *partition) value(ctx context.Context, it item) (value, fees Money, err error) {
	cur := r.engine.cfg.ReportingCurrency
	value, err = r.engine.norm.Convert(ctx, it.op.Value(), cur, it.op.Time)
	if err != nil {
		return Money{}, Money{}, err
	}
	fees = M(0, cur)
	for _, f := range it.fees {
		n, err := r.engine.norm.Convert(ctx, f, cur, it.op.Time)
		if err != nil {
			return Money{}, Money{}, err
		}
		fees = fees.Add(n)
	}
	return value, fees, nil
}

func (r *partition) acquire(ctx context.Context, it item) error {
	if err := r.ledger.SetMethod(r.key, r.method); err != nil {
		return err
	}
	value, fees, err := r.value(ctx, it)
	if err != nil {
		return err
	}
	_, err = r.ledger.Insert(NewParcel(it.op, it.op.Quantity.Abs(), value.Add(fees)))
	return err
}

func (r *partition) dispose(ctx context.Context, it item) error {
	op := it.op
	q := op.Quantity.Abs()
	if err := r.ledger.SetMethod(r.key, r.method); err != nil {
		return err
	}
	allocs, err := Identify(r.method, q, r.ledger.OpenParcels(op.Account, op.Asset), op.Parcels)
	if err != nil {
		return err
	}
	value, fees, err := r.value(ctx, it)
	if err != nil {
		return err
	}
	// consumption only starts once every lookup succeeded.
	for i, a := range allocs {
		cost, err := r.ledger.Consume(a.Parcel, a.Quantity)
		if err != nil {
			return err
		}
		allocs[i].Cost = cost
	}
	r.seq++
	r.matches = append(r.matches, Match{
		Disposal:    op.ID,
		Account:     op.Account,
		Asset:       op.Asset,
		Time:        op.Time,
		Quantity:    q,
		Allocations: allocs,
		seq:         r.seq,
	})
	r.emitDisposal(op, value.Sub(fees), allocs)
	return nil
}

// split returns the proceeds share of every allocation, the last one taking
// the remainder.
func split(proceeds Money, q Quantity, allocs []Allocation) []Money {
	shares := make([]Money, len(allocs))
	given := M(0, proceeds.Currency())
	for i, a := range allocs {
		if i == len(allocs)-1 {
			shares[i] = proceeds.Sub(given)
			break
		}
		shares[i] = proceeds.Mul(a.Quantity).Div(q)
		given = given.Add(shares[i])
	}
	return shares
}

func (r *partition) emitDisposal(op Operation, proceeds Money, allocs []Allocation) {
	policy := r.engine.class
	shares := split(proceeds, op.Quantity.Abs(), allocs)
	if r.engine.cfg.PerParcelEvents {
		for i, a := range allocs {
			gain := shares[i].Sub(a.Cost)
			class, eligible := policy.Classify(op, gain, a.Acquired)
			eligibleGain := M(0, gain.Currency())
			if eligible {
				eligibleGain = gain
			}
			r.emit(TaxableEvent{
				ID:           op.ID + "/" + a.Parcel,
				Class:        class,
				Quantity:     a.Quantity,
				Proceeds:     shares[i],
				Cost:         a.Cost,
				Amount:       gain.Abs(),
				Eligible:     eligible,
				EligibleGain: eligibleGain,
				Parcels:      []string{a.Parcel},
			}, op)
		}
		return
	}

	cost := M(0, proceeds.Currency())
	eligibleGain := M(0, proceeds.Currency())
	allEligible := true
	parcels := make([]string, len(allocs))
	for i, a := range allocs {
		cost = cost.Add(a.Cost)
		parcels[i] = a.Parcel
		if policy.Eligible(a.Acquired, op.Time) {
			eligibleGain = eligibleGain.Add(shares[i].Sub(a.Cost))
		} else {
			allEligible = false
		}
	}
	gain := proceeds.Sub(cost)
	class, _ := policy.Classify(op, gain, allocs[0].Acquired)
	eligible := class == ClassCapitalGain && allEligible
	if class != ClassCapitalGain || eligibleGain.IsNegative() {
		eligibleGain = M(0, gain.Currency())
	}
	if eligibleGain.GreaterThan(gain) {
		eligibleGain = gain
	}
	r.emit(TaxableEvent{
		ID:           op.ID,
		Class:        class,
		Quantity:     op.Quantity.Abs(),
		Proceeds:     proceeds,
		Cost:         cost,
		Amount:       gain.Abs(),
		Eligible:     eligible,
		EligibleGain: eligibleGain,
		Parcels:      parcels,
	}, op)
}

// recognize emits income, expenses and standalone fees. A linked fee on an
// income is a separate expense; on an expense it adds to it.
func (r *partition) recognize(ctx context.Context, it item) error {
	value, fees, err := r.value(ctx, it)
	if err != nil {
		return err
	}
	class, _ := r.engine.class.Classify(it.op, value, it.op.Time)
	zero := M(0, value.Currency())
	if class == ClassIncome {
		r.emit(TaxableEvent{ID: it.op.ID, Class: class, Proceeds: zero, Cost: zero, Amount: value, EligibleGain: zero}, it.op)
		if fees.IsPositive() {
			r.emit(TaxableEvent{ID: it.op.ID + "/fee", Class: ClassExpense, Proceeds: zero, Cost: zero, Amount: fees, EligibleGain: zero}, it.op)
		}
		return nil
	}
	r.emit(TaxableEvent{ID: it.op.ID, Class: class, Proceeds: zero, Cost: zero, Amount: value.Add(fees), EligibleGain: zero}, it.op)
	return nil
}

// emit rounds the amounts of e, fills the fields common to every event and
// records it.
func (r *partition) emit(e TaxableEvent, op Operation) {
	e.Account, e.Asset = op.Account, op.Asset
	e.Time = op.Time
	e.FiscalYear = r.engine.cfg.FiscalYear.Label(date.Of(op.Time, r.engine.loc))
	e.Operations = []string{op.ID}
	e.Proceeds = e.Proceeds.Round()
	e.Cost = e.Cost.Round()
	e.Amount = e.Amount.Round()
	e.EligibleGain = e.EligibleGain.Round()
	r.seq++
	e.seq = r.seq
	r.events = append(r.events, e)
}
