package fiscal

import (
	"context"
	"errors"
	"fmt"
	"log"
	"maps"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"
)

// Engine turns an operation stream into taxable events.
//
// An Engine is immutable once created and may run concurrently.
type Engine struct {
	cfg   Config
	loc   *time.Location
	norm  *Normalizer
	class Classification
}

// NewEngine validates cfg and returns an engine reading rates from rates.
// rates may be nil when every operation is in the reporting currency.
func NewEngine(cfg Config, rates RateLookup) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	loc, _ := cfg.Location()
	cfg.Methods = slices.Clone(cfg.Methods)
	cfg.Revenue = slices.Clone(cfg.Revenue)
	return &Engine{
		cfg:   cfg,
		loc:   loc,
		norm:  NewNormalizer(rates, loc),
		class: NewClassification(cfg),
	}, nil
}

// Config returns the configuration of the engine.
func (e *Engine) Config() Config { return e.cfg }

// Result is the outcome of a run. Every published partition is complete:
// failed or cancelled partitions keep their state from before the run.
type Result struct {
	Events   []TaxableEvent
	Matches  []Match
	Ledger   *Ledger
	States   map[Partition]State
	Failures []*PartitionError

	history map[Partition][]step
	last    map[Partition]time.Time
	seq     map[Partition]int
	fees    attribution
}

func newResult() *Result {
	return &Result{
		Ledger:  NewLedger(),
		States:  make(map[Partition]State),
		fees:    newAttribution(),
		history: make(map[Partition][]step),
		last:    make(map[Partition]time.Time),
		seq:     make(map[Partition]int),
	}
}

// Err joins the failures of the run, nil if there are none.
func (r *Result) Err() error {
	errs := make([]error, len(r.Failures))
	for i, f := range r.Failures {
		errs[i] = f
	}
	return errors.Join(errs...)
}

// History returns the operations applied to partition p, in order.
func (r *Result) History(p Partition) []Operation {
	var ops []Operation
	for _, s := range r.history[p] {
		for _, it := range s.items {
			ops = append(ops, it.op)
		}
	}
	return ops
}

// Watermark returns the time of the last operation applied to p.
func (r *Result) Watermark(p Partition) time.Time { return r.last[p] }

// seen returns the ids of every operation accounted for. A fee operation
// apportioned to several operations is accounted for once all of them are.
func (r *Result) seen() map[string]bool {
	ids := make(map[string]bool)
	for _, steps := range r.history {
		for _, s := range steps {
			for _, it := range s.items {
				ids[it.op.ID] = true
			}
		}
	}
	for fee, targets := range r.fees.targets {
		if !slices.ContainsFunc(targets, func(id string) bool { return !ids[id] }) {
			ids[fee] = true
		}
	}
	return ids
}

// CheckConservation verifies that, for every partition, the quantities
// consumed by matches plus the remaining quantities equal the acquired
// quantities.
func (r *Result) CheckConservation() error {
	consumed := make(map[string]Quantity)
	for _, m := range r.Matches {
		var total Quantity
		for _, a := range m.Allocations {
			consumed[a.Parcel] = consumed[a.Parcel].Add(a.Quantity)
			total = total.Add(a.Quantity)
		}
		if !total.Equal(m.Quantity) {
			return fmt.Errorf("match %q: allocations sum to %s, disposed %s", m.Disposal, total, m.Quantity)
		}
	}
	var errs []error
	for _, p := range r.Ledger.Partitions() {
		for _, parcel := range r.Ledger.Parcels(p.Account, p.Asset) {
			if got := consumed[parcel.ID].Add(parcel.Remaining); !got.Equal(parcel.Original) {
				errs = append(errs, fmt.Errorf("%s: parcel %q consumed %s + remaining %s != acquired %s",
					p, parcel.ID, consumed[parcel.ID], parcel.Remaining, parcel.Original))
			}
			delete(consumed, parcel.ID)
		}
	}
	for id := range consumed {
		errs = append(errs, fmt.Errorf("matched parcel %q is not in the ledger", id))
	}
	return errors.Join(errs...)
}

// Run processes ops from an empty state. See Resume.
func (e *Engine) Run(ctx context.Context, ops []Operation) (*Result, error) {
	return e.Resume(ctx, nil, ops)
}

// Resume processes ops on top of a previous result, which is left
// untouched. prev may be nil.
//
// Ingestion errors (invalid operations, duplicated ids, transactions whose
// operations do not share a timestamp, an identification method differing
// from the one a ledger was built with) fail the whole run and return a nil
// result.
//
// Other failures fail only their partition: the result is returned along
// with the joined PartitionErrors. The failed operations can be sent again
// in a later Resume; fee operations of their transaction that were
// apportioned to them need not be, their share is kept. If ctx is done, partitions not completed
// publish nothing and the error includes ctx.Err().
func (e *Engine) Resume(ctx context.Context, prev *Result, ops []Operation) (*Result, error) {
	if prev == nil {
		prev = newResult()
	}
	if err := e.ingest(prev, ops); err != nil {
		return nil, err
	}
	txs := GroupTransactions(ops)
	var errs []error
	for _, tx := range txs {
		if err := tx.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	for _, p := range prev.Ledger.Partitions() {
		if m, ok := prev.Ledger.Method(p); ok && m != e.cfg.MethodFor(p) {
			return nil, fmt.Errorf("%s built with %s, configured %s: %w", p, m, e.cfg.MethodFor(p), ErrPolicyChangeNotSupported)
		}
	}

	steps, fees := prepare(txs, prev.fees)
	keys := make([]Partition, 0, len(steps))
	for p := range steps {
		keys = append(keys, p)
	}
	slices.SortFunc(keys, Partition.Compare)

	runs := make([]*partition, len(keys))
	outcomes := make([]error, len(keys))
	var g errgroup.Group
	if e.cfg.Workers > 0 {
		g.SetLimit(e.cfg.Workers)
	}
	for i, p := range keys {
		runs[i] = e.start(prev, p, steps[p])
		g.Go(func() error {
			outcomes[i] = e.process(ctx, runs[i], steps[p])
			return nil
		})
	}
	_ = g.Wait()

	res := prev.clone()
	res.fees.merge(fees)
	for i, p := range keys {
		var perr *PartitionError
		switch err := outcomes[i]; {
		case err == nil:
			res.publish(runs[i])
		case ctx.Err() != nil && errors.Is(err, ctx.Err()):
			// cancelled, nothing published
		case errors.As(err, &perr):
			res.Failures = append(res.Failures, perr)
		default:
			res.Failures = append(res.Failures, &PartitionError{Partition: p, Err: err})
		}
	}
	res.sort()
	return res, errors.Join(ctx.Err(), res.Err())
}

// ingest validates ops and rejects ids already seen.
func (e *Engine) ingest(prev *Result, ops []Operation) error {
	var errs []error
	for _, op := range ops {
		if err := op.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	seen := prev.seen()
	var dups []string
	for _, op := range ops {
		if seen[op.ID] && !slices.Contains(dups, op.ID) {
			dups = append(dups, op.ID)
		}
		seen[op.ID] = true
	}
	if len(dups) > 0 {
		errs = append(errs, fmt.Errorf("%w: %q", ErrDuplicateOperation, dups))
	}
	return errors.Join(errs...)
}

// start prepares the worker of partition p from the previous result.
func (e *Engine) start(prev *Result, p Partition, steps []step) *partition {
	r := &partition{
		engine: e,
		key:    p,
		method: e.cfg.MethodFor(p),
		ledger: prev.Ledger.Extract(p),
		state:  prev.States[p],
		seq:    prev.seq[p],
		last:   prev.last[p],
	}
	r.history = slices.Clone(prev.history[p])
	return r
}

// process runs the new steps of a partition, recomputing it from its history
// when some of them are older than what it has already applied.
func (e *Engine) process(ctx context.Context, r *partition, steps []step) error {
	late := r.state != Empty && slices.ContainsFunc(steps, func(s step) bool { return s.time.Before(r.last) })
	if !late {
		return r.run(ctx, steps)
	}
	if !e.cfg.AllowLateOperations {
		for _, s := range steps {
			if s.time.Before(r.last) {
				op := s.items[0].op
				return &PartitionError{Partition: r.key, Operation: op.ID, Time: op.Time,
					Err: fmt.Errorf("before %s: %w", r.last.Format(time.RFC3339), ErrLateOperation)}
			}
		}
	}
	log.Printf("%s: late operations, recomputing %d transactions", r.key, len(r.history)+len(steps))
	all := append(slices.Clone(r.history), steps...)
	slices.SortStableFunc(all, func(a, b step) int { return a.time.Compare(b.time) })
	*r = partition{engine: e, key: r.key, method: r.method, ledger: NewLedger(), recomputed: true}
	return r.run(ctx, all)
}

// clone returns a copy of r that can be published to without changing r.
func (r *Result) clone() *Result {
	c := &Result{
		Events:  slices.Clone(r.Events),
		Matches: slices.Clone(r.Matches),
		Ledger:  r.Ledger.Clone(),
		States:  maps.Clone(r.States),
		history: maps.Clone(r.history),
		last:    maps.Clone(r.last),
		seq:     maps.Clone(r.seq),
		fees:    r.fees.clone(),
	}
	return c
}

// publish replaces the state of a partition with the one computed by r.
func (r *Result) publish(run *partition) {
	p := run.key
	if run.recomputed {
		r.Events = slices.DeleteFunc(r.Events, func(e TaxableEvent) bool { return e.Partition() == p })
		r.Matches = slices.DeleteFunc(r.Matches, func(m Match) bool { return m.Partition() == p })
	}
	r.Events = append(r.Events, run.events...)
	r.Matches = append(r.Matches, run.matches...)
	r.Ledger.replace(p, run.ledger)
	r.States[p] = run.state
	r.history[p] = run.history
	r.last[p] = run.last
	r.seq[p] = run.seq
}

func (r *Result) sort() {
	slices.SortStableFunc(r.Events, compareEvents)
	slices.SortStableFunc(r.Matches, compareMatches)
	slices.SortStableFunc(r.Failures, func(a, b *PartitionError) int { return a.Partition.Compare(b.Partition) })
}
