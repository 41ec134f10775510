package fiscal

import (
	"slices"
	"time"
)

// item is an operation ready to be applied, with the fees attributed to it.
type item struct {
	op   Operation
	fees []Money // in their original currencies
}

// step is the part of a transaction that falls into one partition. A step
// that fails discards everything its partition computed in the run.
type step struct {
	tx    string
	time  time.Time
	items []item
}

// attribution records the fee operations apportioned to other operations of
// their transaction. It outlives the partitions that fail, so that resending
// one of their operations restores its share.
type attribution struct {
	shares  map[string][]Money  // per receiving operation
	targets map[string][]string // per fee operation
}

func newAttribution() attribution {
	return attribution{shares: make(map[string][]Money), targets: make(map[string][]string)}
}

func (a attribution) clone() attribution {
	c := newAttribution()
	for id, s := range a.shares {
		c.shares[id] = slices.Clone(s)
	}
	for id, t := range a.targets {
		c.targets[id] = slices.Clone(t)
	}
	return c
}

// merge adds the attributions of b to a.
func (a attribution) merge(b attribution) {
	for id, s := range b.shares {
		a.shares[id] = slices.Concat(a.shares[id], s)
	}
	for id, t := range b.targets {
		a.targets[id] = slices.Concat(a.targets[id], t)
	}
}

// attributeFees splits a transaction into items.
//
// Linked fees stay with their operation. Fee operations are apportioned to
// the acquisitions and disposals of the transaction pro rata by quantity, the
// last one taking the remainder so that shares sum exactly to the fee. In a
// transaction without acquisitions or disposals fee operations are kept as
// items and become expenses.
//
// Fee operations already apportioned by prev are not apportioned again, and
// the operations that received a share in prev get it back.
func attributeFees(tx Transaction, prev attribution) ([]item, attribution) {
	var targets []int
	var total Quantity
	for i, op := range tx.Operations {
		if op.IsInbound() || op.IsOutbound() {
			targets = append(targets, i)
			total = total.Add(op.Quantity.Abs())
		}
	}

	got := newAttribution()
	for _, op := range tx.Operations {
		if op.Kind != Fee || len(targets) == 0 {
			continue
		}
		if _, done := prev.targets[op.ID]; done {
			continue
		}
		fee := op.Value()
		var given Money
		for j, t := range targets {
			share := fee.Sub(given)
			if j < len(targets)-1 {
				share = fee.Mul(tx.Operations[t].Quantity.Abs()).Div(total)
			}
			given = given.Add(share)
			id := tx.Operations[t].ID
			got.shares[id] = append(got.shares[id], share)
			got.targets[op.ID] = append(got.targets[op.ID], id)
		}
		if !op.Fee.IsZero() {
			// a fee on a fee goes with it
			id := tx.Operations[targets[len(targets)-1]].ID
			got.shares[id] = append(got.shares[id], op.Fee)
		}
	}

	var items []item
	for _, op := range tx.Operations {
		if op.Kind == Fee {
			if _, done := prev.targets[op.ID]; done || len(targets) > 0 {
				continue
			}
		}
		var fees []Money
		if !op.Fee.IsZero() {
			fees = append(fees, op.Fee)
		}
		fees = append(fees, prev.shares[op.ID]...)
		fees = append(fees, got.shares[op.ID]...)
		items = append(items, item{op: op, fees: fees})
	}
	return items, got
}

// prepare attributes fees and splits transactions into per partition steps,
// ordered by time then input sequence. It returns the new fee attributions.
func prepare(txs []Transaction, prev attribution) (map[Partition][]step, attribution) {
	steps := make(map[Partition][]step)
	all := newAttribution()
	for _, tx := range txs {
		items, got := attributeFees(tx, prev)
		all.merge(got)
		index := make(map[Partition]int)
		var parts []Partition
		var local []step
		for _, it := range items {
			p := it.op.Partition()
			i, ok := index[p]
			if !ok {
				i = len(local)
				index[p] = i
				parts = append(parts, p)
				local = append(local, step{tx: tx.ID, time: tx.Time()})
			}
			local[i].items = append(local[i].items, it)
		}
		for i, p := range parts {
			steps[p] = append(steps[p], local[i])
		}
	}
	for p := range steps {
		slices.SortStableFunc(steps[p], func(a, b step) int { return a.time.Compare(b.time) })
	}
	return steps, all
}
