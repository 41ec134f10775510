package fiscal

import (
	"fmt"
	"slices"
	"time"
)

// Transaction is an ordered set of operations representing one economic
// event, like a trade and its commission. Its operations share a timestamp.
// A partition publishes either all of its share of a transaction or none.
type Transaction struct {
	ID         string
	Operations []Operation
}

// Time returns the timestamp shared by the operations.
func (tx Transaction) Time() time.Time {
	if len(tx.Operations) == 0 {
		return time.Time{}
	}
	return tx.Operations[0].Time
}

// Partitions returns the partitions touched by the transaction, sorted.
func (tx Transaction) Partitions() []Partition {
	var ps []Partition
	for _, op := range tx.Operations {
		if !slices.Contains(ps, op.Partition()) {
			ps = append(ps, op.Partition())
		}
	}
	slices.SortFunc(ps, Partition.Compare)
	return ps
}

// Validate checks that the transaction is not empty and that its operations
// share the same instant.
func (tx Transaction) Validate() error {
	if len(tx.Operations) == 0 {
		return fmt.Errorf("%w: transaction %q has no operation", ErrInvalidOperation, tx.ID)
	}
	t := tx.Time()
	for _, op := range tx.Operations[1:] {
		if !op.Time.Equal(t) {
			return fmt.Errorf("transaction %q: operation %q at %s, expected %s: %w", tx.ID, op.ID, op.Time.Format(time.RFC3339Nano), t.Format(time.RFC3339Nano), ErrTransactionTime)
		}
	}
	return nil
}

// GroupTransactions groups operations by transaction id. Transactions are
// returned in order of first appearance, operations in input order.
func GroupTransactions(ops []Operation) []Transaction {
	var txs []Transaction
	index := make(map[string]int)
	for _, op := range ops {
		id := op.TxID()
		i, ok := index[id]
		if !ok {
			i = len(txs)
			index[id] = i
			txs = append(txs, Transaction{ID: id})
		}
		txs[i].Operations = append(txs[i].Operations, op)
	}
	return txs
}

// TransactionBuilder accumulates the operations of a transaction while an
// importer reads them, tracking the partitions touched and the time span
// covered.
type TransactionBuilder struct {
	id         string
	operations []Operation
	partitions []Partition
	started    time.Time
	finished   time.Time
}

// NewTransactionBuilder returns a builder for transaction id.
func NewTransactionBuilder(id string) *TransactionBuilder {
	return &TransactionBuilder{id: id}
}

// Add appends op to the transaction, setting its transaction id.
func (b *TransactionBuilder) Add(op Operation) *TransactionBuilder {
	op.Tx = b.id
	if !slices.Contains(b.partitions, op.Partition()) {
		b.partitions = append(b.partitions, op.Partition())
	}
	if b.started.IsZero() || op.Time.Before(b.started) {
		b.started = op.Time
	}
	if b.finished.IsZero() || op.Time.After(b.finished) {
		b.finished = op.Time
	}
	b.operations = append(b.operations, op)
	return b
}

// Len returns the number of operations added so far.
func (b *TransactionBuilder) Len() int { return len(b.operations) }

// Partitions returns the partitions touched so far, in order of appearance.
func (b *TransactionBuilder) Partitions() []Partition { return slices.Clone(b.partitions) }

// Started returns the earliest operation time.
func (b *TransactionBuilder) Started() time.Time { return b.started }

// Finished returns the latest operation time.
func (b *TransactionBuilder) Finished() time.Time { return b.finished }

// Build returns the transaction, or an error if it is empty or its
// operations do not share their timestamp.
func (b *TransactionBuilder) Build() (Transaction, error) {
	tx := Transaction{ID: b.id, Operations: slices.Clone(b.operations)}
	if err := tx.Validate(); err != nil {
		return Transaction{}, err
	}
	return tx, nil
}
