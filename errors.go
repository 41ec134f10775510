package fiscal

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInsufficientHoldings is returned when a disposal exceeds the open
	// quantity of its (account, asset). It points at bad input data.
	ErrInsufficientHoldings = errors.New("insufficient holdings")

	// ErrInsufficientParcelQuantity is returned when a parcel is asked more
	// than it has left. Seeing it outside of the ledger tests is a bug.
	ErrInsufficientParcelQuantity = errors.New("insufficient parcel quantity")

	// ErrRateUnavailable is returned when no exchange rate exists for the
	// required day. Supplying the rate and running again fixes it.
	ErrRateUnavailable = errors.New("rate unavailable")

	// ErrPolicyChangeNotSupported is returned when the identification method
	// of a ledger would change during its life.
	ErrPolicyChangeNotSupported = errors.New("identification method change not supported")

	// ErrDuplicateOperation is returned at ingestion for reused operation ids.
	ErrDuplicateOperation = errors.New("duplicate operation")

	// ErrLateOperation is returned for operations older than an already
	// reconciled partition when late operations are not allowed.
	ErrLateOperation = errors.New("late operation")

	// ErrTransactionTime is returned when the operations of a transaction do
	// not share the same timestamp.
	ErrTransactionTime = errors.New("operations of a transaction must share their timestamp")

	// ErrInvalidOperation is returned for operations missing required fields.
	ErrInvalidOperation = errors.New("invalid operation")
)

// PartitionError reports why a partition failed, with enough context to fix
// the input data and run again.
type PartitionError struct {
	Partition Partition
	Operation string    // id of the offending operation, if any
	Time      time.Time // time of the offending operation, if any
	Err       error
}

func (e *PartitionError) Error() string {
	if e.Operation == "" {
		return fmt.Sprintf("%s: %v", e.Partition, e.Err)
	}
	return fmt.Sprintf("%s: operation %q at %s: %v", e.Partition, e.Operation, e.Time.Format(time.RFC3339), e.Err)
}

func (e *PartitionError) Unwrap() error { return e.Err }
