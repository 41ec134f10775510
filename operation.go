package fiscal

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Kind is a typed string identifying the nature of an operation.
type Kind string

// Operation kinds.
const (
	Acquisition Kind = "acquisition"
	Disposal    Kind = "disposal"
	Income      Kind = "income"
	Expense     Kind = "expense"
	Fee         Kind = "fee"
	Transfer    Kind = "transfer" // inbound when quantity is positive, outbound otherwise
)

// ParseKind parses a kind name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(s)); k {
	case Acquisition, Disposal, Income, Expense, Fee, Transfer:
		return k, nil
	default:
		return "", fmt.Errorf("unknown operation kind %q", s)
	}
}

// Partition identifies a ledger: one asset held in one account.
type Partition struct {
	Account string `json:"account"`
	Asset   string `json:"asset"`
}

func (p Partition) String() string { return p.Account + "/" + p.Asset }

// Compare orders partitions by account then asset.
func (p Partition) Compare(q Partition) int {
	return cmp.Or(strings.Compare(p.Account, q.Account), strings.Compare(p.Asset, q.Asset))
}

// Selection is an explicit request to consume quantity from a parcel, used
// by the specific identification method.
type Selection struct {
	Parcel   string   `json:"parcel"`
	Quantity Quantity `json:"quantity"`
}

// Operation is an atomic, immutable financial event.
//
// The monetary value of an operation is its unit price times the absolute
// quantity. Cash movements are expressed as a quantity of a currency asset
// priced 1 in that currency.
type Operation struct {
	ID       string
	Tx       string // transaction identifier, empty for single operation transactions
	Kind     Kind
	Account  string
	Asset    string
	Quantity Quantity // signed
	Price    Money    // unit price
	Time     time.Time
	Fee      Money // linked fee, optional
	Parcels  []Selection
	Memo     string
}

// Partition returns the (account, asset) the operation belongs to.
func (op Operation) Partition() Partition { return Partition{Account: op.Account, Asset: op.Asset} }

// Value returns the unit price times the absolute quantity.
func (op Operation) Value() Money { return op.Price.Mul(op.Quantity.Abs()) }

// TxID returns the transaction identifier, defaulting to the operation id.
func (op Operation) TxID() string {
	if op.Tx == "" {
		return op.ID
	}
	return op.Tx
}

// IsInbound reports whether the operation creates a parcel.
func (op Operation) IsInbound() bool {
	return op.Kind == Acquisition || (op.Kind == Transfer && op.Quantity.IsPositive())
}

// IsOutbound reports whether the operation disposes of parcels.
func (op Operation) IsOutbound() bool {
	return op.Kind == Disposal || (op.Kind == Transfer && op.Quantity.IsNegative())
}

// Validate checks that the operation carries all the fields the engine needs.
func (op Operation) Validate() error {
	var errs []error
	if op.ID == "" {
		errs = append(errs, errors.New("missing id"))
	}
	if op.Account == "" {
		errs = append(errs, errors.New("missing account"))
	}
	if op.Asset == "" {
		errs = append(errs, errors.New("missing asset"))
	}
	if _, err := ParseKind(string(op.Kind)); err != nil {
		errs = append(errs, err)
	}
	if op.Time.IsZero() {
		errs = append(errs, errors.New("missing time"))
	}
	if op.Quantity.IsZero() {
		errs = append(errs, errors.New("quantity must not be zero"))
	}
	switch op.Kind {
	case Income, Expense, Fee:
		if op.Quantity.IsNegative() {
			errs = append(errs, fmt.Errorf("%s quantity must be positive, got %s", op.Kind, op.Quantity))
		}
	}
	if op.Price.IsNegative() {
		errs = append(errs, fmt.Errorf("price must not be negative, got %s", op.Price.Decimal()))
	}
	if err := ValidateCurrency(op.Price.Currency()); err != nil {
		errs = append(errs, fmt.Errorf("price: %w", err))
	}
	if !op.Fee.IsZero() {
		if op.Fee.IsNegative() {
			errs = append(errs, fmt.Errorf("fee must not be negative, got %s", op.Fee.Decimal()))
		}
		if err := ValidateCurrency(op.Fee.Currency()); err != nil {
			errs = append(errs, fmt.Errorf("fee: %w", err))
		}
	}
	if len(op.Parcels) > 0 && !op.IsOutbound() {
		errs = append(errs, fmt.Errorf("parcel selection on a %s", op.Kind))
	}
	for _, s := range op.Parcels {
		if !s.Quantity.IsPositive() {
			errs = append(errs, fmt.Errorf("parcel %q: selected quantity must be positive", s.Parcel))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w %q: %w", ErrInvalidOperation, op.ID, errors.Join(errs...))
	}
	return nil
}

// MarshalJSON writes the operation with a stable field order.
func (op Operation) MarshalJSON() ([]byte, error) {
	var w jsonObjectWriter
	w.Append("id", op.ID)
	w.Optional("tx", op.Tx)
	w.Append("kind", op.Kind)
	w.Append("time", op.Time)
	w.Append("account", op.Account)
	w.Append("asset", op.Asset)
	w.Append("quantity", op.Quantity)
	w.Append("price", op.Price.Decimal())
	w.Append("currency", op.Price.Currency())
	if !op.Fee.IsZero() {
		w.Append("fee", op.Fee.Decimal())
		if op.Fee.Currency() != op.Price.Currency() {
			w.Append("feeCurrency", op.Fee.Currency())
		}
	}
	w.Optional("parcels", op.Parcels)
	w.Optional("memo", op.Memo)
	return w.MarshalJSON()
}

// UnmarshalJSON reads the format written by MarshalJSON. The fee currency
// defaults to the price currency.
func (op *Operation) UnmarshalJSON(data []byte) error {
	var temp struct {
		ID          string          `json:"id"`
		Tx          string          `json:"tx"`
		Kind        string          `json:"kind"`
		Time        time.Time       `json:"time"`
		Account     string          `json:"account"`
		Asset       string          `json:"asset"`
		Quantity    Quantity        `json:"quantity"`
		Price       decimal.Decimal `json:"price"`
		Currency    string          `json:"currency"`
		Fee         decimal.Decimal `json:"fee"`
		FeeCurrency string          `json:"feeCurrency"`
		Parcels     []Selection     `json:"parcels"`
		Memo        string          `json:"memo"`
	}
	if err := json.Unmarshal(data, &temp); err != nil {
		return err
	}
	kind, err := ParseKind(temp.Kind)
	if err != nil {
		return err
	}
	feeCur := temp.FeeCurrency
	if feeCur == "" {
		feeCur = temp.Currency
	}
	*op = Operation{
		ID:       temp.ID,
		Tx:       temp.Tx,
		Kind:     kind,
		Time:     temp.Time,
		Account:  temp.Account,
		Asset:    temp.Asset,
		Quantity: temp.Quantity,
		Price:    M(temp.Price, temp.Currency),
		Parcels:  temp.Parcels,
		Memo:     temp.Memo,
	}
	if !temp.Fee.IsZero() {
		op.Fee = M(temp.Fee, feeCur)
	}
	return nil
}
