// Package exante imports the tab separated transaction export of the Exante
// brokerage into operations.
//
// The export lists one row per movement: a trade is a row for the
// instrument, a row for the cash leg and usually a commission row, all
// sharing the same time. Consecutive rows with the same time form a
// transaction.
package exante

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/etnz/fiscal"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TimeFormat is the layout of the When column, in UTC.
const TimeFormat = "2006-01-02 15:04:05"

// Operation types of the export.
const (
	Trade      = "TRADE"
	Commission = "COMMISSION"
	Dividend   = "DIVIDEND"
	Interest   = "INTEREST"
	Tax        = "TAX"
	USTax      = "US TAX"
	Funding    = "FUNDING/WITHDRAWAL"
	Rollover   = "ROLLOVER"
	Autoconv   = "AUTOCONVERSION"
)

// columns lists the header names the reader requires.
var columns = []string{"Transaction ID", "Account ID", "Symbol ID", "ISIN", "Operation type", "When", "Sum", "Asset", "UUID"}

// Record is a row of the export.
type Record struct {
	Line          int // line in the export, for error messages
	TransactionID string
	AccountID     string
	SymbolID      string
	ISIN          string // empty when the row has none
	OperationType string
	When          time.Time
	Sum           decimal.Decimal
	Asset         string
	UUID          string
}

// ReadRecords reads every row of r. Columns are found by header name.
// Every malformed row is reported.
func ReadRecords(r io.Reader) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.LazyQuotes = true
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	index := make(map[string]int)
	for i, h := range header {
		index[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	for _, c := range columns {
		if _, ok := index[c]; !ok {
			return nil, fmt.Errorf("missing column %q", c)
		}
	}

	var records []Record
	var errs []error
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		line, _ := cr.FieldPos(0)
		field := func(name string) string { return strings.TrimSpace(row[index[name]]) }

		rec := Record{
			Line:          line,
			TransactionID: field("Transaction ID"),
			AccountID:     field("Account ID"),
			SymbolID:      field("Symbol ID"),
			ISIN:          field("ISIN"),
			OperationType: strings.ToUpper(field("Operation type")),
			Asset:         field("Asset"),
		}
		if rec.ISIN == "None" {
			rec.ISIN = ""
		}
		if rec.When, err = time.ParseInLocation(TimeFormat, field("When"), time.UTC); err != nil {
			errs = append(errs, fmt.Errorf("line %d: invalid time: %w", line, err))
			continue
		}
		if rec.Sum, err = decimal.NewFromString(field("Sum")); err != nil {
			errs = append(errs, fmt.Errorf("line %d: invalid sum %q: %w", line, field("Sum"), err))
			continue
		}
		id, err := uuid.Parse(field("UUID"))
		if err != nil {
			errs = append(errs, fmt.Errorf("line %d: invalid UUID %q: %w", line, field("UUID"), err))
			continue
		}
		rec.UUID = id.String()
		if rec.ISIN != "" {
			if rec.ISIN, err = fiscal.ParseISIN(rec.ISIN); err != nil {
				errs = append(errs, fmt.Errorf("line %d: %w", line, err))
				continue
			}
		}
		records = append(records, rec)
	}
	return records, errors.Join(errs...)
}

// Group splits records into runs of consecutive records sharing their time.
func Group(records []Record) [][]Record {
	var groups [][]Record
	for i, r := range records {
		if i == 0 || !r.When.Equal(records[i-1].When) {
			groups = append(groups, nil)
		}
		groups[len(groups)-1] = append(groups[len(groups)-1], r)
	}
	return groups
}

// isCash reports whether the record moves a currency. Cash rows may still
// carry the ISIN of the instrument they relate to.
func isCash(r Record) bool { return fiscal.KindOf(r.Asset) == fiscal.Currency }

// movesCash reports whether the record only changes the cash balance.
func movesCash(r Record) bool {
	switch r.OperationType {
	case Trade, Funding, Autoconv:
		return isCash(r)
	}
	return false
}

// assetOf returns the asset identifier of a record: the currency of cash
// rows, the ISIN of instruments that have one, the asset column otherwise.
func assetOf(r Record) string {
	if !isCash(r) && r.ISIN != "" {
		return r.ISIN
	}
	return r.Asset
}

// Operations maps records to operations, one transaction per group.
//
// The instrument row of a trade becomes an acquisition or a disposal priced
// from the cash row of the same symbol. Commissions become fees, dividends
// and positive interest become income, taxes and negative interest become
// expenses.
//
// The cash balance of the account is not tracked: trade cash legs, funding,
// withdrawals and autoconversions produce no operation.
func Operations(records []Record) ([]fiscal.Operation, error) {
	var ops []fiscal.Operation
	var errs []error
	for _, group := range Group(records) {
		tx, err := transaction(group)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		ops = append(ops, tx.Operations...)
	}
	return ops, errors.Join(errs...)
}

func transaction(group []Record) (fiscal.Transaction, error) {
	id := group[0].TransactionID
	if id == "" {
		id = group[0].UUID
	}
	b := fiscal.NewTransactionBuilder(id)
	for _, r := range group {
		if movesCash(r) {
			continue
		}
		op, err := operation(r, group)
		if err != nil {
			return fiscal.Transaction{}, fmt.Errorf("line %d: %w", r.Line, err)
		}
		b.Add(op)
	}
	if b.Len() == 0 {
		return fiscal.Transaction{}, nil
	}
	return b.Build()
}

func operation(r Record, group []Record) (fiscal.Operation, error) {
	op := fiscal.Operation{
		ID:       r.UUID,
		Account:  r.AccountID,
		Asset:    assetOf(r),
		Time:     r.When,
		Quantity: fiscal.Q(r.Sum.Abs()),
		Memo:     r.SymbolID,
	}
	switch r.OperationType {
	case Trade:
		cash, err := cashLeg(r, group)
		if err != nil {
			return op, err
		}
		op.Kind = fiscal.Acquisition
		if r.Sum.IsNegative() {
			op.Kind = fiscal.Disposal
		}
		op.Price = fiscal.M(cash.Sum.Abs().DivRound(r.Sum.Abs(), 16), cash.Asset)
		return op, nil
	case Commission, Rollover:
		op.Kind = fiscal.Fee
	case Dividend:
		op.Kind = fiscal.Income
	case Interest:
		op.Kind = fiscal.Income
		if r.Sum.IsNegative() {
			op.Kind = fiscal.Expense
		}
	case Tax, USTax:
		op.Kind = fiscal.Expense
	case Funding, Autoconv:
		return op, fmt.Errorf("%s of %q: only cash movements are supported", r.OperationType, op.Asset)
	default:
		return op, fmt.Errorf("unsupported operation type %q", r.OperationType)
	}
	if !isCash(r) {
		return op, fmt.Errorf("%s of %q: only currencies are supported", r.OperationType, op.Asset)
	}
	op.Price = fiscal.M(1, r.Asset)
	return op, nil
}

// cashLeg finds the cash row paying for the trade row r.
func cashLeg(r Record, group []Record) (Record, error) {
	if r.Sum.IsZero() {
		return Record{}, errors.New("trade of zero quantity")
	}
	for _, c := range group {
		if c.OperationType == Trade && isCash(c) && c.SymbolID == r.SymbolID && c.AccountID == r.AccountID {
			return c, nil
		}
	}
	return Record{}, fmt.Errorf("trade of %s without cash leg", r.SymbolID)
}

// Import reads an export and returns its operations.
func Import(r io.Reader) ([]fiscal.Operation, error) {
	records, err := ReadRecords(r)
	if err != nil {
		return nil, err
	}
	return Operations(records)
}
