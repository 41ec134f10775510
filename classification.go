package fiscal

import (
	"fmt"
	"time"
)

// Class is the tax classification of a taxable event.
type Class string

// Classes of taxable events.
const (
	ClassCapitalGain Class = "capital-gain"
	ClassCapitalLoss Class = "capital-loss"
	ClassIncome      Class = "income"
	ClassExpense     Class = "expense"
)

// ParseClass parses a class name.
func ParseClass(s string) (Class, error) {
	switch c := Class(s); c {
	case ClassCapitalGain, ClassCapitalLoss, ClassIncome, ClassExpense:
		return c, nil
	default:
		return "", fmt.Errorf("unknown class %q", s)
	}
}

// IsCapital reports whether c is a capital gain or loss.
func (c Class) IsCapital() bool { return c == ClassCapitalGain || c == ClassCapitalLoss }

// Classification is the classification policy: which disposals are revenue
// in nature, and how long a parcel must be held for its gain to be
// discounted.
type Classification struct {
	Threshold time.Duration // zero disables the discount
	Revenue   []Scope
}

// NewClassification returns the policy configured in cfg.
func NewClassification(cfg Config) Classification {
	return Classification{Threshold: time.Duration(cfg.DiscountThreshold), Revenue: cfg.Revenue}
}

// Eligible reports whether a parcel acquired at acquired and disposed of at
// disposed has been held at least the threshold. The boundary is inclusive
// and measured on absolute instants.
func (c Classification) Eligible(acquired, disposed time.Time) bool {
	if c.Threshold <= 0 {
		return false
	}
	return disposed.Sub(acquired) >= c.Threshold
}

// IsRevenue reports whether disposals in p are revenue in nature.
func (c Classification) IsRevenue(p Partition) bool {
	for _, s := range c.Revenue {
		if s.Matches(p) {
			return true
		}
	}
	return false
}

// Classify returns the class of op. For disposals gain is the realized gain
// and acquired the acquisition time of the consumed parcel; eligibility is
// only ever granted to capital gains.
func (c Classification) Classify(op Operation, gain Money, acquired time.Time) (Class, bool) {
	switch {
	case op.Kind == Income:
		return ClassIncome, false
	case op.Kind == Expense || op.Kind == Fee:
		return ClassExpense, false
	case c.IsRevenue(op.Partition()):
		if gain.IsNegative() {
			return ClassExpense, false
		}
		return ClassIncome, false
	case gain.IsNegative():
		return ClassCapitalLoss, false
	default:
		return ClassCapitalGain, c.Eligible(acquired, op.Time)
	}
}
