package renderer

import (
	"time"

	"github.com/etnz/fiscal"
)

// Report is the data of an aggregation report.
type Report struct {
	// Run is the identifier of the stored run, if any.
	Run string `json:"run,omitempty"`
	// Created is the time of the run.
	Created time.Time `json:"created"`
	// Currency is the reporting currency.
	Currency string `json:"currency"`
	// Operations is the number of operations aggregated.
	Operations int              `json:"operations"`
	Summaries  []fiscal.Summary `json:"summaries"`
	Groups     []fiscal.View    `json:"groups"`
	Failures   []Failure        `json:"failures"`
}

// Failure is a partition that could not be aggregated. Failures read back
// from a stored run only have their Error set.
type Failure struct {
	Partition string `json:"partition"`
	Operation string `json:"operation,omitempty"`
	Time      string `json:"time,omitempty"`
	Error     string `json:"error"`
}

// NewReport creates a Report from the views of a run and its failures.
func NewReport(run string, created time.Time, operations int, views *fiscal.Views, failures []Failure) *Report {
	r := &Report{
		Run:        run,
		Created:    created,
		Operations: operations,
		Summaries:  []fiscal.Summary{},
		Groups:     []fiscal.View{},
		Failures:   []Failure{},
	}
	if views != nil {
		r.Currency = views.Currency
		r.Summaries = views.Summaries
		r.Groups = views.Groups
	}
	if failures != nil {
		r.Failures = failures
	}
	return r
}

// NewFailures converts the failures of a result.
func NewFailures(errs []*fiscal.PartitionError) []Failure {
	failures := make([]Failure, 0, len(errs))
	for _, e := range errs {
		f := Failure{Partition: e.Partition.String(), Operation: e.Operation, Error: e.Err.Error()}
		if !e.Time.IsZero() {
			f.Time = e.Time.Format(time.RFC3339)
		}
		failures = append(failures, f)
	}
	return failures
}

// Events is a list of taxable events, optionally restricted to a fiscal year.
type Events struct {
	FiscalYear string                `json:"fiscalYear,omitempty"`
	Events     []fiscal.TaxableEvent `json:"events"`
}

// Ledger is the data of a ledger report.
type Ledger struct {
	Books []Book `json:"books"`
}

// Book is the state of one partition of a ledger.
type Book struct {
	Account string          `json:"account"`
	Asset   string          `json:"asset"`
	Method  string          `json:"method"`
	Holding fiscal.Quantity `json:"holding"`
	Cost    fiscal.Money    `json:"cost"` // remaining cost of the open parcels
	Parcels []Parcel        `json:"parcels"`
}

// Parcel is a row of a Book.
type Parcel struct {
	ID            string          `json:"id"`
	Acquired      time.Time       `json:"acquired"`
	Original      fiscal.Quantity `json:"original"`
	Remaining     fiscal.Quantity `json:"remaining"`
	RemainingCost fiscal.Money    `json:"remainingCost"`
}

// NewLedger creates a Ledger report. Closed parcels are listed only if all
// is set; partitions without any listed parcel are skipped.
func NewLedger(l *fiscal.Ledger, all bool) *Ledger {
	r := &Ledger{Books: []Book{}}
	if l == nil {
		return r
	}
	for _, p := range l.Partitions() {
		parcels := l.OpenParcels(p.Account, p.Asset)
		if all {
			parcels = l.Parcels(p.Account, p.Asset)
		}
		if len(parcels) == 0 {
			continue
		}
		b := Book{Account: p.Account, Asset: p.Asset, Parcels: make([]Parcel, 0, len(parcels))}
		if m, ok := l.Method(p); ok {
			b.Method = m.String()
		}
		for _, pc := range parcels {
			b.Holding = b.Holding.Add(pc.Remaining)
			b.Cost = b.Cost.Add(pc.RemainingCost)
			b.Parcels = append(b.Parcels, Parcel{
				ID:            pc.ID,
				Acquired:      pc.Acquired,
				Original:      pc.Original,
				Remaining:     pc.Remaining,
				RemainingCost: pc.RemainingCost,
			})
		}
		r.Books = append(r.Books, b)
	}
	return r
}
