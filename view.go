package fiscal

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/etnz/fiscal/date"
	"github.com/shopspring/decimal"
)

// View totals the taxable events of one class in one fiscal year.
type View struct {
	FiscalYear string `json:"fiscalYear"`
	Class      Class  `json:"class"`
	Count      int    `json:"count"`
	Gross      Money  `json:"gross"`      // sum of event amounts
	Eligible   Money  `json:"eligible"`   // sum of discount eligible gains
	Discounted Money  `json:"discounted"` // discount applied to the eligible gains
	Net        Money  `json:"net"`        // gross minus discount
}

// Summary totals a fiscal year.
type Summary struct {
	FiscalYear     string `json:"fiscalYear"`
	GrossGain      Money  `json:"grossGain"`
	Losses         Money  `json:"losses"`
	DiscountedGain Money  `json:"discountedGain"` // discount granted on eligible gains
	NetCapital     Money  `json:"netCapital"`     // gross gain minus losses and discount
	Income         Money  `json:"income"`
	Expense        Money  `json:"expense"`
	NetIncome      Money  `json:"netIncome"`
}

// Views groups taxable events by fiscal year and class.
type Views struct {
	Currency  string    `json:"currency"`
	Groups    []View    `json:"groups"`
	Summaries []Summary `json:"summaries"`
}

// Summary returns the summary of a fiscal year.
func (v *Views) Summary(fiscalYear string) (Summary, bool) {
	i := slices.IndexFunc(v.Summaries, func(s Summary) bool { return s.FiscalYear == fiscalYear })
	if i < 0 {
		return Summary{}, false
	}
	return v.Summaries[i], true
}

// Group returns the view of a class in a fiscal year.
func (v *Views) Group(fiscalYear string, class Class) (View, bool) {
	i := slices.IndexFunc(v.Groups, func(g View) bool { return g.FiscalYear == fiscalYear && g.Class == class })
	if i < 0 {
		return View{}, false
	}
	return v.Groups[i], true
}

// classOrder is the order of classes inside a fiscal year.
var classOrder = map[Class]int{ClassCapitalGain: 0, ClassCapitalLoss: 1, ClassIncome: 2, ClassExpense: 3}

// BuildViews aggregates events. The discount is rate times the eligible
// gains, rounded to the minor unit. It is pure: the same events always give
// the same views, in any order.
//
// Events must share their currency. Events whose fiscal year label is empty
// are bucketed with fy.
func BuildViews(events []TaxableEvent, fy date.FiscalYear, rate decimal.Decimal) (*Views, error) {
	views := &Views{Groups: []View{}, Summaries: []Summary{}}
	for _, e := range events {
		cur := e.Amount.Currency()
		if views.Currency == "" {
			views.Currency = cur
		}
		if cur != views.Currency {
			return nil, fmt.Errorf("event %q in %s, expected %s", e.ID, cur, views.Currency)
		}
	}
	zero := M(0, views.Currency)

	groups := make(map[string]map[Class]*View)
	for _, e := range events {
		year := e.FiscalYear
		if year == "" {
			year = fy.Label(date.Of(e.Time, e.Time.Location()))
		}
		if groups[year] == nil {
			groups[year] = make(map[Class]*View)
		}
		g, ok := groups[year][e.Class]
		if !ok {
			g = &View{FiscalYear: year, Class: e.Class, Gross: zero, Eligible: zero, Discounted: zero, Net: zero}
			groups[year][e.Class] = g
		}
		g.Count++
		g.Gross = g.Gross.Add(e.Amount)
		if e.Class == ClassCapitalGain {
			g.Eligible = g.Eligible.Add(e.EligibleGain)
		}
	}

	years := make([]string, 0, len(groups))
	for y := range groups {
		years = append(years, y)
	}
	slices.SortFunc(years, compareLabels)

	for _, y := range years {
		s := Summary{FiscalYear: y, GrossGain: zero, Losses: zero, DiscountedGain: zero, NetCapital: zero, Income: zero, Expense: zero, NetIncome: zero}
		classes := make([]Class, 0, len(groups[y]))
		for c := range groups[y] {
			classes = append(classes, c)
		}
		slices.SortFunc(classes, func(a, b Class) int { return cmp.Compare(classOrder[a], classOrder[b]) })
		for _, c := range classes {
			g := groups[y][c]
			g.Discounted = g.Eligible.MulRate(rate).Round()
			g.Net = g.Gross.Sub(g.Discounted)
			views.Groups = append(views.Groups, *g)
			switch c {
			case ClassCapitalGain:
				s.GrossGain = g.Gross
				s.DiscountedGain = g.Discounted
			case ClassCapitalLoss:
				s.Losses = g.Gross
			case ClassIncome:
				s.Income = g.Gross
			case ClassExpense:
				s.Expense = g.Gross
			}
		}
		s.NetCapital = s.GrossGain.Sub(s.Losses).Sub(s.DiscountedGain)
		s.NetIncome = s.Income.Sub(s.Expense)
		views.Summaries = append(views.Summaries, s)
	}
	return views, nil
}

// compareLabels orders fiscal year labels chronologically, unparseable ones
// last.
func compareLabels(a, b string) int {
	ya, errA := date.ParseLabel(a)
	yb, errB := date.ParseLabel(b)
	switch {
	case errA == nil && errB == nil:
		return cmp.Compare(ya, yb)
	case errA == nil:
		return -1
	case errB == nil:
		return 1
	default:
		return cmp.Compare(a, b)
	}
}
