package cmd

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/PaesslerAG/jsonpath"
	"github.com/etnz/fiscal"
	"github.com/etnz/fiscal/renderer"
	"github.com/etnz/fiscal/store"
	"github.com/google/subcommands"
)

// loadRun returns the run id, the latest one for "" or "latest".
func loadRun(ctx context.Context, s *store.Store, id string) (store.Run, error) {
	if id == "" || id == "latest" {
		return s.LatestRun(ctx)
	}
	return s.GetRun(ctx, id)
}

// runReport builds the report of a stored run, restricted to a fiscal year
// if fy is not empty.
func runReport(ctx context.Context, s *store.Store, run store.Run, fy string) (*renderer.Report, error) {
	events, err := s.Events(ctx, run.ID, fy)
	if err != nil {
		return nil, err
	}
	views, err := fiscal.BuildViews(events, run.Config.FiscalYear, run.Config.DiscountRate)
	if err != nil {
		return nil, err
	}
	failures := make([]renderer.Failure, len(run.Failures))
	for i, f := range run.Failures {
		failures[i] = renderer.Failure{Error: f}
	}
	report := renderer.NewReport(run.ID, run.Created, run.Operations, views, failures)
	if report.Currency == "" {
		report.Currency = run.Config.ReportingCurrency
	}
	return report, nil
}

// printJSON prints v as indented JSON, or the result of the JSONPath query
// over it.
func printJSON(v any, query string) error {
	if query != "" {
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		var obj any
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		if v, err = jsonpath.Get(query, obj); err != nil {
			return fmt.Errorf("invalid query %q: %w", query, err)
		}
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type viewCmd struct {
	run    string
	fy     string
	events bool
	json   bool
	query  string
}

func (*viewCmd) Name() string     { return "view" }
func (*viewCmd) Synopsis() string { return "show the fiscal year views of a run" }
func (*viewCmd) Usage() string {
	return `fsc view [-run <id>] [-fy <label>] [-events] [-json] [-q <jsonpath>]

  Shows the summary of each fiscal year of a stored run, the latest one by
  default, and the totals per class. -events lists the taxable events
  instead.

Usage Examples:
# Net capital gain of the 2024 fiscal year.
$ fsc view -fy FY2024 -q '$.summaries[0].netCapital.amount'
`
}

func (c *viewCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.run, "run", "latest", "Run id")
	f.StringVar(&c.fy, "fy", "", "Fiscal year label, like FY2024. All years by default")
	f.BoolVar(&c.events, "events", false, "List the taxable events")
	f.BoolVar(&c.json, "json", false, "Print JSON instead of markdown")
	f.StringVar(&c.query, "q", "", "JSONPath query over the JSON output, implies -json")
}

func (c *viewCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	s, err := OpenStore()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		return subcommands.ExitFailure
	}
	defer s.Close()

	run, err := loadRun(ctx, s, c.run)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading run %q: %v\n", c.run, err)
		return subcommands.ExitFailure
	}

	var data any
	var md string
	if c.events {
		events, err := s.Events(ctx, run.ID, c.fy)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading events: %v\n", err)
			return subcommands.ExitFailure
		}
		e := &renderer.Events{FiscalYear: c.fy, Events: events}
		data, md = e, renderer.RenderEvents(e)
	} else {
		report, err := runReport(ctx, s, run, c.fy)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return subcommands.ExitFailure
		}
		data, md = report, renderer.RenderReport(report)
	}

	if c.json || c.query != "" {
		if err := printJSON(data, c.query); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return subcommands.ExitFailure
		}
		return subcommands.ExitSuccess
	}
	printMarkdown(md)
	return subcommands.ExitSuccess
}

type ledgerCmd struct {
	run  string
	all  bool
	json bool
}

func (*ledgerCmd) Name() string     { return "ledger" }
func (*ledgerCmd) Synopsis() string { return "show the parcels left by a run" }
func (*ledgerCmd) Usage() string {
	return `fsc ledger [-run <id>] [-all] [-json]

  Shows the open parcels of every partition at the end of a run, the latest
  one by default.
`
}

func (c *ledgerCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.run, "run", "latest", "Run id")
	f.BoolVar(&c.all, "all", false, "Include closed parcels")
	f.BoolVar(&c.json, "json", false, "Print JSON instead of markdown")
}

func (c *ledgerCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	s, err := OpenStore()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		return subcommands.ExitFailure
	}
	defer s.Close()

	run, err := loadRun(ctx, s, c.run)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading run %q: %v\n", c.run, err)
		return subcommands.ExitFailure
	}
	l := renderer.NewLedger(run.Ledger, c.all)
	if c.json {
		if err := printJSON(l, ""); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return subcommands.ExitFailure
		}
		return subcommands.ExitSuccess
	}
	printMarkdown(renderer.RenderLedger(l))
	return subcommands.ExitSuccess
}

type runsCmd struct{}

func (*runsCmd) Name() string     { return "runs" }
func (*runsCmd) Synopsis() string { return "list the stored runs" }
func (*runsCmd) Usage() string {
	return `fsc runs

  Lists the stored aggregation runs, oldest first.
`
}

func (*runsCmd) SetFlags(f *flag.FlagSet) {}

func (*runsCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	s, err := OpenStore()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		return subcommands.ExitFailure
	}
	defer s.Close()

	runs, err := s.Runs(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing runs: %v\n", err)
		return subcommands.ExitFailure
	}
	for _, r := range runs {
		fmt.Printf("%s\t%s\t%s\t%d operations\t%d failures\n", r.ID, r.Created.Format("2006-01-02 15:04:05"), r.Config.ReportingCurrency, r.Operations, len(r.Failures))
	}
	return subcommands.ExitSuccess
}
