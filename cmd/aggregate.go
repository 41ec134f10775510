package cmd

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/etnz/fiscal"
	"github.com/etnz/fiscal/fx"
	"github.com/etnz/fiscal/renderer"
	"github.com/etnz/fiscal/store"
	"github.com/google/subcommands"
)

type aggregateCmd struct {
	fetch     bool
	workers   int
	perSecond float64
}

func (*aggregateCmd) Name() string     { return "aggregate" }
func (*aggregateCmd) Synopsis() string { return "aggregate the stored operations into a new run" }
func (*aggregateCmd) Usage() string {
	return `fsc aggregate [-fetch] [-workers <n>]

  Replays every stored operation through the aggregation engine with the
  current configuration, stores the result as a new run and prints its
  report. Partitions that fail are reported and the command exits with an
  error, the other partitions are stored nonetheless.

  See 'fsc topic aggregate'.
`
}

func (c *aggregateCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.fetch, "fetch", false, "Look up rates missing from the database on EODHD")
	f.IntVar(&c.workers, "workers", -1, "Partitions aggregated in parallel, overrides the configuration when >= 0")
	f.Float64Var(&c.perSecond, "rps", 5, "Maximum number of rate requests per second with -fetch")
}

func (c *aggregateCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, err := LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		return subcommands.ExitFailure
	}
	if c.workers >= 0 {
		cfg.Workers = c.workers
	}
	s, err := OpenStore()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		return subcommands.ExitFailure
	}
	defer s.Close()

	var rates fx.Lookup = s
	if c.fetch {
		rates = fx.Fallback(s, remoteRates(c.perSecond))
	}
	report, err := aggregate(ctx, cfg, s, rates)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	printMarkdown(renderer.RenderReport(report))
	if len(report.Failures) > 0 {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// aggregate runs the engine over every stored operation, saves the run and
// returns its report.
func aggregate(ctx context.Context, cfg fiscal.Config, s *store.Store, rates fx.Lookup) (*renderer.Report, error) {
	ops, err := s.Operations(ctx)
	if err != nil {
		return nil, err
	}
	e, err := fiscal.NewEngine(cfg, rates)
	if err != nil {
		return nil, err
	}
	res, err := e.Run(ctx, ops)
	if err != nil {
		return nil, err
	}
	for _, f := range res.Failures {
		log.Printf("partition failed: %v", f)
	}
	run, err := s.SaveRun(ctx, cfg, len(ops), res)
	if err != nil {
		return nil, fmt.Errorf("could not save run: %w", err)
	}
	views, err := fiscal.BuildViews(res.Events, cfg.FiscalYear, cfg.DiscountRate)
	if err != nil {
		return nil, err
	}
	report := renderer.NewReport(run.ID, run.Created, len(ops), views, renderer.NewFailures(res.Failures))
	if report.Currency == "" {
		report.Currency = cfg.ReportingCurrency
	}
	return report, nil
}
