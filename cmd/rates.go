package cmd

import (
	"cmp"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"slices"
	"sync/atomic"
	"time"

	"github.com/etnz/fiscal"
	"github.com/etnz/fiscal/date"
	"github.com/etnz/fiscal/fx"
	"github.com/google/subcommands"
	"golang.org/x/sync/errgroup"
)

type importRatesCmd struct{}

func (*importRatesCmd) Name() string     { return "import-rates" }
func (*importRatesCmd) Synopsis() string { return "import exchange rates into the database" }
func (*importRatesCmd) Usage() string {
	return `fsc import-rates <file>...

  Imports JSONL rate observations like {"pair":"EURUSD","date":"2024-01-15","rate":1.1}.
  A rate already known for the same pair and day is replaced.

  See 'fsc topic rates'.
`
}

func (*importRatesCmd) SetFlags(f *flag.FlagSet) {}

func (*importRatesCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Error: missing file to import")
		return subcommands.ExitUsageError
	}
	s, err := OpenStore()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		return subcommands.ExitFailure
	}
	defer s.Close()

	total := 0
	for _, file := range f.Args() {
		t, err := decodeRates(file)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", file, err)
			return subcommands.ExitFailure
		}
		n, err := s.AddRates(ctx, t)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error importing %s: %v\n", file, err)
			return subcommands.ExitFailure
		}
		total += n
	}
	fmt.Printf("Imported %d rates\n", total)
	return subcommands.ExitSuccess
}

func decodeRates(file string) (*fx.Table, error) {
	if file == "-" {
		return fx.DecodeTable(os.Stdin)
	}
	r, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return fx.DecodeTable(r)
}

// rateNeed is an exchange rate an aggregation will look up.
type rateNeed struct {
	Pair fx.Pair
	Day  date.Date
}

// requiredRates lists the rates needed to convert ops to the reporting
// currency, sorted by pair then day.
func requiredRates(ops []fiscal.Operation, reporting string, loc *time.Location) []rateNeed {
	seen := make(map[rateNeed]bool)
	var needs []rateNeed
	add := func(cur string, at time.Time) {
		if cur == "" || cur == reporting {
			return
		}
		n := rateNeed{Pair: fx.NewPair(cur, reporting), Day: date.Of(at, loc)}
		if !seen[n] {
			seen[n] = true
			needs = append(needs, n)
		}
	}
	for _, op := range ops {
		add(op.Price.Currency(), op.Time)
		if !op.Fee.IsZero() {
			add(op.Fee.Currency(), op.Time)
		}
	}
	slices.SortFunc(needs, func(a, b rateNeed) int {
		return cmp.Or(cmp.Compare(a.Pair.String(), b.Pair.String()), a.Day.Compare(b.Day))
	})
	return needs
}

// remoteRates returns the rate provider used to fetch missing rates.
func remoteRates(perSecond float64) fx.Lookup {
	provider := &fx.EODHD{APIKey: os.Getenv(fx.EODHDKeyEnv)}
	return fx.NewCache(fx.NewThrottle(provider, perSecond, 1), time.Hour)
}

type fetchRatesCmd struct {
	workers   int
	perSecond float64
}

func (*fetchRatesCmd) Name() string     { return "fetch-rates" }
func (*fetchRatesCmd) Synopsis() string { return "download the exchange rates the operations need" }
func (*fetchRatesCmd) Usage() string {
	return `fsc fetch-rates [-workers <n>] [-rps <n>]

  Lists the rates needed to convert every stored operation to the reporting
  currency, downloads the missing ones from EODHD and stores them.
  Requires the ` + fx.EODHDKeyEnv + ` environment variable.
`
}

func (c *fetchRatesCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.workers, "workers", 4, "Number of concurrent requests")
	f.Float64Var(&c.perSecond, "rps", 5, "Maximum number of requests per second")
}

func (c *fetchRatesCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, err := LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		return subcommands.ExitFailure
	}
	loc, err := cfg.Location()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	s, err := OpenStore()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		return subcommands.ExitFailure
	}
	defer s.Close()

	ops, err := s.Operations(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading operations: %v\n", err)
		return subcommands.ExitFailure
	}
	n, missing, err := fetchRates(ctx, s, remoteRates(c.perSecond), requiredRates(ops, cfg.ReportingCurrency, loc), c.workers)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error fetching rates: %v\n", err)
		return subcommands.ExitFailure
	}
	fmt.Printf("Fetched %d rates, %d not available\n", n, missing)
	return subcommands.ExitSuccess
}

// rateStore is where fetched rates are looked up and saved.
type rateStore interface {
	fx.Lookup
	AddRates(ctx context.Context, t *fx.Table) (int, error)
}

// fetchRates downloads from remote the needed rates that s does not know,
// and saves them. Rates the remote does not have are counted as missing.
func fetchRates(ctx context.Context, s rateStore, remote fx.Lookup, needs []rateNeed, workers int) (fetched, missing int, err error) {
	table := fx.NewTable()
	var notFound atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for _, n := range needs {
		if _, err := s.LookupRate(ctx, n.Pair, n.Day); err == nil {
			continue
		} else if !errors.Is(err, fx.ErrNotFound) {
			return 0, 0, err
		}
		g.Go(func() error {
			rate, err := remote.LookupRate(gctx, n.Pair, n.Day)
			switch {
			case errors.Is(err, fx.ErrNotFound):
				log.Printf("no %s rate on %s", n.Pair, n.Day)
				notFound.Add(1)
				return nil
			case err != nil:
				return err
			}
			table.Set(n.Pair, n.Day, rate)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, 0, err
	}
	fetched, err = s.AddRates(ctx, table)
	return fetched, int(notFound.Load()), err
}
