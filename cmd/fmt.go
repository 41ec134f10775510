package cmd

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"slices"

	"github.com/etnz/fiscal"
	"github.com/google/subcommands"
)

type fmtCmd struct {
	format string
	write  bool
}

func (*fmtCmd) Name() string { return "fmt" }
func (*fmtCmd) Synopsis() string {
	return "validates and formats operations into a canonical form"
}
func (*fmtCmd) Usage() string {
	return `fsc fmt [-format jsonl|exante] [-w] <file>...

  Validates operations, sorts them by time and writes them as JSONL with a
  stable field order. An exante export is converted to JSONL.

Usage Examples:
# Rewrites a file in place.
$ fsc fmt -w operations.jsonl

# Converts an Exante export.
$ fsc fmt -format exante export.csv > operations.jsonl

`
}

func (c *fmtCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.format, "format", "jsonl", "Input format: jsonl or exante")
	f.BoolVar(&c.write, "w", false, "Write the result to the (jsonl) source file instead of the standard output")
}

// formatOperations validates ops and encodes them sorted by time.
func formatOperations(ops []fiscal.Operation) ([]byte, error) {
	var errs []error
	for _, op := range ops {
		if err := op.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	slices.SortStableFunc(ops, func(a, b fiscal.Operation) int { return a.Time.Compare(b.Time) })
	var buf bytes.Buffer
	if err := fiscal.EncodeOperations(&buf, ops); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *fmtCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Error: missing file to format")
		return subcommands.ExitUsageError
	}
	if c.write && c.format != "jsonl" {
		fmt.Fprintln(os.Stderr, "Error: -w only rewrites jsonl files")
		return subcommands.ExitUsageError
	}

	status := subcommands.ExitSuccess
	for _, file := range f.Args() {
		ops, err := readOperations(c.format, []string{file})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			status = subcommands.ExitFailure
			continue
		}
		out, err := formatOperations(ops)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error formatting %s: %v\n", file, err)
			status = subcommands.ExitFailure
			continue
		}
		if !c.write || file == "-" {
			os.Stdout.Write(out)
			continue
		}
		if err := os.WriteFile(file, out, 0644); err != nil {
			fmt.Fprintf(os.Stderr, "Error saving %s: %v\n", file, err)
			status = subcommands.ExitFailure
			continue
		}
		fmt.Fprintf(os.Stderr, "Formatted %s: %d operations\n", file, len(ops))
	}
	return status
}
