package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/etnz/fiscal"
	"github.com/etnz/fiscal/exante"
	"github.com/google/subcommands"
)

type importCmd struct {
	format string
}

func (*importCmd) Name() string     { return "import" }
func (*importCmd) Synopsis() string { return "import operations into the database" }
func (*importCmd) Usage() string {
	return `fsc import [-format jsonl|exante] <file>...

  Validates and imports operations. Operations already in the database are
  skipped; an operation that reuses an existing id with a different content
  fails the whole import. "-" reads from the standard input.

  See 'fsc topic operations' and 'fsc topic exante'.
`
}

func (c *importCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.format, "format", "jsonl", "Input format: jsonl or exante")
}

// decodeOperations reads operations in the given format.
func decodeOperations(format string, r io.Reader) ([]fiscal.Operation, error) {
	switch format {
	case "jsonl":
		return fiscal.DecodeOperations(r)
	case "exante":
		return exante.Import(r)
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
}

// readOperations reads all the operations of files, "-" being the standard input.
func readOperations(format string, files []string) ([]fiscal.Operation, error) {
	var ops []fiscal.Operation
	for _, file := range files {
		var r io.Reader = os.Stdin
		if file != "-" {
			f, err := os.Open(file)
			if err != nil {
				return nil, err
			}
			defer f.Close()
			r = f
		}
		fileOps, err := decodeOperations(format, r)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", file, err)
		}
		ops = append(ops, fileOps...)
	}
	return ops, nil
}

func (c *importCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Error: missing file to import")
		return subcommands.ExitUsageError
	}
	ops, err := readOperations(c.format, f.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading operations: %v\n", err)
		return subcommands.ExitFailure
	}

	s, err := OpenStore()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		return subcommands.ExitFailure
	}
	defer s.Close()

	n, err := s.AddOperations(ctx, ops)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error importing operations: %v\n", err)
		return subcommands.ExitFailure
	}
	fmt.Printf("Imported %d operations, %d already known\n", n, len(ops)-n)
	return subcommands.ExitSuccess
}
