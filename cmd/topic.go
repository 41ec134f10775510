package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/etnz/fiscal/docs"
	"github.com/google/subcommands"
)

type topicCmd struct {
	list bool
	raw  bool
}

func (*topicCmd) Name() string     { return "topic" }
func (*topicCmd) Synopsis() string { return "show documentation" }
func (*topicCmd) Usage() string {
	return `fsc topic [-list] [-raw] [<topic>...]

  Shows the documentation of the given topics, the index by default.
  "*" shows every topic.

Usage Examples:
# Markdown source of the Exante import, for a pager or an editor.
$ fsc topic -raw exante > exante.md
`
}

func (c *topicCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.list, "list", false, "List the topic names")
	f.BoolVar(&c.raw, "raw", false, "Print the markdown source instead of rendering it")
}

// text returns what the command prints for args.
func (c *topicCmd) text(args []string) (string, error) {
	if c.list {
		topics, err := docs.GetAllTopics()
		if err != nil {
			return "", err
		}
		return strings.Join(topics, "\n") + "\n", nil
	}
	if len(args) == 0 {
		args = []string{"readme"}
	}
	return docs.GetTopics(args...)
}

func (c *topicCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	out, err := c.text(f.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading doc: %v\n", err)
		return subcommands.ExitFailure
	}
	if c.raw || c.list {
		fmt.Print(out)
	} else {
		printMarkdown(out)
	}
	return subcommands.ExitSuccess
}
