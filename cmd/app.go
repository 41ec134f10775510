// Package cmd implements the fsc command line application.
package cmd

import (
	"cmp"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/etnz/fiscal"
	"github.com/etnz/fiscal/store"
	"github.com/google/subcommands"
)

// Environment variables read as flag defaults, and passed to extensions.
const (
	EnvDB       = "FSC_DB"
	EnvConfig   = "FSC_CONFIG"
	EnvCurrency = "FSC_CURRENCY"
	EnvVerbose  = "FSC_VERBOSE"
)

// Register the subcommands.
func Register(c *subcommands.Commander) {
	c.Register(&importCmd{}, "operations")
	c.Register(&fmtCmd{}, "operations")

	c.Register(&importRatesCmd{}, "rates")
	c.Register(&fetchRatesCmd{}, "rates")

	c.Register(&aggregateCmd{}, "runs")
	c.Register(&viewCmd{}, "runs")
	c.Register(&ledgerCmd{}, "runs")
	c.Register(&runsCmd{}, "runs")
	c.Register(&serveCmd{}, "runs")

	c.Register(&topicCmd{}, "")
}

// as a CLI application, it has a very short lived lifecycle, so it is ok to use global variables.

var (
	dbFile     = flag.String("db", "", "Path to the SQLite database (default $"+EnvDB+" or fiscal.db)")
	configFile = flag.String("config", "", "Path to the configuration file (default $"+EnvConfig+" or fiscal.json)")
	currency   = flag.String("currency", "", "Reporting currency, overrides the configuration (default $"+EnvCurrency+")")
	// Verbose enables logging.
	Verbose = flag.Bool("v", false, "Verbose logging")
)

// DBPath returns the database path from the flag, the environment or the default.
func DBPath() string { return cmp.Or(*dbFile, os.Getenv(EnvDB), "fiscal.db") }

// ConfigPath returns the configuration path from the flag, the environment or the default.
func ConfigPath() string { return cmp.Or(*configFile, os.Getenv(EnvConfig), "fiscal.json") }

// Currency returns the reporting currency override, if any.
func Currency() string { return cmp.Or(*currency, os.Getenv(EnvCurrency)) }

// SetupLogging discards logs unless verbose.
func SetupLogging() {
	log.SetFlags(0)
	log.SetPrefix("fsc: ")
	if !*Verbose && os.Getenv(EnvVerbose) != "true" {
		log.SetOutput(io.Discard)
	}
}

// LoadConfig loads the configuration file, applying the currency override.
// The defaults are used when the file does not exist but a currency is given.
func LoadConfig() (fiscal.Config, error) {
	cfg, err := fiscal.LoadConfig(ConfigPath())
	switch {
	case errors.Is(err, fs.ErrNotExist) && Currency() != "":
		log.Printf("configuration %s does not exist, using the defaults", ConfigPath())
		cfg = fiscal.DefaultConfig()
	case err != nil:
		return fiscal.Config{}, err
	}
	if c := Currency(); c != "" {
		cfg.ReportingCurrency = c
		if err := cfg.Validate(); err != nil {
			return fiscal.Config{}, err
		}
	}
	log.Printf("loaded configuration %s in %s", ConfigPath(), cfg.ReportingCurrency)
	return cfg, nil
}

// OpenStore opens the application database.
func OpenStore() (*store.Store, error) {
	return store.Open(DBPath())
}

// printMarkdown renders md for the terminal, or prints it raw when it
// cannot be rendered.
func printMarkdown(md string) {
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(120))
	if err == nil {
		var out string
		if out, err = r.Render(md); err == nil {
			fmt.Print(out)
			return
		}
	}
	log.Printf("could not render markdown: %v", err)
	fmt.Print(md)
}
