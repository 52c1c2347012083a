package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"maps"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/rumor-ml/commons.systems/pjledger/internal/backend"
	"github.com/rumor-ml/commons.systems/pjledger/internal/config"
	"github.com/rumor-ml/commons.systems/pjledger/internal/logger"
	"github.com/rumor-ml/commons.systems/pjledger/internal/pipeline"
)

const (
	version = "0.1.0"
)

// errUsage is returned after usage was printed for a bad invocation.
var errUsage = errors.New("invalid usage")

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, args []string) error
}

func commands() []command {
	return []command{
		{"import", "Import statement files into a client's ledger", runImport},
		{"report", "Write a cost tree, cash flow or insights report", runReport},
		{"sale", "Register a sale and its settlement plan", runSale},
		{"reconcile", "Suggest or confirm deposits for a sale leg", runReconcile},
		{"plan", "Replace a client's chart of accounts", runPlan},
	}
}

func usage(w io.Writer) {
	fmt.Fprint(w, `pjledger - Bookkeeping for PJ clients

Usage:
  pjledger <command> [flags]

Commands:
`)
	for _, c := range commands() {
		fmt.Fprintf(w, "  %-10s %s\n", c.name, c.summary)
	}
	fmt.Fprint(w, `
Run "pjledger <command> -h" for the flags of a command.

Examples:
  # Import acme's statements from a tree laid out as {client}/{account}/file
  pjledger import -client acme -input ~/statements

  # Import every statement under a bucket prefix without writing
  pjledger import -client acme -input gs://ledger-uploads/acme/ -dry-run

  # Write the 2025 cost tree to a file
  pjledger report -client acme -kind cost-tree -from 2025-01-01 -to 2025-12-31 -output tree.json

  # Confirm parcel 2 of a card leg
  pjledger reconcile -client acme -sale <id> -leg card -confirm 2:<transaction-id>

Configuration is read from the environment and an optional .env file
(PJLEDGER_STORE, PJLEDGER_DB_PATH, GCP_PROJECT_ID, LOG_LEVEL).
`)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) == 0 {
		fmt.Fprintf(os.Stderr, "Error: a command is required\n\n")
		usage(os.Stderr)
		return errUsage
	}

	switch args[0] {
	case "-version", "--version", "version":
		fmt.Fprintf(stdout, "pjledger version %s\n", version)
		return nil
	case "-h", "-help", "--help", "help":
		usage(stdout)
		return nil
	}

	for _, c := range commands() {
		if c.name == args[0] {
			return c.run(ctx, args[1:])
		}
	}

	fmt.Fprintf(os.Stderr, "Error: unknown command %q\n\n", args[0])
	usage(os.Stderr)
	return errUsage
}

// newFlagSet creates a subcommand flag set whose usage lists its flags.
func newFlagSet(name, synopsis string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage:\n  pjledger %s %s\n\nFlags:\n", name, synopsis)
		fs.PrintDefaults()
	}
	return fs
}

// parseFlags parses args and maps flag errors to errUsage. -h is not an error.
func parseFlags(fs *flag.FlagSet, args []string) (bool, error) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return false, nil
		}
		return false, errUsage
	}
	return true, nil
}

// required reports the first empty flag value as a usage error.
func required(fs *flag.FlagSet, values map[string]string) error {
	for _, name := range slices.Sorted(maps.Keys(values)) {
		if values[name] == "" {
			fmt.Fprintf(fs.Output(), "Error: -%s flag is required\n\n", name)
			fs.Usage()
			return errUsage
		}
	}
	return nil
}

// openServices loads the configuration and connects the ledger services.
// The returned context carries the logger.
func openServices(ctx context.Context, verbose bool, rulesFile string, opts ...pipeline.Option) (context.Context, *backend.Services, error) {
	cfg, err := config.Load(logger.New("warn", true))
	if err != nil {
		return ctx, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return ctx, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	level := cfg.LogLevel
	if verbose {
		level = "debug"
	}
	ctx = logger.WithContext(ctx, logger.New(level, true))

	store, err := backend.Open(ctx, cfg)
	if err != nil {
		return ctx, nil, fmt.Errorf("failed to open %s store: %w", cfg.Store, err)
	}
	svc, err := backend.NewServices(store, cfg, rulesFile, opts...)
	if err != nil {
		store.Close()
		return ctx, nil, err
	}
	return ctx, svc, nil
}
