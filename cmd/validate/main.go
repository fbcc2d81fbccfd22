// Package main checks a persisted research feed snapshot against the
// snapshot invariants.
//
// Usage:
//
//	validate [path]
//
// Without a path the configured internal copy is checked.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/helixir/research-feed-service/internal/config"
	"github.com/helixir/research-feed-service/internal/snapshot"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	path := fs.Arg(0)
	if path == "" {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		path = cfg.Output.DataPath
	}

	if err := snapshot.ValidateFile(path); err != nil {
		return err
	}

	fmt.Printf("%s passed validation.\n", path)
	return nil
}
