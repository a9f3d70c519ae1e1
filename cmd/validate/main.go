// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// validate is a CLI tool to validate egmd configuration and rule files.
//
// Usage:
//
//	validate -f config.yaml
//	validate -f config.yaml -r rules.yaml
//	validate -r rules.yaml
//
// Exit codes:
//   - 0: Files are valid
//   - 1: A file is invalid (parse or validation error)
//   - 2: Usage error (missing required flag)
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/ManuGH/egmlock/internal/config"
	"github.com/ManuGH/egmlock/internal/coordinator"
	"github.com/ManuGH/egmlock/internal/version"
)

const (
	exitValid   = 0
	exitInvalid = 1
	exitUsage   = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var file, rules string
	var showVersion bool
	fs.StringVar(&file, "file", "", "path to YAML configuration file")
	fs.StringVar(&file, "f", "", "path to YAML configuration file (shorthand)")
	fs.StringVar(&rules, "rules", "", "path to YAML rule file")
	fs.StringVar(&rules, "r", "", "path to YAML rule file (shorthand)")
	fs.BoolVar(&showVersion, "version", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitValid
		}
		return exitUsage
	}

	if showVersion {
		_, _ = fmt.Fprintln(stdout, version.String())
		return exitValid
	}

	if file == "" && rules == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --file or --rules is required")
		_, _ = fmt.Fprintln(stderr, "")
		_, _ = fmt.Fprintln(stderr, "Usage:")
		_, _ = fmt.Fprintln(stderr, "  validate -f config.yaml")
		_, _ = fmt.Fprintln(stderr, "  validate -f config.yaml -r rules.yaml")
		return exitUsage
	}

	code := exitValid
	if file != "" {
		// Load applies strict YAML parsing and business validation.
		cfg, err := config.NewLoader(file, version.Version).Load()
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Configuration error in %s:\n  %v\n", file, err)
			return exitInvalid
		}
		_, _ = fmt.Fprintf(stdout, "✓ %s is valid\n", file)
		if rules == "" {
			rules = cfg.RulesPath
			if _, err := os.Stat(rules); err != nil {
				return code
			}
		}
	}

	if err := validateRules(rules); err != nil {
		_, _ = fmt.Fprintf(stderr, "Rule error in %s:\n  %v\n", rules, err)
		return exitInvalid
	}
	_, _ = fmt.Fprintf(stdout, "✓ %s is valid\n", rules)
	return code
}

func validateRules(path string) error {
	specs, err := config.LoadRules(path)
	if err != nil {
		return err
	}
	cat := coordinator.DefaultCatalog()
	resolved, err := coordinator.ResolveRules(specs, cat)
	if err != nil {
		return err
	}
	return coordinator.ValidateRules(cat, resolved)
}
