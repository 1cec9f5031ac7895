// Command collname prints the storage collection names derived from schema
// identifiers.
//
//	collname Objective KeyResult
//	collname --all --json
//	collname --resolve keyresults
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"

	"workspace-collections/internal/apiresponse"
	"workspace-collections/internal/catalog"
	"workspace-collections/internal/naming"
	"workspace-collections/internal/schema"

	"github.com/spf13/pflag"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, pflag.ErrHelp) {
			fmt.Fprintln(os.Stderr, "collname:", err)
		}
		os.Exit(1)
	}
}

type options struct {
	all       bool
	json      bool
	resolve   bool
	plurals   map[string]string
	singulars map[string]string
}

func run(args []string, stdout, stderr io.Writer) error {
	var opts options
	fs := pflag.NewFlagSet("collname", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.BoolVar(&opts.all, "all", false, "Print every registered schema")
	fs.BoolVar(&opts.json, "json", false, "Print the result as a JSON response envelope")
	fs.BoolVar(&opts.resolve, "resolve", false, "Treat arguments as collection names and print the owning schema")
	fs.StringToStringVar(&opts.plurals, "plural-override", nil, "Custom plurals, e.g. person=people")
	fs.StringToStringVar(&opts.singulars, "singular-override", nil, "Custom singulars, e.g. data=datum")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: collname [flags] [identifier ...]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	if !opts.all && fs.NArg() == 0 {
		fs.Usage()
		return errors.New("no identifiers given")
	}

	// Collision warnings go to stderr so stdout stays parseable.
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	namer := naming.New(naming.Config{PluralOverrides: opts.plurals, SingularOverrides: opts.singulars}, logger)
	cat := catalog.Build(namer, schema.All, logger)

	entries, err := collect(cat, opts, fs.Args())
	if err != nil {
		return err
	}
	if opts.json {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(apiresponse.OK(entries))
	}
	return printTable(stdout, entries)
}

func collect(cat *catalog.Catalog, opts options, args []string) ([]catalog.Entry, error) {
	if opts.all {
		return cat.Entries(), nil
	}

	entries := make([]catalog.Entry, 0, len(args))
	for _, arg := range args {
		if opts.resolve {
			// Unknown collections still come back with a suggested schema.
			entry, err := cat.Resolve(arg)
			if err != nil && entry.Collection == "" {
				return nil, err
			}
			entries = append(entries, entry)
			continue
		}

		entry, err := cat.Lookup(arg)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", arg, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func printTable(w io.Writer, entries []catalog.Entry) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SCHEMA\tCOLLECTION\tSECTION\tREGISTERED")
	for _, e := range entries {
		section := e.Section
		if section == "" {
			section = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\n", e.Schema, e.Collection, section, e.Registered)
	}
	return tw.Flush()
}
