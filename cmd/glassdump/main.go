// Package main provides the glassdump CLI tool: a read-only walk over
// every key/tag pair in a glassdb database, one table at a time.
//
// Usage:
//
//	glassdump --db=<path> [--hex] [--table=<name>] [--limit=N]
//
// Reference: xapian-core/bin/xapian-inspect.cc, at a much reduced scope
// — glassdump has no query language and no term-statistics summary, it
// only walks raw table contents for manual debugging.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"

	"github.com/glassdb/glassdb"
	"github.com/glassdb/glassdb/internal/table"
)

var (
	dbPath    = flag.String("db", "", "Path to the database directory (required)")
	hexOutput = flag.Bool("hex", false, "Always print keys and tags in hex")
	onlyTable = flag.String("table", "", "Dump only this table's file name (e.g. postlist.glass); empty dumps every present table")
	limit     = flag.Int("limit", 0, "Limit number of entries printed per table (0 = unlimited)")
)

func main() {
	flag.Parse()
	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "Error: --db flag is required")
		flag.Usage()
		os.Exit(1)
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	db, err := glassdb.Open(*dbPath, glassdb.Options{}, false)
	if err != nil {
		return fmt.Errorf("opening %s: %w", *dbPath, err)
	}
	defer db.Close()

	return db.ForEachTable(func(name string, t *table.Table) error {
		if *onlyTable != "" && name != *onlyTable {
			return nil
		}
		dumpTable(name, t)
		return nil
	})
}

func dumpTable(name string, t *table.Table) {
	fmt.Printf("== %s (%d entries) ==\n", name, t.GetEntryCount())

	c := t.NewCursor()
	c.SeekToFirst()
	count := 0
	for c.Valid() {
		fmt.Printf("  %s => %s\n", format(c.Key()), format(c.Value()))
		count++
		if *limit > 0 && count >= *limit {
			break
		}
		c.Next()
	}
	if err := c.Error(); err != nil {
		fmt.Fprintf(os.Stderr, "  cursor error on %s: %v\n", name, err)
	}
	fmt.Printf("  (%d entries printed)\n", count)
}

func format(b []byte) string {
	if *hexOutput {
		return hex.EncodeToString(b)
	}
	for _, c := range b {
		if c < 32 || c > 126 {
			return hex.EncodeToString(b)
		}
	}
	return string(b)
}
