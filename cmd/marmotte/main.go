// Package main provides marmotte, a small inspection tool for record log
// files: it prints the log header and optionally dumps the records.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/rflechner/marmotte/storage"
)

func main() {
	var (
		file          string
		stats         bool
		dump          bool
		showContent   bool
		maxRecordSize uint64
	)

	pflag.StringVar(&file, "file", "", "record log file to inspect")
	pflag.BoolVar(&stats, "stats", false, "print the log header")
	pflag.BoolVar(&dump, "dump", false, "iterate the records and print one line per record")
	pflag.BoolVar(&showContent, "content", false, "include record content in the dump output")
	pflag.Uint64Var(&maxRecordSize, "max-record-size", storage.DefaultMaxRecordSize, "ceiling on a single record's declared size")
	pflag.Parse()

	if file == "" {
		fmt.Fprintln(os.Stderr, "usage: marmotte --file <records.data> [--stats] [--dump]")
		pflag.PrintDefaults()
		os.Exit(2)
	}
	if !stats && !dump {
		stats = true
	}

	if err := run(file, stats, dump, showContent, maxRecordSize); err != nil {
		fmt.Fprintf(os.Stderr, "marmotte: %v\n", err)
		os.Exit(1)
	}
}

func run(file string, stats, dump, showContent bool, maxRecordSize uint64) error {
	reader, err := storage.OpenReader(file, storage.WithMaxRecordSize(maxRecordSize))
	if err != nil {
		return err
	}
	defer reader.Close()

	meta := reader.Meta()

	if stats {
		fmt.Printf("file:          %s\n", file)
		fmt.Printf("version:       %d\n", meta.Version)
		fmt.Printf("records count: %d\n", meta.RecordsCount)
		fmt.Printf("position:      %d\n", meta.Position)
		fmt.Printf("page size:     %d\n", meta.PageSize)
	}

	if !dump {
		return nil
	}

	var ordinal uint64
	for record := range reader.All() {
		ordinal++
		line := fmt.Sprintf("#%d offset=%d size=%d deleted=%t", ordinal, record.Position, len(record.Content), record.Deleted)
		if showContent {
			line += fmt.Sprintf(" content=%q", record.Content)
		}
		fmt.Println(line)
	}
	if err := reader.Err(); err != nil {
		return fmt.Errorf("scan stopped after %d records: %w", ordinal, err)
	}

	return nil
}
