// Command shadowprobe-report replays one or more report files shadowprobe-cli
// wrote in the s-expression format and merges their per-op aggregates,
// letting several runs of the same binary accumulate into a single
// ranked report (SPEC_FULL.md's supplemental to package report, grounded
// on shadowop-info.c's per-op aggregate accumulation generalized to a
// cross-run merge).
package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"shadowprobe/internal/report"
	"shadowprobe/internal/report/sexpr"
)

func main() {
	var outPath string

	root := &cobra.Command{
		Use:   "shadowprobe-report <report-file>...",
		Short: "Merge one or more shadowprobe s-expression report files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(args, outPath)
		},
	}
	root.Flags().StringVar(&outPath, "out", "", "merged report output path (stdout if unset)")

	if err := root.Execute(); err != nil {
		color.Red("❌ %s", err)
		os.Exit(1)
	}
}

func run(paths []string, outPath string) error {
	var records []*sexpr.Record
	for _, p := range paths {
		recs, err := readRecords(p)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", p, err)
		}
		records = append(records, recs...)
	}

	merged := report.MergeAll(records)

	out := os.Stdout
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", outPath, err)
		}
		defer f.Close()
		out = f
	}

	for _, rec := range merged {
		if _, err := fmt.Fprintln(out, rec.String()); err != nil {
			return err
		}
	}

	color.Green("✅ merged %d runs into %d ops", len(paths), len(merged))
	return nil
}

func readRecords(path string) ([]*sexpr.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var records []*sexpr.Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		rec, err := sexpr.ParseRecord(line)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, scanner.Err()
}
