package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"
)

// printTable renders a tab-aligned table with a dashed header separator.
func printTable(headers []string, rows [][]string) {
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, strings.Join(headers, "\t"))

	seps := make([]string, len(headers))
	for i, h := range headers {
		seps[i] = strings.Repeat("-", len(h))
	}

	fmt.Fprintln(tw, strings.Join(seps, "\t"))

	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}

	tw.Flush()
}

func fmtTimestamp(unixMilli int64) string {
	return time.UnixMilli(unixMilli).UTC().Format("2006-01-02 15:04:05 UTC")
}

// ptrF64 formats an optional measurement, "-" when absent.
func ptrF64(p *float64) string {
	if p == nil {
		return "-"
	}

	return fmt.Sprintf("%.2f", *p)
}

func ptrI64(p *int64) string {
	if p == nil {
		return "-"
	}

	return fmt.Sprintf("%d", *p)
}
