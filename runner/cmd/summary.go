package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/byte4ever/contribgraph/runner"
)

// Status colors for console output.
var (
	fetchedColor = color.New(color.FgGreen)
	cachedColor  = color.New(color.FgCyan)
	failedColor  = color.New(color.FgRed, color.Bold)
)

// colorStatus returns the colored status cell.
func colorStatus(st runner.Status) string {
	switch st {
	case runner.StatusFetched:
		return fetchedColor.Sprint(string(st))
	case runner.StatusCached:
		return cachedColor.Sprint(string(st))
	default:
		return failedColor.Sprint(string(st))
	}
}

// writeSummary renders the per-instance table followed by
// the totals line.
func writeSummary(
	w io.Writer,
	summary *runner.Summary,
) error {
	table := tablewriter.NewWriter(w)

	table.Header([]string{
		"Instance", "Status", "Contributions", "Error",
	})

	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignLeft
	})

	data := make([][]string, 0, len(summary.Results))

	for _, res := range summary.Results {
		msg := ""
		if res.Err != nil {
			msg = res.Err.Error()
		}

		data = append(data, []string{
			res.Instance,
			colorStatus(res.Status),
			strconv.Itoa(res.Contributions),
			msg,
		})
	}

	if err := table.Bulk(data); err != nil {
		return fmt.Errorf(
			"filling summary table: %w", err,
		)
	}

	if err := table.Render(); err != nil {
		return fmt.Errorf(
			"rendering summary table: %w", err,
		)
	}

	if _, err := fmt.Fprintf(
		w,
		"%d contributions merged, %d commits written\n",
		summary.Total, summary.Commits,
	); err != nil {
		return fmt.Errorf("writing totals: %w", err)
	}

	return nil
}
