package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/cwygoda/papers/internal/domain"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent fetch runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withHistory(func(svc *domain.HistoryService) error {
				runs, err := svc.Recent(cmd.Context(), limit)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(runs) == 0 {
					fmt.Fprintln(out, "No runs recorded")
					return nil
				}
				fmt.Fprintln(out, renderRuns(runs))
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to list")
	return cmd
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show RUN_ID",
		Short: "Show per-year results of one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withHistory(func(svc *domain.HistoryService) error {
				run, err := svc.Get(cmd.Context(), strings.TrimSpace(args[0]))
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), renderRun(run))
				return nil
			})
		},
	}
}

func renderRuns(runs []domain.Run) string {
	headers := []string{"ID", "Group", "Years", "Status", "Files", "Size", "Started", "Took"}
	rows := make([][]string, 0, len(runs))
	for i := range runs {
		run := &runs[i]
		files, bytes := runTotals(run)
		rows = append(rows, []string{
			run.ID,
			string(run.Category),
			fmt.Sprintf("%d-%d", run.StartYear, run.EndYear-1),
			string(run.Status),
			strconv.Itoa(files),
			humanize.Bytes(uint64(bytes)),
			humanize.Time(run.StartedAt),
			runDuration(run),
		})
	}
	aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignRight}
	return renderTable(headers, rows, aligns)
}

func renderRun(run *domain.Run) string {
	var b strings.Builder
	files, bytes := runTotals(run)
	fmt.Fprintf(&b, "Run:         %s\n", run.ID)
	fmt.Fprintf(&b, "Group:       %s\n", run.Category)
	fmt.Fprintf(&b, "Years:       %d-%d\n", run.StartYear, run.EndYear-1)
	fmt.Fprintf(&b, "Destination: %s\n", run.Dest)
	fmt.Fprintf(&b, "Status:      %s\n", run.Status)
	fmt.Fprintf(&b, "Started:     %s (%s)\n", run.StartedAt.Local().Format("2006-01-02 15:04:05"), humanize.Time(run.StartedAt))
	if !run.FinishedAt.IsZero() {
		fmt.Fprintf(&b, "Took:        %s\n", runDuration(run))
	}
	fmt.Fprintf(&b, "Downloaded:  %s in %d file(s)\n", humanize.Bytes(uint64(bytes)), files)
	if run.Error != "" {
		fmt.Fprintf(&b, "Error:       %s\n", run.Error)
	}

	if len(run.Years) == 0 {
		return b.String()
	}

	rows := make([][]string, 0, len(run.Years))
	for _, y := range run.Years {
		detail := y.Error
		if y.URL != "" && detail != "" {
			detail = y.URL + ": " + detail
		}
		rows = append(rows, []string{
			y.Label,
			string(y.State),
			strconv.Itoa(y.Files),
			humanize.Bytes(uint64(y.Bytes)),
			detail,
		})
	}
	b.WriteString("\n")
	b.WriteString(renderTable(
		[]string{"Year", "State", "Files", "Size", "Error"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft},
	))
	b.WriteString("\n")
	return b.String()
}

func runTotals(run *domain.Run) (int, int64) {
	var files int
	var bytes int64
	for _, y := range run.Years {
		files += y.Files
		bytes += y.Bytes
	}
	return files, bytes
}

func runDuration(run *domain.Run) string {
	if run.FinishedAt.IsZero() {
		return "-"
	}
	return run.FinishedAt.Sub(run.StartedAt).Round(100 * time.Millisecond).String()
}
