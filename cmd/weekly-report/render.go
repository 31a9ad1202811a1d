package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/guptarohit/asciigraph"

	"github.com/redrabbit14-cmyk/my-running-dash/internal/models"
)

const notEnoughData = "not enough data"

func printReport(out io.Writer, r report, runner string) {
	fmt.Fprintf(out, "Week of %s (reference %s, weeks start %s)\n\n",
		r.Crew.WeekStart.Format("2006-01-02"),
		r.ReferenceDate.Format("2006-01-02"),
		r.WeekStartDay)

	if runner == "" {
		printSummary(out, "Crew", r.Crew)
	}
	for _, s := range r.Runners {
		printSummary(out, s.Runner, s)
	}

	if runner == "" && len(r.Leaderboard) > 0 {
		fmt.Fprintln(out, "Leaderboard")
		for _, e := range r.Leaderboard {
			fmt.Fprintf(out, "  %2d. %-16s %7.2f km  %d runs\n", e.Rank, e.Runner, e.TotalDistanceKm, e.RunCount)
		}
		fmt.Fprintln(out)
	}

	if chart := renderChart(r.WeeklyTotals); chart != "" {
		fmt.Fprintln(out, chart)
		fmt.Fprintln(out)
	}

	if len(r.Skipped) > 0 || r.Duplicates > 0 {
		fmt.Fprintf(out, "Skipped %d records, merged %d duplicates\n", len(r.Skipped), r.Duplicates)
		for _, s := range r.Skipped {
			fmt.Fprintf(out, "  record %d: %s\n", s.Index, s.Reason)
		}
	}
}

func printSummary(out io.Writer, title string, s models.WeeklySummary) {
	fmt.Fprintln(out, title)
	fmt.Fprintf(out, "  runs:            %d\n", s.RunCount)
	fmt.Fprintf(out, "  distance:        %.2f km\n", s.TotalDistanceKm)
	fmt.Fprintf(out, "  vs last week:    %s\n", formatPercent(s.PercentChange))
	fmt.Fprintf(out, "  average pace:    %s\n", formatPace(s.WeightedAvgPaceSecPerKm))
	fmt.Fprintf(out, "  fastest pace:    %s\n", formatPace(s.FastestPaceSecPerKm))
	fmt.Fprintf(out, "  highest climb:   %.0f m\n", s.MaxElevationM)
	fmt.Fprintf(out, "  rest days:       %d\n", s.RestDays)
	fmt.Fprintln(out)
}

func formatPace(secPerKm *float64) string {
	if secPerKm == nil {
		return notEnoughData
	}
	total := int(*secPerKm + 0.5)
	return fmt.Sprintf("%d:%02d /km", total/60, total%60)
}

func formatPercent(change *float64) string {
	if change == nil {
		return notEnoughData
	}
	return fmt.Sprintf("%+.1f%%", *change)
}

func renderChart(totals []models.WeekTotal) string {
	if len(totals) == 0 {
		return ""
	}

	data := make([]float64, len(totals))
	for i, t := range totals {
		data[i] = t.TotalDistanceKm
	}

	caption := fmt.Sprintf("km per week, %s to %s", totals[0].Label, totals[len(totals)-1].Label)
	graph := asciigraph.Plot(data,
		asciigraph.Height(8),
		asciigraph.Width(48),
		asciigraph.Precision(1),
		asciigraph.Caption(caption),
	)
	return strings.TrimRight(graph, "\n")
}
