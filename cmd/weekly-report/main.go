package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/redrabbit14-cmyk/my-running-dash/internal/models"
	"github.com/redrabbit14-cmyk/my-running-dash/internal/normalizer"
	"github.com/redrabbit14-cmyk/my-running-dash/internal/source"
	"github.com/redrabbit14-cmyk/my-running-dash/internal/weekly"
)

type options struct {
	input     string
	runner    string
	ref       string
	weekStart string
	timezone  string
	weeks     int
	threshold float64
	paceFloor float64
	asJSON    bool
}

type report struct {
	ReferenceDate time.Time                 `json:"reference_date"`
	WeekStartDay  string                    `json:"week_start_day"`
	Crew          models.WeeklySummary      `json:"crew"`
	Runners       []models.WeeklySummary    `json:"runners"`
	Leaderboard   []models.LeaderboardEntry `json:"leaderboard"`
	WeeklyTotals  []models.WeekTotal        `json:"weekly_totals"`
	Skipped       []models.SkippedRecord    `json:"skipped"`
	Duplicates    int                       `json:"duplicates"`
}

func main() {
	fs := flag.NewFlagSet(filepath.Base(os.Args[0]), flag.ExitOnError)
	var opts options
	fs.StringVar(&opts.input, "input", "", "Path to a JSON array of raw activity records")
	fs.StringVar(&opts.runner, "runner", "", "Only report this runner")
	fs.StringVar(&opts.ref, "ref", "", "Reference date YYYY-MM-DD (default today)")
	fs.StringVar(&opts.weekStart, "week-start", "monday", "First day of the week")
	fs.StringVar(&opts.timezone, "tz", "Local", "IANA timezone for calendar dates")
	fs.IntVar(&opts.weeks, "weeks", 12, "Weeks shown in the distance chart")
	fs.Float64Var(&opts.threshold, "threshold", normalizer.DefaultDistanceUnitThreshold, "Untagged distances above this are meters")
	fs.Float64Var(&opts.paceFloor, "pace-floor", weekly.DefaultPaceFloorSecPerKm, "Fastest plausible pace in seconds per km")
	fs.BoolVar(&opts.asJSON, "json", false, "Print the report as JSON")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: %s --input records.json [--runner NAME] [--ref 2024-01-10] [--week-start monday] [--weeks 12] [--json]\n", fs.Name())
		fs.PrintDefaults()
	}
	fs.Parse(os.Args[1:])

	if strings.TrimSpace(opts.input) == "" {
		fs.Usage()
		os.Exit(2)
	}

	if err := run(context.Background(), opts, time.Now(), os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "weekly-report failed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, now time.Time, out io.Writer) error {
	loc, err := time.LoadLocation(opts.timezone)
	if err != nil {
		return fmt.Errorf("timezone: %w", err)
	}
	weekStart, err := weekly.ParseWeekday(opts.weekStart)
	if err != nil {
		return err
	}

	reference := weekly.Midnight(now.In(loc))
	if opts.ref != "" {
		reference, err = time.ParseInLocation("2006-01-02", opts.ref, loc)
		if err != nil {
			return fmt.Errorf("reference date: %w", err)
		}
	}

	raw, err := source.NewFileSource(opts.input).Fetch(ctx)
	if err != nil {
		if errors.Is(err, normalizer.ErrNotRecordList) {
			return fmt.Errorf("input must be a JSON array of objects: %w", err)
		}
		return err
	}

	result := normalizer.New(normalizer.Options{
		DistanceUnitThreshold: opts.threshold,
		Location:              loc,
	}).Normalize(raw)

	weeklyOpts := weekly.Options{WeekStart: weekStart, PaceFloorSecPerKm: opts.paceFloor}
	r := buildReport(result, normalizer.RunnerName(opts.runner), reference, opts.weeks, weeklyOpts)

	if opts.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}
	printReport(out, r, opts.runner)
	return nil
}

func buildReport(result normalizer.Result, runner string, reference time.Time, weeks int, opts weekly.Options) report {
	r := report{
		ReferenceDate: reference,
		WeekStartDay:  strings.ToLower(opts.WeekStart.String()),
		Skipped:       result.Skips,
		Duplicates:    result.Duplicates,
		Leaderboard:   weekly.Leaderboard(result.Records, reference, opts),
		WeeklyTotals:  weekly.WeeklyTotals(result.Records, runner, reference, weeks, opts),
	}

	if runner != "" {
		r.Crew = weekly.Summarize(result.Records, "", reference, opts)
		r.Runners = []models.WeeklySummary{weekly.Summarize(result.Records, runner, reference, opts)}
		return r
	}

	crew := weekly.Report(result.Records, nil, reference, opts)
	r.Crew = crew.Crew
	r.Runners = crew.Runners
	return r
}
