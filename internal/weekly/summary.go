// Package weekly computes per-runner and crew statistics over calendar weeks
// from canonical activity records. Every function is pure: the same records
// and reference date always produce the same result.
package weekly

import (
	"sort"
	"strings"
	"time"

	"github.com/redrabbit14-cmyk/my-running-dash/internal/models"
)

// DefaultPaceFloorSecPerKm rejects paces faster than 2:00/km as data errors.
const DefaultPaceFloorSecPerKm = 120.0

type Options struct {
	WeekStart time.Weekday
	// PaceFloorSecPerKm excludes implausibly fast paces from the fastest-pace
	// statistic; a pace must be strictly slower than the floor. Zero disables
	// the floor.
	PaceFloorSecPerKm float64
}

func DefaultOptions() Options {
	return Options{
		WeekStart:         time.Monday,
		PaceFloorSecPerKm: DefaultPaceFloorSecPerKm,
	}
}

// Summarize computes the weekly summary for runner, or for every record when
// runner is empty. The current week only counts days up to and including the
// reference date. An empty window yields zero sums and nil ratios.
//
// RestDays is 0 both for a runner who ran on the reference date and for a
// runner with no records at all.
func Summarize(records []models.ActivityRecord, runner string, reference time.Time, opts Options) models.WeeklySummary {
	ref := Midnight(reference)
	curStart, curEnd := WeekWindow(ref, 0, opts.WeekStart)
	prevStart, prevEnd := WeekWindow(ref, 1, opts.WeekStart)

	summary := models.WeeklySummary{
		Runner:    runner,
		WeekStart: curStart,
		WeekEnd:   curEnd,
	}

	var (
		latest       time.Time
		hasRecords   bool
		weightedPace float64
		paceDistance float64
		highestClimb *models.ActivityRecord
		fastestRun   *models.ActivityRecord
		fastestPace  float64
	)

	for i := range records {
		r := &records[i]
		if runner != "" && r.Runner != runner {
			continue
		}

		d := Midnight(r.Date.In(ref.Location()))
		if !hasRecords || d.After(latest) {
			latest = d
			hasRecords = true
		}

		if inWindow(d, prevStart, prevEnd) {
			summary.PriorWeekDistanceKm += r.DistanceKm
			continue
		}
		if !inWindow(d, curStart, curEnd) || d.After(ref) {
			continue
		}

		summary.RunCount++
		summary.TotalDistanceKm += r.DistanceKm

		pace := r.Pace()
		if pace != nil && r.DistanceKm > 0 {
			weightedPace += *pace * r.DistanceKm
			paceDistance += r.DistanceKm
		}

		if r.ElevationM > 0 && (highestClimb == nil || r.ElevationM > highestClimb.ElevationM ||
			(r.ElevationM == highestClimb.ElevationM && moreRecent(r, highestClimb))) {
			highestClimb = r
		}

		if pace != nil && *pace > opts.PaceFloorSecPerKm &&
			(fastestRun == nil || *pace < fastestPace || (*pace == fastestPace && moreRecent(r, fastestRun))) {
			fastestRun = r
			fastestPace = *pace
		}
	}

	if summary.PriorWeekDistanceKm > 0 {
		change := (summary.TotalDistanceKm - summary.PriorWeekDistanceKm) / summary.PriorWeekDistanceKm * 100
		summary.PercentChange = &change
	}
	if paceDistance > 0 {
		avg := weightedPace / paceDistance
		summary.WeightedAvgPaceSecPerKm = &avg
	}
	if highestClimb != nil {
		climb := *highestClimb
		summary.HighestClimb = &climb
		summary.MaxElevationM = climb.ElevationM
	}
	if fastestRun != nil {
		run := *fastestRun
		summary.FastestRun = &run
		summary.FastestPaceSecPerKm = &fastestPace
	}
	if hasRecords {
		if days := DaysBetween(latest, ref); days > 0 {
			summary.RestDays = days
		}
	}

	return summary
}

// moreRecent is the tie-break for record-based statistics: later date first,
// then the lexicographically smaller runner name.
func moreRecent(a, b *models.ActivityRecord) bool {
	if !a.Date.Equal(b.Date) {
		return a.Date.After(b.Date)
	}
	return a.Runner < b.Runner
}

// Report builds the crew summary and one summary per runner. The runner list
// is the roster merged with every runner present in records, sorted by name,
// so rostered runners with no data still get a (zero) summary.
func Report(records []models.ActivityRecord, roster []string, reference time.Time, opts Options) models.CrewReport {
	runners := Runners(records, roster)
	report := models.CrewReport{
		Crew:    Summarize(records, "", reference, opts),
		Runners: make([]models.WeeklySummary, len(runners)),
	}
	for i, name := range runners {
		report.Runners[i] = Summarize(records, name, reference, opts)
	}
	return report
}

// Runners returns the sorted union of the roster and the runners in records.
func Runners(records []models.ActivityRecord, roster []string) []string {
	seen := make(map[string]struct{})
	var names []string
	add := func(name string) {
		name = strings.TrimSpace(name)
		if name == "" {
			return
		}
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}

	for _, name := range roster {
		add(name)
	}
	for _, r := range records {
		add(r.Runner)
	}
	sort.Strings(names)
	return names
}
