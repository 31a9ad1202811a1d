package models

import (
	"time"
)

// RawRecord is a single activity document as fetched from the document store,
// before any field resolution or unit handling.
type RawRecord map[string]interface{}

// ActivityRecord is a canonical running activity. Values are immutable once
// built by the normalizer.
type ActivityRecord struct {
	Runner          string    `json:"runner"`
	Date            time.Time `json:"date"`
	DistanceKm      float64   `json:"distance_km"`
	DurationSeconds int       `json:"duration_seconds"` // 0 = unknown
	ElevationM      float64   `json:"elevation_m"`
	EvidenceURL     *string   `json:"evidence_url"`
}

// Pace returns seconds per kilometer, or nil when distance or duration is unknown.
func (r ActivityRecord) Pace() *float64 {
	if r.DurationSeconds <= 0 || r.DistanceKm <= 0 {
		return nil
	}
	pace := float64(r.DurationSeconds) / r.DistanceKm
	return &pace
}

// ActivityView is the JSON shape of an ActivityRecord with its derived pace.
type ActivityView struct {
	ActivityRecord
	PaceSecPerKm *float64 `json:"pace_sec_per_km"`
}

// View attaches the derived pace for serialization.
func (r ActivityRecord) View() ActivityView {
	return ActivityView{ActivityRecord: r, PaceSecPerKm: r.Pace()}
}

// WeeklySummary holds weekly statistics for one runner, or for the whole crew
// when Runner is empty. Nil pointers mean "not enough data".
type WeeklySummary struct {
	Runner                  string    `json:"runner"`
	WeekStart               time.Time `json:"week_start"`
	WeekEnd                 time.Time `json:"week_end"`
	RunCount                int       `json:"run_count"`
	TotalDistanceKm         float64   `json:"total_distance_km"`
	PriorWeekDistanceKm     float64   `json:"prior_week_distance_km"`
	PercentChange           *float64  `json:"percent_change"`
	WeightedAvgPaceSecPerKm *float64  `json:"weighted_avg_pace_sec_per_km"`
	MaxElevationM           float64   `json:"max_elevation_m"`
	FastestPaceSecPerKm     *float64  `json:"fastest_pace_sec_per_km"`
	RestDays                int       `json:"rest_days"`

	HighestClimb *ActivityRecord `json:"highest_climb,omitempty"`
	FastestRun   *ActivityRecord `json:"fastest_run,omitempty"`
}

// CrewReport is the crew-level summary plus one summary per tracked runner.
type CrewReport struct {
	Crew    WeeklySummary   `json:"crew"`
	Runners []WeeklySummary `json:"runners"`
}

// LeaderboardEntry ranks a runner by current-week distance.
type LeaderboardEntry struct {
	Rank            int     `json:"rank"`
	Runner          string  `json:"runner"`
	TotalDistanceKm float64 `json:"total_distance_km"`
	RunCount        int     `json:"run_count"`
}

// WeekTotal is one chart bucket.
type WeekTotal struct {
	WeekStart       time.Time `json:"week_start"`
	Label           string    `json:"label"`
	TotalDistanceKm float64   `json:"total_distance_km"`
	RunCount        int       `json:"run_count"`
}

// SkippedRecord explains why a raw record was dropped.
type SkippedRecord struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// Diagnostics describes what happened to the raw snapshot during a refresh.
type Diagnostics struct {
	Fetched      int               `json:"fetched"`
	Normalized   int               `json:"normalized"`
	Skipped      int               `json:"skipped"`
	Duplicates   int               `json:"duplicates"`
	Skips        []SkippedRecord   `json:"skips,omitempty"`
	SourceErrors map[string]string `json:"source_errors,omitempty"`
	CacheHit     bool              `json:"cache_hit"`
}

// Dashboard is everything the presentation layer needs for one refresh.
type Dashboard struct {
	RefreshID     string                    `json:"refresh_id"`
	GeneratedAt   time.Time                 `json:"generated_at"`
	ReferenceDate time.Time                 `json:"reference_date"`
	WeekStartDay  string                    `json:"week_start_day"`
	Crew          WeeklySummary             `json:"crew"`
	Runners       []WeeklySummary           `json:"runners"`
	Leaderboard   []LeaderboardEntry        `json:"leaderboard"`
	WeeklyTotals  []WeekTotal               `json:"weekly_totals"`
	Activities    []ActivityRecord          `json:"-"`
	Diagnostics   Diagnostics               `json:"diagnostics"`
	Weather       *AggregatedCurrentWeather `json:"weather,omitempty"`
}
