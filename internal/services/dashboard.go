package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/redrabbit14-cmyk/my-running-dash/internal/models"
	"github.com/redrabbit14-cmyk/my-running-dash/internal/normalizer"
	"github.com/redrabbit14-cmyk/my-running-dash/internal/source"
	"github.com/redrabbit14-cmyk/my-running-dash/internal/weekly"
	"github.com/redrabbit14-cmyk/my-running-dash/pkg/client"
)

// ErrAllSourcesFailed is returned by Refresh when no record source answered.
var ErrAllSourcesFailed = errors.New("all record sources failed")

// ErrNoSources is returned by Refresh when no record source is configured.
var ErrNoSources = errors.New("no record sources configured")

var ErrRunnerNotFound = errors.New("runner not found")

const defaultChartWeeks = 12

type DashboardOptions struct {
	Roster     []string
	Weekly     weekly.Options
	Normalizer normalizer.Options
	// ReferenceDate pins "today"; the zero value means the current date in
	// Location.
	ReferenceDate time.Time
	Location      *time.Location
	ChartWeeks    int
	// Weather is looked up only when set and at least one client exists.
	Weather      *models.Location
	FetchTimeout time.Duration
	Now          func() time.Time
}

// Dashboard fetches raw records, normalizes them, and keeps the most recent
// weekly report in memory.
type Dashboard struct {
	sources    []source.RecordSource
	weather    []client.WeatherClient
	cache      *SnapshotCache
	normalizer *normalizer.Normalizer
	opts       DashboardOptions
	logger     *zap.Logger

	refreshMu sync.Mutex

	mu           sync.RWMutex
	last         *models.Dashboard
	lastRefresh  time.Time
	successCount int
	failureCount int
}

func NewDashboard(sources []source.RecordSource, weather []client.WeatherClient, cache *SnapshotCache, opts DashboardOptions, logger *zap.Logger) *Dashboard {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.ChartWeeks <= 0 {
		opts.ChartWeeks = defaultChartWeeks
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 30 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Normalizer.Location == nil {
		opts.Normalizer.Location = opts.Location
	}
	roster := make([]string, 0, len(opts.Roster))
	for _, name := range opts.Roster {
		roster = append(roster, normalizer.RunnerName(name))
	}
	opts.Roster = roster

	return &Dashboard{
		sources:    sources,
		weather:    weather,
		cache:      cache,
		normalizer: normalizer.New(opts.Normalizer),
		opts:       opts,
		logger:     logger,
	}
}

// ReferenceDate returns the date the weekly windows are anchored to.
func (d *Dashboard) ReferenceDate() time.Time {
	if !d.opts.ReferenceDate.IsZero() {
		return weekly.Midnight(d.opts.ReferenceDate.In(d.opts.Location))
	}
	return weekly.Midnight(d.opts.Now().In(d.opts.Location))
}

// Current returns the last built dashboard, building one if none exists yet.
func (d *Dashboard) Current(ctx context.Context) (*models.Dashboard, error) {
	d.mu.RLock()
	last := d.last
	d.mu.RUnlock()

	if last != nil {
		return last, nil
	}
	return d.Refresh(ctx, false)
}

// Refresh rebuilds the dashboard. With force set, cached source snapshots are
// ignored. A source failure is recorded in the diagnostics; only the failure
// of every source fails the refresh.
func (d *Dashboard) Refresh(ctx context.Context, force bool) (*models.Dashboard, error) {
	d.refreshMu.Lock()
	defer d.refreshMu.Unlock()

	refreshID := uuid.NewString()
	logger := d.logger.With(zap.String("refresh_id", refreshID))
	startTime := time.Now()

	raw, diag, err := d.fetchAll(ctx, force, logger)
	if err != nil {
		d.mu.Lock()
		d.failureCount++
		d.mu.Unlock()
		return nil, err
	}

	result := d.normalizer.Normalize(raw)
	for _, skip := range result.Skips {
		logger.Debug("Skipped record",
			zap.Int("index", skip.Index),
			zap.String("reason", skip.Reason))
	}
	diag.Fetched = len(raw)
	diag.Normalized = len(result.Records)
	diag.Skipped = result.Skipped
	diag.Skips = result.Skips
	diag.Duplicates = result.Duplicates

	reference := d.ReferenceDate()
	report := d.buildReport(result.Records, reference)

	dashboard := &models.Dashboard{
		RefreshID:     refreshID,
		GeneratedAt:   d.opts.Now(),
		ReferenceDate: reference,
		WeekStartDay:  strings.ToLower(d.opts.Weekly.WeekStart.String()),
		Crew:          report.Crew,
		Runners:       report.Runners,
		Leaderboard:   weekly.Leaderboard(result.Records, reference, d.opts.Weekly),
		WeeklyTotals:  weekly.WeeklyTotals(result.Records, "", reference, d.opts.ChartWeeks, d.opts.Weekly),
		Activities:    result.Records,
		Diagnostics:   diag,
		Weather:       d.currentWeather(ctx, logger),
	}

	d.mu.Lock()
	d.last = dashboard
	d.lastRefresh = dashboard.GeneratedAt
	d.successCount++
	d.mu.Unlock()

	logger.Info("Dashboard refreshed",
		zap.Int("fetched", diag.Fetched),
		zap.Int("normalized", diag.Normalized),
		zap.Int("skipped", diag.Skipped),
		zap.Int("duplicates", diag.Duplicates),
		zap.Int("runners", len(report.Runners)),
		zap.Duration("duration", time.Since(startTime)))

	return dashboard, nil
}

type fetchResult struct {
	records []models.RawRecord
	cached  bool
	err     error
}

// fetchAll reads every source concurrently and concatenates the snapshots in
// source order.
func (d *Dashboard) fetchAll(ctx context.Context, force bool, logger *zap.Logger) ([]models.RawRecord, models.Diagnostics, error) {
	var diag models.Diagnostics
	if len(d.sources) == 0 {
		return nil, diag, ErrNoSources
	}

	fetchCtx, cancel := context.WithTimeout(ctx, d.opts.FetchTimeout)
	defer cancel()

	var wg sync.WaitGroup
	results := make([]fetchResult, len(d.sources))

	for i, src := range d.sources {
		wg.Add(1)
		go func(i int, src source.RecordSource) {
			defer wg.Done()

			if !force && d.cache != nil {
				if records, ok := d.cache.GetSnapshot(src.Name()); ok {
					results[i] = fetchResult{records: records, cached: true}
					return
				}
			}

			records, err := src.Fetch(fetchCtx)
			if err != nil {
				logger.Error("Failed to fetch records from source",
					zap.String("source", src.Name()),
					zap.Error(err))
				results[i] = fetchResult{err: err}
				return
			}
			if d.cache != nil {
				d.cache.SetSnapshot(src.Name(), records)
			}
			results[i] = fetchResult{records: records}
		}(i, src)
	}
	wg.Wait()

	var raw []models.RawRecord
	succeeded, cached := 0, 0
	var errs []error
	for i, r := range results {
		if r.err != nil {
			if diag.SourceErrors == nil {
				diag.SourceErrors = make(map[string]string)
			}
			diag.SourceErrors[d.sources[i].Name()] = r.err.Error()
			errs = append(errs, fmt.Errorf("%s: %w", d.sources[i].Name(), r.err))
			continue
		}
		succeeded++
		if r.cached {
			cached++
		}
		raw = append(raw, r.records...)
	}

	if succeeded == 0 {
		return nil, diag, fmt.Errorf("%w: %w", ErrAllSourcesFailed, errors.Join(errs...))
	}
	diag.CacheHit = cached == succeeded
	return raw, diag, nil
}

// buildReport computes the crew summary and one summary per runner, each in
// its own goroutine over the shared read-only record slice.
func (d *Dashboard) buildReport(records []models.ActivityRecord, reference time.Time) models.CrewReport {
	runners := weekly.Runners(records, d.opts.Roster)
	report := models.CrewReport{Runners: make([]models.WeeklySummary, len(runners))}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		report.Crew = weekly.Summarize(records, "", reference, d.opts.Weekly)
	}()
	for i, name := range runners {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			report.Runners[i] = weekly.Summarize(records, name, reference, d.opts.Weekly)
		}(i, name)
	}
	wg.Wait()

	return report
}

// currentWeather never fails the refresh; a missing reading is logged and
// left out.
func (d *Dashboard) currentWeather(ctx context.Context, logger *zap.Logger) *models.AggregatedCurrentWeather {
	if d.opts.Weather == nil || len(d.weather) == 0 {
		return nil
	}
	loc := *d.opts.Weather

	if d.cache != nil {
		if cached, ok := d.cache.GetWeather(loc.Name); ok {
			return cached
		}
	}

	fetchCtx, cancel := context.WithTimeout(ctx, d.opts.FetchTimeout)
	defer cancel()

	weather, err := fetchWeather(fetchCtx, d.weather, loc, logger)
	if err != nil {
		logger.Warn("Weather unavailable", zap.Error(err))
		return nil
	}
	if d.cache != nil {
		d.cache.SetWeather(loc.Name, weather)
	}
	return weather
}

// Runner returns the summary of one runner from the current dashboard.
func (d *Dashboard) Runner(ctx context.Context, name string) (*models.WeeklySummary, error) {
	dashboard, err := d.Current(ctx)
	if err != nil {
		return nil, err
	}
	name = normalizer.RunnerName(name)
	for i := range dashboard.Runners {
		if dashboard.Runners[i].Runner == name {
			summary := dashboard.Runners[i]
			return &summary, nil
		}
	}
	return nil, ErrRunnerNotFound
}

// Activities returns canonical records, newest first, optionally for a single
// runner and capped at limit when limit is positive.
func (d *Dashboard) Activities(ctx context.Context, runner string, limit int) ([]models.ActivityView, error) {
	dashboard, err := d.Current(ctx)
	if err != nil {
		return nil, err
	}

	runner = normalizer.RunnerName(runner)
	views := make([]models.ActivityView, 0, len(dashboard.Activities))
	for _, a := range dashboard.Activities {
		if runner != "" && a.Runner != runner {
			continue
		}
		views = append(views, a.View())
		if limit > 0 && len(views) == limit {
			break
		}
	}
	return views, nil
}

func (d *Dashboard) GetLastRefreshTime() time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastRefresh
}

func (d *Dashboard) GetStats() map[string]interface{} {
	d.mu.RLock()
	defer d.mu.RUnlock()

	names := make([]string, len(d.sources))
	for i, s := range d.sources {
		names[i] = s.Name()
	}
	sort.Strings(names)

	stats := map[string]interface{}{
		"last_refresh_time": d.lastRefresh,
		"success_count":     d.successCount,
		"failure_count":     d.failureCount,
		"sources":           names,
		"weather_clients":   len(d.weather),
	}
	if d.last != nil {
		stats["runners"] = len(d.last.Runners)
		stats["activities"] = len(d.last.Activities)
		stats["diagnostics"] = d.last.Diagnostics
	}
	if d.cache != nil {
		stats["cache_stats"] = d.cache.GetStats()
	}
	return stats
}
