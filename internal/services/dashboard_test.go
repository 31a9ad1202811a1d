package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/redrabbit14-cmyk/my-running-dash/internal/models"
	"github.com/redrabbit14-cmyk/my-running-dash/internal/normalizer"
	"github.com/redrabbit14-cmyk/my-running-dash/internal/source"
	"github.com/redrabbit14-cmyk/my-running-dash/internal/weekly"
	"github.com/redrabbit14-cmyk/my-running-dash/pkg/client"
)

type fakeSource struct {
	name    string
	records []models.RawRecord
	err     error
	calls   int32
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Fetch(ctx context.Context) ([]models.RawRecord, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return nil, f.err
	}
	return f.records, nil
}

type fakeWeather struct {
	reading *models.CurrentWeather
	err     error
}

func (f *fakeWeather) GetCurrentWeather(ctx context.Context, loc models.Location) (*models.CurrentWeather, error) {
	if f.err != nil {
		return nil, f.err
	}
	r := *f.reading
	r.Location = loc.Name
	return &r, nil
}

var reference = time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)

func crewRecords() []models.RawRecord {
	return []models.RawRecord{
		{"runner": "alice", "date": "2024-01-08", "distance": 10, "duration": "50:00"},
		{"runner": "alice", "date": "2024-01-09", "distance": 2, "duration": "20:00"},
		{"runner": "bob", "date": "2024-01-03", "distance": 15000},
		{"runner": "bob", "date": "2024-01-09", "distance": 6, "elevation": 120},
		{"runner": "", "date": "2024-01-09", "distance": 3},
	}
}

func toSources(fakes []*fakeSource) []source.RecordSource {
	out := make([]source.RecordSource, len(fakes))
	for i, f := range fakes {
		out[i] = f
	}
	return out
}

func newTestDashboard(sources []*fakeSource, weather []client.WeatherClient, cache *SnapshotCache) *Dashboard {
	return NewDashboard(toSources(sources), weather, cache, DashboardOptions{
		Roster:        []string{"carol"},
		Weekly:        weekly.DefaultOptions(),
		Normalizer:    normalizer.DefaultOptions(),
		ReferenceDate: reference,
		Location:      time.UTC,
		Weather:       &models.Location{Name: "Seoul", Latitude: 37.5665, Longitude: 126.978},
		Now:           func() time.Time { return reference.Add(9 * time.Hour) },
	}, zap.NewNop())
}

func TestDashboard_RefreshBuildsReport(t *testing.T) {
	src := &fakeSource{name: "notion", records: crewRecords()}
	d := newTestDashboard([]*fakeSource{src}, nil, nil)

	dash, err := d.Refresh(context.Background(), false)
	require.NoError(t, err)

	assert.NotEmpty(t, dash.RefreshID)
	assert.Equal(t, "monday", dash.WeekStartDay)
	assert.True(t, reference.Equal(dash.ReferenceDate))
	assert.Equal(t, 5, dash.Diagnostics.Fetched)
	assert.Equal(t, 4, dash.Diagnostics.Normalized)
	assert.Equal(t, 1, dash.Diagnostics.Skipped)
	assert.Nil(t, dash.Weather)

	require.Len(t, dash.Runners, 3)
	assert.Equal(t, []string{"alice", "bob", "carol"}, []string{dash.Runners[0].Runner, dash.Runners[1].Runner, dash.Runners[2].Runner})

	alice := dash.Runners[0]
	require.NotNil(t, alice.WeightedAvgPaceSecPerKm)
	assert.InDelta(t, 350.0, *alice.WeightedAvgPaceSecPerKm, 1e-9)

	bob := dash.Runners[1]
	assert.InDelta(t, 15.0, bob.PriorWeekDistanceKm, 1e-9)
	require.NotNil(t, bob.PercentChange)
	assert.InDelta(t, -60.0, *bob.PercentChange, 1e-9)

	assert.Equal(t, 0, dash.Runners[2].RunCount)
	assert.Equal(t, 3, dash.Crew.RunCount)
	require.Len(t, dash.WeeklyTotals, 12)
	require.Len(t, dash.Leaderboard, 2)
	assert.Equal(t, "alice", dash.Leaderboard[0].Runner)
}

func TestDashboard_ConcurrentBuildMatchesSequentialReport(t *testing.T) {
	src := &fakeSource{name: "notion", records: crewRecords()}
	d := newTestDashboard([]*fakeSource{src}, nil, nil)

	dash, err := d.Refresh(context.Background(), false)
	require.NoError(t, err)

	want := weekly.Report(dash.Activities, []string{"carol"}, reference, weekly.DefaultOptions())
	assert.Equal(t, want.Crew, dash.Crew)
	assert.Equal(t, want.Runners, dash.Runners)
}

func TestDashboard_PartialSourceFailure(t *testing.T) {
	good := &fakeSource{name: "notion", records: crewRecords()}
	bad := &fakeSource{name: "sheet", err: errors.New("connection refused")}
	d := newTestDashboard([]*fakeSource{good, bad}, nil, nil)

	dash, err := d.Refresh(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "connection refused", dash.Diagnostics.SourceErrors["sheet"])
	assert.Equal(t, 4, dash.Diagnostics.Normalized)
}

func TestDashboard_AllSourcesFail(t *testing.T) {
	bad := &fakeSource{name: "sheet", err: errors.New("timeout")}
	d := newTestDashboard([]*fakeSource{bad}, nil, nil)

	_, err := d.Refresh(context.Background(), false)
	assert.ErrorIs(t, err, ErrAllSourcesFailed)
	assert.Equal(t, 1, d.GetStats()["failure_count"])

	empty := newTestDashboard(nil, nil, nil)
	_, err = empty.Refresh(context.Background(), false)
	assert.ErrorIs(t, err, ErrNoSources)
}

func TestDashboard_DuplicatesAcrossSources(t *testing.T) {
	a := &fakeSource{name: "a", records: []models.RawRecord{{"runner": "A", "date": "2024-01-01", "distance": 15000}}}
	b := &fakeSource{name: "b", records: []models.RawRecord{{"runner": "A", "date": "2024-01-01", "distance": 15000}}}
	d := newTestDashboard([]*fakeSource{a, b}, nil, nil)

	dash, err := d.Refresh(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, dash.Activities, 1)
	assert.InDelta(t, 15.0, dash.Activities[0].DistanceKm, 1e-9)
	assert.Equal(t, 1, dash.Diagnostics.Duplicates)
}

func TestDashboard_SnapshotCache(t *testing.T) {
	cache := NewSnapshotCache(time.Minute, 100, zap.NewNop())
	defer cache.Stop()

	src := &fakeSource{name: "notion", records: crewRecords()}
	d := newTestDashboard([]*fakeSource{src}, nil, cache)

	first, err := d.Refresh(context.Background(), false)
	require.NoError(t, err)
	assert.False(t, first.Diagnostics.CacheHit)

	second, err := d.Refresh(context.Background(), false)
	require.NoError(t, err)
	assert.True(t, second.Diagnostics.CacheHit)
	assert.Equal(t, int32(1), atomic.LoadInt32(&src.calls))
	assert.NotEqual(t, first.RefreshID, second.RefreshID)
	assert.Equal(t, first.Runners, second.Runners)

	_, err = d.Refresh(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&src.calls))
}

func TestDashboard_Weather(t *testing.T) {
	src := &fakeSource{name: "notion", records: crewRecords()}

	t.Run("aggregates readings", func(t *testing.T) {
		weather := []client.WeatherClient{
			&fakeWeather{reading: &models.CurrentWeather{Temperature: -2, Description: "Snow", Source: "b"}},
			&fakeWeather{reading: &models.CurrentWeather{Temperature: -4, Description: "Snow", Source: "a"}},
		}
		d := newTestDashboard([]*fakeSource{src}, weather, nil)

		dash, err := d.Refresh(context.Background(), false)
		require.NoError(t, err)
		require.NotNil(t, dash.Weather)
		assert.Equal(t, "Seoul", dash.Weather.Location)
		assert.InDelta(t, -3.0, dash.Weather.Temperature, 1e-9)
		assert.Equal(t, []string{"a", "b"}, dash.Weather.Sources)
	})

	t.Run("failure is not fatal", func(t *testing.T) {
		weather := []client.WeatherClient{&fakeWeather{err: errors.New("503")}}
		d := newTestDashboard([]*fakeSource{src}, weather, nil)

		dash, err := d.Refresh(context.Background(), false)
		require.NoError(t, err)
		assert.Nil(t, dash.Weather)
	})
}

func TestDashboard_Queries(t *testing.T) {
	src := &fakeSource{name: "notion", records: crewRecords()}
	d := newTestDashboard([]*fakeSource{src}, nil, nil)
	ctx := context.Background()

	views, err := d.Activities(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, views, 4)
	assert.True(t, views[0].Date.After(views[3].Date))

	views, err = d.Activities(ctx, "alice", 1)
	require.NoError(t, err)
	require.Len(t, views, 1)
	require.NotNil(t, views[0].PaceSecPerKm)
	assert.InDelta(t, 600.0, *views[0].PaceSecPerKm, 1e-9)

	summary, err := d.Runner(ctx, "carol")
	require.NoError(t, err)
	assert.Equal(t, "carol", summary.Runner)

	_, err = d.Runner(ctx, "zed")
	assert.ErrorIs(t, err, ErrRunnerNotFound)

	assert.Equal(t, int32(1), atomic.LoadInt32(&src.calls))
	assert.False(t, d.GetLastRefreshTime().IsZero())
}
