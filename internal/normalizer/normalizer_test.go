package normalizer

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redrabbit14-cmyk/my-running-dash/internal/models"
)

func newTestNormalizer() *Normalizer {
	return New(Options{DistanceUnitThreshold: 100, Location: time.UTC})
}

func day(s string) time.Time {
	t, _ := time.ParseInLocation("2006-01-02", s, time.UTC)
	return t
}

func TestNormalize_DuplicateMetersCollapse(t *testing.T) {
	raw := []models.RawRecord{
		{"runner": "A", "date": "2024-01-01", "distance": 15000},
		{"runner": "A", "date": "2024-01-01", "distance": 15000},
	}

	result := newTestNormalizer().Normalize(raw)

	require.Len(t, result.Records, 1)
	assert.Equal(t, "A", result.Records[0].Runner)
	assert.True(t, day("2024-01-01").Equal(result.Records[0].Date))
	assert.InDelta(t, 15.0, result.Records[0].DistanceKm, 1e-9)
	assert.Equal(t, 1, result.Duplicates)
	assert.Equal(t, 0, result.Skipped)
}

func TestNormalize_DistanceUnitThreshold(t *testing.T) {
	tests := []struct {
		name     string
		record   models.RawRecord
		expected float64
	}{
		{"kilometers under threshold", models.RawRecord{"distance": 10.5}, 10.5},
		{"exactly threshold stays km", models.RawRecord{"distance": 100}, 100},
		{"meters over threshold", models.RawRecord{"distance": 5230}, 5.23},
		{"just over threshold", models.RawRecord{"distance": 100.5}, 0.1005},
		{"numeric string", models.RawRecord{"distance": "7.2"}, 7.2},
		{"km suffix wins over heuristic", models.RawRecord{"distance": "150km"}, 150},
		{"meter suffix", models.RawRecord{"distance": "800 m"}, 0.8},
		{"tagged km alias", models.RawRecord{"distance_km": 120}, 120},
		{"tagged meters alias", models.RawRecord{"distance_m": 50}, 0.05},
		{"unit field", models.RawRecord{"distance": 150, "distance_unit": "km"}, 150},
		{"miles unit field", models.RawRecord{"distance": 1, "unit": "mi"}, 1.609344},
		{"korean alias", models.RawRecord{"거리": 21097}, 21.097},
		{"json number", models.RawRecord{"distance": json.Number("3000")}, 3},
		{"missing distance", models.RawRecord{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := models.RawRecord{"runner": "A", "date": "2024-01-01"}
			for k, v := range tt.record {
				rec[k] = v
			}
			result := newTestNormalizer().Normalize([]models.RawRecord{rec})
			require.Len(t, result.Records, 1)
			assert.InDelta(t, tt.expected, result.Records[0].DistanceKm, 1e-9)
		})
	}
}

func TestNormalize_ConfigurableThreshold(t *testing.T) {
	n := New(Options{DistanceUnitThreshold: 250, Location: time.UTC})
	result := n.Normalize([]models.RawRecord{{"runner": "A", "date": "2024-01-01", "distance": 160}})
	require.Len(t, result.Records, 1)
	assert.InDelta(t, 160, result.Records[0].DistanceKm, 1e-9)
}

func TestNormalize_PaceShapes(t *testing.T) {
	tests := []struct {
		name         string
		fields       models.RawRecord
		wantDuration int
		wantPace     float64
	}{
		{"clock pace", models.RawRecord{"pace": "5:30"}, 3300, 330},
		{"decimal minutes string", models.RawRecord{"pace": "5.5"}, 3300, 330},
		{"decimal minutes number", models.RawRecord{"pace": 5.5}, 3300, 330},
		{"apostrophe pace", models.RawRecord{"페이스": "5'30\""}, 3300, 330},
		{"speed in m/s", models.RawRecord{"average_speed": 4.0}, 2500, 250},
		{"clock duration", models.RawRecord{"duration": "0:50:00"}, 3000, 300},
		{"long clock duration", models.RawRecord{"duration": "1:02:30"}, 3750, 375},
		{"minutes duration", models.RawRecord{"duration": 55}, 3300, 330},
		{"seconds alias", models.RawRecord{"moving_time": 3000}, 3000, 300},
		{"duration beats pace", models.RawRecord{"duration": "50:00", "pace": "9:00"}, 3000, 300},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := models.RawRecord{"runner": "A", "date": "2024-01-01", "distance": 10}
			for k, v := range tt.fields {
				rec[k] = v
			}
			result := newTestNormalizer().Normalize([]models.RawRecord{rec})
			require.Len(t, result.Records, 1)

			got := result.Records[0]
			assert.Equal(t, tt.wantDuration, got.DurationSeconds)
			require.NotNil(t, got.Pace())
			assert.InDelta(t, tt.wantPace, *got.Pace(), 1e-9)
		})
	}
}

func TestNormalize_NoPaceFields(t *testing.T) {
	result := newTestNormalizer().Normalize([]models.RawRecord{
		{"runner": "A", "date": "2024-01-01", "distance": 10},
	})
	require.Len(t, result.Records, 1)
	assert.Equal(t, 0, result.Records[0].DurationSeconds)
	assert.Nil(t, result.Records[0].Pace())
}

func TestDecimalMinutesToSeconds(t *testing.T) {
	tests := []struct {
		minutes  float64
		expected int
	}{
		{5.5, 330},
		{5.25, 315},
		{6, 360},
		{0.5, 30},
		{4.999, 300},
	}

	for _, tt := range tests {
		result := decimalMinutesToSeconds(tt.minutes)
		if result != tt.expected {
			t.Errorf("decimalMinutesToSeconds(%v) = %d, want %d", tt.minutes, result, tt.expected)
		}
	}
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		input    string
		expected int
		ok       bool
	}{
		{"5:30", 330, true},
		{"0:45", 45, true},
		{"65:00", 3900, true},
		{"1:02:30", 3750, true},
		{"5:75", 0, false},
		{"1:75:00", 0, false},
		{"abc", 0, false},
		{"1:2:3:4", 0, false},
		{"-5:30", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result, ok := parseClock(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestNormalize_SkipsAreCountedNotFatal(t *testing.T) {
	raw := []models.RawRecord{
		{"date": "2024-01-01", "distance": 5},                   // no runner
		{"runner": "A", "distance": 5},                           // no date
		{"runner": "A", "date": "yesterday-ish", "distance": 5},  // bad date
		{"runner": "A", "date": "2024-01-01", "distance": "far"}, // bad distance
		{"runner": "A", "date": "2024-01-01", "distance": -3},    // negative distance
		{"runner": "A", "date": "2024-01-01", "pace": "fast"},    // bad pace
		{"runner": "A", "date": "2024-01-01", "elevation": "hilly"},
		{"runner": "A", "date": "2024-01-01", "distance": 10, "duration_seconds": 1e20},
		{"runner": "A", "date": "2024-01-01", "distance": 10, "pace": 1e18},
		{"runner": "A", "date": "2024-01-01", "distance": 10, "speed": 1e-300},
		{"runner": "A", "date": "2024-01-01", "distance": 10, "duration": "99999999:00:00"},
		{"runner": "B", "date": "2024-01-02", "distance": 5},
	}

	result := newTestNormalizer().Normalize(raw)

	require.Len(t, result.Records, 1)
	assert.Equal(t, "B", result.Records[0].Runner)
	assert.Equal(t, 11, result.Skipped)
	require.Len(t, result.Skips, 11)
	assert.Equal(t, models.SkippedRecord{Index: 0, Reason: ReasonMissingRunner}, result.Skips[0])
	assert.Equal(t, models.SkippedRecord{Index: 1, Reason: ReasonMissingDate}, result.Skips[1])
	assert.Equal(t, ReasonInvalidDate, result.Skips[2].Reason)
	assert.Equal(t, ReasonInvalidDistance, result.Skips[3].Reason)
	assert.Equal(t, ReasonInvalidDistance, result.Skips[4].Reason)
	assert.Equal(t, ReasonInvalidPace, result.Skips[5].Reason)
	assert.Equal(t, ReasonInvalidElevation, result.Skips[6].Reason)
	assert.Equal(t, ReasonInvalidDuration, result.Skips[7].Reason)
	assert.Equal(t, ReasonInvalidPace, result.Skips[8].Reason)
	assert.Equal(t, ReasonInvalidPace, result.Skips[9].Reason)
	assert.Equal(t, ReasonInvalidDuration, result.Skips[10].Reason)
}

func TestNormalize_BareDurationNumberIsMinutes(t *testing.T) {
	tests := []struct {
		name     string
		fields   models.RawRecord
		expected int
	}{
		{"duration number", models.RawRecord{"duration": 3600}, 216000},
		{"time number", models.RawRecord{"time": 45}, 2700},
		{"decimal minutes", models.RawRecord{"duration": 50.5}, 3030},
		{"seconds alias", models.RawRecord{"duration_seconds": 3600}, 3600},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := models.RawRecord{"runner": "A", "date": "2024-01-01", "distance": 10}
			for k, v := range tt.fields {
				rec[k] = v
			}
			result := newTestNormalizer().Normalize([]models.RawRecord{rec})
			require.Len(t, result.Records, 1)
			assert.Equal(t, tt.expected, result.Records[0].DurationSeconds)
		})
	}
}

func TestNormalize_BlankRunnerIsMissing(t *testing.T) {
	result := newTestNormalizer().Normalize([]models.RawRecord{
		{"runner": "   ", "date": "2024-01-01"},
	})
	assert.Empty(t, result.Records)
	assert.Equal(t, ReasonMissingRunner, result.Skips[0].Reason)
}

func TestNormalize_DecomposedRunnerNameMerges(t *testing.T) {
	composed := "\uc9c0\ubbfc"
	decomposed := "\u110c\u1175\u1106\u1175\u11ab"

	result := newTestNormalizer().Normalize([]models.RawRecord{
		{"runner": composed, "date": "2024-01-01", "distance": 5},
		{"runner": decomposed + " ", "date": "2024-01-01", "distance": 5},
	})

	require.Len(t, result.Records, 1)
	assert.Equal(t, composed, result.Records[0].Runner)
	assert.Equal(t, 1, result.Duplicates)
	assert.Equal(t, composed, RunnerName(decomposed))
}

func TestNormalize_DateShapes(t *testing.T) {
	seoul, err := time.LoadLocation("Asia/Seoul")
	require.NoError(t, err)
	n := New(Options{Location: seoul})

	tests := []struct {
		name  string
		value interface{}
		want  time.Time
	}{
		{"iso date", "2024-03-05", time.Date(2024, 3, 5, 0, 0, 0, 0, seoul)},
		{"slashes", "2024/03/05", time.Date(2024, 3, 5, 0, 0, 0, 0, seoul)},
		{"dots", "2024.03.05", time.Date(2024, 3, 5, 0, 0, 0, 0, seoul)},
		{"compact", "20240305", time.Date(2024, 3, 5, 0, 0, 0, 0, seoul)},
		{"rfc3339 shifts into location", "2024-03-04T20:30:00Z", time.Date(2024, 3, 5, 0, 0, 0, 0, seoul)},
		{"time value", time.Date(2024, 3, 5, 7, 15, 0, 0, seoul), time.Date(2024, 3, 5, 0, 0, 0, 0, seoul)},
		{"notion date object", map[string]interface{}{"start": "2024-03-05"}, time.Date(2024, 3, 5, 0, 0, 0, 0, seoul)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := n.Normalize([]models.RawRecord{{"runner": "A", "날짜": tt.value}})
			require.Len(t, result.Records, 1)
			assert.True(t, tt.want.Equal(result.Records[0].Date), "got %v, want %v", result.Records[0].Date, tt.want)
		})
	}
}

func TestNormalize_AliasResolution(t *testing.T) {
	result := newTestNormalizer().Normalize([]models.RawRecord{
		{
			"Runner_Name":          "Mina",
			"Run_Date":             "2024-01-03",
			"DIST":                 "8",
			"total_elevation_gain": "120m",
		},
		{
			"크루원":  map[string]interface{}{"name": "  Joon "},
			"날짜":   "2024-01-02",
			"거리":   6,
			"고도":   35.5,
			"이름":   "Joon Park",
			"runner": nil,
		},
	})

	require.Len(t, result.Records, 2)
	assert.Equal(t, "Mina", result.Records[0].Runner)
	assert.InDelta(t, 8, result.Records[0].DistanceKm, 1e-9)
	assert.InDelta(t, 120, result.Records[0].ElevationM, 1e-9)

	// "이름" precedes "크루원" in the alias table.
	assert.Equal(t, "Joon Park", result.Records[1].Runner)
	assert.InDelta(t, 35.5, result.Records[1].ElevationM, 1e-9)
}

func TestNormalize_RunnerContainer(t *testing.T) {
	result := newTestNormalizer().Normalize([]models.RawRecord{
		{
			"runner": map[string]interface{}{"title": []interface{}{map[string]interface{}{"plain_text": "Hana"}}},
			"date":   "2024-01-01",
		},
	})
	require.Len(t, result.Records, 1)
	assert.Equal(t, "Hana", result.Records[0].Runner)
}

func TestNormalize_EvidenceExtraction(t *testing.T) {
	tests := []struct {
		name  string
		value interface{}
		want  *string
	}{
		{"direct url", "https://img.example.com/a.jpg", strPtr("https://img.example.com/a.jpg")},
		{"not a url", "photo.jpg", nil},
		{"map with url", map[string]interface{}{"url": "https://img.example.com/b.jpg"}, strPtr("https://img.example.com/b.jpg")},
		{
			"notion files list",
			[]interface{}{map[string]interface{}{"name": "run.png", "file": map[string]interface{}{"url": "https://s3.example.com/run.png"}}},
			strPtr("https://s3.example.com/run.png"),
		},
		{"external object", map[string]interface{}{"external": map[string]interface{}{"url": "http://cdn.example.com/c"}}, strPtr("http://cdn.example.com/c")},
		{"string list", []string{"", "https://img.example.com/d.jpg"}, strPtr("https://img.example.com/d.jpg")},
		{"ftp rejected", "ftp://example.com/a.jpg", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := newTestNormalizer().Normalize([]models.RawRecord{
				{"runner": "A", "date": "2024-01-01", "photo": tt.value},
			})
			require.Len(t, result.Records, 1)
			assert.Equal(t, tt.want, result.Records[0].EvidenceURL)
		})
	}
}

func TestNormalize_DedupePrefersEvidence(t *testing.T) {
	raw := []models.RawRecord{
		{"runner": "A", "date": "2024-01-01", "distance": 5, "photo": "https://img.example.com/1.jpg"},
		{"runner": "A", "date": "2024-01-01", "distance": 5000, "pace": "5:00"},
	}

	result := newTestNormalizer().Normalize(raw)

	require.Len(t, result.Records, 1)
	require.NotNil(t, result.Records[0].EvidenceURL)
	assert.Equal(t, "https://img.example.com/1.jpg", *result.Records[0].EvidenceURL)
	assert.Equal(t, 0, result.Records[0].DurationSeconds)
}

func TestNormalize_DedupePrefersPopulatedThenLatest(t *testing.T) {
	raw := []models.RawRecord{
		{"runner": "A", "date": "2024-01-01", "distance": 5, "elevation": 10, "pace": "5:00"},
		{"runner": "A", "date": "2024-01-01", "distance": 5, "elevation": 20},
		{"runner": "A", "date": "2024-01-01", "distance": 5, "elevation": 30, "pace": "6:00"},
	}

	result := newTestNormalizer().Normalize(raw)

	require.Len(t, result.Records, 1)
	assert.InDelta(t, 30, result.Records[0].ElevationM, 1e-9)
	assert.Equal(t, 1800, result.Records[0].DurationSeconds)
	assert.Equal(t, 2, result.Duplicates)
}

func TestNormalize_DedupeOptionalFieldDifference(t *testing.T) {
	raw := []models.RawRecord{
		{"runner": "A", "date": "2024-01-01", "distance": 5, "elevation": 12},
		{"runner": "A", "date": "2024-01-01", "distance": 5, "elevation": 40},
		{"runner": "A", "date": "2024-01-01", "distance": 6},
	}

	result := newTestNormalizer().Normalize(raw)

	require.Len(t, result.Records, 2)
	assert.InDelta(t, 6, result.Records[0].DistanceKm, 1e-9)
	assert.InDelta(t, 5, result.Records[1].DistanceKm, 1e-9)
	assert.InDelta(t, 40, result.Records[1].ElevationM, 1e-9)
}

func TestNormalize_SortOrderAndDeterminism(t *testing.T) {
	raw := []models.RawRecord{
		{"runner": "B", "date": "2024-01-02", "distance": 3},
		{"runner": "A", "date": "2024-01-01", "distance": 4},
		{"runner": "C", "date": "2024-01-03", "distance": 5},
		{"runner": "A", "date": "2024-01-02", "distance": 6},
		{"runner": "A", "date": "2024-01-02", "distance": 2},
	}

	n := newTestNormalizer()
	first := n.Normalize(raw)
	second := n.Normalize(raw)

	assert.Equal(t, first, second)

	var order []string
	for _, r := range first.Records {
		order = append(order, r.Runner+"@"+r.Date.Format("01-02"))
	}
	assert.Equal(t, []string{"C@01-03", "A@01-02", "A@01-02", "B@01-02", "A@01-01"}, order)
	assert.InDelta(t, 6, first.Records[1].DistanceKm, 1e-9)
	assert.InDelta(t, 2, first.Records[2].DistanceKm, 1e-9)
}

func TestNormalizeValue_DecodedJSON(t *testing.T) {
	var decoded interface{}
	require.NoError(t, json.Unmarshal([]byte(`[
		{"runner": "A", "date": "2024-01-01", "distance": 15000},
		{"runner": "A", "date": "2024-01-01", "distance": 15000}
	]`), &decoded))

	result, err := newTestNormalizer().NormalizeValue(decoded)

	require.NoError(t, err)
	require.Len(t, result.Records, 1)
	assert.InDelta(t, 15.0, result.Records[0].DistanceKm, 1e-9)
}

func TestNormalizeValue_StructuralErrors(t *testing.T) {
	tests := []struct {
		name  string
		input interface{}
	}{
		{"nil", nil},
		{"single object", map[string]interface{}{"runner": "A"}},
		{"string", "not records"},
		{"list of numbers", []interface{}{1, 2}},
		{"list with nil", []interface{}{map[string]interface{}{"runner": "A"}, nil}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestNormalizer().NormalizeValue(tt.input)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrNotRecordList)
		})
	}
}

func TestNormalizeValue_EmptyList(t *testing.T) {
	result, err := newTestNormalizer().NormalizeValue([]interface{}{})
	require.NoError(t, err)
	assert.Empty(t, result.Records)
	assert.Equal(t, 0, result.Skipped)
}

func strPtr(s string) *string {
	return &s
}
