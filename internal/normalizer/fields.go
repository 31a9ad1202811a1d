package normalizer

import (
	"encoding/json"
	"math"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redrabbit14-cmyk/my-running-dash/internal/models"
)

// maxNestingDepth bounds the search inside container values.
const maxNestingDepth = 4

// maxDurationSeconds caps durations and paces so every value fits an int32.
const maxDurationSeconds = math.MaxInt32

// toSeconds rounds a non-negative second count, rejecting values that would
// overflow the conversion to int.
func toSeconds(f float64) (int, bool) {
	if math.IsNaN(f) || f < 0 || f > maxDurationSeconds {
		return 0, false
	}
	return int(math.Round(f)), true
}

var dateOnlyLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"2006.01.02",
	"20060102",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
}

var instantLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000-0700",
	"2006-01-02T15:04:05-0700",
}

// toFloat accepts the numeric shapes produced by JSON and Firestore decoding
// as well as numeric strings.
func toFloat(value interface{}) (float64, bool) {
	var f float64
	switch v := value.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int32:
		f = float64(v)
	case int64:
		f = float64(v)
	case uint:
		f = float64(v)
	case uint32:
		f = float64(v)
	case uint64:
		f = float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// parseDistance returns the numeric value and any unit carried by the value
// itself, e.g. "10.5km" or "5000 m".
func parseDistance(value interface{}) (float64, string, bool) {
	s, isString := value.(string)
	if !isString {
		f, ok := toFloat(value)
		return f, unitUnknown, ok
	}

	s = strings.ToLower(strings.TrimSpace(s))
	unit := unitUnknown
	for _, suffix := range []struct{ text, unit string }{
		{"km", unitKm},
		{"k", unitKm},
		{"mi", unitMiles},
		{"m", unitMeters},
	} {
		if strings.HasSuffix(s, suffix.text) {
			s = strings.TrimSpace(strings.TrimSuffix(s, suffix.text))
			unit = suffix.unit
			break
		}
	}
	f, ok := toFloat(s)
	return f, unit, ok
}

// parseUnitTag maps a free-form unit tag to a known unit.
func parseUnitTag(value interface{}) string {
	s, ok := value.(string)
	if !ok {
		return unitUnknown
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "km", "kms", "kilometer", "kilometers", "kilometre", "kilometres":
		return unitKm
	case "m", "meter", "meters", "metre", "metres":
		return unitMeters
	case "mi", "mile", "miles":
		return unitMiles
	}
	return unitUnknown
}

// toKilometers converts a raw distance using its unit, falling back to the
// magnitude heuristic when no unit is known.
func toKilometers(value float64, unit string, threshold float64) float64 {
	switch unit {
	case unitKm:
		return value
	case unitMeters:
		return value / 1000
	case unitMiles:
		return value * metersPerMile / 1000
	}
	if value > threshold {
		return value / 1000
	}
	return value
}

// parseClock parses "M:SS" or "H:MM:SS" into seconds. Apostrophe notation
// such as 5'30" is accepted as M:SS.
func parseClock(s string) (int, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "\"")
	s = strings.ReplaceAll(s, "'", ":")
	s = strings.ReplaceAll(s, "’", ":")

	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, false
	}

	values := make([]float64, len(parts))
	for i, part := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil || f < 0 {
			return 0, false
		}
		values[i] = f
	}

	// Every field after the leading one is a base-60 digit.
	for _, v := range values[1:] {
		if v >= 60 {
			return 0, false
		}
	}

	total := 0.0
	for _, v := range values {
		total = total*60 + v
	}
	return toSeconds(total)
}

// decimalMinutesToSeconds converts 5.5 to 5 minutes 30 seconds.
func decimalMinutesToSeconds(minutes float64) int {
	whole := math.Floor(minutes)
	return int(whole)*60 + int(math.Round((minutes-whole)*60))
}

// parseClockOrMinutes handles the shared pace/duration encodings: a clock
// string or a decimal number of minutes.
func parseClockOrMinutes(value interface{}) (int, bool) {
	if s, ok := value.(string); ok && strings.ContainsAny(s, ":'’") {
		return parseClock(s)
	}
	f, ok := toFloat(value)
	if !ok || f < 0 || f*60 > maxDurationSeconds {
		return 0, false
	}
	return decimalMinutesToSeconds(f), true
}

// parseDuration reads a duration in seconds. Bare numbers are minutes unless
// the alias name says they are seconds.
func parseDuration(key string, value interface{}) (int, bool) {
	lower := strings.ToLower(key)
	inSeconds := strings.HasSuffix(lower, "seconds") || strings.HasSuffix(lower, "_time")
	if s, ok := value.(string); ok && strings.ContainsAny(s, ":'’") {
		inSeconds = false
	}
	if !inSeconds {
		return parseClockOrMinutes(value)
	}

	f, ok := toFloat(value)
	if !ok {
		return 0, false
	}
	return toSeconds(f)
}

// speedToPace converts meters per second into seconds per kilometer.
func speedToPace(speed float64) float64 {
	return 1000 / speed
}

// parseElevation accepts numbers and strings with an optional "m" suffix.
func parseElevation(value interface{}) (float64, bool) {
	if s, ok := value.(string); ok {
		value = strings.TrimSpace(strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "m"))
	}
	f, ok := toFloat(value)
	if !ok || f < 0 {
		return 0, false
	}
	return f, true
}

// parseDate resolves a date value to local midnight in loc.
func parseDate(value interface{}, loc *time.Location) (time.Time, bool) {
	return parseDateDepth(value, loc, 0)
}

func parseDateDepth(value interface{}, loc *time.Location, depth int) (time.Time, bool) {
	if depth > maxNestingDepth {
		return time.Time{}, false
	}

	switch v := value.(type) {
	case time.Time:
		if v.IsZero() {
			return time.Time{}, false
		}
		return midnight(v.In(loc)), true
	case *time.Time:
		if v == nil {
			return time.Time{}, false
		}
		return parseDateDepth(*v, loc, depth+1)
	case string:
		s := strings.TrimSpace(v)
		for _, layout := range instantLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return midnight(t.In(loc)), true
			}
		}
		for _, layout := range dateOnlyLayouts {
			if t, err := time.ParseInLocation(layout, s, loc); err == nil {
				return midnight(t), true
			}
		}
	case map[string]interface{}:
		if start, ok := v["start"]; ok {
			return parseDateDepth(start, loc, depth+1)
		}
	case models.RawRecord:
		return parseDateDepth(map[string]interface{}(v), loc, depth)
	}
	return time.Time{}, false
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// textKeys are probed when a runner value is a container, e.g. a
// {"name": "..."} object or a rich-text list.
var textKeys = []string{"name", "title", "plain_text", "content", "text"}

func extractText(value interface{}, depth int) (string, bool) {
	if depth > maxNestingDepth {
		return "", false
	}

	switch v := value.(type) {
	case string:
		s := strings.TrimSpace(v)
		return s, s != ""
	case map[string]interface{}:
		for _, k := range textKeys {
			if inner, ok := v[k]; ok {
				if s, ok := extractText(inner, depth+1); ok {
					return s, true
				}
			}
		}
	case models.RawRecord:
		return extractText(map[string]interface{}(v), depth)
	case []interface{}:
		for _, item := range v {
			if s, ok := extractText(item, depth+1); ok {
				return s, true
			}
		}
	case []string:
		for _, item := range v {
			if s := strings.TrimSpace(item); s != "" {
				return s, true
			}
		}
	}
	return "", false
}

// urlKeys are probed first when an evidence value is a container.
var urlKeys = []string{"url", "href", "src", "file", "external", "files"}

// extractURL finds the first http(s) URL in an evidence value.
func extractURL(value interface{}, depth int) (string, bool) {
	if depth > maxNestingDepth {
		return "", false
	}

	switch v := value.(type) {
	case string:
		return validURL(v)
	case map[string]interface{}:
		for _, k := range urlKeys {
			if inner, ok := v[k]; ok {
				if u, ok := extractURL(inner, depth+1); ok {
					return u, true
				}
			}
		}
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if u, ok := extractURL(v[k], depth+1); ok {
				return u, true
			}
		}
	case models.RawRecord:
		return extractURL(map[string]interface{}(v), depth)
	case []interface{}:
		for _, item := range v {
			if u, ok := extractURL(item, depth+1); ok {
				return u, true
			}
		}
	case []string:
		for _, item := range v {
			if u, ok := validURL(item); ok {
				return u, true
			}
		}
	}
	return "", false
}

func validURL(s string) (string, bool) {
	s = strings.TrimSpace(s)
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return "", false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	return s, true
}
