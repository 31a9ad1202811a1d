// Package normalizer turns loosely structured activity documents into
// canonical, deduplicated ActivityRecords.
package normalizer

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/redrabbit14-cmyk/my-running-dash/internal/models"
)

// DefaultDistanceUnitThreshold is the magnitude above which an untagged
// distance is read as meters.
const DefaultDistanceUnitThreshold = 100.0

// ErrNotRecordList is returned when the input is not a list of mappings at
// all. It signals a broken fetch layer, not bad activity data.
var ErrNotRecordList = errors.New("input is not a list of records")

// Skip reasons reported in Result.Skips.
const (
	ReasonMissingRunner    = "missing runner"
	ReasonMissingDate      = "missing date"
	ReasonInvalidDate      = "unparseable date"
	ReasonInvalidDistance  = "invalid distance"
	ReasonInvalidDuration  = "invalid duration"
	ReasonInvalidPace      = "invalid pace"
	ReasonInvalidElevation = "invalid elevation"
)

type Options struct {
	DistanceUnitThreshold float64
	Location              *time.Location
}

func DefaultOptions() Options {
	return Options{
		DistanceUnitThreshold: DefaultDistanceUnitThreshold,
		Location:              time.Local,
	}
}

type Normalizer struct {
	threshold float64
	loc       *time.Location
}

func New(opts Options) *Normalizer {
	if opts.DistanceUnitThreshold <= 0 {
		opts.DistanceUnitThreshold = DefaultDistanceUnitThreshold
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	return &Normalizer{
		threshold: opts.DistanceUnitThreshold,
		loc:       opts.Location,
	}
}

// Result is the canonical record set plus what was dropped on the way.
type Result struct {
	Records    []models.ActivityRecord
	Skipped    int
	Skips      []models.SkippedRecord
	Duplicates int
}

// NormalizeValue accepts an already-decoded value of unknown shape, e.g. the
// output of json.Unmarshal into interface{}.
func (n *Normalizer) NormalizeValue(input interface{}) (Result, error) {
	raw, err := AsRecords(input)
	if err != nil {
		return Result{}, err
	}
	return n.Normalize(raw), nil
}

// AsRecords checks that input is a list of mappings and converts it.
func AsRecords(input interface{}) ([]models.RawRecord, error) {
	switch v := input.(type) {
	case []models.RawRecord:
		return v, nil
	case []map[string]interface{}:
		out := make([]models.RawRecord, len(v))
		for i, m := range v {
			out[i] = m
		}
		return out, nil
	case []interface{}:
		out := make([]models.RawRecord, len(v))
		for i, item := range v {
			switch m := item.(type) {
			case map[string]interface{}:
				out[i] = m
			case models.RawRecord:
				out[i] = m
			default:
				return nil, fmt.Errorf("%w: element %d is %T", ErrNotRecordList, i, item)
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: got %T", ErrNotRecordList, input)
}

// Normalize resolves, converts, deduplicates, and sorts raw records. It never
// fails on bad data: unusable records are skipped and reported. The output is
// sorted by date descending, then runner, then distance descending.
func (n *Normalizer) Normalize(raw []models.RawRecord) Result {
	var result Result
	parsed := make([]models.ActivityRecord, 0, len(raw))

	for i, rec := range raw {
		activity, reason := n.normalizeOne(rec)
		if reason != "" {
			result.Skipped++
			result.Skips = append(result.Skips, models.SkippedRecord{Index: i, Reason: reason})
			continue
		}
		parsed = append(parsed, activity)
	}

	result.Records = dedupe(parsed)
	result.Duplicates = len(parsed) - len(result.Records)

	sort.SliceStable(result.Records, func(i, j int) bool {
		a, b := result.Records[i], result.Records[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.After(b.Date)
		}
		if a.Runner != b.Runner {
			return a.Runner < b.Runner
		}
		return a.DistanceKm > b.DistanceKm
	})

	return result
}

// RunnerName canonicalizes a display name so composed and decomposed
// spellings of the same name compare equal.
func RunnerName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

// normalizeOne returns the canonical record or the reason it was skipped.
func (n *Normalizer) normalizeOne(raw models.RawRecord) (models.ActivityRecord, string) {
	var rec models.ActivityRecord
	view := newRecordView(raw)

	runners := view.lookup(FieldRunner)
	for _, c := range runners {
		if name, ok := extractText(c.value, 0); ok {
			rec.Runner = RunnerName(name)
			break
		}
	}
	if rec.Runner == "" {
		return rec, ReasonMissingRunner
	}

	dates := view.lookup(FieldDate)
	if len(dates) == 0 {
		return rec, ReasonMissingDate
	}
	dateOK := false
	for _, c := range dates {
		if d, ok := parseDate(c.value, n.loc); ok {
			rec.Date = d
			dateOK = true
			break
		}
	}
	if !dateOK {
		return rec, ReasonInvalidDate
	}

	distance, ok := n.resolveDistance(view)
	if !ok {
		return rec, ReasonInvalidDistance
	}
	rec.DistanceKm = distance

	duration, reason := resolveDuration(view, distance)
	if reason != "" {
		return rec, reason
	}
	rec.DurationSeconds = duration

	if elevations := view.lookup(FieldElevation); len(elevations) > 0 {
		elevationOK := false
		for _, c := range elevations {
			if e, ok := parseElevation(c.value); ok {
				rec.ElevationM = e
				elevationOK = true
				break
			}
		}
		if !elevationOK {
			return rec, ReasonInvalidElevation
		}
	}

	for _, c := range view.lookup(FieldEvidence) {
		if u, ok := extractURL(c.value, 0); ok {
			rec.EvidenceURL = &u
			break
		}
	}

	return rec, ""
}

// resolveDistance returns kilometers. A record without any distance field
// has distance 0; one whose distance fields are all malformed is rejected.
func (n *Normalizer) resolveDistance(view recordView) (float64, bool) {
	tag := unitUnknown
	for _, c := range view.lookup(FieldUnit) {
		if u := parseUnitTag(c.value); u != unitUnknown {
			tag = u
			break
		}
	}

	present := false
	for _, alias := range distanceAliases {
		c, ok := view.get(alias.name)
		if !ok {
			continue
		}
		present = true

		value, unit, ok := parseDistance(c.value)
		if !ok || value < 0 {
			continue
		}
		if unit == unitUnknown {
			unit = alias.unit
		}
		if unit == unitUnknown {
			unit = tag
		}
		return toKilometers(value, unit, n.threshold), true
	}
	return 0, !present
}

// resolveDuration prefers an explicit duration, then a pace, then a speed.
// Pace-only records get a duration of pace × distance so that pace can be
// derived again later.
func resolveDuration(view recordView, distanceKm float64) (int, string) {
	if durations := view.lookup(FieldDuration); len(durations) > 0 {
		for _, c := range durations {
			if d, ok := parseDuration(c.key, c.value); ok {
				return d, ""
			}
		}
		return 0, ReasonInvalidDuration
	}

	if paces := view.lookup(FieldPace); len(paces) > 0 {
		for _, c := range paces {
			if p, ok := parseClockOrMinutes(c.value); ok {
				if d, ok := durationFromPace(float64(p), distanceKm); ok {
					return d, ""
				}
			}
		}
		return 0, ReasonInvalidPace
	}

	for _, c := range view.lookup(FieldSpeed) {
		speed, ok := toFloat(c.value)
		if !ok || speed < 0 {
			return 0, ReasonInvalidPace
		}
		if speed == 0 {
			continue
		}
		d, ok := durationFromPace(speedToPace(speed), distanceKm)
		if !ok {
			return 0, ReasonInvalidPace
		}
		return d, ""
	}

	return 0, ""
}

func durationFromPace(secPerKm, distanceKm float64) (int, bool) {
	if secPerKm <= 0 || distanceKm <= 0 {
		return 0, true
	}
	return toSeconds(secPerKm * distanceKm)
}

// dedupeKey identifies an activity; distance is compared at meter resolution.
type dedupeKey struct {
	runner string
	date   int64
	meters int64
}

func keyOf(r models.ActivityRecord) dedupeKey {
	return dedupeKey{
		runner: r.Runner,
		date:   r.Date.Unix(),
		meters: int64(math.Round(r.DistanceKm * 1000)),
	}
}

// dedupe keeps one record per key: the one with evidence, then the one with
// more populated fields, then the one fetched last.
func dedupe(records []models.ActivityRecord) []models.ActivityRecord {
	index := make(map[dedupeKey]int, len(records))
	out := make([]models.ActivityRecord, 0, len(records))

	for _, r := range records {
		k := keyOf(r)
		pos, seen := index[k]
		if !seen {
			index[k] = len(out)
			out = append(out, r)
			continue
		}
		if !prefer(out[pos], r) {
			out[pos] = r
		}
	}
	return out
}

// prefer reports whether current should be kept over a later candidate.
func prefer(current, candidate models.ActivityRecord) bool {
	if (current.EvidenceURL != nil) != (candidate.EvidenceURL != nil) {
		return current.EvidenceURL != nil
	}
	return populated(current) > populated(candidate)
}

func populated(r models.ActivityRecord) int {
	n := 0
	if r.DurationSeconds > 0 {
		n++
	}
	if r.ElevationM > 0 {
		n++
	}
	if r.EvidenceURL != nil {
		n++
	}
	return n
}
