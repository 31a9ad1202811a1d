package normalizer

import (
	"sort"
	"strings"

	"github.com/redrabbit14-cmyk/my-running-dash/internal/models"
)

// Canonical field names used in the alias table.
const (
	FieldRunner    = "runner"
	FieldDate      = "date"
	FieldUnit      = "distance_unit"
	FieldDuration  = "duration"
	FieldPace      = "pace"
	FieldSpeed     = "speed"
	FieldElevation = "elevation"
	FieldEvidence  = "evidence"
)

// Distance unit tags.
const (
	unitUnknown = ""
	unitKm      = "km"
	unitMeters  = "m"
	unitMiles   = "mi"
)

const metersPerMile = 1609.344

// Aliases maps each canonical field to the raw names accepted for it, in
// priority order. The Korean names come from the crew's shared workspace.
var Aliases = map[string][]string{
	FieldRunner:    {"runner", "runner_name", "member", "crew_member", "user", "name", "이름", "러너", "크루원"},
	FieldDate:      {"date", "run_date", "activity_date", "start_date_local", "start_date", "timestamp", "날짜"},
	FieldUnit:      {"distance_unit", "unit"},
	FieldDuration:  {"duration", "duration_seconds", "moving_time", "elapsed_time", "time", "시간"},
	FieldPace:      {"pace", "avg_pace", "average_pace", "페이스"},
	FieldSpeed:     {"speed", "average_speed", "avg_speed"},
	FieldElevation: {"elevation", "elevation_gain", "total_elevation_gain", "elev", "고도"},
	FieldEvidence:  {"evidence", "evidence_url", "photo", "photo_url", "image", "screenshot", "사진"},
}

// distanceAlias is a distance alias together with the unit its name implies.
type distanceAlias struct {
	name string
	unit string
}

// distanceAliases lists tagged names before the ambiguous ones so that an
// explicit unit always beats the magnitude heuristic.
var distanceAliases = []distanceAlias{
	{"distance_km", unitKm},
	{"km", unitKm},
	{"distance_m", unitMeters},
	{"distance_meters", unitMeters},
	{"meters", unitMeters},
	{"distance", unitUnknown},
	{"dist", unitUnknown},
	{"거리", unitUnknown},
}

// candidate is a present, non-blank raw value found under one alias.
type candidate struct {
	key   string
	value interface{}
}

// recordView answers alias lookups for one raw record. Exact key matches are
// tried first, then a case-insensitive match.
type recordView struct {
	raw    models.RawRecord
	folded map[string]string
}

func newRecordView(raw models.RawRecord) recordView {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	folded := make(map[string]string, len(keys))
	for _, k := range keys {
		lower := strings.ToLower(strings.TrimSpace(k))
		if _, exists := folded[lower]; !exists {
			folded[lower] = k
		}
	}
	return recordView{raw: raw, folded: folded}
}

func (v recordView) get(name string) (candidate, bool) {
	if value, ok := v.raw[name]; ok && !isBlank(value) {
		return candidate{key: name, value: value}, true
	}
	if key, ok := v.folded[strings.ToLower(name)]; ok {
		if value := v.raw[key]; !isBlank(value) {
			return candidate{key: key, value: value}, true
		}
	}
	return candidate{}, false
}

// lookup returns the present values for a canonical field in alias order.
func (v recordView) lookup(field string) []candidate {
	var out []candidate
	for _, name := range Aliases[field] {
		if c, ok := v.get(name); ok {
			out = append(out, c)
		}
	}
	return out
}

func isBlank(value interface{}) bool {
	switch val := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	case []interface{}:
		return len(val) == 0
	case map[string]interface{}:
		return len(val) == 0
	}
	return false
}
