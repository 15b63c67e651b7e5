package domain

import (
	"fmt"
	"math"
	"strings"
)

var identifierNames = map[string]bool{"_id": true, "id": true, "uuid": true}

// IsIdentifierField reports whether name follows a record identifier
// convention: "_id", "id", "uuid", or a foreign-key style *_id / *Id suffix.
func IsIdentifierField(name string) bool {
	if identifierNames[strings.ToLower(name)] {
		return true
	}
	if len(name) > 3 && strings.HasSuffix(name, "_id") {
		return true
	}
	return len(name) > 2 && strings.HasSuffix(name, "Id")
}

var (
	temporalExact    = map[string]bool{"timestamp": true, "date": true, "time": true, "datetime": true, "created": true, "updated": true, "ts": true}
	temporalSuffixes = []string{"_at", "_date", "_time", "_ts", "_on"}
	temporalCamel    = []string{"At", "Date", "Time", "On"}
)

// IsTemporalName reports whether a field name follows a timestamp convention
// such as created_at, order_date, updatedAt or timestamp.
func IsTemporalName(name string) bool {
	lower := strings.ToLower(name)
	if temporalExact[lower] {
		return true
	}
	for _, s := range temporalSuffixes {
		if len(lower) > len(s) && strings.HasSuffix(lower, s) {
			return true
		}
	}
	for _, s := range temporalCamel {
		if len(name) > len(s) && strings.HasSuffix(name, s) {
			return true
		}
	}
	return false
}

// SelectRecencyField picks the sort key for recent-records views: the first
// field typed exactly datetime or named like a timestamp, else the first
// identifier field. ok is false when natural order must be used.
func SelectRecencyField(s *SchemaSnapshot) (string, bool) {
	for _, f := range s.Fields {
		if f.Types.Only(KindDateTime) || IsTemporalName(f.Name) {
			return f.Name, true
		}
	}
	for _, f := range s.Fields {
		if IsIdentifierField(f.Name) {
			return f.Name, true
		}
	}
	return "", false
}

// SelectGroupingField picks the grouping key for aggregation: the
// non-identifier field typed exactly string with the highest presence
// ratio. Ties go to the field seen first.
func SelectGroupingField(s *SchemaSnapshot) (string, bool) {
	best := -1
	for i, f := range s.Fields {
		if !f.Types.Only(KindString) || IsIdentifierField(f.Name) {
			continue
		}
		if best < 0 || f.Present > s.Fields[best].Present {
			best = i
		}
	}
	if best < 0 {
		return "", false
	}
	return s.Fields[best].Name, true
}

// SelectTemporalField picks the bucketing field for time series: the first
// field typed exactly datetime.
func SelectTemporalField(s *SchemaSnapshot) (string, bool) {
	for _, f := range s.Fields {
		if f.Types.Only(KindDateTime) {
			return f.Name, true
		}
	}
	return "", false
}

// FieldSummary is one row of the per-field analysis table.
type FieldSummary struct {
	Name            string           `json:"name"`
	Types           []string         `json:"types"`
	TypeDescription string           `json:"type_description"`
	Present         int              `json:"present"`
	Nulls           int              `json:"nulls"`
	NullPercent     float64          `json:"null_percent"`
	PresencePercent float64          `json:"presence_percent"`
	MissingPercent  float64          `json:"missing_percent"`
	Distinct        int              `json:"distinct"`
	Cardinality     CardinalityClass `json:"cardinality"`
	TopValues       []ValueCount     `json:"top_values,omitempty"`
	Description     string           `json:"description,omitempty"`
}

// SummarizeFields builds the per-field table. Percentages are relative to
// the number of sampled records, so a field that is missing from a record
// lowers its presence but not its null percentage.
func SummarizeFields(fields []FieldProfile) []FieldSummary {
	out := make([]FieldSummary, len(fields))
	for i, f := range fields {
		out[i] = FieldSummary{
			Name:            f.Name,
			Types:           f.Types.Tags(),
			TypeDescription: DescribeTypes(f.Types),
			Present:         f.Present,
			Nulls:           f.Nulls,
			NullPercent:     percent(f.Nulls, f.SampleSize),
			PresencePercent: percent(f.Present, f.SampleSize),
			MissingPercent:  percent(f.SampleSize-f.Present, f.SampleSize),
			Distinct:        f.Distinct,
			Cardinality:     ClassifyProfile(f),
			TopValues:       append([]ValueCount(nil), f.TopValues...),
		}
	}
	return out
}

// DescribeTypes renders a type set for humans: "string", "nullable integer",
// or "mixed (integer, string)".
func DescribeTypes(ts TypeSet) string {
	if ts.Empty() {
		return "unknown"
	}
	nonNull := ts &^ TypeSet(0).Add(KindNull)
	switch {
	case nonNull.Empty():
		return "null"
	case len(nonNull.Kinds()) == 1 && ts.Has(KindNull):
		return "nullable " + nonNull.String()
	case len(nonNull.Kinds()) == 1:
		return nonNull.String()
	}
	desc := fmt.Sprintf("mixed (%s)", strings.Join(nonNull.Tags(), ", "))
	if ts.Has(KindNull) {
		desc += ", nullable"
	}
	return desc
}

func percent(n, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(n)/float64(total)*10000) / 100
}
