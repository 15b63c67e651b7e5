package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Compose assembles the outcome of a budgeted result. It is a pure function
// of its inputs.
func Compose(mode Mode, raw *RawResult, elapsed time.Duration) AnalysisOutcome {
	ms := math.Round(float64(elapsed.Microseconds())/10) / 100

	docs := raw.Documents
	if docs == nil {
		docs = []Record{}
	}
	fieldTypes := raw.FieldTypes
	if fieldTypes == nil {
		fieldTypes = map[string][]string{}
	}

	return AnalysisOutcome{
		Mode: mode,
		DataDisplay: DataDisplay{
			SampleDocuments: docs,
			TotalCount:      raw.DocumentCount,
			CollectionName:  raw.Ref.Collection,
			DatabaseName:    raw.Ref.Database,
		},
		NumericalInsights: NumericalInsights{
			DocumentCount:     raw.DocumentCount,
			SampleSize:        raw.SampleSize,
			ReturnedDocuments: len(raw.Documents),
			FieldTypes:        fieldTypes,
			SortField:         raw.SortField,
			GroupField:        raw.GroupField,
			Groups:            raw.Groups,
			TimeField:         raw.TimeField,
			Granularity:       raw.Granularity,
			Buckets:           raw.Buckets,
			NoTemporalField:   raw.NoTemporalField,
			Fields:            raw.Fields,
			ExecutionTimeMS:   ms,
			SchemaStale:       raw.SchemaStale,
		},
		TextualSummary: summarize(raw, ms),
		Truncation:     raw.Truncation,
	}
}

func summarize(raw *RawResult, ms float64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analysis of '%s' in database '%s': %s. ", raw.Ref.Collection, raw.Ref.Database, raw.Description)
	fields := raw.FieldCount
	if fields == 0 {
		fields = len(raw.FieldTypes)
	}
	fmt.Fprintf(&b, "Collection contains %d documents with %d fields. ", raw.DocumentCount, fields)
	fmt.Fprintf(&b, "Analysis completed in %.2fms.", ms)
	if raw.SchemaStale {
		b.WriteString(" Schema information is stale because the data source could not be reached for a refresh.")
	}
	if t := raw.Truncation; t.Truncated {
		fmt.Fprintf(&b, " Output truncated to fit the response budget (%d documents and %d rows omitted).",
			t.DocumentsDropped, t.RowsDropped)
		if t.FieldTypesDropped > 0 || t.DocumentFieldsDropped > 0 {
			fmt.Fprintf(&b, " Field detail reduced (%d field types and %d document fields omitted).",
				t.FieldTypesDropped, t.DocumentFieldsDropped)
		}
	}
	return b.String()
}
