package domain

// GroupCount is one row of a group-by-count.
type GroupCount struct {
	Key   Value `json:"key"`
	Count int64 `json:"count"`
}

// TimeBucket is one day of a time series, keyed "2006-01-02".
type TimeBucket struct {
	Bucket string `json:"bucket"`
	Count  int64  `json:"count"`
}

// GranularityDay is the only bucket granularity.
const GranularityDay = "day"

// Truncation reports what the budgeter removed.
type Truncation struct {
	Truncated             bool `json:"truncated"`
	DocumentsDropped      int  `json:"documents_dropped,omitempty"`
	RowsDropped           int  `json:"rows_dropped,omitempty"`
	TextShortened         bool `json:"text_shortened,omitempty"`
	FieldTypesDropped     int  `json:"field_types_dropped,omitempty"`
	DocumentFieldsDropped int  `json:"document_fields_dropped,omitempty"` // trailing fields cut from kept documents
}

// RawResult is the output of one analysis strategy before budgeting and
// composition.
type RawResult struct {
	Mode            Mode                `json:"mode"`
	Ref             CollectionRef       `json:"ref"`
	Documents       []Record            `json:"documents,omitempty"`
	Fields          []FieldSummary      `json:"fields,omitempty"`
	Groups          []GroupCount        `json:"groups,omitempty"`
	Buckets         []TimeBucket        `json:"buckets,omitempty"`
	GroupField      string              `json:"group_field,omitempty"`
	TimeField       string              `json:"time_field,omitempty"`
	SortField       string              `json:"sort_field,omitempty"`
	Granularity     string              `json:"granularity,omitempty"`
	NoTemporalField bool                `json:"no_temporal_field,omitempty"`
	DocumentCount   int64               `json:"document_count"`
	SampleSize      int                 `json:"sample_size"`
	FieldTypes      map[string][]string `json:"field_types,omitempty"`
	FieldOrder      []string            `json:"-"` // FieldTypes keys in snapshot order
	FieldCount      int                 `json:"field_count"`
	Description     string              `json:"description"`
	SchemaStale     bool                `json:"schema_stale,omitempty"`
	Truncation      Truncation          `json:"truncation"`
}

// Clone returns a copy whose slices can be trimmed or rewritten without
// affecting r.
func (r *RawResult) Clone() *RawResult {
	c := *r
	c.Documents = CloneRecords(r.Documents)
	if r.Fields != nil {
		c.Fields = append([]FieldSummary(nil), r.Fields...)
	}
	if r.Groups != nil {
		c.Groups = append([]GroupCount(nil), r.Groups...)
	}
	if r.Buckets != nil {
		c.Buckets = append([]TimeBucket(nil), r.Buckets...)
	}
	if r.FieldTypes != nil {
		c.FieldTypes = make(map[string][]string, len(r.FieldTypes))
		for k, v := range r.FieldTypes {
			c.FieldTypes[k] = append([]string(nil), v...)
		}
	}
	if r.FieldOrder != nil {
		c.FieldOrder = append([]string(nil), r.FieldOrder...)
	}
	return &c
}

// rowCount is the number of tabular rows: field summaries, groups and buckets.
func (r *RawResult) rowCount() int {
	return len(r.Fields) + len(r.Groups) + len(r.Buckets)
}

// DataDisplay is the document-oriented half of an outcome.
type DataDisplay struct {
	SampleDocuments []Record `json:"sample_documents"`
	TotalCount      int64    `json:"total_count"`
	CollectionName  string   `json:"collection_name"`
	DatabaseName    string   `json:"database_name"`
}

// NumericalInsights is the metrics half of an outcome.
type NumericalInsights struct {
	DocumentCount     int64               `json:"document_count"`
	SampleSize        int                 `json:"sample_size"`
	ReturnedDocuments int                 `json:"returned_documents"`
	FieldTypes        map[string][]string `json:"field_types"`
	SortField         string              `json:"sort_field,omitempty"`
	GroupField        string              `json:"group_field,omitempty"`
	Groups            []GroupCount        `json:"groups,omitempty"`
	TimeField         string              `json:"time_field,omitempty"`
	Granularity       string              `json:"granularity,omitempty"`
	Buckets           []TimeBucket        `json:"buckets,omitempty"`
	NoTemporalField   bool                `json:"no_temporal_field,omitempty"`
	Fields            []FieldSummary      `json:"fields,omitempty"`
	ExecutionTimeMS   float64             `json:"execution_time_ms"`
	SchemaStale       bool                `json:"schema_stale,omitempty"`
}

// AnalysisOutcome is the final, budgeted result of one analysis.
type AnalysisOutcome struct {
	Mode              Mode              `json:"mode"`
	DataDisplay       DataDisplay       `json:"data_display"`
	NumericalInsights NumericalInsights `json:"numerical_insights"`
	TextualSummary    string            `json:"textual_summary"`
	Truncation        Truncation        `json:"truncation"`
}
