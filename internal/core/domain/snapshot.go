package domain

import "time"

// PreviewSize is the number of sampled records kept on a snapshot for display.
const PreviewSize = 3

// SchemaSnapshot is the inferred structure of one collection at a point in
// time. Snapshots are never mutated after construction; a refresh replaces
// the whole value.
type SchemaSnapshot struct {
	Ref           CollectionRef  `json:"ref"`
	Fields        []FieldProfile `json:"fields"`
	DocumentCount int64          `json:"document_count"`
	SampleSize    int            `json:"sample_size"`
	CapturedAt    time.Time      `json:"captured_at"`
	Preview       []Record       `json:"preview,omitempty"`
}

// NewSchemaSnapshot copies its inputs so later changes by the caller cannot
// leak into the snapshot.
func NewSchemaSnapshot(ref CollectionRef, fields []FieldProfile, count int64, sample []Record, capturedAt time.Time) *SchemaSnapshot {
	fs := make([]FieldProfile, len(fields))
	for i, f := range fields {
		f.TopValues = append([]ValueCount(nil), f.TopValues...)
		fs[i] = f
	}
	n := min(len(sample), PreviewSize)
	return &SchemaSnapshot{
		Ref:           ref,
		Fields:        fs,
		DocumentCount: count,
		SampleSize:    len(sample),
		CapturedAt:    capturedAt.UTC(),
		Preview:       CloneRecords(sample[:n]),
	}
}

// Age reports how old the snapshot is at now.
func (s *SchemaSnapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.CapturedAt)
}

// Field returns the profile of the named field.
func (s *SchemaSnapshot) Field(name string) (FieldProfile, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldProfile{}, false
}

// FieldTypes maps every observed field to its type tags.
func (s *SchemaSnapshot) FieldTypes() map[string][]string {
	out := make(map[string][]string, len(s.Fields))
	for _, f := range s.Fields {
		out[f.Name] = f.Types.Tags()
	}
	return out
}

// FieldNames lists the profiled fields in first-seen order.
func (s *SchemaSnapshot) FieldNames() []string {
	out := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		out[i] = f.Name
	}
	return out
}

// PreviewRecords returns a copy of the preview records.
func (s *SchemaSnapshot) PreviewRecords() []Record {
	return CloneRecords(s.Preview)
}
