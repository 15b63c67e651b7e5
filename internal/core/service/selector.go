package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/guillermoBallester/sounder/internal/core/domain"
	"github.com/guillermoBallester/sounder/internal/core/port"
)

// Default result sizes per mode. field_analysis returns every field.
const (
	DefaultOverviewLimit    = 5
	DefaultRecentLimit      = 5
	DefaultAggregationLimit = 10
	DefaultTimeSeriesLimit  = 30
)

// Selector runs the analysis strategy for a mode against a snapshot. It
// only reads the snapshot.
type Selector struct {
	source port.DataSource
}

func NewSelector(source port.DataSource) *Selector {
	return &Selector{source: source}
}

// SelectAndRun dispatches req to its strategy. Explicit request fields
// override automatic selection.
func (s *Selector) SelectAndRun(ctx context.Context, req domain.AnalysisRequest, snap *domain.SchemaSnapshot) (*domain.RawResult, error) {
	raw := &domain.RawResult{
		Mode:          req.Mode,
		Ref:           req.Ref,
		DocumentCount: snap.DocumentCount,
		SampleSize:    snap.SampleSize,
		FieldTypes:    snap.FieldTypes(),
		FieldOrder:    snap.FieldNames(),
		FieldCount:    len(snap.Fields),
	}

	var err error
	switch req.Mode {
	case domain.ModeOverview:
		err = s.overview(ctx, req, snap, raw)
	case domain.ModeRecent:
		err = s.recent(ctx, req, snap, raw)
	case domain.ModeAggregation:
		err = s.aggregation(ctx, req, snap, raw)
	case domain.ModeFieldAnalysis:
		err = fieldAnalysis(req, snap, raw)
	case domain.ModeTimeSeries:
		err = s.timeSeries(ctx, req, snap, raw)
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedMode, string(req.Mode))
	}
	if err != nil {
		return nil, err
	}
	return raw, nil
}

func limitOr(req domain.AnalysisRequest, def int) int {
	n := req.Limit
	if n == 0 {
		n = def
	}
	return min(n, domain.MaxLimit)
}

func (s *Selector) overview(ctx context.Context, req domain.AnalysisRequest, snap *domain.SchemaSnapshot, raw *domain.RawResult) error {
	docs, err := s.source.Sample(ctx, req.Ref, limitOr(req, DefaultOverviewLimit))
	if err != nil {
		return fmt.Errorf("overview sample: %w", err)
	}
	rows, err := fieldRows(req, snap)
	if err != nil {
		return err
	}
	raw.Documents = docs
	raw.Fields = rows
	raw.Description = fmt.Sprintf("overview of %d sample documents and %d fields", len(docs), len(rows))
	return nil
}

func (s *Selector) recent(ctx context.Context, req domain.AnalysisRequest, snap *domain.SchemaSnapshot, raw *domain.RawResult) error {
	field := req.Field
	if field == "" {
		field, _ = domain.SelectRecencyField(snap)
	}
	docs, err := s.source.Query(ctx, req.Ref, port.QuerySpec{
		Kind:       port.QueryFind,
		SortField:  field,
		Descending: true,
		Limit:      limitOr(req, DefaultRecentLimit),
	})
	if err != nil {
		return fmt.Errorf("recent documents: %w", err)
	}
	raw.Documents = docs
	raw.SortField = field
	if field == "" {
		raw.Description = fmt.Sprintf("the %d most recently inserted documents in reverse natural order", len(docs))
	} else {
		raw.Description = fmt.Sprintf("the %d most recent documents ordered by '%s' descending", len(docs), field)
	}
	return nil
}

func (s *Selector) aggregation(ctx context.Context, req domain.AnalysisRequest, snap *domain.SchemaSnapshot, raw *domain.RawResult) error {
	field := req.Field
	if field == "" {
		var ok bool
		if field, ok = domain.SelectGroupingField(snap); !ok {
			return fmt.Errorf("%w: no string field eligible for grouping; pass an explicit field", domain.ErrInvalidRequest)
		}
	}
	records, err := s.source.Query(ctx, req.Ref, port.QuerySpec{
		Kind:  port.QueryGroupCount,
		Field: field,
		Limit: limitOr(req, DefaultAggregationLimit),
	})
	if err != nil {
		return fmt.Errorf("group by %q: %w", field, err)
	}

	groups := make([]domain.GroupCount, 0, len(records))
	for _, rec := range records {
		key, _ := rec.Get("key")
		count, _ := rec.Get("count")
		n, _ := count.AsInt64()
		groups = append(groups, domain.GroupCount{Key: key, Count: n})
	}
	// The store applies the limit, so its own tie order (BSON order on _id,
	// or text order in Postgres) decides which tied groups make the cut.
	// This sort only fixes the order of the rows that came back.
	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].Count != groups[j].Count {
			return groups[i].Count > groups[j].Count
		}
		return groups[i].Key.String() < groups[j].Key.String()
	})

	raw.Documents = snap.PreviewRecords()
	raw.Groups = groups
	raw.GroupField = field
	if len(groups) == 0 {
		raw.Description = fmt.Sprintf("no values found to group by '%s'", field)
	} else {
		raw.Description = fmt.Sprintf("documents grouped by '%s' into %d groups; most common value is '%s' with %d documents",
			field, len(groups), groups[0].Key, groups[0].Count)
	}
	return nil
}

func fieldAnalysis(req domain.AnalysisRequest, snap *domain.SchemaSnapshot, raw *domain.RawResult) error {
	rows, err := fieldRows(req, snap)
	if err != nil {
		return err
	}
	if req.Limit > 0 && len(rows) > min(req.Limit, domain.MaxLimit) {
		rows = rows[:min(req.Limit, domain.MaxLimit)]
	}

	var nullable []string
	for _, r := range rows {
		if r.Nulls > 0 {
			nullable = append(nullable, r.Name)
		}
	}
	raw.Documents = snap.PreviewRecords()
	raw.Fields = rows
	raw.Description = fmt.Sprintf("field analysis of %d fields over %d sampled documents", len(rows), snap.SampleSize)
	if len(nullable) > 0 {
		raw.Description += fmt.Sprintf("; fields with nulls: %s", strings.Join(nullable, ", "))
	}
	return nil
}

// fieldRows summarizes the snapshot, restricted to req.Field when set.
func fieldRows(req domain.AnalysisRequest, snap *domain.SchemaSnapshot) ([]domain.FieldSummary, error) {
	if req.Field == "" {
		return domain.SummarizeFields(snap.Fields), nil
	}
	p, ok := snap.Field(req.Field)
	if !ok {
		return nil, fmt.Errorf("%w: field %q was not observed in the sample", domain.ErrInvalidRequest, req.Field)
	}
	return domain.SummarizeFields([]domain.FieldProfile{p}), nil
}

func (s *Selector) timeSeries(ctx context.Context, req domain.AnalysisRequest, snap *domain.SchemaSnapshot, raw *domain.RawResult) error {
	field := req.Field
	if field == "" {
		var ok bool
		if field, ok = domain.SelectTemporalField(snap); !ok {
			raw.NoTemporalField = true
			raw.Documents = snap.PreviewRecords()
			raw.Description = "no date/time field found; time series analysis is not available"
			return nil
		}
	}
	records, err := s.source.Query(ctx, req.Ref, port.QuerySpec{
		Kind:  port.QueryDayBuckets,
		Field: field,
		Limit: limitOr(req, DefaultTimeSeriesLimit),
	})
	if err != nil {
		return fmt.Errorf("time series on %q: %w", field, err)
	}

	buckets := make([]domain.TimeBucket, 0, len(records))
	for _, rec := range records {
		b, _ := rec.Get("bucket")
		count, _ := rec.Get("count")
		n, _ := count.AsInt64()
		buckets = append(buckets, domain.TimeBucket{Bucket: b.String(), Count: n})
	}
	// Day keys sort chronologically as strings.
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Bucket < buckets[j].Bucket })

	raw.Documents = snap.PreviewRecords()
	raw.Buckets = buckets
	raw.TimeField = field
	raw.Granularity = domain.GranularityDay
	if len(buckets) == 0 {
		raw.Description = fmt.Sprintf("no dated documents found in '%s'", field)
	} else {
		raw.Description = fmt.Sprintf("daily document counts for '%s' across %d days from %s to %s",
			field, len(buckets), buckets[0].Bucket, buckets[len(buckets)-1].Bucket)
	}
	return nil
}
