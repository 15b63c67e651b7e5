package port

import (
	"context"

	"github.com/guillermoBallester/sounder/internal/core/domain"
)

// QueryKind selects the shape of a DataSource query.
type QueryKind int

const (
	// QueryFind returns documents, optionally sorted by SortField.
	QueryFind QueryKind = iota
	// QueryGroupCount returns records {key, count} grouped by Field, sorted
	// by count descending then key ascending.
	QueryGroupCount
	// QueryDayBuckets returns records {bucket, count} for the most recent
	// Limit days of the datetime Field, newest first. bucket is "2006-01-02".
	QueryDayBuckets
)

func (k QueryKind) String() string {
	switch k {
	case QueryFind:
		return "find"
	case QueryGroupCount:
		return "group_count"
	case QueryDayBuckets:
		return "day_buckets"
	}
	return "unknown"
}

// QuerySpec is a read-only query understood by every DataSource.
type QuerySpec struct {
	Kind       QueryKind
	Field      string
	SortField  string // QueryFind only; empty means natural order
	Descending bool
	Limit      int
}

// DataSource reads records from a collection. Connectivity failures wrap
// domain.ErrSourceUnavailable; every other failure wraps
// domain.ErrSourceQueryFailed.
type DataSource interface {
	// Sample returns up to n records in the store's natural order.
	Sample(ctx context.Context, ref domain.CollectionRef, n int) ([]domain.Record, error)
	Count(ctx context.Context, ref domain.CollectionRef) (int64, error)
	Query(ctx context.Context, ref domain.CollectionRef, spec QuerySpec) ([]domain.Record, error)
}

// CollectionInfo describes one collection in a database.
type CollectionInfo struct {
	Name          string `json:"name"`
	DocumentCount int64  `json:"document_count"`
	Description   string `json:"description,omitempty"`
}

// Catalog lists what a data source contains.
type Catalog interface {
	ListDatabases(ctx context.Context) ([]string, error)
	ListCollections(ctx context.Context, database string) ([]CollectionInfo, error)
}

// ResultEnricher decorates strategy output before it is budgeted, e.g. with
// field descriptions and value masks.
type ResultEnricher interface {
	Enrich(ref domain.CollectionRef, raw *domain.RawResult) *domain.RawResult
}
