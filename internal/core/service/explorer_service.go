package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/guillermoBallester/sounder/internal/core/domain"
	"github.com/guillermoBallester/sounder/internal/core/port"
)

// CollectionDescription is the inferred schema of one collection.
type CollectionDescription struct {
	Database        string                `json:"database"`
	Collection      string                `json:"collection"`
	DocumentCount   int64                 `json:"document_count"`
	SampleSize      int                   `json:"sample_size"`
	CapturedAt      time.Time             `json:"captured_at"`
	Stale           bool                  `json:"stale,omitempty"`
	Fields          []domain.FieldSummary `json:"fields"`
	SampleDocuments []domain.Record       `json:"sample_documents"`
}

// ExplorerService answers catalog and schema questions.
type ExplorerService struct {
	catalog   port.Catalog
	cache     *SchemaCache
	enricher  port.ResultEnricher
	defaultDB string
	logger    *slog.Logger
}

func NewExplorerService(catalog port.Catalog, cache *SchemaCache, enricher port.ResultEnricher, defaultDB string, logger *slog.Logger) *ExplorerService {
	return &ExplorerService{
		catalog:   catalog,
		cache:     cache,
		enricher:  enricher,
		defaultDB: defaultDB,
		logger:    logger,
	}
}

func (s *ExplorerService) ListDatabases(ctx context.Context) ([]string, error) {
	return s.catalog.ListDatabases(ctx)
}

func (s *ExplorerService) ListCollections(ctx context.Context, database string) ([]port.CollectionInfo, error) {
	if database == "" {
		database = s.defaultDB
	}
	if strings.TrimSpace(database) == "" {
		return nil, fmt.Errorf("%w: database name is required", domain.ErrInvalidRequest)
	}
	return s.catalog.ListCollections(ctx, database)
}

// DescribeCollection returns the cached schema of ref, refreshing it when
// it is missing or too old.
func (s *ExplorerService) DescribeCollection(ctx context.Context, ref domain.CollectionRef) (*CollectionDescription, error) {
	ref, err := s.resolve(ref)
	if err != nil {
		return nil, err
	}
	lookup, err := s.cache.GetOrRefresh(ctx, ref, 0)
	if err != nil {
		return nil, err
	}
	return s.describe(ref, lookup), nil
}

// RefreshSchema forces a new snapshot of ref.
func (s *ExplorerService) RefreshSchema(ctx context.Context, ref domain.CollectionRef) (*CollectionDescription, error) {
	ref, err := s.resolve(ref)
	if err != nil {
		return nil, err
	}
	lookup, err := s.cache.Refresh(ctx, ref)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "schema refreshed on request",
		slog.String("db.collection.name", ref.String()),
		slog.Bool("stale", lookup.Stale),
	)
	return s.describe(ref, lookup), nil
}

func (s *ExplorerService) resolve(ref domain.CollectionRef) (domain.CollectionRef, error) {
	if ref.Database == "" {
		ref.Database = s.defaultDB
	}
	return ref, ref.Validate()
}

func (s *ExplorerService) describe(ref domain.CollectionRef, lookup Lookup) *CollectionDescription {
	snap := lookup.Snapshot
	raw := &domain.RawResult{
		Ref:       ref,
		Documents: snap.PreviewRecords(),
		Fields:    domain.SummarizeFields(snap.Fields),
	}
	if s.enricher != nil {
		raw = s.enricher.Enrich(ref, raw)
	}
	docs := raw.Documents
	if docs == nil {
		docs = []domain.Record{}
	}
	return &CollectionDescription{
		Database:        ref.Database,
		Collection:      ref.Collection,
		DocumentCount:   snap.DocumentCount,
		SampleSize:      snap.SampleSize,
		CapturedAt:      snap.CapturedAt,
		Stale:           lookup.Stale,
		Fields:          raw.Fields,
		SampleDocuments: docs,
	}
}
