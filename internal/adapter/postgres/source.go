package postgres

import (
	"context"
	"fmt"
	"slices"

	"github.com/guillermoBallester/sounder/internal/core/domain"
	"github.com/guillermoBallester/sounder/internal/core/port"
)

// Source exposes PostgreSQL tables as collections: a database in a
// CollectionRef names a schema and a collection names a table or view.
type Source struct {
	exec    *Executor
	schemas []string
}

var (
	_ port.DataSource = (*Source)(nil)
	_ port.Catalog    = (*Source)(nil)
)

// NewSource restricts access to schemas when the list is non-empty.
func NewSource(exec *Executor, schemas []string) *Source {
	return &Source{exec: exec, schemas: schemas}
}

func (s *Source) Sample(ctx context.Context, ref domain.CollectionRef, n int) ([]domain.Record, error) {
	table, err := s.table(ref)
	if err != nil {
		return nil, err
	}
	return s.exec.Query(ctx, fmt.Sprintf(querySample, table), n)
}

func (s *Source) Count(ctx context.Context, ref domain.CollectionRef) (int64, error) {
	table, err := s.table(ref)
	if err != nil {
		return 0, err
	}
	recs, err := s.exec.Query(ctx, fmt.Sprintf(queryCount, table))
	if err != nil {
		return 0, err
	}
	if len(recs) == 0 {
		return 0, nil
	}
	v, _ := recs[0].Get("count")
	n, _ := v.AsInt64()
	return n, nil
}

func (s *Source) Query(ctx context.Context, ref domain.CollectionRef, spec port.QuerySpec) ([]domain.Record, error) {
	table, err := s.table(ref)
	if err != nil {
		return nil, err
	}
	sql, err := buildQuery(table, spec)
	if err != nil {
		return nil, err
	}
	return s.exec.Query(ctx, sql, spec.Limit)
}

func (s *Source) ListDatabases(ctx context.Context) ([]string, error) {
	clause, args := schemaFilter(s.schemas, "s.schema_name")
	recs, err := s.exec.Query(ctx, fmt.Sprintf(queryListSchemas, clause), args...)
	if err != nil {
		return nil, fmt.Errorf("listing schemas: %w", err)
	}
	names := make([]string, 0, len(recs))
	for _, r := range recs {
		v, _ := r.Get("schema_name")
		names = append(names, v.Str())
	}
	return names, nil
}

func (s *Source) ListCollections(ctx context.Context, database string) ([]port.CollectionInfo, error) {
	if !s.allowed(database) {
		return nil, fmt.Errorf("%w: schema %q", domain.ErrNotFound, database)
	}
	recs, err := s.exec.Query(ctx, queryListTables, database)
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}
	out := make([]port.CollectionInfo, 0, len(recs))
	for _, r := range recs {
		name, _ := r.Get("table_name")
		est, _ := r.Get("row_estimate")
		n, _ := est.AsInt64()
		out = append(out, port.CollectionInfo{Name: name.Str(), DocumentCount: n})
	}
	return out, nil
}

func (s *Source) allowed(schema string) bool {
	return len(s.schemas) == 0 || slices.Contains(s.schemas, schema)
}

func (s *Source) table(ref domain.CollectionRef) (string, error) {
	if err := ref.Validate(); err != nil {
		return "", err
	}
	if !s.allowed(ref.Database) {
		return "", fmt.Errorf("%w: schema %q", domain.ErrNotFound, ref.Database)
	}
	return qualify(ref.Database, ref.Collection), nil
}

// buildQuery renders spec against an already quoted table. The limit is
// always passed as $1.
func buildQuery(table string, spec port.QuerySpec) (string, error) {
	switch spec.Kind {
	case port.QueryFind:
		order := "ctid"
		if spec.SortField != "" {
			order = quoteIdent(spec.SortField)
		}
		if spec.Descending {
			order += " DESC NULLS LAST"
		}
		return fmt.Sprintf(queryFind, table, order), nil

	case port.QueryGroupCount:
		if spec.Field == "" {
			return "", fmt.Errorf("%w: group query needs a field", domain.ErrInvalidRequest)
		}
		return fmt.Sprintf(queryGroupCount, quoteIdent(spec.Field), table), nil

	case port.QueryDayBuckets:
		if spec.Field == "" {
			return "", fmt.Errorf("%w: bucket query needs a field", domain.ErrInvalidRequest)
		}
		col := quoteIdent(spec.Field)
		return fmt.Sprintf(queryDayBuckets, col, table, col), nil
	}
	return "", fmt.Errorf("%w: unsupported query kind %s", domain.ErrInvalidRequest, spec.Kind)
}
