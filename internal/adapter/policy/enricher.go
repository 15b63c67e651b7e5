package policy

import (
	"context"

	"github.com/guillermoBallester/sounder/internal/core/domain"
	"github.com/guillermoBallester/sounder/internal/core/port"
)

// Enricher applies the policy to analysis results: descriptions are merged
// into field summaries and masked fields never leave in clear text, whether
// as documents, top values or group keys.
type Enricher struct {
	policy *Policy
}

var _ port.ResultEnricher = (*Enricher)(nil)

func NewEnricher(pol *Policy) *Enricher {
	return &Enricher{policy: pol}
}

func (e *Enricher) Enrich(ref domain.CollectionRef, raw *domain.RawResult) *domain.RawResult {
	cc, ok := e.policy.Context.Lookup(ref)
	if !ok {
		return raw
	}
	out := raw.Clone()
	masks := MaskSpec(cc)

	out.Documents = domain.MaskRecords(out.Documents, masks)
	MergeFieldSummaries(out.Fields, cc)
	for i, f := range out.Fields {
		mt, ok := masks[f.Name]
		if !ok || len(f.TopValues) == 0 {
			continue
		}
		top := make([]domain.ValueCount, len(f.TopValues))
		for j, tv := range f.TopValues {
			top[j] = domain.ValueCount{Value: domain.MaskString(tv.Value, mt), Count: tv.Count}
		}
		out.Fields[i].TopValues = top
	}
	if mt, ok := masks[out.GroupField]; ok {
		for i, g := range out.Groups {
			out.Groups[i].Key = domain.ApplyMask(g.Key, mt)
		}
	}
	return out
}

// Catalog decorates a port.Catalog with collection descriptions.
type Catalog struct {
	inner  port.Catalog
	policy *Policy
}

var _ port.Catalog = (*Catalog)(nil)

func NewCatalog(inner port.Catalog, pol *Policy) *Catalog {
	return &Catalog{inner: inner, policy: pol}
}

func (c *Catalog) ListDatabases(ctx context.Context) ([]string, error) {
	return c.inner.ListDatabases(ctx)
}

func (c *Catalog) ListCollections(ctx context.Context, database string) ([]port.CollectionInfo, error) {
	colls, err := c.inner.ListCollections(ctx, database)
	if err != nil {
		return nil, err
	}
	MergeCollectionList(database, colls, c.policy.Context)
	return colls, nil
}
