package service

import (
	"context"
	"testing"
	"time"

	"github.com/guillermoBallester/sounder/internal/core/domain"
	"github.com/guillermoBallester/sounder/internal/core/port"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshotFor(t *testing.T, src *fakeSource, records ...domain.Record) *domain.SchemaSnapshot {
	t.Helper()
	src.put("orders", records...)
	profiles, err := domain.Infer(records, 100, 10)
	require.NoError(t, err)
	return domain.NewSchemaSnapshot(ordersRef, profiles, int64(len(records)), records, time.Now())
}

func TestSelector_TieBreakAcrossRuns(t *testing.T) {
	src := newFakeSource()
	snap := snapshotFor(t, src,
		domain.Record{domain.KV("region", domain.String("eu")), domain.KV("tier", domain.String("gold"))},
		domain.Record{domain.KV("region", domain.String("us")), domain.KV("tier", domain.String("free"))},
	)
	sel := NewSelector(src)

	for range 20 {
		raw, err := sel.SelectAndRun(context.Background(), domain.AnalysisRequest{Ref: ordersRef, Mode: domain.ModeAggregation}, snap)
		require.NoError(t, err)
		assert.Equal(t, "region", raw.GroupField)
	}
}

func TestSelector_GroupsSortedByCountThenKey(t *testing.T) {
	src := newFakeSource()
	snap := snapshotFor(t, src,
		domain.Record{domain.KV("c", domain.String("y"))},
		domain.Record{domain.KV("c", domain.String("x"))},
		domain.Record{domain.KV("c", domain.String("z"))},
		domain.Record{domain.KV("c", domain.String("z"))},
	)

	raw, err := NewSelector(src).SelectAndRun(context.Background(), domain.AnalysisRequest{Ref: ordersRef, Mode: domain.ModeAggregation}, snap)
	require.NoError(t, err)
	assert.Equal(t, []domain.GroupCount{
		{Key: domain.String("z"), Count: 2},
		{Key: domain.String("x"), Count: 1},
		{Key: domain.String("y"), Count: 1},
	}, raw.Groups)
	assert.Contains(t, raw.Description, "most common value is 'z'")
}

// storeOrderSource returns fixed group rows, standing in for a store whose
// tie order differs from the selector's.
type storeOrderSource struct {
	*fakeSource
	rows []domain.Record
}

func (s storeOrderSource) Query(context.Context, domain.CollectionRef, port.QuerySpec) ([]domain.Record, error) {
	return s.rows, nil
}

func TestSelector_StoreDecidesTiedGroupsAtLimit(t *testing.T) {
	src := newFakeSource()
	snap := snapshotFor(t, src,
		domain.Record{domain.KV("c", domain.String("a"))},
		domain.Record{domain.KV("c", domain.String("b"))},
		domain.Record{domain.KV("c", domain.String("c"))},
		domain.Record{domain.KV("c", domain.String("d"))},
		domain.Record{domain.KV("c", domain.String("d"))},
	)
	store := storeOrderSource{fakeSource: src, rows: []domain.Record{
		{domain.KV("key", domain.String("d")), domain.KV("count", domain.Int(2))},
		{domain.KV("key", domain.String("c")), domain.KV("count", domain.Int(1))},
		{domain.KV("key", domain.String("b")), domain.KV("count", domain.Int(1))},
	}}

	raw, err := NewSelector(store).SelectAndRun(context.Background(),
		domain.AnalysisRequest{Ref: ordersRef, Mode: domain.ModeAggregation, Limit: 3}, snap)
	require.NoError(t, err)
	assert.Equal(t, []domain.GroupCount{
		{Key: domain.String("d"), Count: 2},
		{Key: domain.String("b"), Count: 1},
		{Key: domain.String("c"), Count: 1},
	}, raw.Groups)
}

func TestSelector_RecentNaturalOrderFallback(t *testing.T) {
	src := newFakeSource()
	snap := snapshotFor(t, src,
		domain.Record{domain.KV("v", domain.Int(1))},
		domain.Record{domain.KV("v", domain.Int(2))},
	)

	raw, err := NewSelector(src).SelectAndRun(context.Background(), domain.AnalysisRequest{Ref: ordersRef, Mode: domain.ModeRecent}, snap)
	require.NoError(t, err)
	assert.Empty(t, raw.SortField)
	assert.Equal(t, port.QuerySpec{Kind: port.QueryFind, Descending: true, Limit: DefaultRecentLimit}, src.lastQuery())
	v, _ := raw.Documents[0].Get("v")
	assert.Equal(t, domain.Int(2), v)
	assert.Contains(t, raw.Description, "reverse natural order")
}

func TestSelector_FieldAnalysisLimit(t *testing.T) {
	src := newFakeSource()
	snap := snapshotFor(t, src, domain.Record{
		domain.KV("a", domain.Int(1)), domain.KV("b", domain.Null()), domain.KV("c", domain.Bool(true)),
	})

	raw, err := NewSelector(src).SelectAndRun(context.Background(),
		domain.AnalysisRequest{Ref: ordersRef, Mode: domain.ModeFieldAnalysis, Limit: 2}, snap)
	require.NoError(t, err)
	require.Len(t, raw.Fields, 2)
	assert.Equal(t, "a", raw.Fields[0].Name)
	assert.Contains(t, raw.Description, "fields with nulls: b")
}

func TestSelector_UnsupportedMode(t *testing.T) {
	src := newFakeSource()
	snap := snapshotFor(t, src, domain.Record{domain.KV("a", domain.Int(1))})

	_, err := NewSelector(src).SelectAndRun(context.Background(), domain.AnalysisRequest{Ref: ordersRef, Mode: "smart"}, snap)
	assert.ErrorIs(t, err, domain.ErrUnsupportedMode)
}

func TestSelector_PreviewDocumentsAreCopies(t *testing.T) {
	src := newFakeSource()
	snap := snapshotFor(t, src, domain.Record{domain.KV("c", domain.String("x"))})

	raw, err := NewSelector(src).SelectAndRun(context.Background(), domain.AnalysisRequest{Ref: ordersRef, Mode: domain.ModeAggregation}, snap)
	require.NoError(t, err)
	raw.Documents[0][0].Value = domain.Null()

	v, _ := snap.Preview[0].Get("c")
	assert.Equal(t, domain.String("x"), v)
}
