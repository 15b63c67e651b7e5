package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/guillermoBallester/sounder/internal/core/domain"
	"github.com/guillermoBallester/sounder/internal/core/port"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCatalog struct {
	databases   []string
	collections map[string][]port.CollectionInfo
	err         error
}

func (c *fakeCatalog) ListDatabases(context.Context) ([]string, error) {
	return c.databases, c.err
}

func (c *fakeCatalog) ListCollections(_ context.Context, db string) ([]port.CollectionInfo, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.collections[db], nil
}

func newExplorerFixture() (*ExplorerService, *fakeSource, *fakeCatalog) {
	src := newFakeSource()
	cat := &fakeCatalog{
		databases:   []string{"shop"},
		collections: map[string][]port.CollectionInfo{"shop": {{Name: "orders", DocumentCount: 3}}},
	}
	cache := newTestCache(src, CacheOptions{ServeStale: true})
	return NewExplorerService(cat, cache, tagEnricher{}, "shop", testLogger()), src, cat
}

func TestExplorer_ListCollectionsUsesDefaultDatabase(t *testing.T) {
	svc, _, _ := newExplorerFixture()

	dbs, err := svc.ListDatabases(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"shop"}, dbs)

	cols, err := svc.ListCollections(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []port.CollectionInfo{{Name: "orders", DocumentCount: 3}}, cols)
}

func TestExplorer_ListCollectionsWithoutDatabase(t *testing.T) {
	cache := newTestCache(newFakeSource(), CacheOptions{})
	svc := NewExplorerService(&fakeCatalog{}, cache, nil, "", testLogger())

	_, err := svc.ListCollections(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestExplorer_CatalogErrorsPropagate(t *testing.T) {
	svc, _, cat := newExplorerFixture()
	cat.err = fmt.Errorf("dial: %w", domain.ErrSourceUnavailable)

	_, err := svc.ListDatabases(context.Background())
	assert.ErrorIs(t, err, domain.ErrSourceUnavailable)
}

func TestExplorer_DescribeCollection(t *testing.T) {
	svc, src, _ := newExplorerFixture()
	src.put("orders", threeOrders()...)

	desc, err := svc.DescribeCollection(context.Background(), domain.CollectionRef{Collection: "orders"})
	require.NoError(t, err)
	assert.Equal(t, "shop", desc.Database)
	assert.Equal(t, int64(3), desc.DocumentCount)
	assert.Equal(t, 3, desc.SampleSize)
	require.Len(t, desc.Fields, 2)
	assert.Equal(t, "described name", desc.Fields[0].Description)
	assert.Len(t, desc.SampleDocuments, domain.PreviewSize)
	assert.False(t, desc.Stale)

	// Cached: a second describe does not sample again.
	_, err = svc.DescribeCollection(context.Background(), domain.CollectionRef{Collection: "orders"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), src.sampleCalls.Load())
}

func TestExplorer_RefreshSchema(t *testing.T) {
	svc, src, _ := newExplorerFixture()
	src.put("orders", threeOrders()...)

	_, err := svc.DescribeCollection(context.Background(), ordersRef)
	require.NoError(t, err)

	src.put("orders", domain.Record{domain.KV("status", domain.String("new"))})
	desc, err := svc.RefreshSchema(context.Background(), ordersRef)
	require.NoError(t, err)
	require.Len(t, desc.Fields, 1)
	assert.Equal(t, "status", desc.Fields[0].Name)
	assert.WithinDuration(t, time.Now(), desc.CapturedAt, time.Minute)
	assert.Equal(t, int32(2), src.sampleCalls.Load())
}

func TestExplorer_DescribeRequiresCollection(t *testing.T) {
	svc, _, _ := newExplorerFixture()
	_, err := svc.DescribeCollection(context.Background(), domain.CollectionRef{Database: "shop"})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}
