package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/guillermoBallester/sounder/internal/core/domain"
	"github.com/guillermoBallester/sounder/internal/core/port"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type analysisFixture struct {
	src     *fakeSource
	auditor *recordingAuditor
	svc     *AnalysisService
}

func newAnalysisFixture(opts AnalysisOptions, enricher port.ResultEnricher) *analysisFixture {
	src := newFakeSource()
	auditor := &recordingAuditor{}
	cache := newTestCache(src, CacheOptions{ServeStale: true})
	svc := NewAnalysisService(cache, NewSelector(src), enricher, auditor, testLogger(), nil, nil, opts)
	return &analysisFixture{src: src, auditor: auditor, svc: svc}
}

func threeOrders() []domain.Record {
	return []domain.Record{
		{domain.KV("name", domain.String("a")), domain.KV("amount", domain.Int(10))},
		{domain.KV("name", domain.String("b")), domain.KV("amount", domain.Int(20))},
		{domain.KV("name", domain.String("a")), domain.KV("amount", domain.Int(5))},
	}
}

func analyze(t *testing.T, f *analysisFixture, mode domain.Mode, opts ...func(*domain.AnalysisRequest)) (*domain.AnalysisOutcome, error) {
	t.Helper()
	req := domain.AnalysisRequest{Ref: ordersRef, Mode: mode}
	for _, o := range opts {
		o(&req)
	}
	return f.svc.Analyze(WithToolName(context.Background(), "analyze_collection"), req)
}

func TestAnalyze_FieldAnalysisScenario(t *testing.T) {
	f := newAnalysisFixture(AnalysisOptions{}, nil)
	f.src.put("orders", threeOrders()...)

	out, err := analyze(t, f, domain.ModeFieldAnalysis)
	require.NoError(t, err)

	fields := out.NumericalInsights.Fields
	require.Len(t, fields, 2)
	assert.Equal(t, "name", fields[0].Name)
	assert.Equal(t, []string{"string"}, fields[0].Types)
	assert.Zero(t, fields[0].NullPercent)
	assert.Equal(t, "amount", fields[1].Name)
	assert.Equal(t, []string{"integer"}, fields[1].Types)
	assert.Zero(t, fields[1].NullPercent)

	assert.Equal(t, int64(3), out.DataDisplay.TotalCount)
	assert.Len(t, out.DataDisplay.SampleDocuments, 3)
	assert.Equal(t, map[string][]string{"name": {"string"}, "amount": {"integer"}}, out.NumericalInsights.FieldTypes)
	assert.Contains(t, out.TextualSummary, "Analysis of 'orders' in database 'shop'")
	assert.Contains(t, out.TextualSummary, "Collection contains 3 documents with 2 fields.")
	assert.False(t, out.Truncation.Truncated)
}

func TestAnalyze_AggregationScenario(t *testing.T) {
	f := newAnalysisFixture(AnalysisOptions{}, nil)
	f.src.put("orders", threeOrders()...)

	out, err := analyze(t, f, domain.ModeAggregation)
	require.NoError(t, err)

	assert.Equal(t, "name", out.NumericalInsights.GroupField)
	assert.Equal(t, []domain.GroupCount{
		{Key: domain.String("a"), Count: 2},
		{Key: domain.String("b"), Count: 1},
	}, out.NumericalInsights.Groups)
	assert.Equal(t, port.QuerySpec{Kind: port.QueryGroupCount, Field: "name", Limit: DefaultAggregationLimit}, f.src.lastQuery())
}

func TestAnalyze_UnknownModeFailsWithoutOutcome(t *testing.T) {
	f := newAnalysisFixture(AnalysisOptions{}, nil)
	f.src.put("orders", threeOrders()...)

	out, err := analyze(t, f, domain.Mode("unknown_mode"))
	require.ErrorIs(t, err, domain.ErrUnsupportedMode)
	assert.Nil(t, out)

	var ae *domain.AnalysisError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, ordersRef, ae.Ref)
	assert.Equal(t, "unsupported_mode", ae.Kind())
	assert.Zero(t, f.src.sampleCalls.Load(), "no data source access for rejected requests")
	assert.Error(t, f.auditor.last().Err)
}

func TestAnalyze_OversizedOutcomeIsTruncated(t *testing.T) {
	f := newAnalysisFixture(AnalysisOptions{MaxOutputUnits: 6000}, nil)
	var recs []domain.Record
	for i := range 200 {
		recs = append(recs, domain.Record{
			domain.KV("n", domain.Int(int64(i))),
			domain.KV("body", domain.String(strings.Repeat("z", 500))),
		})
	}
	f.src.put("orders", recs...)

	out, err := analyze(t, f, domain.ModeRecent, func(r *domain.AnalysisRequest) { r.Limit = 100 })
	require.NoError(t, err)

	assert.True(t, out.Truncation.Truncated)
	assert.LessOrEqual(t, domain.CountUnits(out), 6000)
	assert.Less(t, out.NumericalInsights.ReturnedDocuments, 100)
	assert.Positive(t, out.NumericalInsights.ReturnedDocuments)
	assert.Equal(t, 100-out.NumericalInsights.ReturnedDocuments, out.Truncation.DocumentsDropped)
	assert.Contains(t, out.TextualSummary, "truncated")
	assert.True(t, f.auditor.last().Truncated)
}

func TestAnalyze_OutcomeWithinBudgetIsNotTruncated(t *testing.T) {
	f := newAnalysisFixture(AnalysisOptions{}, nil)
	f.src.put("orders", threeOrders()...)

	out, err := analyze(t, f, domain.ModeOverview)
	require.NoError(t, err)
	assert.False(t, out.Truncation.Truncated)
	assert.Len(t, out.DataDisplay.SampleDocuments, 3)
	assert.Len(t, out.NumericalInsights.Fields, 2)
}

func TestAnalyze_TimeSeriesWithoutTemporalField(t *testing.T) {
	f := newAnalysisFixture(AnalysisOptions{}, nil)
	f.src.put("orders", threeOrders()...)

	out, err := analyze(t, f, domain.ModeTimeSeries)
	require.NoError(t, err)
	assert.True(t, out.NumericalInsights.NoTemporalField)
	assert.Empty(t, out.NumericalInsights.Buckets)
	assert.Empty(t, f.src.lastQuery().Field, "no bucket query is issued")
}

func TestAnalyze_TimeSeriesChronological(t *testing.T) {
	f := newAnalysisFixture(AnalysisOptions{}, nil)
	day := func(d int) domain.Value {
		return domain.Time(time.Date(2024, 6, d, 12, 0, 0, 0, time.UTC))
	}
	f.src.put("orders",
		domain.Record{domain.KV("placed", day(3))},
		domain.Record{domain.KV("placed", day(1))},
		domain.Record{domain.KV("placed", day(3))},
		domain.Record{domain.KV("placed", day(2))},
	)

	out, err := analyze(t, f, domain.ModeTimeSeries, func(r *domain.AnalysisRequest) { r.Limit = 2 })
	require.NoError(t, err)
	assert.Equal(t, "placed", out.NumericalInsights.TimeField)
	assert.Equal(t, domain.GranularityDay, out.NumericalInsights.Granularity)
	assert.Equal(t, []domain.TimeBucket{
		{Bucket: "2024-06-02", Count: 1},
		{Bucket: "2024-06-03", Count: 2},
	}, out.NumericalInsights.Buckets)
}

func TestAnalyze_RecentUsesTemporalField(t *testing.T) {
	f := newAnalysisFixture(AnalysisOptions{}, nil)
	f.src.put("orders",
		domain.Record{domain.KV("_id", domain.Int(1)), domain.KV("created_at", domain.String("2024-01-01"))},
		domain.Record{domain.KV("_id", domain.Int(2)), domain.KV("created_at", domain.String("2024-03-01"))},
	)

	out, err := analyze(t, f, domain.ModeRecent)
	require.NoError(t, err)
	assert.Equal(t, "created_at", out.NumericalInsights.SortField)
	q := f.src.lastQuery()
	assert.Equal(t, port.QueryFind, q.Kind)
	assert.True(t, q.Descending)
	assert.Equal(t, DefaultRecentLimit, q.Limit)
	first, _ := out.DataDisplay.SampleDocuments[0].Get("created_at")
	assert.Equal(t, domain.String("2024-03-01"), first)
}

func TestAnalyze_ExplicitParametersOverrideSelection(t *testing.T) {
	f := newAnalysisFixture(AnalysisOptions{}, nil)
	f.src.put("orders", threeOrders()...)

	_, err := analyze(t, f, domain.ModeAggregation, func(r *domain.AnalysisRequest) {
		r.Field = "amount"
		r.Limit = 500
	})
	require.NoError(t, err)
	assert.Equal(t, port.QuerySpec{Kind: port.QueryGroupCount, Field: "amount", Limit: domain.MaxLimit}, f.src.lastQuery())
}

func TestAnalyze_AggregationWithoutEligibleField(t *testing.T) {
	f := newAnalysisFixture(AnalysisOptions{}, nil)
	f.src.put("orders", domain.Record{domain.KV("_id", domain.String("x")), domain.KV("n", domain.Int(1))})

	_, err := analyze(t, f, domain.ModeAggregation)
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestAnalyze_UnknownExplicitFieldInFieldAnalysis(t *testing.T) {
	f := newAnalysisFixture(AnalysisOptions{}, nil)
	f.src.put("orders", threeOrders()...)

	_, err := analyze(t, f, domain.ModeFieldAnalysis, func(r *domain.AnalysisRequest) { r.Field = "nope" })
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	out, err := analyze(t, f, domain.ModeFieldAnalysis, func(r *domain.AnalysisRequest) { r.Field = "amount" })
	require.NoError(t, err)
	require.Len(t, out.NumericalInsights.Fields, 1)
	assert.Equal(t, "amount", out.NumericalInsights.Fields[0].Name)
}

func TestAnalyze_QueryFailurePropagates(t *testing.T) {
	f := newAnalysisFixture(AnalysisOptions{}, nil)
	f.src.put("orders", threeOrders()...)
	f.src.setErrors(nil, nil, fmt.Errorf("pipeline: %w", domain.ErrSourceQueryFailed))

	out, err := analyze(t, f, domain.ModeAggregation)
	assert.Nil(t, out)
	assert.ErrorIs(t, err, domain.ErrSourceQueryFailed)
}

func TestAnalyze_StaleSchemaIsFlagged(t *testing.T) {
	f := newAnalysisFixture(AnalysisOptions{CacheMaxAge: time.Minute}, nil)
	f.src.put("orders", threeOrders()...)
	_, err := analyze(t, f, domain.ModeFieldAnalysis)
	require.NoError(t, err)

	f.svc.cache.now = func() time.Time { return time.Now().Add(time.Hour) }
	f.src.setErrors(fmt.Errorf("dial: %w", domain.ErrSourceUnavailable), nil, nil)

	out, err := analyze(t, f, domain.ModeFieldAnalysis)
	require.NoError(t, err)
	assert.True(t, out.NumericalInsights.SchemaStale)
	assert.Contains(t, out.TextualSummary, "stale")
	assert.True(t, f.auditor.last().Stale)
}

func TestAnalyze_DefaultDatabaseAndValidation(t *testing.T) {
	f := newAnalysisFixture(AnalysisOptions{DefaultDatabase: "shop"}, nil)
	f.src.put("orders", threeOrders()...)

	out, err := f.svc.Analyze(context.Background(), domain.AnalysisRequest{
		Ref:  domain.CollectionRef{Collection: "orders"},
		Mode: domain.ModeOverview,
	})
	require.NoError(t, err)
	assert.Equal(t, "shop", out.DataDisplay.DatabaseName)

	_, err = f.svc.Analyze(context.Background(), domain.AnalysisRequest{
		Ref:   ordersRef,
		Mode:  domain.ModeOverview,
		Limit: -3,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestAnalyze_InputBudget(t *testing.T) {
	f := newAnalysisFixture(AnalysisOptions{MaxInputUnits: 20}, nil)
	f.src.put("orders", threeOrders()...)

	_, err := analyze(t, f, domain.ModeOverview, func(r *domain.AnalysisRequest) {
		r.Field = strings.Repeat("f", 200)
	})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
	assert.Zero(t, f.src.sampleCalls.Load())
}

func TestAnalyze_EnricherAppliedAndAudited(t *testing.T) {
	f := newAnalysisFixture(AnalysisOptions{}, tagEnricher{})
	f.src.put("orders", threeOrders()...)

	out, err := analyze(t, f, domain.ModeFieldAnalysis)
	require.NoError(t, err)
	assert.Equal(t, "described name", out.NumericalInsights.Fields[0].Description)

	entry := f.auditor.last()
	assert.Equal(t, "analyze_collection", entry.Tool)
	assert.Equal(t, "shop.orders", entry.Collection)
	assert.Equal(t, "field_analysis", entry.Mode)
	assert.Equal(t, 3, entry.DocumentsReturned)
	assert.NoError(t, entry.Err)
}

func TestAnalyze_DoesNotMutateSnapshot(t *testing.T) {
	f := newAnalysisFixture(AnalysisOptions{}, tagEnricher{})
	f.src.put("orders", threeOrders()...)

	_, err := analyze(t, f, domain.ModeFieldAnalysis)
	require.NoError(t, err)
	snap := f.svc.cache.Peek(ordersRef)
	require.NotNil(t, snap)
	before := *snap
	before.Fields = append([]domain.FieldProfile(nil), snap.Fields...)
	before.Preview = domain.CloneRecords(snap.Preview)

	_, err = analyze(t, f, domain.ModeAggregation)
	require.NoError(t, err)
	_, err = analyze(t, f, domain.ModeOverview)
	require.NoError(t, err)

	assert.Equal(t, before, *f.svc.cache.Peek(ordersRef))
}

func TestAnalyze_WideCollectionStaysWithinBudget(t *testing.T) {
	const budget = 2000
	f := newAnalysisFixture(AnalysisOptions{MaxOutputUnits: budget}, nil)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var recs []domain.Record
	for d := range 3 {
		rec := domain.Record{domain.KV("created_at", domain.Time(base.AddDate(0, 0, d)))}
		for i := range 800 {
			rec = append(rec, domain.KV(fmt.Sprintf("attribute_%03d", i), domain.Int(int64(i*d))))
		}
		recs = append(recs, rec)
	}
	f.src.put("orders", recs...)

	for _, mode := range []domain.Mode{domain.ModeOverview, domain.ModeRecent, domain.ModeFieldAnalysis, domain.ModeTimeSeries} {
		t.Run(string(mode), func(t *testing.T) {
			out, err := analyze(t, f, mode)
			require.NoError(t, err)

			assert.LessOrEqual(t, domain.CountUnits(out), budget)
			assert.True(t, out.Truncation.Truncated)
			assert.Less(t, len(out.NumericalInsights.FieldTypes), 801)
			assert.Positive(t, out.Truncation.FieldTypesDropped)
			assert.Contains(t, out.TextualSummary, "with 801 fields")
		})
	}
}
