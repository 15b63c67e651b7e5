package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNoopTracer(t *testing.T) {
	tracer := NoopTracer()
	assert.NotNil(t, tracer)

	_, span := tracer.Start(context.Background(), "test")
	assert.NotNil(t, span)
	span.End()
}

func TestNoopInstruments(t *testing.T) {
	inst := NoopInstruments()
	assert.NotNil(t, inst)
	assert.NotNil(t, inst.AnalysisCount)
	assert.NotNil(t, inst.AnalysisDuration)
	assert.NotNil(t, inst.AnalysisErrors)
	assert.NotNil(t, inst.Truncations)
	assert.NotNil(t, inst.SchemaRefreshes)
	assert.NotNil(t, inst.ToolDuration)

	// Should not panic.
	inst.IncrementAnalysisCount(context.Background(), "overview")
	inst.RecordAnalysisDuration(context.Background(), "overview", 100.0)
}

func TestProvider_Nil(t *testing.T) {
	var p *Provider
	assert.NoError(t, p.Shutdown(context.Background()))

	_, span := p.Tracer().Start(context.Background(), "noop")
	assert.False(t, span.SpanContext().IsValid())
	span.End()
}

func TestOptions_Resource(t *testing.T) {
	res, err := Options{ServiceName: "sounder", Version: "1.2.3", Backend: "mongodb"}.resource(context.Background())
	require.NoError(t, err)

	attrs := map[string]string{}
	for _, kv := range res.Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "sounder", attrs["service.name"])
	assert.Equal(t, "1.2.3", attrs["service.version"])
	assert.Equal(t, "mongodb", attrs["db.system"])
}

func TestSpanRecording(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer func() { _ = tp.Shutdown(context.Background()) }()
	tracer := tp.Tracer("test")

	ctx := context.Background()
	_, span := tracer.Start(ctx, "test-op")
	span.SetAttributes(attribute.String("db.system", "mongodb"))
	span.End()

	require.NoError(t, tp.ForceFlush(ctx))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "test-op", spans[0].Name)
}

func TestMetricRecording(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := mp.Meter("test")

	counter, err := meter.Int64Counter("test.counter")
	require.NoError(t, err)

	counter.Add(context.Background(), 5)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	require.Len(t, rm.ScopeMetrics, 1)
	require.Len(t, rm.ScopeMetrics[0].Metrics, 1)
	assert.Equal(t, "test.counter", rm.ScopeMetrics[0].Metrics[0].Name)
}

func TestInstruments_RecordWithModeAttributes(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	inst := newInstrumentsFromMeter(mp.Meter("test"))
	ctx := context.Background()

	inst.IncrementAnalysisCount(ctx, "overview")
	inst.IncrementAnalysisCount(ctx, "overview")
	inst.IncrementAnalysisErrors(ctx, "recent", "source_unavailable")
	inst.IncrementTruncations(ctx, "overview")
	inst.IncrementSchemaRefreshes(ctx, "ok")
	inst.RecordAnalysisDuration(ctx, "overview", 12.5)
	inst.RecordToolDuration(ctx, 15)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	byName := make(map[string]metricdata.Metrics)
	for _, m := range rm.ScopeMetrics[0].Metrics {
		byName[m.Name] = m
	}
	assert.Len(t, byName, 6)

	count, ok := byName["sounder.analysis.count"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, count.DataPoints, 1)
	assert.Equal(t, int64(2), count.DataPoints[0].Value)
	mode, ok := count.DataPoints[0].Attributes.Value("analysis.mode")
	require.True(t, ok)
	assert.Equal(t, "overview", mode.AsString())

	errs, ok := byName["sounder.analysis.errors"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	kind, ok := errs.DataPoints[0].Attributes.Value("error.type")
	require.True(t, ok)
	assert.Equal(t, "source_unavailable", kind.AsString())
}
