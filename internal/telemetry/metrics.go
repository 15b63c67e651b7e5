package telemetry

import (
	"context"

	"github.com/guillermoBallester/sounder/internal/core/port"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/guillermoBallester/sounder"

// Instruments holds pre-created OTel metric instruments.
type Instruments struct {
	AnalysisCount    metric.Int64Counter
	AnalysisDuration metric.Float64Histogram
	AnalysisErrors   metric.Int64Counter
	Truncations      metric.Int64Counter
	SchemaRefreshes  metric.Int64Counter
	ToolDuration     metric.Float64Histogram
}

var _ port.Instrumentation = (*Instruments)(nil)

// NewInstruments creates metric instruments from the global MeterProvider.
// Returns nil-safe instruments: if creation fails, noop instruments are used.
func NewInstruments() *Instruments {
	meter := otel.Meter(meterName)
	return newInstrumentsFromMeter(meter)
}

// NoopInstruments returns instruments that record nothing.
func NoopInstruments() *Instruments {
	meter := noop.NewMeterProvider().Meter(meterName)
	return newInstrumentsFromMeter(meter)
}

func newInstrumentsFromMeter(meter metric.Meter) *Instruments {
	// OTel SDK returns noop instruments on error; safe to discard.
	analysisCount, _ := meter.Int64Counter("sounder.analysis.count",
		metric.WithDescription("Total number of completed analyses"),
	)
	analysisDuration, _ := meter.Float64Histogram("sounder.analysis.duration",
		metric.WithDescription("Analysis duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	analysisErrors, _ := meter.Int64Counter("sounder.analysis.errors",
		metric.WithDescription("Total number of failed analyses"),
	)
	truncations, _ := meter.Int64Counter("sounder.analysis.truncations",
		metric.WithDescription("Analyses whose output was truncated to fit the response budget"),
	)
	schemaRefreshes, _ := meter.Int64Counter("sounder.schema.refreshes",
		metric.WithDescription("Schema snapshot refreshes by outcome"),
	)
	toolDuration, _ := meter.Float64Histogram("sounder.tool.duration",
		metric.WithDescription("MCP tool call duration in milliseconds"),
		metric.WithUnit("ms"),
	)

	return &Instruments{
		AnalysisCount:    analysisCount,
		AnalysisDuration: analysisDuration,
		AnalysisErrors:   analysisErrors,
		Truncations:      truncations,
		SchemaRefreshes:  schemaRefreshes,
		ToolDuration:     toolDuration,
	}
}

func modeAttr(mode string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("analysis.mode", mode))
}

func (i *Instruments) RecordAnalysisDuration(ctx context.Context, mode string, ms float64) {
	i.AnalysisDuration.Record(ctx, ms, modeAttr(mode))
}

func (i *Instruments) IncrementAnalysisCount(ctx context.Context, mode string) {
	i.AnalysisCount.Add(ctx, 1, modeAttr(mode))
}

func (i *Instruments) IncrementAnalysisErrors(ctx context.Context, mode, kind string) {
	i.AnalysisErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("analysis.mode", mode),
		attribute.String("error.type", kind),
	))
}

func (i *Instruments) IncrementTruncations(ctx context.Context, mode string) {
	i.Truncations.Add(ctx, 1, modeAttr(mode))
}

func (i *Instruments) IncrementSchemaRefreshes(ctx context.Context, outcome string) {
	i.SchemaRefreshes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (i *Instruments) RecordToolDuration(ctx context.Context, ms float64) {
	i.ToolDuration.Record(ctx, ms)
}
