package port

import "context"

// Instrumentation records application-level metrics.
type Instrumentation interface {
	RecordAnalysisDuration(ctx context.Context, mode string, ms float64)
	IncrementAnalysisCount(ctx context.Context, mode string)
	IncrementAnalysisErrors(ctx context.Context, mode, kind string)
	IncrementTruncations(ctx context.Context, mode string)
	IncrementSchemaRefreshes(ctx context.Context, outcome string)
	RecordToolDuration(ctx context.Context, ms float64)
}

// NoopInstrumentation discards all metrics.
type NoopInstrumentation struct{}

func (NoopInstrumentation) RecordAnalysisDuration(context.Context, string, float64) {}
func (NoopInstrumentation) IncrementAnalysisCount(context.Context, string)          {}
func (NoopInstrumentation) IncrementAnalysisErrors(context.Context, string, string) {}
func (NoopInstrumentation) IncrementTruncations(context.Context, string)            {}
func (NoopInstrumentation) IncrementSchemaRefreshes(context.Context, string)        {}
func (NoopInstrumentation) RecordToolDuration(context.Context, float64)             {}
