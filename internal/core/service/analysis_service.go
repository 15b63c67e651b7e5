package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/guillermoBallester/sounder/internal/core/domain"
	"github.com/guillermoBallester/sounder/internal/core/port"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

type toolNameKey struct{}

// WithToolName returns a context carrying the MCP tool name for audit logging.
func WithToolName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, toolNameKey{}, name)
}

func toolNameFromCtx(ctx context.Context) string {
	if v, ok := ctx.Value(toolNameKey{}).(string); ok {
		return v
	}
	return ""
}

// AnalysisOptions configures an AnalysisService. Non-positive values select
// defaults.
type AnalysisOptions struct {
	DefaultDatabase string
	CacheMaxAge     time.Duration
	MaxInputUnits   int
	MaxOutputUnits  int
}

func (o AnalysisOptions) withDefaults() AnalysisOptions {
	if o.CacheMaxAge <= 0 {
		o.CacheMaxAge = DefaultCacheMaxAge
	}
	if o.MaxInputUnits <= 0 {
		o.MaxInputUnits = domain.DefaultMaxUnits
	}
	if o.MaxOutputUnits <= 0 {
		o.MaxOutputUnits = domain.DefaultMaxUnits
	}
	return o
}

// AnalysisService runs one analysis request end to end: schema lookup,
// strategy selection, enrichment, budgeting and composition.
type AnalysisService struct {
	cache    *SchemaCache
	selector *Selector
	enricher port.ResultEnricher
	auditor  port.AnalysisAuditor
	logger   *slog.Logger
	tracer   trace.Tracer
	inst     port.Instrumentation
	opts     AnalysisOptions
}

func NewAnalysisService(cache *SchemaCache, selector *Selector, enricher port.ResultEnricher, auditor port.AnalysisAuditor, logger *slog.Logger, tracer trace.Tracer, inst port.Instrumentation, opts AnalysisOptions) *AnalysisService {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("noop")
	}
	if inst == nil {
		inst = port.NoopInstrumentation{}
	}
	if auditor == nil {
		auditor = port.NoopAuditor{}
	}
	return &AnalysisService{
		cache:    cache,
		selector: selector,
		enricher: enricher,
		auditor:  auditor,
		logger:   logger,
		tracer:   tracer,
		inst:     inst,
		opts:     opts.withDefaults(),
	}
}

// Analyze never returns a partial outcome alongside an error. Errors are
// *domain.AnalysisError wrapping one of the domain sentinels.
func (s *AnalysisService) Analyze(ctx context.Context, req domain.AnalysisRequest) (*domain.AnalysisOutcome, error) {
	if req.Ref.Database == "" {
		req.Ref.Database = s.opts.DefaultDatabase
	}

	ctx, span := s.tracer.Start(ctx, "AnalysisService.Analyze",
		trace.WithAttributes(
			attribute.String("db.namespace", req.Ref.Database),
			attribute.String("db.collection.name", req.Ref.Collection),
			attribute.String("analysis.mode", string(req.Mode)),
		),
	)
	defer span.End()

	start := time.Now()
	outcome, stale, err := s.analyze(ctx, req, start)
	durationMS := time.Since(start).Milliseconds()
	mode := string(req.Mode)

	s.inst.RecordAnalysisDuration(ctx, mode, float64(durationMS))

	entry := port.AuditEntry{
		Tool:       toolNameFromCtx(ctx),
		Collection: req.Ref.String(),
		Mode:       mode,
		Stale:      stale,
		DurationMS: durationMS,
		Err:        err,
	}
	if outcome != nil {
		entry.DocumentsReturned = outcome.NumericalInsights.ReturnedDocuments
		entry.Truncated = outcome.Truncation.Truncated
	}
	s.auditor.Record(ctx, entry)

	if err != nil {
		kind := domain.ErrorKind(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.inst.IncrementAnalysisErrors(ctx, mode, kind)
		s.logger.WarnContext(ctx, "analysis failed",
			slog.String("db.collection.name", req.Ref.String()),
			slog.String("analysis.mode", mode),
			slog.String("error.type", kind),
			slog.String("error", err.Error()),
		)
		return nil, &domain.AnalysisError{Ref: req.Ref, Mode: req.Mode, Err: err}
	}

	s.inst.IncrementAnalysisCount(ctx, mode)
	if outcome.Truncation.Truncated {
		s.inst.IncrementTruncations(ctx, mode)
	}
	span.SetAttributes(
		attribute.Int("analysis.documents_returned", outcome.NumericalInsights.ReturnedDocuments),
		attribute.Bool("analysis.truncated", outcome.Truncation.Truncated),
		attribute.Bool("analysis.schema_stale", stale),
	)
	s.logger.InfoContext(ctx, "analysis completed",
		slog.String("db.collection.name", req.Ref.String()),
		slog.String("analysis.mode", mode),
		slog.Int64("duration_ms", durationMS),
		slog.Bool("truncated", outcome.Truncation.Truncated),
	)
	return outcome, nil
}

func (s *AnalysisService) analyze(ctx context.Context, req domain.AnalysisRequest, start time.Time) (*domain.AnalysisOutcome, bool, error) {
	if err := req.Validate(); err != nil {
		return nil, false, err
	}

	budget := domain.NewBudget(s.opts.MaxInputUnits, s.opts.MaxOutputUnits)
	if units := domain.CountUnits(req); units > budget.MaxInputUnits {
		return nil, false, fmt.Errorf("%w: request measures %d units, limit is %d", domain.ErrInvalidRequest, units, budget.MaxInputUnits)
	}

	lookup, err := s.cache.GetOrRefresh(ctx, req.Ref, s.opts.CacheMaxAge)
	if err != nil {
		return nil, false, fmt.Errorf("schema: %w", err)
	}

	raw, err := s.selector.SelectAndRun(ctx, req, lookup.Snapshot)
	if err != nil {
		return nil, lookup.Stale, err
	}
	raw.SchemaStale = lookup.Stale
	if s.enricher != nil {
		raw = s.enricher.Enrich(req.Ref, raw)
	}

	// The outcome is measured exactly as it will be returned, so the
	// budget bounds what the caller receives.
	elapsed := time.Since(start)
	budgeter := domain.Budgeter{Measure: func(r *domain.RawResult) int {
		o := domain.Compose(req.Mode, r, elapsed)
		return domain.CountUnits(&o)
	}}
	fitted, _ := budgeter.Fit(raw, budget)
	outcome := domain.Compose(req.Mode, fitted, elapsed)
	return &outcome, lookup.Stale, nil
}
