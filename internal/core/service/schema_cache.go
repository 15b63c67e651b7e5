package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/guillermoBallester/sounder/internal/core/domain"
	"github.com/guillermoBallester/sounder/internal/core/port"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultSampleSize     = 100
	DefaultCacheMaxAge    = 5 * time.Minute
	DefaultRefreshTimeout = 30 * time.Second
)

// CacheOptions configures a SchemaCache. Zero values select defaults.
type CacheOptions struct {
	SampleSize     int
	TopValues      int
	MaxAge         time.Duration
	RefreshTimeout time.Duration
	// ServeStale returns the previous snapshot, flagged stale, when a
	// refresh fails because the data source is unreachable.
	ServeStale bool
}

func (o CacheOptions) withDefaults() CacheOptions {
	if o.SampleSize <= 0 {
		o.SampleSize = DefaultSampleSize
	}
	if o.TopValues <= 0 {
		o.TopValues = domain.DefaultTopValues
	}
	if o.MaxAge <= 0 {
		o.MaxAge = DefaultCacheMaxAge
	}
	if o.RefreshTimeout <= 0 {
		o.RefreshTimeout = DefaultRefreshTimeout
	}
	return o
}

// Lookup is the result of a cache read.
type Lookup struct {
	Snapshot *domain.SchemaSnapshot
	Stale    bool
	Cause    error // refresh failure behind a stale snapshot
}

// SchemaCache holds one immutable snapshot per collection. Refreshes of the
// same collection are coalesced; different collections never wait on each
// other and no lock is held while the data source is queried.
type SchemaCache struct {
	source  port.DataSource
	opts    CacheOptions
	entries sync.Map // CollectionRef.Key() -> *domain.SchemaSnapshot
	group   singleflight.Group
	logger  *slog.Logger
	tracer  trace.Tracer
	inst    port.Instrumentation
	now     func() time.Time
}

func NewSchemaCache(source port.DataSource, opts CacheOptions, logger *slog.Logger, tracer trace.Tracer, inst port.Instrumentation) *SchemaCache {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("noop")
	}
	if inst == nil {
		inst = port.NoopInstrumentation{}
	}
	return &SchemaCache{
		source: source,
		opts:   opts.withDefaults(),
		logger: logger,
		tracer: tracer,
		inst:   inst,
		now:    time.Now,
	}
}

// GetOrRefresh returns the cached snapshot for ref when it is younger than
// maxAge, refreshing it synchronously otherwise. maxAge <= 0 uses the
// configured default.
func (c *SchemaCache) GetOrRefresh(ctx context.Context, ref domain.CollectionRef, maxAge time.Duration) (Lookup, error) {
	if maxAge <= 0 {
		maxAge = c.opts.MaxAge
	}
	if snap := c.Peek(ref); snap != nil && snap.Age(c.now()) < maxAge {
		return Lookup{Snapshot: snap}, nil
	}
	return c.refresh(ctx, ref)
}

// Refresh rebuilds the snapshot for ref regardless of its age.
func (c *SchemaCache) Refresh(ctx context.Context, ref domain.CollectionRef) (Lookup, error) {
	return c.refresh(ctx, ref)
}

// Peek returns the current snapshot for ref without refreshing, or nil.
func (c *SchemaCache) Peek(ref domain.CollectionRef) *domain.SchemaSnapshot {
	v, ok := c.entries.Load(ref.Key())
	if !ok {
		return nil
	}
	return v.(*domain.SchemaSnapshot)
}

// Invalidate drops the snapshot for ref.
func (c *SchemaCache) Invalidate(ref domain.CollectionRef) {
	c.entries.Delete(ref.Key())
}

func (c *SchemaCache) refresh(ctx context.Context, ref domain.CollectionRef) (Lookup, error) {
	// The load outlives any single waiter: it runs detached from the
	// caller's cancellation and is bounded by the refresh timeout instead.
	ch := c.group.DoChan(ref.Key(), func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.RefreshTimeout)
		defer cancel()
		return c.load(loadCtx, ref)
	})

	select {
	case <-ctx.Done():
		return Lookup{}, ctx.Err()
	case res := <-ch:
		if res.Err == nil {
			return Lookup{Snapshot: res.Val.(*domain.SchemaSnapshot)}, nil
		}
		if c.opts.ServeStale && errors.Is(res.Err, domain.ErrSourceUnavailable) {
			if prev := c.Peek(ref); prev != nil {
				c.logger.WarnContext(ctx, "serving stale schema snapshot",
					slog.String("db.collection.name", ref.String()),
					slog.Time("captured_at", prev.CapturedAt),
					slog.String("error", res.Err.Error()),
				)
				return Lookup{Snapshot: prev, Stale: true, Cause: res.Err}, nil
			}
		}
		return Lookup{}, res.Err
	}
}

func (c *SchemaCache) load(ctx context.Context, ref domain.CollectionRef) (*domain.SchemaSnapshot, error) {
	ctx, span := c.tracer.Start(ctx, "SchemaCache.Refresh",
		trace.WithAttributes(
			attribute.String("db.collection.name", ref.String()),
			attribute.Int("schema.sample_size", c.opts.SampleSize),
		),
	)
	defer span.End()

	start := time.Now()
	snap, err := c.build(ctx, ref)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.inst.IncrementSchemaRefreshes(ctx, "error")
		c.logger.WarnContext(ctx, "schema refresh failed",
			slog.String("db.collection.name", ref.String()),
			slog.String("error.type", domain.ErrorKind(err)),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	c.entries.Store(ref.Key(), snap)
	c.inst.IncrementSchemaRefreshes(ctx, "ok")
	span.SetAttributes(attribute.Int("schema.fields", len(snap.Fields)))
	c.logger.DebugContext(ctx, "schema refreshed",
		slog.String("db.collection.name", ref.String()),
		slog.Int("schema.fields", len(snap.Fields)),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return snap, nil
}

func (c *SchemaCache) build(ctx context.Context, ref domain.CollectionRef) (*domain.SchemaSnapshot, error) {
	var (
		sample []domain.Record
		count  int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		sample, err = c.source.Sample(gctx, ref, c.opts.SampleSize)
		if err != nil {
			return fmt.Errorf("sampling %s: %w", ref, err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		count, err = c.source.Count(gctx, ref)
		if err != nil {
			return fmt.Errorf("counting %s: %w", ref, err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	profiles, err := domain.Infer(sample, c.opts.SampleSize, c.opts.TopValues)
	if err != nil {
		return nil, err
	}
	return domain.NewSchemaSnapshot(ref, profiles, count, sample, c.now()), nil
}
