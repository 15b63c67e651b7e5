package service

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/guillermoBallester/sounder/internal/core/domain"
	"github.com/guillermoBallester/sounder/internal/core/port"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- in-memory DataSource ---

type fakeSource struct {
	mu          sync.Mutex
	collections map[string][]domain.Record // keyed by collection name
	gates       map[string]chan struct{}   // Sample blocks until closed
	sampleErr   error
	countErr    error
	queryErr    error
	queries     []port.QuerySpec

	sampleCalls atomic.Int32
	countCalls  atomic.Int32
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		collections: make(map[string][]domain.Record),
		gates:       make(map[string]chan struct{}),
	}
}

func (f *fakeSource) put(collection string, records ...domain.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.collections[collection] = records
}

func (f *fakeSource) gate(collection string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.gates[collection] = ch
	return ch
}

func (f *fakeSource) setErrors(sample, count, query error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sampleErr, f.countErr, f.queryErr = sample, count, query
}

func (f *fakeSource) Sample(ctx context.Context, ref domain.CollectionRef, n int) ([]domain.Record, error) {
	f.sampleCalls.Add(1)
	f.mu.Lock()
	gate := f.gates[ref.Collection]
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sampleErr != nil {
		return nil, f.sampleErr
	}
	recs := f.collections[ref.Collection]
	return domain.CloneRecords(recs[:min(n, len(recs))]), nil
}

func (f *fakeSource) Count(_ context.Context, ref domain.CollectionRef) (int64, error) {
	f.countCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.countErr != nil {
		return 0, f.countErr
	}
	return int64(len(f.collections[ref.Collection])), nil
}

func (f *fakeSource) Query(_ context.Context, ref domain.CollectionRef, spec port.QuerySpec) ([]domain.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, spec)
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	recs := f.collections[ref.Collection]

	switch spec.Kind {
	case port.QueryFind:
		out := domain.CloneRecords(recs)
		if spec.SortField == "" {
			for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
				out[i], out[j] = out[j], out[i]
			}
		} else {
			sort.SliceStable(out, func(i, j int) bool {
				a, _ := out[i].Get(spec.SortField)
				b, _ := out[j].Get(spec.SortField)
				return a.String() > b.String()
			})
		}
		return out[:min(spec.Limit, len(out))], nil

	case port.QueryGroupCount:
		counts := map[string]int64{}
		var keys []string
		for _, r := range recs {
			v, ok := r.Get(spec.Field)
			if !ok {
				continue
			}
			k := v.String()
			if _, seen := counts[k]; !seen {
				keys = append(keys, k)
			}
			counts[k]++
		}
		sort.Slice(keys, func(i, j int) bool {
			if counts[keys[i]] != counts[keys[j]] {
				return counts[keys[i]] > counts[keys[j]]
			}
			return keys[i] < keys[j]
		})
		var out []domain.Record
		for _, k := range keys[:min(spec.Limit, len(keys))] {
			out = append(out, domain.Record{domain.KV("key", domain.String(k)), domain.KV("count", domain.Int(counts[k]))})
		}
		return out, nil

	case port.QueryDayBuckets:
		counts := map[string]int64{}
		var days []string
		for _, r := range recs {
			v, ok := r.Get(spec.Field)
			if !ok || v.Kind() != domain.KindDateTime {
				continue
			}
			d := v.DateTime().Format("2006-01-02")
			if _, seen := counts[d]; !seen {
				days = append(days, d)
			}
			counts[d]++
		}
		sort.Sort(sort.Reverse(sort.StringSlice(days)))
		var out []domain.Record
		for _, d := range days[:min(spec.Limit, len(days))] {
			out = append(out, domain.Record{domain.KV("bucket", domain.String(d)), domain.KV("count", domain.Int(counts[d]))})
		}
		return out, nil
	}
	return nil, nil
}

func (f *fakeSource) lastQuery() port.QuerySpec {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queries) == 0 {
		return port.QuerySpec{}
	}
	return f.queries[len(f.queries)-1]
}

// --- recording auditor ---

type recordingAuditor struct {
	mu      sync.Mutex
	entries []port.AuditEntry
}

func (a *recordingAuditor) Record(_ context.Context, e port.AuditEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
}

func (a *recordingAuditor) Close() error { return nil }

func (a *recordingAuditor) last() port.AuditEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.entries[len(a.entries)-1]
}

// --- enricher that tags descriptions ---

type tagEnricher struct{}

func (tagEnricher) Enrich(_ domain.CollectionRef, raw *domain.RawResult) *domain.RawResult {
	out := raw.Clone()
	for i := range out.Fields {
		out.Fields[i].Description = "described " + out.Fields[i].Name
	}
	return out
}
