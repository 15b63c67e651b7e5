package port

import "context"

// AuditEntry represents a single auditable analysis event.
type AuditEntry struct {
	Tool              string
	Collection        string
	Mode              string
	DocumentsReturned int
	Truncated         bool
	Stale             bool
	DurationMS        int64
	Err               error
}

// AnalysisAuditor records analysis audit events.
type AnalysisAuditor interface {
	Record(ctx context.Context, entry AuditEntry)
	Close() error
}

// NoopAuditor discards all entries.
type NoopAuditor struct{}

func (NoopAuditor) Record(context.Context, AuditEntry) {}
func (NoopAuditor) Close() error                       { return nil }
