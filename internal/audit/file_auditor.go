package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/guillermoBallester/sounder/internal/core/domain"
	"github.com/guillermoBallester/sounder/internal/core/port"
)

// fileEntry is the NDJSON-serializable form of an audit record.
type fileEntry struct {
	ID                string  `json:"id"`
	Timestamp         string  `json:"ts"`
	Tool              string  `json:"tool"`
	Collection        string  `json:"collection"`
	Mode              string  `json:"mode"`
	DocumentsReturned int     `json:"documents_returned"`
	Truncated         bool    `json:"truncated"`
	Stale             bool    `json:"stale"`
	DurationMS        int64   `json:"duration_ms"`
	Error             *string `json:"error"`
	ErrorKind         string  `json:"error_kind,omitempty"`
}

// FileAuditor writes audit entries as NDJSON (one JSON object per line) to a file.
type FileAuditor struct {
	mu     sync.Mutex
	file   *os.File
	enc    *json.Encoder
	logger *slog.Logger
}

var _ port.AnalysisAuditor = (*FileAuditor)(nil)

// NewFileAuditor opens (or creates) the file at path for append-only writing.
func NewFileAuditor(path string, logger *slog.Logger) (*FileAuditor, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening audit log: %w", err)
	}
	return &FileAuditor{
		file:   f,
		enc:    json.NewEncoder(f),
		logger: logger,
	}, nil
}

func (a *FileAuditor) Record(ctx context.Context, entry port.AuditEntry) {
	fe := fileEntry{
		ID:                uuid.NewString(),
		Timestamp:         time.Now().UTC().Format(time.RFC3339),
		Tool:              entry.Tool,
		Collection:        entry.Collection,
		Mode:              entry.Mode,
		DocumentsReturned: entry.DocumentsReturned,
		Truncated:         entry.Truncated,
		Stale:             entry.Stale,
		DurationMS:        entry.DurationMS,
	}
	if entry.Err != nil {
		s := entry.Err.Error()
		fe.Error = &s
		fe.ErrorKind = domain.ErrorKind(entry.Err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	// Audit I/O never fails the request.
	if err := a.enc.Encode(fe); err != nil && a.logger != nil {
		a.logger.WarnContext(ctx, "audit write failed", slog.String("error", err.Error()))
	}
}

func (a *FileAuditor) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.file.Close()
}
