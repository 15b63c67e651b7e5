package domain

import (
	"fmt"
	"strings"
)

// CollectionRef identifies a logical record set: a MongoDB database and
// collection, or a Postgres schema and table.
type CollectionRef struct {
	Database   string `json:"database"`
	Collection string `json:"collection"`
}

func (r CollectionRef) String() string {
	if r.Database == "" {
		return r.Collection
	}
	return r.Database + "." + r.Collection
}

// Key is the cache key for r. The NUL separator keeps "a.b"+"c" and "a"+"b.c"
// apart.
func (r CollectionRef) Key() string {
	return r.Database + "\x00" + r.Collection
}

func (r CollectionRef) Validate() error {
	if strings.TrimSpace(r.Collection) == "" {
		return fmt.Errorf("%w: collection name is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(r.Database) == "" {
		return fmt.Errorf("%w: database name is required", ErrInvalidRequest)
	}
	return nil
}

// Mode selects an analysis strategy.
type Mode string

const (
	ModeOverview      Mode = "overview"
	ModeRecent        Mode = "recent"
	ModeAggregation   Mode = "aggregation"
	ModeFieldAnalysis Mode = "field_analysis"
	ModeTimeSeries    Mode = "time_series"
)

// Modes lists every supported mode in documentation order.
var Modes = []Mode{ModeOverview, ModeRecent, ModeAggregation, ModeFieldAnalysis, ModeTimeSeries}

func (m Mode) Valid() bool {
	switch m {
	case ModeOverview, ModeRecent, ModeAggregation, ModeFieldAnalysis, ModeTimeSeries:
		return true
	}
	return false
}

// ParseMode accepts only the exact mode literals; nothing is defaulted.
func ParseMode(s string) (Mode, error) {
	m := Mode(s)
	if !m.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedMode, s)
	}
	return m, nil
}

// MaxLimit caps explicit limits on returned documents, groups and buckets.
const MaxLimit = 100

// AnalysisRequest is one inbound analysis call.
type AnalysisRequest struct {
	Ref   CollectionRef `json:"ref"`
	Mode  Mode          `json:"mode"`
	Limit int           `json:"limit,omitempty"` // 0 means the mode's default
	Field string        `json:"field,omitempty"` // overrides automatic field selection
}

func (r AnalysisRequest) Validate() error {
	if !r.Mode.Valid() {
		return fmt.Errorf("%w: %q", ErrUnsupportedMode, string(r.Mode))
	}
	if err := r.Ref.Validate(); err != nil {
		return err
	}
	if r.Limit < 0 {
		return fmt.Errorf("%w: limit must not be negative", ErrInvalidRequest)
	}
	return nil
}
