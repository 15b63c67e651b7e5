package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// TypeSet is the set of kinds observed for a field.
type TypeSet uint16

func (s TypeSet) Add(k Kind) TypeSet { return s | 1<<k }
func (s TypeSet) Has(k Kind) bool    { return s&(1<<k) != 0 }
func (s TypeSet) Empty() bool        { return s == 0 }

// Only reports whether k is the single member of s.
func (s TypeSet) Only(k Kind) bool { return s == 1<<k }

// Kinds lists the members in Kind order.
func (s TypeSet) Kinds() []Kind {
	var out []Kind
	for k := KindNull; k <= KindArray; k++ {
		if s.Has(k) {
			out = append(out, k)
		}
	}
	return out
}

func (s TypeSet) Tags() []string {
	kinds := s.Kinds()
	tags := make([]string, len(kinds))
	for i, k := range kinds {
		tags[i] = k.String()
	}
	return tags
}

// String renders the set compactly, e.g. "null|integer".
func (s TypeSet) String() string {
	return strings.Join(s.Tags(), "|")
}

func (s TypeSet) MarshalJSON() ([]byte, error) {
	tags := s.Tags()
	if tags == nil {
		tags = []string{}
	}
	return json.Marshal(tags)
}

// ValueCount is one entry of a field's frequency table.
type ValueCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// FieldProfile is the inferred summary of one field across a sample.
type FieldProfile struct {
	Name       string       `json:"name"`
	Types      TypeSet      `json:"types"`
	Present    int          `json:"present"`
	Nulls      int          `json:"nulls"`
	Distinct   int          `json:"distinct"`
	TopValues  []ValueCount `json:"top_values,omitempty"`
	SampleSize int          `json:"sample_size"`
}

// PresenceRatio is the share of sampled records that carry the field.
func (p FieldProfile) PresenceRatio() float64 {
	if p.SampleSize <= 0 {
		return 0
	}
	return float64(p.Present) / float64(p.SampleSize)
}

// NullRatio is the share of sampled records where the field is null.
func (p FieldProfile) NullRatio() float64 {
	if p.SampleSize <= 0 {
		return 0
	}
	return float64(p.Nulls) / float64(p.SampleSize)
}

// DefaultTopValues is the frequency table capacity used when none is given.
const DefaultTopValues = 10

type fieldAccumulator struct {
	name     string
	types    TypeSet
	present  int
	nulls    int
	distinct map[string]struct{}
	freq     *simplelru.LRU[string, int]
}

// Infer derives one FieldProfile per distinct top-level field in the first
// sampleSize records, in first-seen order. The frequency table keeps at most
// topK values and evicts the least recently seen one when full, so counts are
// approximate for high-cardinality fields.
func Infer(records []Record, sampleSize, topK int) ([]FieldProfile, error) {
	if sampleSize < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidSampleSize, sampleSize)
	}
	if topK < 1 {
		topK = DefaultTopValues
	}
	if len(records) > sampleSize {
		records = records[:sampleSize]
	}
	if len(records) == 0 {
		return []FieldProfile{}, nil
	}

	var order []*fieldAccumulator
	byName := make(map[string]*fieldAccumulator)

	for _, rec := range records {
		seen := make(map[string]bool, len(rec))
		for _, f := range rec {
			// Duplicate keys inside one record count once.
			if seen[f.Name] {
				continue
			}
			seen[f.Name] = true

			acc, ok := byName[f.Name]
			if !ok {
				freq, err := simplelru.NewLRU[string, int](topK, nil)
				if err != nil {
					return nil, fmt.Errorf("creating frequency table: %w", err)
				}
				acc = &fieldAccumulator{
					name:     f.Name,
					distinct: make(map[string]struct{}),
					freq:     freq,
				}
				byName[f.Name] = acc
				order = append(order, acc)
			}
			acc.observe(f.Value)
		}
	}

	profiles := make([]FieldProfile, len(order))
	for i, acc := range order {
		profiles[i] = acc.profile(len(records))
	}
	return profiles, nil
}

func (a *fieldAccumulator) observe(v Value) {
	a.present++
	a.types = a.types.Add(v.Kind())
	if v.IsNull() {
		a.nulls++
		return
	}
	s, ok := v.Scalar()
	if !ok {
		return
	}
	a.distinct[s] = struct{}{}
	// Get promotes the key so eviction targets the least recently seen value.
	n, _ := a.freq.Get(s)
	a.freq.Add(s, n+1)
}

func (a *fieldAccumulator) profile(sampleSize int) FieldProfile {
	top := make([]ValueCount, 0, a.freq.Len())
	for _, k := range a.freq.Keys() {
		n, _ := a.freq.Peek(k)
		top = append(top, ValueCount{Value: k, Count: n})
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].Count != top[j].Count {
			return top[i].Count > top[j].Count
		}
		return top[i].Value < top[j].Value
	})
	if len(top) == 0 {
		top = nil
	}
	return FieldProfile{
		Name:       a.name,
		Types:      a.types,
		Present:    a.present,
		Nulls:      a.nulls,
		Distinct:   len(a.distinct),
		TopValues:  top,
		SampleSize: sampleSize,
	}
}
