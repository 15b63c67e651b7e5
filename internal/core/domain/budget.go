package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

// DefaultMaxUnits is the default request and response budget.
const DefaultMaxUnits = 6000

// TruncationMarker is appended to shortened descriptions.
const TruncationMarker = " [truncated]"

// Budget bounds the size of one request and its response, in units of
// roughly one token each.
type Budget struct {
	MaxInputUnits  int `json:"max_input_units"`
	MaxOutputUnits int `json:"max_output_units"`
	UnitsConsumed  int `json:"units_consumed"`
}

// NewBudget returns a request-scoped budget.
func NewBudget(maxInput, maxOutput int) *Budget {
	return &Budget{MaxInputUnits: maxInput, MaxOutputUnits: maxOutput}
}

// CountText estimates units for a string: one unit per four runes, rounded
// up, and at least one for any non-empty text.
func CountText(s string) int {
	n := utf8.RuneCountInString(s)
	if n == 0 {
		return 0
	}
	return (n + 3) / 4
}

// CountUnits measures the JSON serialization of v.
func CountUnits(v any) int {
	data, err := json.Marshal(v)
	if err != nil {
		return CountText(fmt.Sprintf("%v", v))
	}
	return CountText(string(data))
}

// Budgeter shrinks results to fit an output budget. Measure defaults to
// CountUnits of the raw result.
type Budgeter struct {
	Measure func(*RawResult) int
}

// Fit returns raw unchanged and false when it fits the budget. Otherwise it
// returns a truncated copy and true, after trimming, in order: trailing
// documents (keeping at least one), the description text, trailing result
// rows (keeping at least one per list), the field type map, and finally the
// trailing fields of the kept documents. Each stage stops as soon as the
// result fits; when nothing fits the minimal form is returned.
func (b Budgeter) Fit(raw *RawResult, budget *Budget) (*RawResult, bool) {
	measure := b.Measure
	if measure == nil {
		measure = func(r *RawResult) int { return CountUnits(r) }
	}
	limit := budget.MaxOutputUnits
	fits := func(r *RawResult) bool { return measure(r) <= limit }

	if limit <= 0 || fits(raw) {
		budget.UnitsConsumed = measure(raw)
		return raw, false
	}

	out := raw.Clone()
	out.Truncation.Truncated = true

	for _, stage := range fitStages {
		if stage(out, fits) {
			break
		}
	}

	budget.UnitsConsumed = measure(out)
	return out, true
}

var fitStages = []func(*RawResult, func(*RawResult) bool) bool{
	trimDocuments,
	shortenDescription,
	trimRows,
	trimFieldTypes,
	narrowDocuments,
}

// Fit applies the default Budgeter.
func Fit(raw *RawResult, budget *Budget) (*RawResult, bool) {
	return Budgeter{}.Fit(raw, budget)
}

// largestFitting returns the largest n in [lo, hi] for which try reports a
// fit, or lo when none does. try must leave the result at n when it returns.
func largestFitting(lo, hi int, try func(n int) bool) (int, bool) {
	// sort.Search finds the first n that does not fit; fitting is monotone
	// because every stage only removes content.
	k := sort.Search(hi-lo+1, func(i int) bool { return !try(lo + i) })
	if k == 0 {
		try(lo)
		return lo, false
	}
	try(lo + k - 1)
	return lo + k - 1, true
}

func trimDocuments(r *RawResult, fits func(*RawResult) bool) bool {
	if len(r.Documents) == 0 {
		return false
	}
	docs := r.Documents
	dropped := r.Truncation.DocumentsDropped
	_, ok := largestFitting(1, len(docs), func(n int) bool {
		r.Documents = docs[:n]
		r.Truncation.DocumentsDropped = dropped + len(docs) - n
		return fits(r)
	})
	return ok
}

func shortenDescription(r *RawResult, fits func(*RawResult) bool) bool {
	desc := r.Description
	base, marked := strings.CutSuffix(desc, TruncationMarker)
	runes := []rune(base)
	textShortened := r.Truncation.TextShortened

	candidate := func(k int) string {
		if k == len(runes) && !marked {
			return desc
		}
		return string(runes[:k]) + TruncationMarker
	}

	_, ok := largestFitting(0, len(runes), func(k int) bool {
		r.Description = candidate(k)
		r.Truncation.TextShortened = textShortened || r.Description != desc
		return fits(r)
	})
	return ok
}

func trimRows(r *RawResult, fits func(*RawResult) bool) bool {
	if len(r.Fields) > 0 {
		fields := r.Fields
		dropped := r.Truncation.RowsDropped
		if _, ok := largestFitting(1, len(fields), func(n int) bool {
			r.Fields = fields[:n]
			r.Truncation.RowsDropped = dropped + len(fields) - n
			return fits(r)
		}); ok {
			return true
		}
	}
	if len(r.Groups) > 0 {
		groups := r.Groups
		dropped := r.Truncation.RowsDropped
		if _, ok := largestFitting(1, len(groups), func(n int) bool {
			r.Groups = groups[:n]
			r.Truncation.RowsDropped = dropped + len(groups) - n
			return fits(r)
		}); ok {
			return true
		}
	}
	if len(r.Buckets) > 0 {
		buckets := r.Buckets
		dropped := r.Truncation.RowsDropped
		if _, ok := largestFitting(1, len(buckets), func(n int) bool {
			r.Buckets = buckets[:n]
			r.Truncation.RowsDropped = dropped + len(buckets) - n
			return fits(r)
		}); ok {
			return true
		}
	}
	return false
}

// fieldTypeOrder lists the FieldTypes keys in snapshot order, then any keys
// missing from FieldOrder sorted by name.
func fieldTypeOrder(r *RawResult) []string {
	order := make([]string, 0, len(r.FieldTypes))
	seen := make(map[string]bool, len(r.FieldTypes))
	for _, name := range r.FieldOrder {
		if _, ok := r.FieldTypes[name]; ok && !seen[name] {
			order = append(order, name)
			seen[name] = true
		}
	}
	var rest []string
	for name := range r.FieldTypes {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	return append(order, rest...)
}

// referencedFields are the type map entries the rest of the result still
// mentions, in order.
func referencedFields(r *RawResult, order []string) []string {
	ref := make(map[string]bool, len(r.Fields)+3)
	for _, f := range r.Fields {
		ref[f.Name] = true
	}
	for _, name := range []string{r.GroupField, r.TimeField, r.SortField} {
		if name != "" {
			ref[name] = true
		}
	}
	var out []string
	for _, name := range order {
		if ref[name] {
			out = append(out, name)
		}
	}
	return out
}

func trimFieldTypes(r *RawResult, fits func(*RawResult) bool) bool {
	if len(r.FieldTypes) == 0 {
		return false
	}
	all := r.FieldTypes
	dropped := r.Truncation.FieldTypesDropped
	keep := func(names []string) {
		m := make(map[string][]string, len(names))
		for _, name := range names {
			m[name] = all[name]
		}
		r.FieldTypes = m
		r.Truncation.FieldTypesDropped = dropped + len(all) - len(names)
	}

	order := fieldTypeOrder(r)
	candidates := order
	if kept := referencedFields(r, order); len(kept) > 0 && len(kept) < len(order) {
		keep(kept)
		if fits(r) {
			return true
		}
		candidates = kept
	}
	_, ok := largestFitting(1, len(candidates), func(n int) bool {
		keep(candidates[:n])
		return fits(r)
	})
	return ok
}

// narrowDocuments keeps the first k fields of every retained document,
// with k as large as the budget allows and at least one.
func narrowDocuments(r *RawResult, fits func(*RawResult) bool) bool {
	width := 0
	for _, d := range r.Documents {
		width = max(width, len(d))
	}
	if width == 0 {
		return false
	}
	docs := r.Documents
	dropped := r.Truncation.DocumentFieldsDropped
	_, ok := largestFitting(1, width, func(k int) bool {
		narrowed := make([]Record, len(docs))
		cut := 0
		for i, d := range docs {
			n := min(k, len(d))
			narrowed[i] = d[:n]
			cut += len(d) - n
		}
		r.Documents = narrowed
		r.Truncation.DocumentFieldsDropped = dropped + cut
		return fits(r)
	})
	return ok
}
