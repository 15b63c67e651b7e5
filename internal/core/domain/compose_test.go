package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompose(t *testing.T) {
	t.Parallel()
	raw := &RawResult{
		Mode:          ModeRecent,
		Ref:           CollectionRef{Database: "shop", Collection: "orders"},
		Documents:     []Record{{KV("_id", String("a"))}},
		SortField:     "created_at",
		DocumentCount: 42,
		SampleSize:    42,
		FieldTypes:    map[string][]string{"_id": {"string"}, "created_at": {"datetime"}},
		Description:   "the 1 most recent documents ordered by created_at",
	}

	out := Compose(ModeRecent, raw, 1234567*time.Nanosecond)

	assert.Equal(t, ModeRecent, out.Mode)
	assert.Equal(t, "orders", out.DataDisplay.CollectionName)
	assert.Equal(t, "shop", out.DataDisplay.DatabaseName)
	assert.Equal(t, int64(42), out.DataDisplay.TotalCount)
	assert.Len(t, out.DataDisplay.SampleDocuments, 1)
	assert.Equal(t, 1, out.NumericalInsights.ReturnedDocuments)
	assert.Equal(t, "created_at", out.NumericalInsights.SortField)
	assert.InDelta(t, 1.23, out.NumericalInsights.ExecutionTimeMS, 1e-9)
	assert.Equal(t,
		"Analysis of 'orders' in database 'shop': the 1 most recent documents ordered by created_at. "+
			"Collection contains 42 documents with 2 fields. Analysis completed in 1.23ms.",
		out.TextualSummary)
	assert.False(t, out.Truncation.Truncated)
}

func TestCompose_Deterministic(t *testing.T) {
	t.Parallel()
	raw := &RawResult{Ref: CollectionRef{Database: "d", Collection: "c"}, Description: "x"}
	a := Compose(ModeOverview, raw, time.Millisecond)
	b := Compose(ModeOverview, raw, time.Millisecond)
	assert.Equal(t, a, b)
}

func TestCompose_StaleAndTruncated(t *testing.T) {
	t.Parallel()
	raw := &RawResult{
		Ref:         CollectionRef{Database: "d", Collection: "c"},
		Description: "x",
		SchemaStale: true,
		Truncation:  Truncation{Truncated: true, DocumentsDropped: 4, RowsDropped: 2},
	}
	out := Compose(ModeOverview, raw, 0)
	assert.Contains(t, out.TextualSummary, "stale")
	assert.Contains(t, out.TextualSummary, "4 documents and 2 rows omitted")
	assert.True(t, out.NumericalInsights.SchemaStale)
	assert.True(t, out.Truncation.Truncated)
}

func TestCompose_EmptyCollectionsEncodeAsEmpty(t *testing.T) {
	t.Parallel()
	out := Compose(ModeTimeSeries, &RawResult{NoTemporalField: true}, 0)
	data, err := json.Marshal(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"sample_documents":[]`)
	assert.Contains(t, string(data), `"field_types":{}`)
	assert.Contains(t, string(data), `"no_temporal_field":true`)
}
