package mongodb

import (
	"context"
	"fmt"
	"slices"
	"sort"

	"github.com/guillermoBallester/sounder/internal/core/domain"
	"github.com/guillermoBallester/sounder/internal/core/port"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// systemDatabases are hidden from ListDatabases.
var systemDatabases = []string{"admin", "config", "local"}

// Source reads documents from a MongoDB deployment.
type Source struct {
	client *mongo.Client
}

var (
	_ port.DataSource = (*Source)(nil)
	_ port.Catalog    = (*Source)(nil)
)

func NewSource(client *mongo.Client) *Source {
	return &Source{client: client}
}

func (s *Source) coll(ref domain.CollectionRef) (*mongo.Collection, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	return s.client.Database(ref.Database).Collection(ref.Collection), nil
}

func (s *Source) Sample(ctx context.Context, ref domain.CollectionRef, n int) ([]domain.Record, error) {
	c, err := s.coll(ref)
	if err != nil {
		return nil, err
	}
	cur, err := c.Find(ctx, bson.D{}, options.Find().SetLimit(int64(n)))
	if err != nil {
		return nil, classify("sampling "+ref.String(), err)
	}
	return decodeAll(ctx, cur)
}

// Count fails with domain.ErrNotFound when the collection does not exist,
// since MongoDB reads of a missing collection succeed with no documents.
func (s *Source) Count(ctx context.Context, ref domain.CollectionRef) (int64, error) {
	c, err := s.coll(ref)
	if err != nil {
		return 0, err
	}
	names, err := c.Database().ListCollectionNames(ctx, bson.D{{Key: "name", Value: ref.Collection}})
	if err != nil {
		return 0, classify("checking "+ref.String(), err)
	}
	if len(names) == 0 {
		return 0, fmt.Errorf("%w: collection %s", domain.ErrNotFound, ref)
	}
	n, err := c.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, classify("counting "+ref.String(), err)
	}
	return n, nil
}

func (s *Source) Query(ctx context.Context, ref domain.CollectionRef, spec port.QuerySpec) ([]domain.Record, error) {
	c, err := s.coll(ref)
	if err != nil {
		return nil, err
	}

	if spec.Kind == port.QueryFind {
		cur, err := c.Find(ctx, bson.D{}, findOptions(spec))
		if err != nil {
			return nil, classify("querying "+ref.String(), err)
		}
		return decodeAll(ctx, cur)
	}

	pipeline, rename, err := buildPipeline(spec)
	if err != nil {
		return nil, err
	}
	cur, err := c.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, classify("aggregating "+ref.String(), err)
	}
	recs, err := decodeAll(ctx, cur)
	if err != nil {
		return nil, err
	}
	for _, r := range recs {
		if len(r) > 0 && r[0].Name == "_id" {
			r[0].Name = rename
		}
	}
	return recs, nil
}

func (s *Source) ListDatabases(ctx context.Context) ([]string, error) {
	names, err := s.client.ListDatabaseNames(ctx, bson.D{})
	if err != nil {
		return nil, classify("listing databases", err)
	}
	out := make([]string, 0, len(names))
	for _, n := range names {
		if !slices.Contains(systemDatabases, n) {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *Source) ListCollections(ctx context.Context, database string) ([]port.CollectionInfo, error) {
	db := s.client.Database(database)
	names, err := db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, classify("listing collections of "+database, err)
	}
	sort.Strings(names)
	out := make([]port.CollectionInfo, 0, len(names))
	for _, n := range names {
		count, err := db.Collection(n).EstimatedDocumentCount(ctx)
		if err != nil {
			return nil, classify("counting "+database+"."+n, err)
		}
		out = append(out, port.CollectionInfo{Name: n, DocumentCount: count})
	}
	return out, nil
}

func findOptions(spec port.QuerySpec) *options.FindOptions {
	opts := options.Find().SetLimit(int64(spec.Limit))
	dir := 1
	if spec.Descending {
		dir = -1
	}
	switch {
	case spec.SortField != "":
		opts.SetSort(bson.D{{Key: spec.SortField, Value: dir}})
	case spec.Descending:
		opts.SetSort(bson.D{{Key: "$natural", Value: -1}})
	}
	return opts
}

// buildPipeline returns the aggregation for a grouping query and the name
// the grouped _id is reported under.
func buildPipeline(spec port.QuerySpec) (mongo.Pipeline, string, error) {
	switch spec.Kind {
	case port.QueryGroupCount:
		if spec.Field == "" {
			return nil, "", fmt.Errorf("%w: group query needs a field", domain.ErrInvalidRequest)
		}
		return mongo.Pipeline{
			{{Key: "$group", Value: bson.D{
				{Key: "_id", Value: "$" + spec.Field},
				{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
			}}},
			{{Key: "$sort", Value: bson.D{{Key: "count", Value: -1}, {Key: "_id", Value: 1}}}},
			{{Key: "$limit", Value: int64(spec.Limit)}},
		}, "key", nil

	case port.QueryDayBuckets:
		if spec.Field == "" {
			return nil, "", fmt.Errorf("%w: bucket query needs a field", domain.ErrInvalidRequest)
		}
		return mongo.Pipeline{
			{{Key: "$match", Value: bson.D{{Key: spec.Field, Value: bson.D{{Key: "$type", Value: "date"}}}}}},
			{{Key: "$group", Value: bson.D{
				{Key: "_id", Value: bson.D{{Key: "$dateToString", Value: bson.D{
					{Key: "format", Value: "%Y-%m-%d"},
					{Key: "date", Value: "$" + spec.Field},
					{Key: "timezone", Value: "UTC"},
				}}}},
				{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
			}}},
			{{Key: "$sort", Value: bson.D{{Key: "_id", Value: -1}}}},
			{{Key: "$limit", Value: int64(spec.Limit)}},
		}, "bucket", nil
	}
	return nil, "", fmt.Errorf("%w: unsupported query kind %s", domain.ErrInvalidRequest, spec.Kind)
}

func decodeAll(ctx context.Context, cur *mongo.Cursor) ([]domain.Record, error) {
	defer func() { _ = cur.Close(ctx) }()
	var out []domain.Record
	for cur.Next(ctx) {
		var d bson.D
		if err := cur.Decode(&d); err != nil {
			return nil, fmt.Errorf("%w: decoding document: %w", domain.ErrSourceQueryFailed, err)
		}
		out = append(out, docToRecord(d))
	}
	if err := cur.Err(); err != nil {
		return nil, classify("reading cursor", err)
	}
	return out, nil
}
