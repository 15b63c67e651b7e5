package mongodb

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/guillermoBallester/sounder/internal/core/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// docToRecord keeps the stored field order of d.
func docToRecord(d bson.D) domain.Record {
	rec := make(domain.Record, 0, len(d))
	for _, e := range d {
		rec = append(rec, domain.KV(e.Key, toValue(e.Value)))
	}
	return rec
}

func toValue(v any) domain.Value {
	switch t := v.(type) {
	case nil, primitive.Null, primitive.Undefined:
		return domain.Null()
	case bson.D:
		return domain.Object(docToRecord(t))
	case bson.M:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		rec := make(domain.Record, 0, len(keys))
		for _, k := range keys {
			rec = append(rec, domain.KV(k, toValue(t[k])))
		}
		return domain.Object(rec)
	case bson.A:
		vs := make([]domain.Value, len(t))
		for i, e := range t {
			vs[i] = toValue(e)
		}
		return domain.Array(vs...)
	case primitive.ObjectID:
		return domain.String(t.Hex())
	case primitive.DateTime:
		return domain.Time(t.Time())
	case primitive.Timestamp:
		return domain.Time(time.Unix(int64(t.T), 0))
	case primitive.Decimal128:
		f, err := strconv.ParseFloat(t.String(), 64)
		if err != nil {
			return domain.String(t.String())
		}
		return domain.Float(f)
	case primitive.Binary:
		if (t.Subtype == 0x04 || t.Subtype == 0x03) && len(t.Data) == 16 {
			b := t.Data
			return domain.String(fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:16]))
		}
		return domain.String(hex.EncodeToString(t.Data))
	case primitive.Regex:
		return domain.String("/" + t.Pattern + "/" + t.Options)
	case primitive.MinKey:
		return domain.String("$minKey")
	case primitive.MaxKey:
		return domain.String("$maxKey")
	}
	return domain.FromAny(v)
}
