package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"
)

// Kind tags the primitive shape of a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindInteger
	KindFloat
	KindBoolean
	KindDateTime
	KindObject
	KindArray
)

var kindNames = [...]string{
	KindNull:     "null",
	KindString:   "string",
	KindInteger:  "integer",
	KindFloat:    "float",
	KindBoolean:  "boolean",
	KindDateTime: "datetime",
	KindObject:   "object",
	KindArray:    "array",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// IsScalar reports whether values of this kind have a meaningful string form
// for frequency tables.
func (k Kind) IsScalar() bool {
	switch k {
	case KindString, KindInteger, KindFloat, KindBoolean, KindDateTime:
		return true
	}
	return false
}

// Value is a tagged field value. The zero Value is null.
type Value struct {
	kind Kind
	s    string
	i    int64
	f    float64
	b    bool
	t    time.Time
	obj  Record
	arr  []Value
}

func Null() Value              { return Value{} }
func String(s string) Value    { return Value{kind: KindString, s: s} }
func Int(i int64) Value        { return Value{kind: KindInteger, i: i} }
func Float(f float64) Value    { return Value{kind: KindFloat, f: f} }
func Bool(b bool) Value        { return Value{kind: KindBoolean, b: b} }
func Time(t time.Time) Value   { return Value{kind: KindDateTime, t: t.UTC()} }
func Object(r Record) Value    { return Value{kind: KindObject, obj: r} }
func Array(vs ...Value) Value  { return Value{kind: KindArray, arr: vs} }
func (v Value) Kind() Kind     { return v.kind }
func (v Value) IsNull() bool   { return v.kind == KindNull }
func (v Value) Str() string    { return v.s }
func (v Value) Integer() int64 { return v.i }
func (v Value) Number() float64 {
	if v.kind == KindInteger {
		return float64(v.i)
	}
	return v.f
}
func (v Value) Boolean() bool       { return v.b }
func (v Value) DateTime() time.Time { return v.t }
func (v Value) Fields() Record      { return v.obj }
func (v Value) Elements() []Value   { return v.arr }

// AsInt64 returns the value as an integer when it is numeric and integral.
func (v Value) AsInt64() (int64, bool) {
	switch v.kind {
	case KindInteger:
		return v.i, true
	case KindFloat:
		if v.f == math.Trunc(v.f) && !math.IsInf(v.f, 0) {
			return int64(v.f), true
		}
	}
	return 0, false
}

// Scalar returns the canonical string form of a scalar value. Nulls, objects
// and arrays report false.
func (v Value) Scalar() (string, bool) {
	switch v.kind {
	case KindString:
		return v.s, true
	case KindInteger:
		return strconv.FormatInt(v.i, 10), true
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64), true
	case KindBoolean:
		return strconv.FormatBool(v.b), true
	case KindDateTime:
		return v.t.Format(time.RFC3339Nano), true
	}
	return "", false
}

func (v Value) String() string {
	if s, ok := v.Scalar(); ok {
		return s
	}
	if v.kind == KindNull {
		return "null"
	}
	data, err := json.Marshal(v)
	if err != nil {
		return v.kind.String()
	}
	return string(data)
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindString:
		return json.Marshal(v.s)
	case KindInteger:
		return []byte(strconv.FormatInt(v.i, 10)), nil
	case KindFloat:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			return json.Marshal(strconv.FormatFloat(v.f, 'g', -1, 64))
		}
		return json.Marshal(v.f)
	case KindBoolean:
		return []byte(strconv.FormatBool(v.b)), nil
	case KindDateTime:
		return json.Marshal(v.t.Format(time.RFC3339Nano))
	case KindObject:
		return v.obj.MarshalJSON()
	case KindArray:
		if v.arr == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.arr)
	}
	return nil, fmt.Errorf("marshal value: unknown kind %d", v.kind)
}

// FromAny converts a plain Go value into a Value. Map keys are sorted since Go
// maps carry no order.
func FromAny(x any) Value {
	switch t := x.(type) {
	case nil:
		return Null()
	case Value:
		return t
	case Record:
		return Object(t)
	case string:
		return String(t)
	case []byte:
		return String(string(t))
	case bool:
		return Bool(t)
	case int:
		return Int(int64(t))
	case int8:
		return Int(int64(t))
	case int16:
		return Int(int64(t))
	case int32:
		return Int(int64(t))
	case int64:
		return Int(t)
	case uint8:
		return Int(int64(t))
	case uint16:
		return Int(int64(t))
	case uint32:
		return Int(int64(t))
	case uint64:
		if t > math.MaxInt64 {
			return Float(float64(t))
		}
		return Int(int64(t))
	case float32:
		return Float(float64(t))
	case float64:
		return Float(t)
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return Int(i)
		}
		f, _ := t.Float64()
		return Float(f)
	case time.Time:
		return Time(t)
	case *time.Time:
		if t == nil {
			return Null()
		}
		return Time(*t)
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		rec := make(Record, 0, len(keys))
		for _, k := range keys {
			rec = append(rec, KV(k, FromAny(t[k])))
		}
		return Object(rec)
	case []any:
		vs := make([]Value, len(t))
		for i, e := range t {
			vs[i] = FromAny(e)
		}
		return Array(vs...)
	case fmt.Stringer:
		return String(t.String())
	default:
		return String(fmt.Sprintf("%v", t))
	}
}

// Field is one named value inside a Record.
type Field struct {
	Name  string
	Value Value
}

// KV builds a Field.
func KV(name string, v Value) Field {
	return Field{Name: name, Value: v}
}

// Record is an ordered field-name to value mapping as returned by a data source.
type Record []Field

// Get returns the first value stored under name.
func (r Record) Get(name string) (Value, bool) {
	for _, f := range r {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Value{}, false
}

// Clone returns a copy whose top-level fields can be replaced without
// touching r.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	copy(out, r)
	return out
}

func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := f.Value.MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// CloneRecords copies a slice of records so callers may mask or trim them
// freely.
func CloneRecords(rs []Record) []Record {
	if rs == nil {
		return nil
	}
	out := make([]Record, len(rs))
	for i, r := range rs {
		out[i] = r.Clone()
	}
	return out
}
