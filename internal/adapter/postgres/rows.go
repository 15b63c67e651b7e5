package postgres

import (
	"fmt"

	"github.com/guillermoBallester/sounder/internal/core/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// rowsToRecords converts pgx.Rows into records, keeping column order.
func rowsToRecords(rows pgx.Rows) ([]domain.Record, error) {
	fields := rows.FieldDescriptions()
	var result []domain.Record
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("reading row values: %w", err)
		}
		rec := make(domain.Record, 0, len(fields))
		for i, fd := range fields {
			rec = append(rec, domain.KV(fd.Name, toValue(vals[i])))
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return result, nil
}

// toValue maps pgx's decoded Go values onto domain values.
func toValue(v any) domain.Value {
	switch t := v.(type) {
	case pgtype.Numeric:
		if !t.Valid {
			return domain.Null()
		}
		if t.Exp >= 0 && t.Int != nil && t.Int.IsInt64() {
			if i, err := t.Int64Value(); err == nil && i.Valid {
				return domain.Int(i.Int64)
			}
		}
		f, err := t.Float64Value()
		if err != nil || !f.Valid {
			return domain.Null()
		}
		return domain.Float(f.Float64)
	case [16]byte:
		return domain.String(formatUUID(t))
	case pgtype.Interval:
		if !t.Valid {
			return domain.Null()
		}
		return domain.String(fmt.Sprintf("%d months %d days %dus", t.Months, t.Days, t.Microseconds))
	case []any:
		vs := make([]domain.Value, len(t))
		for i, e := range t {
			vs[i] = toValue(e)
		}
		return domain.Array(vs...)
	}
	return domain.FromAny(v)
}

func formatUUID(b [16]byte) string {
	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:16])
}
