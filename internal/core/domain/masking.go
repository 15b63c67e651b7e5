package domain

import (
	"crypto/sha256"
	"fmt"
)

// MaskType represents a field masking strategy.
type MaskType string

const (
	MaskRedact  MaskType = "redact"
	MaskHash    MaskType = "hash"
	MaskPartial MaskType = "partial"
	MaskNull    MaskType = "null"
)

// Valid returns true if the MaskType is a recognised masking strategy
// (including the zero value "", which means "no mask").
func (m MaskType) Valid() bool {
	switch m {
	case MaskRedact, MaskHash, MaskPartial, MaskNull, "":
		return true
	}
	return false
}

// ApplyMask transforms a value according to the mask type. Masked values
// become strings (or null for MaskNull); nulls stay null.
func ApplyMask(v Value, maskType MaskType) Value {
	if v.IsNull() {
		return v
	}

	switch maskType {
	case MaskRedact:
		return String("***")
	case MaskHash:
		h := sha256.Sum256([]byte(v.String()))
		return String(fmt.Sprintf("%x", h))
	case MaskPartial:
		return String(maskPartial(v.String()))
	case MaskNull:
		return Null()
	default:
		return v
	}
}

// MaskString applies a mask to an already stringified value, as found in
// frequency tables.
func MaskString(s string, maskType MaskType) string {
	if maskType == MaskNull {
		return "null"
	}
	return ApplyMask(String(s), maskType).Str()
}

// maskPartial reveals only the last 4 runes.
func maskPartial(s string) string {
	runes := []rune(s)
	if len(runes) <= 4 {
		return "***" + s
	}
	masked := make([]rune, len(runes))
	for i := range masked {
		if i < len(runes)-4 {
			masked[i] = '*'
		} else {
			masked[i] = runes[i]
		}
	}
	return string(masked)
}

// MaskRecords returns copies of records with top-level fields masked. The
// masks map is field-name -> mask-type. Input records are left untouched.
func MaskRecords(records []Record, masks map[string]MaskType) []Record {
	if len(masks) == 0 {
		return records
	}
	out := make([]Record, len(records))
	for i, rec := range records {
		masked := rec.Clone()
		for j, f := range masked {
			if mt, ok := masks[f.Name]; ok {
				masked[j].Value = ApplyMask(f.Value, mt)
			}
		}
		out[i] = masked
	}
	return out
}
