package policy

import (
	"github.com/guillermoBallester/sounder/internal/core/domain"
	"github.com/guillermoBallester/sounder/internal/core/port"
)

// MergeFieldSummaries fills empty field descriptions from the policy.
// Descriptions already present are kept.
func MergeFieldSummaries(fields []domain.FieldSummary, cc CollectionContext) {
	for i, f := range fields {
		if fc, ok := cc.Fields[f.Name]; ok && f.Description == "" && fc.Description != "" {
			fields[i].Description = fc.Description
		}
	}
}

// MergeCollectionList enriches a collection listing of database with
// business descriptions.
func MergeCollectionList(database string, colls []port.CollectionInfo, ctx ContextConfig) {
	for i, c := range colls {
		ref := domain.CollectionRef{Database: database, Collection: c.Name}
		if cc, ok := ctx.Lookup(ref); ok && c.Description == "" && cc.Description != "" {
			colls[i].Description = cc.Description
		}
	}
}

// MaskSpec extracts a field-name → mask-type map for one collection.
func MaskSpec(cc CollectionContext) map[string]domain.MaskType {
	spec := make(map[string]domain.MaskType)
	for name, fc := range cc.Fields {
		if fc.Mask != "" {
			spec[name] = fc.Mask
		}
	}
	return spec
}
