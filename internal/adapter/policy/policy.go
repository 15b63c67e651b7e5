package policy

import (
	"fmt"

	"github.com/guillermoBallester/sounder/internal/core/domain"
	"gopkg.in/yaml.v3"
)

// Policy holds operator-controlled configuration loaded from a YAML file.
// Supports a data dictionary for collections and field-level masking.
type Policy struct {
	Context ContextConfig `yaml:"context"`
}

// ContextConfig maps fully-qualified collection names (database.collection)
// to business descriptions that are merged into tool responses.
type ContextConfig struct {
	Collections map[string]CollectionContext `yaml:"collections"`
}

// CollectionContext provides business descriptions and masking rules for a
// collection and its fields.
type CollectionContext struct {
	Description string                  `yaml:"description"`
	Fields      map[string]FieldContext `yaml:"fields"`
}

// FieldContext holds a field's business description and optional mask directive.
type FieldContext struct {
	Description string          `yaml:"description"`
	Mask        domain.MaskType `yaml:"mask,omitempty"`
}

// UnmarshalYAML supports both the struct format and the plain-string shorthand.
//
//	fields:
//	  email: "User email"           # shorthand → FieldContext{Description: "User email"}
//	  ssn:                          # struct with optional mask
//	    description: "SSN"
//	    mask: "redact"
func (fc *FieldContext) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		fc.Description = value.Value
		return nil
	}
	type alias FieldContext
	var a alias
	if err := value.Decode(&a); err != nil {
		return fmt.Errorf("decoding field context: %w", err)
	}
	*fc = FieldContext(a)
	return nil
}

// Lookup returns the context configured for ref, if any.
func (c ContextConfig) Lookup(ref domain.CollectionRef) (CollectionContext, bool) {
	cc, ok := c.Collections[ref.String()]
	return cc, ok
}
