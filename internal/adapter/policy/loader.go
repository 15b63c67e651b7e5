package policy

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadFromFile reads a YAML policy file and returns a validated Policy.
func LoadFromFile(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading policy file: %w", err)
	}

	var pol Policy
	if err := yaml.Unmarshal(data, &pol); err != nil {
		return nil, fmt.Errorf("parsing policy YAML: %w", err)
	}

	if err := validate(&pol); err != nil {
		return nil, fmt.Errorf("validating policy: %w", err)
	}

	return &pol, nil
}

func validate(pol *Policy) error {
	for key, cc := range pol.Context.Collections {
		if key == "" {
			return fmt.Errorf("context.collections contains an empty key")
		}
		if db, coll, ok := strings.Cut(key, "."); !ok || db == "" || coll == "" {
			return fmt.Errorf("context.collections[%q]: key must be database.collection", key)
		}
		for field, fc := range cc.Fields {
			if field == "" {
				return fmt.Errorf("context.collections[%q].fields contains an empty key", key)
			}
			if !fc.Mask.Valid() {
				return fmt.Errorf("context.collections[%q].fields[%q].mask: invalid value %q (allowed: redact, hash, partial, null)", key, field, fc.Mask)
			}
		}
	}
	return nil
}
