package postgres

import (
	"fmt"
	"strings"
)

// systemSchemas are never listed as databases.
var systemSchemas = []string{"pg_catalog", "information_schema", "pg_toast"}

// schemaFilter renders a WHERE fragment restricting column to the allowed
// schemas, bound as the single text[] parameter $1. An empty allowlist
// hides the system and temporary schemas instead.
func schemaFilter(allowed []string, column string) (string, []any) {
	if len(allowed) == 0 {
		return fmt.Sprintf("NOT (%s = ANY($1::text[])) AND %s NOT LIKE 'pg\\_temp%%'", column, column), []any{systemSchemas}
	}
	return fmt.Sprintf("%s = ANY($1::text[])", column), []any{allowed}
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// qualify renders schema.collection with both parts quoted.
func qualify(schema, table string) string {
	return quoteIdent(schema) + "." + quoteIdent(table)
}
