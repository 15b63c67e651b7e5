package postgres

import (
	"errors"
	"fmt"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

var (
	errEmptyQuery     = errors.New("empty query")
	errNotSelect      = errors.New("only SELECT queries are allowed")
	errMultiStatement = errors.New("multiple statements are not allowed")
	errParseFailed    = errors.New("failed to parse SQL")
)

// SelectGuard checks generated SQL with PostgreSQL's own parser before it
// is sent. Only a single SELECT statement passes.
type SelectGuard struct{}

func (SelectGuard) Validate(sql string) error {
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return errEmptyQuery
	}

	tree, err := pg_query.Parse(trimmed)
	if err != nil {
		return fmt.Errorf("%w: %w", errParseFailed, err)
	}

	switch {
	case len(tree.Stmts) == 0:
		return errEmptyQuery
	case len(tree.Stmts) > 1:
		return errMultiStatement
	}

	stmt := tree.Stmts[0].Stmt
	if stmt == nil {
		return errEmptyQuery
	}
	if _, ok := stmt.Node.(*pg_query.Node_SelectStmt); !ok {
		return errNotSelect
	}
	return nil
}
