package postgres

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/guillermoBallester/sounder/internal/core/domain"
	"github.com/jackc/pgx/v5/pgconn"
)

// classify wraps err with the domain sentinel that matches its cause.
func classify(op string, err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%s: %w", op, err)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %s: %w", domain.ErrSourceQueryFailed, op, err)
	case isStatementTimeout(err):
		return fmt.Errorf("%w: %s: %w: %w", domain.ErrSourceQueryFailed, op, context.DeadlineExceeded, err)
	case isUnavailable(err):
		return fmt.Errorf("%w: %s: %w", domain.ErrSourceUnavailable, op, err)
	case isMissingRelation(err):
		return fmt.Errorf("%w: %s: %w", domain.ErrNotFound, op, err)
	}
	return fmt.Errorf("%w: %s: %w", domain.ErrSourceQueryFailed, op, err)
}

func isUnavailable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08 is connection exceptions; 57P01 and 57P03 are
		// admin_shutdown and cannot_connect_now.
		return strings.HasPrefix(pgErr.Code, "08") || pgErr.Code == "57P01" || pgErr.Code == "57P03"
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return strings.Contains(err.Error(), "closed pool")
}

func isMissingRelation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	// undefined_table, invalid_schema_name
	return pgErr.Code == "42P01" || pgErr.Code == "3F000"
}

// isStatementTimeout reports query_canceled, raised when statement_timeout fires.
func isStatementTimeout(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "57014"
}
