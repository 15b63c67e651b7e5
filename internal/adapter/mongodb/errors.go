package mongodb

import (
	"context"
	"errors"
	"fmt"

	"github.com/guillermoBallester/sounder/internal/core/domain"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/x/mongo/driver/topology"
)

// classify wraps err with the domain sentinel that matches its cause.
func classify(op string, err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%s: %w", op, err)
	case isUnavailable(err):
		return fmt.Errorf("%w: %s: %w", domain.ErrSourceUnavailable, op, err)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %s: %w", domain.ErrSourceQueryFailed, op, err)
	case mongo.IsTimeout(err):
		return fmt.Errorf("%w: %s: %w: %w", domain.ErrSourceQueryFailed, op, context.DeadlineExceeded, err)
	}
	return fmt.Errorf("%w: %s: %w", domain.ErrSourceQueryFailed, op, err)
}

func isUnavailable(err error) bool {
	if errors.Is(err, mongo.ErrClientDisconnected) || errors.Is(err, topology.ErrServerSelectionTimeout) {
		return true
	}
	var selErr topology.ServerSelectionError
	if errors.As(err, &selErr) {
		return true
	}
	return mongo.IsNetworkError(err)
}
