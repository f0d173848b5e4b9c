package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound       = errors.New("order not found")
	ErrValidation     = errors.New("validation failed")
	ErrUnknownProduct = errors.New("unknown product")
	ErrUnavailable    = errors.New("database unavailable")
)

const (
	pgForeignKeyViolation = "23503"
	pgClassConnection     = "08"
	pgAdminShutdown       = "57P01"
	pgCannotConnectNow    = "57P03"
)

// classify maps driver errors onto the package sentinels. Errors that fit no
// class are returned as is.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrUnknownProduct) || errors.Is(err, ErrUnavailable) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == pgForeignKeyViolation:
			return fmt.Errorf("%w: %s", ErrUnknownProduct, pgErr.Detail)
		case len(pgErr.Code) >= 2 && pgErr.Code[:2] == pgClassConnection,
			pgErr.Code == pgAdminShutdown, pgErr.Code == pgCannotConnectNow:
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return err
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) || pgconn.Timeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}
