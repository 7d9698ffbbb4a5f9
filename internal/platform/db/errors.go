package db

import (
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrUnknownOperation is returned by Dispatch for an unrecognized operation name.
	ErrUnknownOperation = errors.New("unknown storage operation")
	// ErrNilEntity is returned when an entity-bound operation receives no entity.
	ErrNilEntity = errors.New("storage operation requires an entity")
	// ErrNoSession is returned when a request context carries no storage session.
	ErrNoSession = errors.New("no storage session in context")
	// ErrTransient marks an error as safe to retry.
	ErrTransient = errors.New("transient storage failure")
)

// SQLSTATE codes inspected by this package.
const (
	CodeForeignKeyViolation  = "23503"
	CodeSerializationFailure = "40001"
	CodeAdminShutdown        = "57P01"
	CodeCrashShutdown        = "57P02"
	CodeCannotConnectNow     = "57P03"
)

// NotFound converts pgx.ErrNoRows into ErrNotFound and passes other errors through.
func NotFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// IsTransient reports whether err belongs to the connectivity class of
// failures that may succeed when attempted again.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransient) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	if pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return true
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case len(pgErr.Code) == 5 && pgErr.Code[:2] == "08":
			return true
		case pgErr.Code == CodeSerializationFailure,
			pgErr.Code == CodeAdminShutdown,
			pgErr.Code == CodeCrashShutdown,
			pgErr.Code == CodeCannotConnectNow:
			return true
		}
		return false
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

// ForeignKeyViolation returns the constraint error when err is a foreign key
// violation, or nil otherwise.
func ForeignKeyViolation(err error) *pgconn.PgError {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == CodeForeignKeyViolation {
		return pgErr
	}
	return nil
}

// Transient wraps err so that IsTransient reports true for it.
func Transient(err error) error {
	return fmt.Errorf("%w: %w", ErrTransient, err)
}
