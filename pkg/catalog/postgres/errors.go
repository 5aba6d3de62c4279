package postgres

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/marmos91/blobgc/pkg/loop"
)

// PostgreSQL error codes: https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	codeForeignKeyViolation  = "23503"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
	codeAdminShutdown        = "57P01"
	codeCannotConnectNow     = "57P03"
)

// classify marks errors that are safe to retry at chunk granularity as
// transient. Everything else is returned unchanged.
func classify(err error) error {
	if err == nil || loop.IsTransient(err) {
		return err
	}
	if isTransientError(err) {
		return loop.Transient(err)
	}
	return err
}

func isTransientError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		// A reference appeared between candidate selection and delete.
		case codeForeignKeyViolation,
			codeSerializationFailure,
			codeDeadlockDetected,
			codeLockNotAvailable,
			codeAdminShutdown,
			codeCannotConnectNow:
			return true
		}
		// Class 08: connection exception
		return strings.HasPrefix(pgErr.Code, "08")
	}

	// The request never reached the server.
	if pgconn.SafeToRetry(err) {
		return true
	}
	return pgconn.Timeout(err)
}

// wrap adds operation context and classifies err.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return classify(fmt.Errorf("%s: %w", op, err))
}
