package db

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/media-pipelines/media-pipelines-go/internal/retry"
)

// ErrSchemaMissing is returned when the index table does not exist.
var ErrSchemaMissing = errors.New("media_records table is missing; run the migrations")

// SQLSTATE codes worth another attempt.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeCannotConnectNow     = "57P03"
	codeUndefinedTable       = "42P01"
	classConnectionException = "08"
)

// Classify marks errors that a retry may clear as retry.TransientError:
// connection exceptions, serialization failures, deadlocks and failures
// pgconn reports as safe to retry. Other errors are returned unchanged.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, classConnectionException),
			pgErr.Code == codeSerializationFailure,
			pgErr.Code == codeDeadlockDetected,
			pgErr.Code == codeCannotConnectNow:
			return &retry.TransientError{Op: op, Err: err}
		}
		return err
	}

	if pgconn.SafeToRetry(err) {
		return &retry.TransientError{Op: op, Err: err}
	}
	return err
}

// WrapError adds the operation name and maps a missing table to
// ErrSchemaMissing.
func WrapError(err error, operation string) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == codeUndefinedTable {
			return fmt.Errorf("%s: %w", operation, ErrSchemaMissing)
		}
		return fmt.Errorf("%s: database error [%s]: %w", operation, pgErr.Code, err)
	}

	return fmt.Errorf("%s: %w", operation, err)
}
