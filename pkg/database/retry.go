package database

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE codes that mean "another transaction got there first"
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
	codeUniqueViolation      = "23505"
)

// IsRetryable reports whether err is a transaction conflict that a fresh
// attempt can resolve.
func IsRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable:
		return true
	case codeUniqueViolation:
		// a concurrent insert of the same row; the rerun takes the update path
		return true
	default:
		return false
	}
}

// IsUniqueViolation reports whether err is a unique constraint violation.
// Repositories whose conflict can never resolve on a rerun translate it into a
// domain error so RunInTx stops retrying.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation
}
