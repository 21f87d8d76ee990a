package repository

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned when a citizen or record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateCitizen is returned when a UID hash or DID is already registered.
	ErrDuplicateCitizen = errors.New("citizen already registered")

	// ErrDuplicateReference is returned when a module's unique reference (a
	// property UID) is already taken.
	ErrDuplicateReference = errors.New("record reference already exists")
)

// isUniqueViolationFor reports whether err is a unique violation on a
// constraint or column whose name contains field.
func isUniqueViolationFor(err error, field string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return false
	}
	if strings.Contains(pgErr.ConstraintName, field) {
		return true
	}
	return strings.Contains(strings.ToLower(pgErr.Detail), "("+field+")")
}
