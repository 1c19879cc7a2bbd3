// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as the
// negotiation engine and the handlers to distinguish between different
// failure scenarios without knowing which SQL driver is in use.
package repository

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrVersionConflict is returned by conditional updates whose expected
// version no longer matches the stored row.
var ErrVersionConflict = errors.New("version conflict")

// ErrDuplicate is returned when an insert violates a unique constraint,
// such as a second job for the same negotiation.
var ErrDuplicate = errors.New("duplicate")

// ErrForbidden is returned when the caller attempts an operation
// on a resource they do not own. Handlers should translate this
// into an HTTP 403 response.
var ErrForbidden = errors.New("forbidden")

var ErrEmailExists = errors.New("email already exists")

// isDuplicate reports whether err is a unique key violation on either
// supported driver.
func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == 1062
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// notFound maps sql.ErrNoRows to ErrNotFound.
func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
