package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// SQLSTATE classes the storefront branches on.
const (
	stateUniqueViolation     = "23505"
	stateForeignKeyViolation = "23503"
)

// constraintError is the driver-neutral view of a constraint failure.
type constraintError struct {
	state      string
	constraint string
}

func classify(err error) (constraintError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return constraintError{state: pgErr.Code, constraint: pgErr.ConstraintName}, true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return constraintError{state: string(pqErr.Code), constraint: pqErr.Constraint}, true
	}
	// sqlite only exposes the failure through its message.
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return constraintError{state: stateUniqueViolation, constraint: strings.TrimSpace(afterColon(msg))}, true
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return constraintError{state: stateForeignKeyViolation}, true
	}
	return constraintError{}, false
}

func afterColon(msg string) string {
	if i := strings.LastIndex(msg, ":"); i >= 0 {
		return msg[i+1:]
	}
	return ""
}

// IsUniqueViolation reports whether err is a duplicate-key failure.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	c, ok := classify(err)
	return ok && c.state == stateUniqueViolation
}

// IsForeignKeyViolation reports whether err references a missing parent row.
func IsForeignKeyViolation(err error) bool {
	if err == nil {
		return false
	}
	c, ok := classify(err)
	return ok && c.state == stateForeignKeyViolation
}

// ConstraintName returns the violated constraint when the driver reports it.
// sqlite reports the offending columns instead.
func ConstraintName(err error) string {
	if err == nil {
		return ""
	}
	c, _ := classify(err)
	return c.constraint
}
