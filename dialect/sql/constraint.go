package sql

import "errors"

// Postgres SQLSTATE codes for constraint violations (Class 23), the set
// txscript needs to tell "your mutation failed a constraint" apart from
// "the database connection died" when deciding how to wrap a driver error.
const (
	sqlStateUniqueViolation     = "23505"
	sqlStateForeignKeyViolation = "23503"
	sqlStateCheckViolation      = "23514"
	sqlStateNotNullViolation    = "23502"
)

// sqlStateError is implemented by jackc/pgconn.PgError, the type pgx wraps
// every server-reported error in.
type sqlStateError interface {
	SQLState() string
}

// IsUniqueConstraintError reports whether err is a Postgres unique-index
// violation (a duplicate value in a column the catalog marks unique).
func IsUniqueConstraintError(err error) bool { return hasSQLState(err, sqlStateUniqueViolation) }

// IsForeignKeyConstraintError reports whether err is a Postgres foreign-key
// violation: an insert/update referencing a row that doesn't exist, or a
// delete leaving a dangling reference.
func IsForeignKeyConstraintError(err error) bool {
	return hasSQLState(err, sqlStateForeignKeyViolation)
}

// IsCheckConstraintError reports whether err is a Postgres CHECK constraint
// violation.
func IsCheckConstraintError(err error) bool { return hasSQLState(err, sqlStateCheckViolation) }

// IsNotNullConstraintError reports whether err is a Postgres NOT NULL
// violation, the case a missing required mutation argument surfaces as once
// it reaches the database rather than being caught earlier by validation.
func IsNotNullConstraintError(err error) bool { return hasSQLState(err, sqlStateNotNullViolation) }

// IsConstraintError reports whether err is any of the above.
func IsConstraintError(err error) bool {
	return IsUniqueConstraintError(err) ||
		IsForeignKeyConstraintError(err) ||
		IsCheckConstraintError(err) ||
		IsNotNullConstraintError(err)
}

func hasSQLState(err error, code string) bool {
	var e sqlStateError
	if !errors.As(err, &e) {
		return false
	}
	return e.SQLState() == code
}
