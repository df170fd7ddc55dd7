// Package dberr converts driver-specific uniqueness failures into one typed
// error so services never inspect driver errors or message text.
package dberr

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// UniqueViolation is the SQLSTATE for unique_violation.
const UniqueViolation = "23505"

// ErrConstraintViolation is matched by every *ConstraintViolation.
var ErrConstraintViolation = errors.New("constraint violation")

// ConstraintViolation reports a write rejected by a uniqueness constraint.
type ConstraintViolation struct {
	Constraint string
	Table      string
	Code       string
	Err        error
}

func (e *ConstraintViolation) Error() string {
	return fmt.Sprintf("constraint %s on %s violated", e.Constraint, e.Table)
}

func (e *ConstraintViolation) Unwrap() error { return e.Err }

func (e *ConstraintViolation) Is(target error) bool { return target == ErrConstraintViolation }

// On reports whether err is a violation of the named constraint.
func On(err error, constraint string) bool {
	var cv *ConstraintViolation
	return errors.As(err, &cv) && cv.Constraint == constraint
}

// FromPg converts a pgx unique violation. Other errors are returned unchanged.
func FromPg(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == UniqueViolation {
		return &ConstraintViolation{
			Constraint: pgErr.ConstraintName,
			Table:      pgErr.TableName,
			Code:       pgErr.Code,
			Err:        err,
		}
	}
	return err
}

// FromPq converts a lib/pq unique violation. Other errors are returned unchanged.
func FromPq(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == UniqueViolation {
		return &ConstraintViolation{
			Constraint: pqErr.Constraint,
			Table:      pqErr.Table,
			Code:       string(pqErr.Code),
			Err:        err,
		}
	}
	return err
}
