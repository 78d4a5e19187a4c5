package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"example.com/fitnesscenter/internal/domain"
)

// SQLSTATE codes from class 22 (data exception) and class 23 (integrity
// constraint violation).
const (
	pgErrNumericOutOfRange   = "22003"

	pgErrNotNullViolation    = "23502"
	pgErrForeignKeyViolation = "23503"
	pgErrUniqueViolation     = "23505"
	pgErrCheckViolation      = "23514"
)

const memberEmailConstraint = "member_email_key"

// classify maps driver errors onto the domain error taxonomy. Errors it does
// not recognise are returned unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case pgErrUniqueViolation:
		if pgErr.ConstraintName == memberEmailConstraint {
			return domain.ErrEmailTaken
		}
	case pgErrForeignKeyViolation:
		if pgErr.TableName == "workout_session" {
			return domain.ErrUnknownMember
		}
	case pgErrNotNullViolation, pgErrCheckViolation:
		field := pgErr.ColumnName
		if field == "" {
			field = pgErr.ConstraintName
		}
		return &domain.ValidationError{Fields: []domain.FieldError{{Field: field, Error: "is invalid"}}}
	case pgErrNumericOutOfRange:
		field := pgErr.ColumnName
		if field == "" {
			field = "value"
		}
		return &domain.ValidationError{Fields: []domain.FieldError{{Field: field, Error: "is out of range"}}}
	}
	return err
}
