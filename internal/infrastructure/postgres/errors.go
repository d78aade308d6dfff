package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/oksasatya/go-membership-affiliate/internal/domain/entity"
)

const uniqueViolation = "23505"

// Constraint names from db/migrations.
const (
	constraintEmail        = "users_email_key"
	constraintReferralCode = "users_referral_code_key"
)

// mapWriteError turns unique violations into domain errors so callers never
// overwrite an existing account.
func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return err
	}
	switch pgErr.ConstraintName {
	case constraintEmail:
		return entity.ErrDuplicateEmail
	case constraintReferralCode:
		return entity.ErrDuplicateReferralCode
	}
	return err
}
