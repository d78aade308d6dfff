package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/oksasatya/go-membership-affiliate/internal/domain/entity"
	"github.com/oksasatya/go-membership-affiliate/pkg/helpers"
)

// SeedAdmin creates (or promotes) the back-office admin account. It runs over
// database/sql so it can be used from one-shot commands without a pool.
func SeedAdmin(ctx context.Context, db *sql.DB, email, password string) (string, error) {
	code, err := helpers.GenReferralCode()
	if err != nil {
		return "", fmt.Errorf("referral code: %w", err)
	}
	u := entity.NewUser(email, password, entity.RoleAdmin)
	u.ReferralCode = code
	if err := u.Validate(); err != nil {
		return "", err
	}
	if err := u.PrepareForPersist(); err != nil {
		return "", err
	}

	var id string
	err = db.QueryRowContext(ctx, `
		INSERT INTO users (email, password_hash, role, referral_code, is_approved, is_verified)
		VALUES ($1, $2, $3, $4, true, true)
		ON CONFLICT (email) DO UPDATE SET role = EXCLUDED.role, is_approved = true, updated_at = now()
		RETURNING id
	`, u.Email, u.PasswordHash, string(u.Role), u.ReferralCode).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("seed admin: %w", err)
	}
	return id, nil
}
