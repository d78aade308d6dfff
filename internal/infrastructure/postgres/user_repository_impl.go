package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/oksasatya/go-membership-affiliate/internal/domain/entity"
	"github.com/oksasatya/go-membership-affiliate/internal/domain/repository"
)

// userColumns is the default projection; password_hash is left out on purpose
// and only read by the credential lookups.
const userColumns = `id, email, role, referral_code, avatar_url, is_approved, is_verified,
		has_complete_profile, reset_password_token, reset_password_expire, created_at, updated_at`

// DBTX is the slice of pgx the repository needs. *pgxpool.Pool, pgx.Tx and
// pgxmock all satisfy it.
type DBTX interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type UserRepository struct {
	pool DBTX
}

func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{pool: db}
}

// validID screens ids before they reach Postgres, where a malformed uuid is a
// 22P02 error rather than a miss.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func scanUser(row pgx.Row, withHash bool) (*entity.User, error) {
	u := &entity.User{}
	var role string
	dest := []any{&u.ID, &u.Email, &role, &u.ReferralCode, &u.AvatarURL, &u.IsApproved, &u.IsVerified,
		&u.HasCompleteProfile, &u.ResetPasswordToken, &u.ResetPasswordExpire, &u.CreatedAt, &u.UpdatedAt}
	if withHash {
		dest = append(dest, &u.PasswordHash)
	}
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	u.Role = entity.Role(role)
	return u, nil
}

func (r *UserRepository) Create(ctx context.Context, u *entity.User) error {
	// Validate rejects a new record with neither a pending password nor a hash.
	// A hash left over from a failed insert is reused on retry.
	if err := u.Validate(); err != nil {
		return err
	}
	if err := u.PrepareForPersist(); err != nil {
		return err
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO users (email, password_hash, role, referral_code, avatar_url,
			is_approved, is_verified, has_complete_profile, reset_password_token, reset_password_expire)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at
	`, u.Email, u.PasswordHash, string(u.Role), u.ReferralCode, u.AvatarURL,
		u.IsApproved, u.IsVerified, u.HasCompleteProfile, u.ResetPasswordToken, u.ResetPasswordExpire)

	if err := row.Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return mapWriteError(err)
	}
	return nil
}

// Update writes every mutable column. password_hash is only touched when a
// new password was set on u since it was loaded.
func (r *UserRepository) Update(ctx context.Context, u *entity.User) error {
	if !validID(u.ID) {
		return repository.ErrNotFound
	}
	if err := u.Validate(); err != nil {
		return err
	}
	changed := u.PasswordModified()
	if err := u.PrepareForPersist(); err != nil {
		return err
	}
	var hash *string
	if changed {
		hash = &u.PasswordHash
	}

	err := r.pool.QueryRow(ctx, `
		UPDATE users
		SET email = $1, password_hash = COALESCE($2, password_hash), role = $3, referral_code = $4,
			avatar_url = $5, is_approved = $6, is_verified = $7, has_complete_profile = $8,
			reset_password_token = $9, reset_password_expire = $10, updated_at = now()
		WHERE id = $11
		RETURNING updated_at
	`, u.Email, hash, string(u.Role), u.ReferralCode, u.AvatarURL, u.IsApproved, u.IsVerified,
		u.HasCompleteProfile, u.ResetPasswordToken, u.ResetPasswordExpire, u.ID).Scan(&u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return repository.ErrNotFound
		}
		return mapWriteError(err)
	}
	return nil
}

// ConsumeResetToken writes the new password and clears the reset fields in
// one statement guarded by the token digest. Of two concurrent confirms with
// the same token only the first matches a row.
func (r *UserRepository) ConsumeResetToken(ctx context.Context, u *entity.User, digest string) error {
	if !validID(u.ID) || digest == "" {
		return repository.ErrNotFound
	}
	if err := u.Validate(); err != nil {
		return err
	}
	if !u.PasswordModified() {
		return fmt.Errorf("consume reset token: %w", entity.ErrResetTokenInvalid)
	}
	if err := u.PrepareForPersist(); err != nil {
		return err
	}
	u.ClearResetToken()

	err := r.pool.QueryRow(ctx, `
		UPDATE users
		SET password_hash = $2, reset_password_token = NULL, reset_password_expire = NULL, updated_at = now()
		WHERE id = $1 AND reset_password_token = $3
		RETURNING updated_at
	`, u.ID, u.PasswordHash, digest).Scan(&u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return repository.ErrNotFound
	}
	return err
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*entity.User, error) {
	if !validID(id) {
		return nil, repository.ErrNotFound
	}
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id), false)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`,
		entity.NormalizeEmail(email)), false)
}

// GetByResetToken finds the user holding the given token digest. Expiry is
// checked by the caller.
func (r *UserRepository) GetByResetToken(ctx context.Context, digest string) (*entity.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE reset_password_token = $1`, digest), false)
}

func (r *UserRepository) GetCredentialsByEmail(ctx context.Context, email string) (*entity.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+`, password_hash FROM users WHERE email = $1`,
		entity.NormalizeEmail(email)), true)
}

func (r *UserRepository) GetCredentialsByID(ctx context.Context, id string) (*entity.User, error) {
	if !validID(id) {
		return nil, repository.ErrNotFound
	}
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+`, password_hash FROM users WHERE id = $1`, id), true)
}

func (r *UserRepository) SetVerified(ctx context.Context, id string) error {
	if !validID(id) {
		return repository.ErrNotFound
	}
	return r.execOne(ctx, `UPDATE users SET is_verified = true, updated_at = now() WHERE id = $1`, id)
}

func (r *UserRepository) SetApproved(ctx context.Context, id string, approved bool) error {
	if !validID(id) {
		return repository.ErrNotFound
	}
	return r.execOne(ctx, `UPDATE users SET is_approved = $2, updated_at = now() WHERE id = $1`, id, approved)
}

// ClearExpiredResetTokens nulls out reset tokens whose expiry has passed.
func (r *UserRepository) ClearExpiredResetTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.pool.Exec(ctx, `
		UPDATE users
		SET reset_password_token = NULL, reset_password_expire = NULL
		WHERE reset_password_expire IS NOT NULL AND reset_password_expire < $1
	`, now)
	if err != nil {
		return 0, fmt.Errorf("clear expired reset tokens: %w", err)
	}
	return res.RowsAffected(), nil
}

func (r *UserRepository) execOne(ctx context.Context, sql string, args ...any) error {
	res, err := r.pool.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

var _ repository.UserRepository = (*UserRepository)(nil)
