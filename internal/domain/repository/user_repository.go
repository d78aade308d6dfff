package repository

import (
	"context"
	"errors"
	"time"

	"github.com/oksasatya/go-membership-affiliate/internal/domain/entity"
)

// ErrNotFound is returned when no user matches a lookup.
var ErrNotFound = errors.New("not found")

// UserRepository defines the interface for user-related database operations.
//
// Create and Update run entity.User.PrepareForPersist before writing. Default
// reads never return PasswordHash; use the credential lookups for that.
type UserRepository interface {
	Create(ctx context.Context, u *entity.User) error
	Update(ctx context.Context, u *entity.User) error
	GetByID(ctx context.Context, id string) (*entity.User, error)
	GetByEmail(ctx context.Context, email string) (*entity.User, error)
	GetByResetToken(ctx context.Context, digest string) (*entity.User, error)
	GetCredentialsByEmail(ctx context.Context, email string) (*entity.User, error)
	GetCredentialsByID(ctx context.Context, id string) (*entity.User, error)
	SetVerified(ctx context.Context, id string) error
	SetApproved(ctx context.Context, id string, approved bool) error
	ClearExpiredResetTokens(ctx context.Context, now time.Time) (int64, error)
	// ConsumeResetToken saves u only while digest is still the stored reset
	// token, so a token can complete at most one reset. A token that was
	// already used or replaced yields ErrNotFound.
	ConsumeResetToken(ctx context.Context, u *entity.User, digest string) error
}
