package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oksasatya/go-membership-affiliate/internal/domain/entity"
	repo "github.com/oksasatya/go-membership-affiliate/internal/domain/repository"
)

// memRepo mirrors the Postgres repository: it validates, hashes through
// PrepareForPersist and enforces unique email and referral code.
type memRepo struct {
	mu    sync.Mutex
	seq   int
	users map[string]entity.User

	// referralCollisions makes the next N creates fail as referral conflicts.
	referralCollisions int
	creates            int
}

func newMemRepo() *memRepo {
	return &memRepo{users: map[string]entity.User{}}
}

func (r *memRepo) Create(_ context.Context, u *entity.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.creates++
	if err := u.Validate(); err != nil {
		return err
	}
	if err := u.PrepareForPersist(); err != nil {
		return err
	}
	if r.referralCollisions > 0 {
		r.referralCollisions--
		return entity.ErrDuplicateReferralCode
	}
	for _, existing := range r.users {
		if existing.Email == u.Email {
			return entity.ErrDuplicateEmail
		}
		if existing.ReferralCode == u.ReferralCode {
			return entity.ErrDuplicateReferralCode
		}
	}
	r.seq++
	u.ID = fmt.Sprintf("user-%d", r.seq)
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	r.users[u.ID] = *u
	return nil
}

func (r *memRepo) Update(_ context.Context, u *entity.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.users[u.ID]
	if !ok {
		return repo.ErrNotFound
	}
	if err := u.Validate(); err != nil {
		return err
	}
	changed := u.PasswordModified()
	if err := u.PrepareForPersist(); err != nil {
		return err
	}
	next := *u
	if !changed {
		next.PasswordHash = stored.PasswordHash
	}
	next.UpdatedAt = time.Now()
	r.users[u.ID] = next
	return nil
}

func (r *memRepo) find(match func(entity.User) bool, withHash bool) (*entity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if match(u) {
			out := u
			if !withHash {
				out.PasswordHash = ""
			}
			return &out, nil
		}
	}
	return nil, repo.ErrNotFound
}

func (r *memRepo) GetByID(_ context.Context, id string) (*entity.User, error) {
	return r.find(func(u entity.User) bool { return u.ID == id }, false)
}

func (r *memRepo) GetByEmail(_ context.Context, email string) (*entity.User, error) {
	email = entity.NormalizeEmail(email)
	return r.find(func(u entity.User) bool { return u.Email == email }, false)
}

func (r *memRepo) GetByResetToken(_ context.Context, digest string) (*entity.User, error) {
	return r.find(func(u entity.User) bool {
		return u.ResetPasswordToken != nil && *u.ResetPasswordToken == digest
	}, false)
}

func (r *memRepo) GetCredentialsByEmail(_ context.Context, email string) (*entity.User, error) {
	email = entity.NormalizeEmail(email)
	return r.find(func(u entity.User) bool { return u.Email == email }, true)
}

func (r *memRepo) GetCredentialsByID(_ context.Context, id string) (*entity.User, error) {
	return r.find(func(u entity.User) bool { return u.ID == id }, true)
}

func (r *memRepo) SetVerified(_ context.Context, id string) error {
	return r.mutate(id, func(u *entity.User) { u.IsVerified = true })
}

func (r *memRepo) SetApproved(_ context.Context, id string, approved bool) error {
	return r.mutate(id, func(u *entity.User) { u.IsApproved = approved })
}

func (r *memRepo) mutate(id string, fn func(*entity.User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return repo.ErrNotFound
	}
	fn(&u)
	r.users[id] = u
	return nil
}

func (r *memRepo) ClearExpiredResetTokens(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, u := range r.users {
		if u.ResetPasswordExpire != nil && u.ResetPasswordExpire.Before(now) {
			u.ClearResetToken()
			r.users[id] = u
			n++
		}
	}
	return n, nil
}

func (r *memRepo) ConsumeResetToken(_ context.Context, u *entity.User, digest string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.users[u.ID]
	if !ok || stored.ResetPasswordToken == nil || *stored.ResetPasswordToken != digest {
		return repo.ErrNotFound
	}
	if err := u.Validate(); err != nil {
		return err
	}
	if err := u.PrepareForPersist(); err != nil {
		return err
	}
	u.ClearResetToken()
	stored.PasswordHash = u.PasswordHash
	stored.ClearResetToken()
	stored.UpdatedAt = time.Now()
	u.UpdatedAt = stored.UpdatedAt
	r.users[u.ID] = stored
	return nil
}

// stored returns the raw row, hash included.
func (r *memRepo) stored(id string) entity.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.users[id]
}

var _ repo.UserRepository = (*memRepo)(nil)
