package postgres

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"golang.org/x/crypto/bcrypt"

	"github.com/oksasatya/go-membership-affiliate/internal/domain/entity"
	"github.com/oksasatya/go-membership-affiliate/internal/domain/repository"
)

const (
	sqlInsertUser   = `INSERT INTO users`
	sqlUpdateUser   = `UPDATE users`
	sqlConsumeReset = `WHERE id = $1 AND reset_password_token = $3`
	testUserID      = "6f1c1b9e-3a53-4a8e-9a43-2f6d3c6a1b01"
)

// bcryptOf matches a bcrypt hash of plain at the configured cost.
type bcryptOf string

func (p bcryptOf) Match(v any) bool {
	h, ok := v.(string)
	if !ok {
		return false
	}
	if cost, err := bcrypt.Cost([]byte(h)); err != nil || cost != 10 {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(h), []byte(p)) == nil
}

// nilHash matches the untouched-password argument of Update.
type nilHash struct{}

func (nilHash) Match(v any) bool {
	if v == nil {
		return true
	}
	p, ok := v.(*string)
	return ok && p == nil
}

// hashOf matches a non-nil *string holding a bcrypt hash of plain.
type hashOf string

func (p hashOf) Match(v any) bool {
	if s, ok := v.(*string); ok {
		return s != nil && bcryptOf(p).Match(*s)
	}
	return bcryptOf(p).Match(v)
}

func newMockRepo(t *testing.T) (*UserRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("error %s while creating stub pool", err)
	}
	t.Cleanup(mock.Close)
	return NewUserRepository(mock), mock
}

func existingUser() *entity.User {
	return &entity.User{
		ID:           testUserID,
		Email:        "member@example.com",
		PasswordHash: "$2a$10$existinghashexistinghashexistinghashexistinghashexist",
		Role:         entity.RoleMember,
		ReferralCode: "ABCD2345",
	}
}

func TestCreateHashesPassword(t *testing.T) {
	r, mock := newMockRepo(t)
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(sqlInsertUser)).
		WithArgs("new@example.com", bcryptOf("secret123"), "affiliate", "ABCD2345", "",
			false, false, false, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(testUserID, now, now))

	u := entity.NewUser(" New@Example.com ", "secret123", entity.RoleAffiliate)
	u.ReferralCode = "ABCD2345"
	if err := r.Create(context.Background(), u); err != nil {
		t.Fatalf("Create unwanted error: %s", err)
	}
	if u.ID != testUserID || !u.CreatedAt.Equal(now) {
		t.Errorf("returned columns not applied: %+v", u)
	}
	if u.PasswordModified() || !u.ComparePassword("secret123") {
		t.Error("password not prepared")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %s", err)
	}
}

func TestCreateDuplicates(t *testing.T) {
	tests := []struct {
		name       string
		constraint string
		want       error
	}{
		{"email", "users_email_key", entity.ErrDuplicateEmail},
		{"referral code", "users_referral_code_key", entity.ErrDuplicateReferralCode},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r, mock := newMockRepo(t)
			mock.ExpectQuery(regexp.QuoteMeta(sqlInsertUser)).
				WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: tc.constraint})

			u := entity.NewUser("dup@example.com", "secret123", "")
			u.ReferralCode = "ABCD2345"
			if err := r.Create(context.Background(), u); !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unfulfilled expectations: %s", err)
			}
		})
	}
}

func TestCreateValidationStopsBeforeSQL(t *testing.T) {
	r, mock := newMockRepo(t)

	u := entity.NewUser("long@example.com", strings.Repeat("é", 40), "")
	u.ReferralCode = "ABCD2345"
	var verr *entity.ValidationError
	if err := r.Create(context.Background(), u); !errors.As(err, &verr) {
		t.Fatalf("got %v, want ValidationError", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %s", err)
	}
}

func TestUpdateKeepsHashWhenPasswordUnchanged(t *testing.T) {
	r, mock := newMockRepo(t)
	u := existingUser()
	u.IsApproved = true

	mock.ExpectQuery(regexp.QuoteMeta(sqlUpdateUser)).
		WithArgs("member@example.com", nilHash{}, "member", "ABCD2345", "", true, false, false,
			pgxmock.AnyArg(), pgxmock.AnyArg(), testUserID).
		WillReturnRows(pgxmock.NewRows([]string{"updated_at"}).AddRow(time.Now()))

	before := u.PasswordHash
	if err := r.Update(context.Background(), u); err != nil {
		t.Fatalf("Update unwanted error: %s", err)
	}
	if u.PasswordHash != before {
		t.Error("hash changed without SetPassword")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %s", err)
	}
}

func TestUpdateWritesNewHash(t *testing.T) {
	r, mock := newMockRepo(t)
	u := existingUser()
	u.SetPassword("newpass1")

	mock.ExpectQuery(regexp.QuoteMeta(sqlUpdateUser)).
		WithArgs("member@example.com", hashOf("newpass1"), "member", "ABCD2345", "", false, false, false,
			pgxmock.AnyArg(), pgxmock.AnyArg(), testUserID).
		WillReturnRows(pgxmock.NewRows([]string{"updated_at"}).AddRow(time.Now()))

	if err := r.Update(context.Background(), u); err != nil {
		t.Fatalf("Update unwanted error: %s", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %s", err)
	}
}

func TestUpdateDuplicateEmail(t *testing.T) {
	r, mock := newMockRepo(t)
	mock.ExpectQuery(regexp.QuoteMeta(sqlUpdateUser)).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"})

	if err := r.Update(context.Background(), existingUser()); !errors.Is(err, entity.ErrDuplicateEmail) {
		t.Fatalf("got %v, want ErrDuplicateEmail", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %s", err)
	}
}

func TestConsumeResetTokenOnce(t *testing.T) {
	r, mock := newMockRepo(t)
	digest := strings.Repeat("ab", 32)

	mock.ExpectQuery(regexp.QuoteMeta(sqlConsumeReset)).
		WithArgs(testUserID, bcryptOf("newpass1"), digest).
		WillReturnRows(pgxmock.NewRows([]string{"updated_at"}).AddRow(time.Now()))
	// The concurrent confirm finds the token already cleared.
	mock.ExpectQuery(regexp.QuoteMeta(sqlConsumeReset)).
		WithArgs(testUserID, bcryptOf("another1"), digest).
		WillReturnRows(pgxmock.NewRows([]string{"updated_at"}))

	first := existingUser()
	first.SetPassword("newpass1")
	if err := r.ConsumeResetToken(context.Background(), first, digest); err != nil {
		t.Fatalf("first consume: %s", err)
	}
	if first.ResetPasswordToken != nil || first.ResetPasswordExpire != nil {
		t.Error("reset fields not cleared on the entity")
	}

	second := existingUser()
	second.SetPassword("another1")
	if err := r.ConsumeResetToken(context.Background(), second, digest); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("second consume: got %v, want ErrNotFound", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %s", err)
	}
}

func TestMalformedIDsNeverReachPostgres(t *testing.T) {
	r, mock := newMockRepo(t)
	ctx := context.Background()

	if _, err := r.GetByID(ctx, "not-a-uuid"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("GetByID: got %v", err)
	}
	if _, err := r.GetCredentialsByID(ctx, "42"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("GetCredentialsByID: got %v", err)
	}
	if err := r.SetApproved(ctx, "missing", true); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("SetApproved: got %v", err)
	}
	u := existingUser()
	u.ID = "missing"
	if err := r.Update(ctx, u); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("Update: got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %s", err)
	}
}

func TestGetByIDQueryError(t *testing.T) {
	r, mock := newMockRepo(t)
	boom := errors.New("connection reset")
	mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE id = $1`)).
		WithArgs(testUserID).
		WillReturnError(boom)

	if _, err := r.GetByID(context.Background(), testUserID); !errors.Is(err, boom) {
		t.Fatalf("got %v, want %v", err, boom)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %s", err)
	}
}
