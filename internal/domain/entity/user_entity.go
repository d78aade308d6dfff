package entity

import (
	"crypto/subtle"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/oksasatya/go-membership-affiliate/pkg/helpers"
)

// ResetTokenTTL is how long an issued password reset token stays usable.
const ResetTokenTTL = 30 * time.Minute

// Password bounds, mirroring the "pwd" binding alias. bcrypt refuses input
// longer than MaxPasswordBytes, so the byte count is checked here rather than
// surfacing as a hashing failure.
const (
	MinPasswordLength = 6
	MaxPasswordBytes  = 72
)

var validate = validator.New()

// User is the aggregate root for the membership domain.
//
// PasswordHash is only ever written by PrepareForPersist. Callers change the
// password through SetPassword; the plaintext stays in memory until the
// write path hashes it.
type User struct {
	ID                  string
	Email               string
	PasswordHash        string
	Role                Role
	ReferralCode        string
	AvatarURL           string
	IsApproved          bool
	IsVerified          bool
	HasCompleteProfile  bool
	ResetPasswordToken  *string
	ResetPasswordExpire *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time

	password         string
	passwordModified bool
}

// NewUser builds a registration candidate with defaults applied.
func NewUser(email, password string, role Role) *User {
	if role == "" {
		role = RoleMember
	}
	u := &User{Email: NormalizeEmail(email), Role: role}
	u.SetPassword(password)
	return u
}

// NormalizeEmail trims and lowercases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SetPassword records a new plaintext password to be hashed on the next save.
func (u *User) SetPassword(plain string) {
	u.password = plain
	u.passwordModified = true
}

// PasswordModified reports whether a plaintext password is pending.
func (u *User) PasswordModified() bool { return u.passwordModified }

// PrepareForPersist hashes a pending password. It is a no-op when the
// password was not modified, so an unchanged hash is carried through as is.
func (u *User) PrepareForPersist() error {
	if !u.passwordModified {
		return nil
	}
	hash, err := helpers.HashPassword(u.password)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	u.password = ""
	u.passwordModified = false
	return nil
}

// ComparePassword checks plain against the stored hash.
func (u *User) ComparePassword(plain string) bool {
	return ComparePassword(u.PasswordHash, plain)
}

// ComparePassword checks plain against a bcrypt hash.
func ComparePassword(hash, plain string) bool {
	return helpers.CompareHashAndPassword(hash, plain)
}

// Validate checks the record before it is written. A pending plaintext
// password is length checked; a new record (no ID yet) without one is
// rejected.
func (u *User) Validate() error {
	u.Email = NormalizeEmail(u.Email)
	fields := map[string]string{}

	if u.Email == "" {
		fields["email"] = "is required"
	} else if err := validate.Var(u.Email, "email"); err != nil {
		fields["email"] = "must be a valid email"
	}

	if u.passwordModified {
		switch {
		case utf8.RuneCountInString(u.password) < MinPasswordLength:
			fields["password"] = fmt.Sprintf("must be at least %d characters long", MinPasswordLength)
		case len(u.password) > MaxPasswordBytes:
			fields["password"] = fmt.Sprintf("must be at most %d bytes", MaxPasswordBytes)
		}
	} else if u.ID == "" && u.PasswordHash == "" {
		fields["password"] = "is required"
	}

	if u.Role == "" {
		u.Role = RoleMember
	}
	if !u.Role.Valid() {
		fields["role"] = "must be one of: member, affiliate, employee, admin"
	}
	if strings.TrimSpace(u.ReferralCode) == "" {
		fields["referral_code"] = "is required"
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// IssueResetToken generates a new reset token, stores its digest with an
// expiry of now+ResetTokenTTL and returns the raw token. Any previously
// issued token stops matching.
func (u *User) IssueResetToken(now time.Time) (string, error) {
	raw, err := helpers.GenHexToken(helpers.ResetTokenBytes)
	if err != nil {
		return "", fmt.Errorf("generate reset token: %w", err)
	}
	digest := helpers.HashToken(raw)
	exp := now.Add(ResetTokenTTL)
	u.ResetPasswordToken = &digest
	u.ResetPasswordExpire = &exp
	return raw, nil
}

// VerifyResetToken checks a raw token against the stored digest and expiry.
func (u *User) VerifyResetToken(raw string, now time.Time) error {
	if u.ResetPasswordToken == nil || raw == "" {
		return ErrResetTokenInvalid
	}
	digest := helpers.HashToken(raw)
	if subtle.ConstantTimeCompare([]byte(digest), []byte(*u.ResetPasswordToken)) != 1 {
		return ErrResetTokenInvalid
	}
	if u.ResetPasswordExpire == nil || now.After(*u.ResetPasswordExpire) {
		return ErrResetTokenExpired
	}
	return nil
}

// ClearResetToken drops the reset token and its expiry.
func (u *User) ClearResetToken() {
	u.ResetPasswordToken = nil
	u.ResetPasswordExpire = nil
}
