// Package registration implements the sign-up form: local field state,
// client-side checks and submission to a user-creation backend.
package registration

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

// Plan is the account type picked on the form.
type Plan string

const (
	// PlanMembership is the profile membership (VIP or free).
	PlanMembership Plan = "member"
	// PlanAffiliate refers others and earns referral rewards.
	PlanAffiliate Plan = "affiliate"
)

// Form field names accepted by Set.
const (
	FieldEmail           = "email"
	FieldPassword        = "password"
	FieldPasswordConfirm = "passwordConfirm"
	FieldPlan            = "plan"
	FieldAgeCheck        = "ageCheck"
	FieldTermsCheck      = "termsCheck"
)

var (
	ErrPasswordMismatch = errors.New("passwords do not match")
	ErrUnknownField     = errors.New("unknown form field")
	ErrNoCreator        = errors.New("registration: creator is required")
)

var validate = validator.New()

// FieldErrors reports per-field problems, from local checks or from the API.
type FieldErrors struct {
	Fields map[string]string
}

func (e *FieldErrors) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+" "+e.Fields[k])
	}
	return "invalid registration: " + strings.Join(parts, "; ")
}

// Form holds the state of one sign-up form.
type Form struct {
	Email           string
	Password        string
	PasswordConfirm string
	Plan            Plan
	AgeConfirmed    bool
	TermsAccepted   bool

	touched map[string]bool
}

// Set updates a field by its input name and marks it touched.
func (f *Form) Set(field, value string) error {
	switch field {
	case FieldEmail:
		f.Email = strings.TrimSpace(value)
	case FieldPassword:
		f.Password = value
	case FieldPasswordConfirm:
		f.PasswordConfirm = value
	case FieldPlan:
		f.Plan = Plan(strings.ToLower(strings.TrimSpace(value)))
	case FieldAgeCheck, FieldTermsCheck:
		on, err := parseCheck(value)
		if err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
		if field == FieldAgeCheck {
			f.AgeConfirmed = on
		} else {
			f.TermsAccepted = on
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	if f.touched == nil {
		f.touched = map[string]bool{}
	}
	f.touched[field] = true
	return nil
}

// Touched reports whether field was set since the form was created.
func (f *Form) Touched(field string) bool { return f.touched[field] }

// HTML checkboxes post "on"; everything else goes through ParseBool.
func parseCheck(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "on":
		return true, nil
	case "", "off":
		return false, nil
	}
	return strconv.ParseBool(v)
}

// Validate runs the client-side checks. A password mismatch is reported on
// its own, before any other field.
func (f *Form) Validate() error {
	if f.Password != f.PasswordConfirm {
		return ErrPasswordMismatch
	}
	fields := map[string]string{}
	if f.Email == "" {
		fields[FieldEmail] = "is required"
	} else if err := validate.Var(f.Email, "email"); err != nil {
		fields[FieldEmail] = "must be a valid email"
	}
	if f.Password == "" {
		fields[FieldPassword] = "is required"
	}
	switch f.Plan {
	case "", PlanMembership, PlanAffiliate:
	default:
		fields[FieldPlan] = "must be one of: member, affiliate"
	}
	if !f.AgeConfirmed {
		fields[FieldAgeCheck] = "must be confirmed"
	}
	if !f.TermsAccepted {
		fields[FieldTermsCheck] = "must be accepted"
	}
	if len(fields) > 0 {
		return &FieldErrors{Fields: fields}
	}
	return nil
}

// Request is what gets sent to the user-creation API. The confirmation and
// checkboxes never leave the form.
type Request struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
}

// Account is the created user as returned by the API.
type Account struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	Role         string `json:"role"`
	ReferralCode string `json:"referral_code"`
}

// Creator creates users; APIClient is the HTTP implementation.
type Creator interface {
	CreateUser(ctx context.Context, req Request) (*Account, error)
}

// Config is passed explicitly to NewSubmitter; there is no shared store.
type Config struct {
	Creator Creator
	Logger  *logrus.Logger
}

type Submitter struct {
	creator Creator
	logger  *logrus.Logger
}

func NewSubmitter(cfg Config) (*Submitter, error) {
	if cfg.Creator == nil {
		return nil, ErrNoCreator
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.New()
	}
	return &Submitter{creator: cfg.Creator, logger: logger}, nil
}

// Submit validates f and, only if it passes, asks the creator for an account.
func (s *Submitter) Submit(ctx context.Context, f *Form) (*Account, error) {
	if err := f.Validate(); err != nil {
		s.logger.WithError(err).Debug("registration form rejected locally")
		return nil, err
	}
	acc, err := s.creator.CreateUser(ctx, Request{
		Email:    f.Email,
		Password: f.Password,
		Role:     string(f.Plan),
	})
	if err != nil {
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{"id": acc.ID, "role": acc.Role}).Info("account created")
	return acc, nil
}
