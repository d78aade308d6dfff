package application

import (
	"context"
	"errors"
	"time"

	"github.com/oksasatya/go-membership-affiliate/pkg/helpers"
	"github.com/oksasatya/go-membership-affiliate/pkg/mailer"
	mailtpl "github.com/oksasatya/go-membership-affiliate/pkg/mailer/templates"
)

var (
	ErrAlreadyVerified         = errors.New("email already verified")
	ErrVerifyTokenInvalid      = errors.New("invalid or expired verification token")
	ErrVerificationUnavailable = errors.New("email verification unavailable")
)

const verifyTokenTTL = 24 * time.Hour

type verifyPayload struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

// StartVerification stores a one-time token in Redis and queues the link.
func (s *Service) StartVerification(ctx context.Context, userID string) error {
	if s.Redis == nil {
		return ErrVerificationUnavailable
	}
	u, err := s.Repo.GetByID(ctx, userID)
	if err != nil {
		return lookupErr(err, ErrUserNotFound)
	}
	if u.IsVerified {
		return ErrAlreadyVerified
	}

	token, err := helpers.GenURLToken(32)
	if err != nil {
		return err
	}
	if err := helpers.RedisSetJSON(ctx, s.Redis, helpers.KeyVerifyToken(token),
		verifyPayload{UserID: u.ID, Email: u.Email}, verifyTokenTTL); err != nil {
		return err
	}

	link := buildLink(s.Cfg.VerifyEmailURL, token)
	s.enqueue(ctx, mailer.EmailJob{
		To:       u.Email,
		Template: mailtpl.VerifyEmail,
		Data: mailtpl.NewVerifyEmailData(s.Cfg, u.Email, link,
			mailtpl.WithExpiresAt(s.Now().Add(verifyTokenTTL))),
	})
	return nil
}

// ConfirmVerification consumes token and marks the owner verified.
func (s *Service) ConfirmVerification(ctx context.Context, token string) error {
	if s.Redis == nil {
		return ErrVerificationUnavailable
	}
	if token == "" {
		return ErrVerifyTokenInvalid
	}
	key := helpers.KeyVerifyToken(token)
	var p verifyPayload
	ok, err := helpers.RedisGetJSON(ctx, s.Redis, key, &p)
	if err != nil {
		return err
	}
	if !ok || p.UserID == "" {
		return ErrVerifyTokenInvalid
	}
	if err := s.Repo.SetVerified(ctx, p.UserID); err != nil {
		return err
	}
	_ = helpers.RedisDel(ctx, s.Redis, key)
	_ = s.Redis.Set(ctx, helpers.KeyVerified(p.UserID), "1", 0).Err()
	s.Logger.WithField("user_id", p.UserID).Info("email verified")
	return nil
}
