package application

import (
	"context"
	"errors"
	"net/url"

	"github.com/oksasatya/go-membership-affiliate/internal/domain/entity"
	repo "github.com/oksasatya/go-membership-affiliate/internal/domain/repository"
	"github.com/oksasatya/go-membership-affiliate/pkg/helpers"
	"github.com/oksasatya/go-membership-affiliate/pkg/mailer"
	mailtpl "github.com/oksasatya/go-membership-affiliate/pkg/mailer/templates"
)

// RequestPasswordReset issues a reset token for email and queues the link.
// Unknown addresses return an empty token and no error so callers cannot
// probe which accounts exist.
func (s *Service) RequestPasswordReset(ctx context.Context, email string, meta RequestMeta) (string, error) {
	u, err := s.Repo.GetByEmail(ctx, email)
	if errors.Is(err, repo.ErrNotFound) {
		s.Logger.WithField("email", entity.NormalizeEmail(email)).Info("password reset requested for unknown email")
		return "", nil
	}
	if err != nil {
		return "", err
	}

	now := s.Now()
	raw, err := u.IssueResetToken(now)
	if err != nil {
		return "", err
	}
	if err := s.Repo.Update(ctx, u); err != nil {
		return "", err
	}

	link := buildLink(s.Cfg.ResetPasswordURL, raw)
	opts := append([]mailtpl.Option{mailtpl.WithTime(now)}, meta.options()...)
	s.enqueue(ctx, mailer.EmailJob{
		To:       u.Email,
		Template: mailtpl.ForgotPassword,
		Data:     mailtpl.NewForgotPasswordData(s.Cfg, u.Email, link, *u.ResetPasswordExpire, opts...),
	})
	s.Logger.WithField("user_id", u.ID).Info("password reset token issued")
	return raw, nil
}

// ConfirmPasswordReset sets a new password for the holder of raw. The token
// is single use and all sessions of the user are revoked.
func (s *Service) ConfirmPasswordReset(ctx context.Context, raw, newPassword string, meta RequestMeta) error {
	if raw == "" {
		return entity.ErrResetTokenInvalid
	}
	digest := helpers.HashToken(raw)
	u, err := s.Repo.GetByResetToken(ctx, digest)
	if errors.Is(err, repo.ErrNotFound) {
		return entity.ErrResetTokenInvalid
	}
	if err != nil {
		return err
	}

	if err := u.VerifyResetToken(raw, s.Now()); err != nil {
		if errors.Is(err, entity.ErrResetTokenExpired) {
			u.ClearResetToken()
			if uErr := s.Repo.Update(ctx, u); uErr != nil {
				s.Logger.WithError(uErr).WithField("user_id", u.ID).Warn("failed to clear expired reset token")
			}
		}
		return err
	}

	u.SetPassword(newPassword)
	if err := s.Repo.ConsumeResetToken(ctx, u, digest); err != nil {
		return lookupErr(err, entity.ErrResetTokenInvalid)
	}
	if err := s.revokeSessions(ctx, u.ID); err != nil {
		s.Logger.WithError(err).WithField("user_id", u.ID).Warn("failed to revoke sessions after reset")
	}
	s.notifyPasswordChanged(ctx, u, meta)
	s.Logger.WithField("user_id", u.ID).Info("password reset completed")
	return nil
}

// SweepExpiredResetTokens clears reset tokens whose expiry has passed.
func (s *Service) SweepExpiredResetTokens(ctx context.Context) (int64, error) {
	return s.Repo.ClearExpiredResetTokens(ctx, s.Now())
}

func buildLink(base, token string) string {
	if base == "" {
		return ""
	}
	u, err := url.Parse(base)
	if err != nil {
		return base + "?token=" + url.QueryEscape(token)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}
