package templates

import (
	"time"

	"github.com/oksasatya/go-membership-affiliate/config"
)

// Option pattern
type Option func(*EmailData)

func WithIP(ip string) Option        { return func(d *EmailData) { d.IP = ip } }
func WithUserAgent(ua string) Option { return func(d *EmailData) { d.UserAgent = ua } }
func WithTime(t time.Time) Option {
	return func(d *EmailData) {
		utc := t.UTC()
		d.TimeAt = utc
		d.Time = utc.Format("02 January 2006, 15:04")
	}
}
func WithVerifyURL(url string) Option { return func(d *EmailData) { d.VerifyURL = url } }
func WithResetURL(url string) Option  { return func(d *EmailData) { d.ResetURL = url } }
func WithRole(role string) Option     { return func(d *EmailData) { d.Role = role } }

func WithExpiresAt(t time.Time) Option {
	return func(d *EmailData) {
		utc := t.UTC()
		d.ExpiresAt = utc
		d.ExpiresAtText = utc.Format("02 January 2006, 15:04 MST")
	}
}

// NewBaseEmailData fills the company fields from config, then applies opts.
func NewBaseEmailData(cfg *config.Config, typ string, email string, opts ...Option) EmailData {
	d := EmailData{
		Email:          email,
		RecipientEmail: email,
		Type:           typ,

		CompanyName:    cfg.CompanyName,
		CompanyAddress: cfg.CompanyAddress,
		AppName:        cfg.AppName,

		LogoURL:        cfg.LogoURL,
		SupportURL:     cfg.SupportURL,
		PrivacyURL:     cfg.PrivacyURL,
		UnsubscribeURL: cfg.UnsubscribeURL,
	}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

func NewWelcomeData(cfg *config.Config, email, role, referralCode string, opts ...Option) map[string]any {
	d := NewBaseEmailData(cfg, Welcome, email, append([]Option{WithRole(role)}, opts...)...)
	d.ReferralCode = referralCode
	return ToMap(d)
}

func NewVerifyEmailData(cfg *config.Config, email, verifyURL string, opts ...Option) map[string]any {
	opts = append([]Option{WithVerifyURL(verifyURL)}, opts...)
	return ToMap(NewBaseEmailData(cfg, VerifyEmail, email, opts...))
}

func NewForgotPasswordData(cfg *config.Config, email, resetURL string, expiresAt time.Time, opts ...Option) map[string]any {
	opts = append([]Option{WithResetURL(resetURL), WithExpiresAt(expiresAt)}, opts...)
	return ToMap(NewBaseEmailData(cfg, ForgotPassword, email, opts...))
}

func NewPasswordChangedData(cfg *config.Config, email string, opts ...Option) map[string]any {
	return ToMap(NewBaseEmailData(cfg, PasswordChanged, email, opts...))
}

func NewAccountApprovedData(cfg *config.Config, email, role string, opts ...Option) map[string]any {
	return ToMap(NewBaseEmailData(cfg, AccountApproved, email, append([]Option{WithRole(role)}, opts...)...))
}
