package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/go-membership-affiliate/config"
	"github.com/oksasatya/go-membership-affiliate/internal/domain/entity"
	repo "github.com/oksasatya/go-membership-affiliate/internal/domain/repository"
	"github.com/oksasatya/go-membership-affiliate/pkg/helpers"
	"github.com/oksasatya/go-membership-affiliate/pkg/mailer"
	mailtpl "github.com/oksasatya/go-membership-affiliate/pkg/mailer/templates"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
	ErrRoleNotAllowed     = errors.New("role cannot be self-assigned")
	ErrStorageDisabled    = errors.New("photo storage not configured")
)

// lookupErr turns a missing row into notFound. Any other repository error is
// a fault and is returned as is.
func lookupErr(err, notFound error) error {
	if errors.Is(err, repo.ErrNotFound) {
		return notFound
	}
	return err
}

// maxReferralAttempts bounds referral code regeneration on collisions.
const maxReferralAttempts = 5

const sessionTTL = 24 * time.Hour

// Publisher queues email jobs.
type Publisher interface {
	PublishJSON(ctx context.Context, body any) error
}

// PhotoStore uploads profile photos and returns their public URL.
type PhotoStore interface {
	Upload(ctx context.Context, objectPath, contentType string, r io.Reader) (string, error)
}

// Deps groups the collaborators of Service. Only Repo and JWT are required;
// the rest degrade to no-ops when nil.
type Deps struct {
	Repo         repo.UserRepository
	JWT          *helpers.JWTManager
	Cfg          *config.Config
	Redis        *redis.Client
	Mail         Publisher
	Photos       PhotoStore
	ES           *elasticsearch.Client
	ESUsersIndex string
	Logger       *logrus.Logger
	Now          func() time.Time
}

type Service struct {
	Deps
}

func NewService(d Deps) *Service {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Cfg == nil {
		d.Cfg = &config.Config{}
	}
	if d.Logger == nil {
		d.Logger = helpers.NewDiscardLogger()
	}
	return &Service{Deps: d}
}

// RequestMeta describes the HTTP request behind an operation; it only feeds
// email content.
type RequestMeta struct {
	IP        string
	UserAgent string
}

func (m RequestMeta) options() []mailtpl.Option {
	return []mailtpl.Option{mailtpl.WithIP(m.IP), mailtpl.WithUserAgent(m.UserAgent)}
}

type TokenPair struct {
	AccessToken        string
	AccessTokenExpiry  time.Time
	RefreshToken       string
	RefreshTokenExpiry time.Time
}

type RegisterInput struct {
	Email    string
	Password string
	Role     entity.Role
}

func nowRFC3339(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// Register creates a member or affiliate account. Duplicate emails surface as
// entity.ErrDuplicateEmail; referral code collisions are retried.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*entity.User, error) {
	role := in.Role
	if role == "" {
		role = entity.RoleMember
	}
	if !role.SelfAssignable() {
		return nil, ErrRoleNotAllowed
	}

	u := entity.NewUser(in.Email, in.Password, role)
	var err error
	for attempt := 0; attempt < maxReferralAttempts; attempt++ {
		if u.ReferralCode, err = helpers.GenReferralCode(); err != nil {
			return nil, fmt.Errorf("referral code: %w", err)
		}
		err = s.Repo.Create(ctx, u)
		if errors.Is(err, entity.ErrDuplicateReferralCode) {
			s.Logger.WithField("attempt", attempt+1).Warn("referral code collision, regenerating")
			continue
		}
		break
	}
	if err != nil {
		return nil, err
	}

	s.Logger.WithFields(logrus.Fields{"user_id": u.ID, "role": u.Role}).Info("user registered")
	s.enqueue(ctx, mailer.EmailJob{
		To:       u.Email,
		Template: mailtpl.Welcome,
		Data:     mailtpl.NewWelcomeData(s.Cfg, u.Email, string(u.Role), u.ReferralCode),
	})
	_ = s.indexUser(ctx, u)
	return u, nil
}

// Authenticate validates email/password and returns the user without issuing tokens.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*entity.User, error) {
	u, err := s.Repo.GetCredentialsByEmail(ctx, email)
	if err != nil {
		return nil, lookupErr(err, ErrInvalidCredentials)
	}
	if !u.ComparePassword(password) {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// IssueTokens generates access/refresh tokens and records a session in Redis.
func (s *Service) IssueTokens(ctx context.Context, u *entity.User) (TokenPair, error) {
	sid := uuid.NewString()
	pair, err := s.signPair(u, sid)
	if err != nil {
		s.Logger.WithError(err).WithField("user_id", u.ID).Error("sign tokens failed")
		return TokenPair{}, err
	}

	if s.Redis != nil {
		key := helpers.KeySession(u.ID)
		pipe := s.Redis.Pipeline()
		pipe.HSet(ctx, key, map[string]any{
			"user_id":    u.ID,
			"email":      u.Email,
			"role":       string(u.Role),
			"sid":        sid,
			"created_at": nowRFC3339(s.Now()),
		})
		pipe.Expire(ctx, key, sessionTTL)
		if _, rErr := pipe.Exec(ctx); rErr != nil {
			s.Logger.WithError(rErr).WithField("key", key).Warn("redis pipeline failed")
		}
	}
	return pair, nil
}

func (s *Service) signPair(u *entity.User, sid string) (TokenPair, error) {
	access, aexp, err := s.JWT.GenerateAccessToken(u.ID, sid, string(u.Role))
	if err != nil {
		return TokenPair{}, err
	}
	refresh, rexp, err := s.JWT.GenerateRefreshToken(u.ID, sid, string(u.Role))
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, AccessTokenExpiry: aexp, RefreshToken: refresh, RefreshTokenExpiry: rexp}, nil
}

func (s *Service) Login(ctx context.Context, email, password string) (*entity.User, TokenPair, error) {
	u, err := s.Authenticate(ctx, email, password)
	if err != nil {
		return nil, TokenPair{}, err
	}
	pair, err := s.IssueTokens(ctx, u)
	if err != nil {
		return nil, TokenPair{}, err
	}
	s.Logger.WithField("user_id", u.ID).Info("login")
	return u, pair, nil
}

// Refresh rotates the session id and both tokens.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	claims, err := s.JWT.ParseRefreshToken(refreshToken)
	if err != nil {
		return TokenPair{}, ErrInvalidCredentials
	}
	u, err := s.Repo.GetByID(ctx, claims.UserID)
	if err != nil {
		return TokenPair{}, lookupErr(err, ErrInvalidCredentials)
	}
	key := helpers.KeySession(u.ID)
	if s.Redis != nil {
		data, rErr := s.Redis.HGetAll(ctx, key).Result()
		if rErr != nil || len(data) == 0 || data["sid"] != claims.SessionID {
			return TokenPair{}, ErrInvalidCredentials
		}
	}

	sid := uuid.NewString()
	pair, err := s.signPair(u, sid)
	if err != nil {
		return TokenPair{}, err
	}
	if s.Redis != nil {
		pipe := s.Redis.Pipeline()
		pipe.HSet(ctx, key, map[string]any{
			"sid":        sid,
			"role":       string(u.Role),
			"updated_at": nowRFC3339(s.Now()),
		})
		pipe.Expire(ctx, key, sessionTTL)
		_, _ = pipe.Exec(ctx)
	}
	return pair, nil
}

// Logout drops the user's session so outstanding tokens stop working.
func (s *Service) Logout(ctx context.Context, userID string) error {
	return s.revokeSessions(ctx, userID)
}

func (s *Service) revokeSessions(ctx context.Context, userID string) error {
	if s.Redis == nil || userID == "" {
		return nil
	}
	return helpers.RedisDel(ctx, s.Redis, helpers.KeySession(userID))
}

func (s *Service) GetProfile(ctx context.Context, userID string) (*entity.User, error) {
	u, err := s.Repo.GetByID(ctx, userID)
	if err != nil {
		return nil, lookupErr(err, ErrUserNotFound)
	}
	return u, nil
}

type UpdateProfileInput struct {
	AvatarURL string
}

func (s *Service) UpdateProfile(ctx context.Context, userID string, in UpdateProfileInput) (*entity.User, error) {
	u, err := s.Repo.GetByID(ctx, userID)
	if err != nil {
		return nil, lookupErr(err, ErrUserNotFound)
	}
	if in.AvatarURL != "" {
		u.AvatarURL = in.AvatarURL
		u.HasCompleteProfile = true
	}
	if err := s.Repo.Update(ctx, u); err != nil {
		return nil, err
	}
	_ = s.indexUser(ctx, u)
	return u, nil
}

// UploadPhoto stores a profile photo and marks the profile complete.
func (s *Service) UploadPhoto(ctx context.Context, userID string, r io.Reader, filename, contentType string) (*entity.User, error) {
	if s.Photos == nil {
		return nil, ErrStorageDisabled
	}
	u, err := s.Repo.GetByID(ctx, userID)
	if err != nil {
		return nil, lookupErr(err, ErrUserNotFound)
	}
	ext := strings.ToLower(filepath.Ext(filename))
	objectPath := filepath.ToSlash(filepath.Join("avatars", userID, uuid.NewString()+ext))
	url, err := s.Photos.Upload(ctx, objectPath, contentType, r)
	if err != nil {
		return nil, fmt.Errorf("upload photo: %w", err)
	}
	u.AvatarURL = url
	u.HasCompleteProfile = true
	if err := s.Repo.Update(ctx, u); err != nil {
		return nil, err
	}
	_ = s.indexUser(ctx, u)
	return u, nil
}

// ChangePassword verifies the current password before storing the new one.
func (s *Service) ChangePassword(ctx context.Context, userID, current, next string, meta RequestMeta) error {
	u, err := s.Repo.GetCredentialsByID(ctx, userID)
	if err != nil {
		return lookupErr(err, ErrUserNotFound)
	}
	if !u.ComparePassword(current) {
		return ErrInvalidCredentials
	}
	u.SetPassword(next)
	if err := s.Repo.Update(ctx, u); err != nil {
		return err
	}
	s.notifyPasswordChanged(ctx, u, meta)
	return nil
}

func (s *Service) notifyPasswordChanged(ctx context.Context, u *entity.User, meta RequestMeta) {
	opts := append([]mailtpl.Option{mailtpl.WithTime(s.Now())}, meta.options()...)
	s.enqueue(ctx, mailer.EmailJob{
		To:       u.Email,
		Template: mailtpl.PasswordChanged,
		Data:     mailtpl.NewPasswordChangedData(s.Cfg, u.Email, opts...),
	})
}

func (s *Service) enqueue(ctx context.Context, job mailer.EmailJob) {
	if s.Mail == nil || !s.Cfg.MailSendEnabled {
		return
	}
	job.Stamp(s.Now())
	if err := s.Mail.PublishJSON(ctx, job); err != nil {
		s.Logger.WithError(err).WithField("template", job.Template).Warn("failed to publish email job")
	}
}
