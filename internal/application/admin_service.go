package application

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/oksasatya/go-membership-affiliate/internal/domain/entity"
	repo "github.com/oksasatya/go-membership-affiliate/internal/domain/repository"
	"github.com/oksasatya/go-membership-affiliate/pkg/mailer"
	mailtpl "github.com/oksasatya/go-membership-affiliate/pkg/mailer/templates"
)

var ErrSearchUnavailable = errors.New("search unavailable")

// Approve flags an affiliate (or any account) as approved and tells the user.
func (s *Service) Approve(ctx context.Context, userID string) (*entity.User, error) {
	if err := s.Repo.SetApproved(ctx, userID, true); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	u, err := s.Repo.GetByID(ctx, userID)
	if err != nil {
		return nil, lookupErr(err, ErrUserNotFound)
	}
	s.enqueue(ctx, mailer.EmailJob{
		To:       u.Email,
		Template: mailtpl.AccountApproved,
		Data:     mailtpl.NewAccountApprovedData(s.Cfg, u.Email, string(u.Role)),
	})
	_ = s.indexUser(ctx, u)
	s.Logger.WithField("user_id", u.ID).Info("user approved")
	return u, nil
}

// Notify queues a free-form email to a user.
func (s *Service) Notify(ctx context.Context, userID, subject, text string) error {
	u, err := s.Repo.GetByID(ctx, userID)
	if err != nil {
		return lookupErr(err, ErrUserNotFound)
	}
	s.enqueue(ctx, mailer.EmailJob{To: u.Email, Subject: subject, Text: text})
	return nil
}

// UserDoc is the search document stored per user.
type UserDoc struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Role         string    `json:"role"`
	ReferralCode string    `json:"referral_code"`
	IsApproved   bool      `json:"is_approved"`
	IsVerified   bool      `json:"is_verified"`
	CreatedAt    time.Time `json:"created_at"`
}

func toUserDoc(u *entity.User) UserDoc {
	return UserDoc{
		ID:           u.ID,
		Email:        u.Email,
		Role:         string(u.Role),
		ReferralCode: u.ReferralCode,
		IsApproved:   u.IsApproved,
		IsVerified:   u.IsVerified,
		CreatedAt:    u.CreatedAt,
	}
}

func (s *Service) indexUser(ctx context.Context, u *entity.User) error {
	if s.ES == nil || s.ESUsersIndex == "" || u == nil || u.ID == "" {
		return nil
	}
	body, err := json.Marshal(toUserDoc(u))
	if err != nil {
		return err
	}
	c, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	res, err := esapi.IndexRequest{
		Index:      s.ESUsersIndex,
		DocumentID: u.ID,
		Body:       bytes.NewReader(body),
	}.Do(c, s.ES)
	if err != nil {
		s.Logger.WithError(err).WithField("user_id", u.ID).Warn("index user failed")
		return err
	}
	defer func() { _ = res.Body.Close() }()
	if res.IsError() {
		s.Logger.WithField("status", res.Status()).WithField("user_id", u.ID).Warn("index user rejected")
		return fmt.Errorf("index user: %s", res.Status())
	}
	return nil
}

// SearchUsers runs a free-text query over the users index.
func (s *Service) SearchUsers(ctx context.Context, q string, size int) ([]UserDoc, error) {
	if size <= 0 || size > 100 {
		size = 20
	}
	return s.searchUsers(ctx, q, size)
}

func (s *Service) searchUsers(ctx context.Context, q string, size int) ([]UserDoc, error) {
	if s.ES == nil {
		return nil, ErrSearchUnavailable
	}
	query := map[string]any{"match_all": map[string]any{}}
	if q = strings.TrimSpace(q); q != "" {
		query = map[string]any{
			"multi_match": map[string]any{
				"query":  q,
				"fields": []string{"email", "referral_code", "role"},
			},
		}
	}
	body, err := json.Marshal(map[string]any{"query": query, "size": size})
	if err != nil {
		return nil, err
	}

	res, err := s.ES.Search(
		s.ES.Search.WithContext(ctx),
		s.ES.Search.WithIndex(s.ESUsersIndex),
		s.ES.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = res.Body.Close() }()
	if res.IsError() {
		return nil, fmt.Errorf("search users: %s", res.Status())
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				Source UserDoc `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, err
	}
	docs := make([]UserDoc, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		docs = append(docs, h.Source)
	}
	return docs, nil
}
