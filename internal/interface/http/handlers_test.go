package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/go-cmp/cmp"

	userapp "github.com/oksasatya/go-membership-affiliate/internal/application"
	"github.com/oksasatya/go-membership-affiliate/internal/domain/entity"
	repo "github.com/oksasatya/go-membership-affiliate/internal/domain/repository"
	"github.com/oksasatya/go-membership-affiliate/internal/interface/middleware"
	"github.com/oksasatya/go-membership-affiliate/pkg/helpers"
	"github.com/oksasatya/go-membership-affiliate/pkg/validation"
)

func init() {
	gin.SetMode(gin.TestMode)
	validation.Init()
}

type stubRepo struct {
	mu    sync.Mutex
	users map[string]entity.User
}

func (r *stubRepo) Create(_ context.Context, u *entity.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := u.Validate(); err != nil {
		return err
	}
	if err := u.PrepareForPersist(); err != nil {
		return err
	}
	for _, e := range r.users {
		if e.Email == u.Email {
			return entity.ErrDuplicateEmail
		}
	}
	u.ID = fmt.Sprintf("u%d", len(r.users)+1)
	r.users[u.ID] = *u
	return nil
}

func (r *stubRepo) Update(_ context.Context, u *entity.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	old, ok := r.users[u.ID]
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
		next.PasswordHash = old.PasswordHash
	}
	r.users[u.ID] = next
	return nil
}

func (r *stubRepo) find(match func(entity.User) bool) (*entity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if match(u) {
			out := u
			return &out, nil
		}
	}
	return nil, repo.ErrNotFound
}

func (r *stubRepo) GetByID(_ context.Context, id string) (*entity.User, error) {
	return r.find(func(u entity.User) bool { return u.ID == id })
}

func (r *stubRepo) GetByEmail(_ context.Context, email string) (*entity.User, error) {
	email = entity.NormalizeEmail(email)
	return r.find(func(u entity.User) bool { return u.Email == email })
}

func (r *stubRepo) GetByResetToken(_ context.Context, digest string) (*entity.User, error) {
	return r.find(func(u entity.User) bool { return u.ResetPasswordToken != nil && *u.ResetPasswordToken == digest })
}

func (r *stubRepo) GetCredentialsByEmail(ctx context.Context, email string) (*entity.User, error) {
	return r.GetByEmail(ctx, email)
}

func (r *stubRepo) GetCredentialsByID(ctx context.Context, id string) (*entity.User, error) {
	return r.GetByID(ctx, id)
}

func (r *stubRepo) SetVerified(_ context.Context, id string) error { return nil }

func (r *stubRepo) SetApproved(_ context.Context, id string, approved bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return repo.ErrNotFound
	}
	u.IsApproved = approved
	r.users[id] = u
	return nil
}

func (r *stubRepo) ClearExpiredResetTokens(context.Context, time.Time) (int64, error) { return 0, nil }

func (r *stubRepo) ConsumeResetToken(ctx context.Context, u *entity.User, digest string) error {
	cur, err := r.GetByID(ctx, u.ID)
	if err != nil || cur.ResetPasswordToken == nil || *cur.ResetPasswordToken != digest {
		return repo.ErrNotFound
	}
	u.ClearResetToken()
	return r.Update(ctx, u)
}

type testServer struct {
	engine *gin.Engine
	svc    *userapp.Service
	repo   *stubRepo
	jwt    *helpers.JWTManager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	rp := &stubRepo{users: map[string]entity.User{}}
	jwt := helpers.NewJWTManager("access", "refresh", time.Minute, time.Hour)
	logger := helpers.NewDiscardLogger()
	svc := userapp.NewService(userapp.Deps{Repo: rp, JWT: jwt, Logger: logger})

	users := NewUserHandler(svc, logger, "", false)
	auth := NewAuthHandler(svc, logger)
	admin := NewAdminHandler(svc, logger)

	e := gin.New()
	api := e.Group("/api")
	api.POST("/register", users.Register)
	api.POST("/login", users.Login)
	api.POST("/auth/reset/init", auth.ResetInit)
	api.POST("/auth/reset/confirm", auth.ResetConfirm)

	protected := api.Group("/")
	protected.Use(middleware.Auth(nil, jwt))
	protected.GET("/profile", users.GetProfile)
	protected.PUT("/password", users.ChangePassword)
	protected.POST("/admin/users/:id/approve", middleware.RequireRole(entity.RoleAdmin, entity.RoleEmployee), admin.Approve)
	protected.GET("/admin/users/export", middleware.RequireRole(entity.RoleAdmin, entity.RoleEmployee), admin.Export)

	return &testServer{engine: e, svc: svc, repo: rp, jwt: jwt}
}

type envelope struct {
	Status  int               `json:"status"`
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Data    map[string]any    `json:"data"`
	Error   map[string]string `json:"error"`
}

func (s *testServer) do(t *testing.T, method, path string, body any, cookies ...*http.Cookie) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	var env envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w, env
}

func (s *testServer) accessCookie(t *testing.T, u *entity.User) *http.Cookie {
	t.Helper()
	tok, _, err := s.jwt.GenerateAccessToken(u.ID, "sid", string(u.Role))
	if err != nil {
		t.Fatal(err)
	}
	return &http.Cookie{Name: helpers.AccessCookie, Value: tok}
}

func (s *testServer) seed(t *testing.T, email string, role entity.Role) *entity.User {
	t.Helper()
	u := entity.NewUser(email, "secret123", role)
	u.ReferralCode = "REF" + fmt.Sprint(len(s.repo.users))
	if err := s.repo.Create(context.Background(), u); err != nil {
		t.Fatal(err)
	}
	return u
}

func TestRegisterEndpoint(t *testing.T) {
	s := newTestServer(t)

	w, env := s.do(t, http.MethodPost, "/api/register", map[string]string{
		"email": "new@example.com", "password": "secret123", "role": "affiliate",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	if env.Data["role"] != "affiliate" || env.Data["email"] != "new@example.com" {
		t.Errorf("data: %v", env.Data)
	}
	if _, leaked := env.Data["password_hash"]; leaked {
		t.Errorf("password hash leaked")
	}

	w, env = s.do(t, http.MethodPost, "/api/register", map[string]string{
		"email": "NEW@example.com", "password": "secret123",
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate: status %d", w.Code)
	}
	if diff := cmp.Diff(map[string]string{"email": "already registered"}, env.Error); diff != "" {
		t.Errorf("duplicate error diff: \n%v", diff)
	}
}

func TestRegisterEndpointValidation(t *testing.T) {
	s := newTestServer(t)
	tests := []struct {
		name  string
		body  map[string]string
		field string
	}{
		{"short password", map[string]string{"email": "a@example.com", "password": "123"}, "password"},
		{"bad email", map[string]string{"email": "nope", "password": "secret123"}, "email"},
		{"staff role", map[string]string{"email": "a@example.com", "password": "secret123", "role": "admin"}, "role"},
		{"multibyte password over 72 bytes", map[string]string{"email": "a@example.com", "password": strings.Repeat("é", 40)}, "password"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, env := s.do(t, http.MethodPost, "/api/register", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status %d", w.Code)
			}
			if env.Error[tt.field] == "" {
				t.Errorf("missing %s error: %v", tt.field, env.Error)
			}
		})
	}
	if len(s.repo.users) != 0 {
		t.Errorf("nothing should be stored")
	}
}

func TestLoginEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.seed(t, "login@example.com", entity.RoleMember)

	w, _ := s.do(t, http.MethodPost, "/api/login", map[string]string{"email": "login@example.com", "password": "secret123"})
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	names := map[string]bool{}
	for _, c := range w.Result().Cookies() {
		names[c.Name] = c.HttpOnly
	}
	if !names[helpers.AccessCookie] || !names[helpers.RefreshCookie] {
		t.Errorf("expected http-only token cookies, got %v", names)
	}

	w, _ = s.do(t, http.MethodPost, "/api/login", map[string]string{"email": "login@example.com", "password": "wrongpass"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong password: status %d", w.Code)
	}
}

func TestProfileRequiresAuth(t *testing.T) {
	s := newTestServer(t)
	u := s.seed(t, "me@example.com", entity.RoleMember)

	if w, _ := s.do(t, http.MethodGet, "/api/profile", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("anonymous: status %d", w.Code)
	}
	w, env := s.do(t, http.MethodGet, "/api/profile", nil, s.accessCookie(t, u))
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	if env.Data["id"] != u.ID {
		t.Errorf("profile id %v", env.Data["id"])
	}
}

func TestResetEndpoints(t *testing.T) {
	s := newTestServer(t)
	u := s.seed(t, "reset@example.com", entity.RoleMember)

	for _, email := range []string{"reset@example.com", "ghost@example.com"} {
		w, env := s.do(t, http.MethodPost, "/api/auth/reset/init", map[string]string{"email": email})
		if w.Code != http.StatusOK || !env.Success {
			t.Errorf("%s: status %d", email, w.Code)
		}
	}

	w, env := s.do(t, http.MethodPost, "/api/auth/reset/confirm", map[string]string{"token": "deadbeef", "new_password": "newpass1"})
	if w.Code != http.StatusBadRequest || env.Error["token"] == "" {
		t.Errorf("malformed token: %d %v", w.Code, env.Error)
	}
	w, env = s.do(t, http.MethodPost, "/api/auth/reset/confirm", map[string]string{"token": strings.Repeat("0", 40), "new_password": "newpass1"})
	if w.Code != http.StatusBadRequest || env.Message != "invalid or expired token" {
		t.Errorf("unknown token: %d %q", w.Code, env.Message)
	}

	raw, err := s.svc.RequestPasswordReset(context.Background(), u.Email, userapp.RequestMeta{})
	if err != nil {
		t.Fatal(err)
	}
	w, _ = s.do(t, http.MethodPost, "/api/auth/reset/confirm", map[string]string{"token": raw, "new_password": "newpass1"})
	if w.Code != http.StatusOK {
		t.Fatalf("confirm: status %d: %s", w.Code, w.Body.String())
	}
	w, _ = s.do(t, http.MethodPost, "/api/login", map[string]string{"email": u.Email, "password": "newpass1"})
	if w.Code != http.StatusOK {
		t.Errorf("login with new password: status %d", w.Code)
	}
}

func TestChangePasswordEndpoint(t *testing.T) {
	s := newTestServer(t)
	u := s.seed(t, "pw@example.com", entity.RoleMember)
	cookie := s.accessCookie(t, u)

	w, _ := s.do(t, http.MethodPut, "/api/password", map[string]string{"current_password": "nope", "new_password": "newpass1"}, cookie)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong current: status %d", w.Code)
	}
	w, env := s.do(t, http.MethodPut, "/api/password", map[string]string{"current_password": "secret123", "new_password": strings.Repeat("é", 40)}, cookie)
	if w.Code != http.StatusBadRequest || env.Error["new_password"] != "must be at most 72 bytes" {
		t.Errorf("overlong new password: %d %v", w.Code, env.Error)
	}
	w, _ = s.do(t, http.MethodPut, "/api/password", map[string]string{"current_password": "secret123", "new_password": "newpass1"}, cookie)
	if w.Code != http.StatusOK {
		t.Errorf("change: status %d", w.Code)
	}
}

func TestAdminApproveRequiresStaff(t *testing.T) {
	s := newTestServer(t)
	member := s.seed(t, "m@example.com", entity.RoleMember)
	admin := s.seed(t, "a@example.com", entity.RoleAdmin)
	aff := s.seed(t, "aff@example.com", entity.RoleAffiliate)
	path := "/api/admin/users/" + aff.ID + "/approve"

	if w, _ := s.do(t, http.MethodPost, path, nil, s.accessCookie(t, member)); w.Code != http.StatusForbidden {
		t.Errorf("member: status %d", w.Code)
	}
	w, env := s.do(t, http.MethodPost, path, nil, s.accessCookie(t, admin))
	if w.Code != http.StatusOK {
		t.Fatalf("admin: status %d", w.Code)
	}
	if env.Data["is_approved"] != true {
		t.Errorf("not approved: %v", env.Data)
	}
	if w, _ := s.do(t, http.MethodPost, "/api/admin/users/missing/approve", nil, s.accessCookie(t, admin)); w.Code != http.StatusNotFound {
		t.Errorf("missing: status %d", w.Code)
	}
}

func TestAdminExportWithoutSearch(t *testing.T) {
	s := newTestServer(t)
	staff := s.seed(t, "e@example.com", entity.RoleEmployee)

	w, _ := s.do(t, http.MethodGet, "/api/admin/users/export", nil, s.accessCookie(t, staff))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status %d", w.Code)
	}
}
