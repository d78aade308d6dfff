package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/go-cmp/cmp"

	"github.com/oksasatya/go-membership-affiliate/internal/domain/entity"
	"github.com/oksasatya/go-membership-affiliate/pkg/helpers"
	"github.com/oksasatya/go-membership-affiliate/pkg/response"
)

func init() { gin.SetMode(gin.TestMode) }

func serve(e *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.ServeHTTP(w, req)
	return w
}

func TestAuthAndRequireRole(t *testing.T) {
	jwt := helpers.NewJWTManager("a", "r", time.Minute, time.Hour)
	e := gin.New()
	e.GET("/staff", Auth(nil, jwt), RequireRole(entity.RoleAdmin, entity.RoleEmployee), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(CtxUserID))
	})

	tests := []struct {
		name string
		role string
		tok  string
		want int
	}{
		{name: "no cookie", want: http.StatusUnauthorized},
		{name: "garbage token", tok: "garbage", want: http.StatusUnauthorized},
		{name: "member", role: "member", want: http.StatusForbidden},
		{name: "employee", role: "employee", want: http.StatusOK},
		{name: "admin", role: "admin", want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/staff", nil)
			tok := tt.tok
			if tt.role != "" {
				var err error
				if tok, _, err = jwt.GenerateAccessToken("u1", "s1", tt.role); err != nil {
					t.Fatal(err)
				}
			}
			if tok != "" {
				req.AddCookie(&http.Cookie{Name: helpers.AccessCookie, Value: tok})
			}
			w := serve(e, req)
			if w.Code != tt.want {
				t.Fatalf("status: got %d, want %d (%s)", w.Code, tt.want, w.Body.String())
			}
			if tt.want == http.StatusOK && w.Body.String() != "u1" {
				t.Errorf("body %q", w.Body.String())
			}
		})
	}
}

func TestAuthRejectsRefreshToken(t *testing.T) {
	jwt := helpers.NewJWTManager("a", "r", time.Minute, time.Hour)
	e := gin.New()
	e.GET("/me", Auth(nil, jwt), func(c *gin.Context) { c.Status(http.StatusOK) })

	tok, _, _ := jwt.GenerateRefreshToken("u1", "s1", "member")
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(&http.Cookie{Name: helpers.AccessCookie, Value: tok})
	if w := serve(e, req); w.Code != http.StatusUnauthorized {
		t.Errorf("got %d", w.Code)
	}
}

func TestRealIP(t *testing.T) {
	e := gin.New()
	e.Use(RealIP())
	e.GET("/", func(c *gin.Context) { c.String(http.StatusOK, ClientIP(c)) })

	tests := map[string]struct {
		headers map[string]string
		want    string
	}{
		"cloudflare": {map[string]string{"CF-Connecting-IP": "203.0.113.7", "X-Forwarded-For": "198.51.100.1"}, "203.0.113.7"},
		"xff":        {map[string]string{"X-Forwarded-For": "198.51.100.1, 10.0.0.1"}, "198.51.100.1"},
		"bad cf":     {map[string]string{"CF-Connecting-IP": "nope", "X-Forwarded-For": "198.51.100.2"}, "198.51.100.2"},
		"x-real-ip":  {map[string]string{"X-Real-IP": "192.0.2.9", "X-Forwarded-For": "198.51.100.3"}, "192.0.2.9"},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := serve(e, req).Body.String(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRequestIDAndAllowPrivate(t *testing.T) {
	e := gin.New()
	e.Use(RequestIDMiddleware(), RealIP())
	allow := AllowPrivateIP()
	e.GET("/", func(c *gin.Context) {
		if c.GetString(response.RequestIDKey) == "" {
			c.Status(http.StatusInternalServerError)
			return
		}
		if allow(c) {
			c.String(http.StatusOK, "private")
			return
		}
		c.String(http.StatusOK, "public")
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "10.1.2.3")
	if got := serve(e, req).Body.String(); got != "private" {
		t.Errorf("got %q", got)
	}
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "8.8.8.8")
	if got := serve(e, req).Body.String(); got != "public" {
		t.Errorf("got %q", got)
	}
}

func TestRateLimitWithoutRedisPassesThrough(t *testing.T) {
	e := gin.New()
	e.GET("/", RateLimit(nil, 1, time.Minute, KeyByIP(), nil), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	for i := 0; i < 3; i++ {
		if w := serve(e, httptest.NewRequest(http.MethodGet, "/", nil)); w.Code != http.StatusNoContent {
			t.Fatalf("request %d: got %d", i, w.Code)
		}
	}
}

func TestRateLimitKeys(t *testing.T) {
	e := gin.New()
	e.Use(RealIP())
	e.GET("/auth/reset/init", func(c *gin.Context) {
		c.Set(CtxUserID, c.Query("uid"))
		c.JSON(http.StatusOK, gin.H{
			"ip":   KeyByIP()(c),
			"path": KeyByIPAndPath()(c),
			"user": KeyByUserID()(c),
		})
	})

	tests := []struct {
		name string
		uid  string
		want map[string]string
	}{
		{"anonymous", "", map[string]string{
			"ip":   "rl:ip:203.0.113.5",
			"path": "rl:path:/auth/reset/init:ip:203.0.113.5",
			"user": "rl:user:anon:ip:203.0.113.5",
		}},
		{"signed in", "u42", map[string]string{
			"ip":   "rl:ip:203.0.113.5",
			"path": "rl:path:/auth/reset/init:ip:203.0.113.5",
			"user": "rl:user:u42",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/auth/reset/init?uid="+tt.uid, nil)
			req.Header.Set("X-Forwarded-For", "203.0.113.5")
			var got map[string]string
			if err := json.Unmarshal(serve(e, req).Body.Bytes(), &got); err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("keys diff: \n%v", diff)
			}
		})
	}
}

func TestToInt(t *testing.T) {
	for _, v := range []any{int64(7), 7, "7"} {
		if got := toInt(v); got != 7 {
			t.Errorf("toInt(%#v) = %d", v, got)
		}
	}
	if got := toInt(nil); got != 0 {
		t.Errorf("toInt(nil) = %d", got)
	}
}
