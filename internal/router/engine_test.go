package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/oksasatya/go-membership-affiliate/config"
	"github.com/oksasatya/go-membership-affiliate/internal/interface/middleware"
)

func TestNewEngine(t *testing.T) {
	gin.SetMode(gin.TestMode)
	e := NewEngine(&config.Config{CORSOrigins: []string{"http://app.test"}})

	req := httptest.NewRequest(http.MethodOptions, "/api/login", nil)
	req.Header.Set("Origin", "http://app.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	e.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://app.test" {
		t.Errorf("preflight allow origin %q", got)
	}
	if w.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Errorf("credentials not allowed")
	}

	w = httptest.NewRecorder()
	e.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	var body struct {
		Success   bool   `json:"success"`
		RequestID string `json:"request_id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if w.Code != http.StatusNotFound || body.Success {
		t.Errorf("no route: %d %+v", w.Code, body)
	}
	if body.RequestID == "" || body.RequestID != w.Header().Get(middleware.RequestIDHeader) {
		t.Errorf("request id %q vs header %q", body.RequestID, w.Header().Get(middleware.RequestIDHeader))
	}

	w = httptest.NewRecorder()
	e.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Errorf("healthz %d", w.Code)
	}
}
