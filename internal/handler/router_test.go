package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/guildgate/internal/middleware"
	"github.com/hitoshi/guildgate/internal/model"
)

// --- モック定義 ---

type mockHealthChecker struct {
	pingErr error
}

func (m *mockHealthChecker) PingContext(_ context.Context) error {
	return m.pingErr
}

func newTestRouterDeps(service *mockAuthService) *RouterDeps {
	return &RouterDeps{
		UserResolver:      service,
		CORSAllowedOrigin: "http://localhost:5173",
		RateLimiter: middleware.NewRateLimiter(middleware.RateLimiterConfig{
			AuthRate:        1000,
			AuthBurst:       1000,
			CleanupInterval: time.Minute,
		}),
		CSRFConfig: middleware.CSRFConfig{CookieSecure: false},

		AuthService:    service,
		AuthConfig:     testHandlerConfig(),
		SessionRevoker: &mockSessionRevoker{},
		HealthChecker:  &mockHealthChecker{},
	}
}

// --- テスト ---

func TestRouter_Health_ReturnsOK(t *testing.T) {
	deps := newTestRouterDeps(&mockAuthService{})
	defer deps.RateLimiter.Stop()
	router := NewRouter(deps)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %q, want %q", body["status"], "ok")
	}
}

func TestRouter_Health_DBDown_Returns503(t *testing.T) {
	deps := newTestRouterDeps(&mockAuthService{})
	deps.HealthChecker = &mockHealthChecker{pingErr: errors.New("connection refused")}
	defer deps.RateLimiter.Stop()
	router := NewRouter(deps)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestRouter_AuthLogin_Redirects(t *testing.T) {
	deps := newTestRouterDeps(&mockAuthService{})
	defer deps.RateLimiter.Stop()
	router := NewRouter(deps)

	req := httptest.NewRequest(http.MethodGet, "/auth/discord/login", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusTemporaryRedirect {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusTemporaryRedirect)
	}
}

func TestRouter_AuthMe_NoSession_Returns200Unauthenticated(t *testing.T) {
	deps := newTestRouterDeps(&mockAuthService{})
	defer deps.RateLimiter.Stop()
	router := NewRouter(deps)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse body: %v", err)
	}
	if body["authenticated"] != false {
		t.Errorf("authenticated = %v, want false", body["authenticated"])
	}
}

// /api配下はセッションミドルウェアで保護される
func TestRouter_APISessions_NoSession_Returns401(t *testing.T) {
	deps := newTestRouterDeps(&mockAuthService{})
	defer deps.RateLimiter.Stop()
	router := NewRouter(deps)

	req := httptest.NewRequest(http.MethodDelete, "/api/sessions", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

// 有効なセッション＋CSRFトークン一致でセッション全無効化が通る
func TestRouter_APISessions_AuthenticatedWithCSRF_Succeeds(t *testing.T) {
	service := &mockAuthService{
		currentUserFn: func(ctx context.Context, sessionID string) (*model.User, error) {
			return &model.User{ID: 5, Status: model.ApprovalApproved}, nil
		},
	}
	deps := newTestRouterDeps(service)
	defer deps.RateLimiter.Stop()
	router := NewRouter(deps)

	req := httptest.NewRequest(http.MethodDelete, "/api/sessions", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "valid-token"})
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: "csrf-abc"})
	req.Header.Set("X-CSRF-Token", "csrf-abc")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d (body: %s)", rec.Code, http.StatusOK, rec.Body.String())
	}
}

// セッションが有効でもCSRFトークンがなければ拒否される
func TestRouter_APISessions_MissingCSRF_Returns403(t *testing.T) {
	service := &mockAuthService{
		currentUserFn: func(ctx context.Context, sessionID string) (*model.User, error) {
			return &model.User{ID: 5, Status: model.ApprovalApproved}, nil
		},
	}
	deps := newTestRouterDeps(service)
	defer deps.RateLimiter.Stop()
	router := NewRouter(deps)

	req := httptest.NewRequest(http.MethodDelete, "/api/sessions", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "valid-token"})
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
}

func TestRouter_AuthRateLimit_Returns429WhenExceeded(t *testing.T) {
	deps := newTestRouterDeps(&mockAuthService{})
	deps.RateLimiter.Stop()
	deps.RateLimiter = middleware.NewRateLimiter(middleware.RateLimiterConfig{
		AuthRate:        0.001,
		AuthBurst:       1,
		CleanupInterval: time.Minute,
	})
	defer deps.RateLimiter.Stop()
	router := NewRouter(deps)

	req1 := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req1.RemoteAddr = "192.0.2.1:1111"
	router.ServeHTTP(httptest.NewRecorder(), req1)

	req2 := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req2.RemoteAddr = "192.0.2.1:2222"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req2)

	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusTooManyRequests)
	}
}

func TestRouter_UnknownRoute_Returns404(t *testing.T) {
	deps := newTestRouterDeps(&mockAuthService{})
	defer deps.RateLimiter.Stop()
	router := NewRouter(deps)

	req := httptest.NewRequest(http.MethodGet, "/nonexistent", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestRouter_SecurityHeadersApplied(t *testing.T) {
	deps := newTestRouterDeps(&mockAuthService{})
	defer deps.RateLimiter.Stop()
	router := NewRouter(deps)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}
