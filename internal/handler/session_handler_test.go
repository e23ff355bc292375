package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/guildgate/internal/middleware"
	"github.com/hitoshi/guildgate/internal/model"
)

// --- モック定義 ---

type mockSessionRevoker struct {
	logoutAllFn func(ctx context.Context, userID int64) (int64, error)
}

func (m *mockSessionRevoker) LogoutAll(ctx context.Context, userID int64) (int64, error) {
	if m.logoutAllFn != nil {
		return m.logoutAllFn(ctx, userID)
	}
	return 0, nil
}

var _ SessionRevoker = (*mockSessionRevoker)(nil)

// --- テスト ---

func TestRevokeAll_InvalidatesAllSessions(t *testing.T) {
	service := &mockSessionRevoker{
		logoutAllFn: func(ctx context.Context, userID int64) (int64, error) {
			if userID != 5 {
				t.Errorf("userID = %d, want 5", userID)
			}
			return 3, nil
		},
	}
	h := NewSessionHandler(service)

	req := httptest.NewRequest(http.MethodDelete, "/api/sessions", nil)
	req = req.WithContext(middleware.ContextWithUser(req.Context(), &model.User{ID: 5, Status: model.ApprovalApproved}))
	rec := httptest.NewRecorder()

	h.RevokeAll(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse body: %v", err)
	}
	if body["revoked_count"] != float64(3) {
		t.Errorf("revoked_count = %v, want 3", body["revoked_count"])
	}
}

func TestRevokeAll_NoUserInContext_Returns401(t *testing.T) {
	h := NewSessionHandler(&mockSessionRevoker{})

	req := httptest.NewRequest(http.MethodDelete, "/api/sessions", nil)
	rec := httptest.NewRecorder()

	h.RevokeAll(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestRevokeAll_ServiceError_Returns500(t *testing.T) {
	service := &mockSessionRevoker{
		logoutAllFn: func(ctx context.Context, userID int64) (int64, error) {
			return 0, errors.New("connection refused")
		},
	}
	h := NewSessionHandler(service)

	req := httptest.NewRequest(http.MethodDelete, "/api/sessions", nil)
	req = req.WithContext(middleware.ContextWithUser(req.Context(), &model.User{ID: 5}))
	rec := httptest.NewRecorder()

	h.RevokeAll(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
}
