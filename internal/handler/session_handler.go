package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hitoshi/guildgate/internal/middleware"
	"github.com/hitoshi/guildgate/internal/model"
)

// SessionRevoker はセッションハンドラーが必要とするサービスインターフェース。
type SessionRevoker interface {
	// LogoutAll はユーザーの全アクティブセッションを無効化し、
	// 無効化した件数を返す。
	LogoutAll(ctx context.Context, userID int64) (int64, error)
}

// SessionHandler はセッション管理のHTTPハンドラー。
type SessionHandler struct {
	service SessionRevoker
}

// NewSessionHandler はSessionHandlerを生成する。
func NewSessionHandler(service SessionRevoker) *SessionHandler {
	return &SessionHandler{
		service: service,
	}
}

// RevokeAll は現在のユーザーの全セッションを無効化する。
// 盗難が疑われる場合などに、全デバイスから強制ログアウトさせる。
// DELETE /api/sessions
func (h *SessionHandler) RevokeAll(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
		return
	}

	count, err := h.service.LogoutAll(r.Context(), user.ID)
	if err != nil {
		slog.Error("failed to revoke sessions",
			slog.Int64("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		middleware.WriteErrorResponse(w, http.StatusInternalServerError, model.NewSessionRevokeError())
		return
	}

	slog.Info("all sessions revoked",
		slog.Int64("user_id", user.ID),
		slog.Int64("revoked_count", count),
	)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"revoked_count": count,
	})
}
