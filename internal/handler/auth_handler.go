// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/hitoshi/guildgate/internal/auth"
	"github.com/hitoshi/guildgate/internal/model"
)

const (
	sessionCookieName = "session_id"
	oauthStateCookie  = "oauth_state"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	AuthorizeURL(state string) string
	HandleCallback(ctx context.Context, code, providerError string) (*auth.LoginResult, error)
	Logout(ctx context.Context, sessionID string) error
	CurrentUser(ctx context.Context, sessionID string) (*model.User, error)
}

// LoginMetrics はログイン結果のメトリクス記録インターフェース。
// metrics.Collectorの部分集合として定義する。
type LoginMetrics interface {
	RecordLoginOutcome(outcome string)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	FrontendURL   string // コールバック結果のリダイレクト先
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// AuthHandler はDiscord OAuth認証関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	metrics LoginMetrics
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。metricsはnilを許容する。
func NewAuthHandler(service AuthServiceInterface, metrics LoginMetrics, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service: service,
		metrics: metrics,
		config:  config,
	}
}

// Login はDiscord OAuthフローを開始する。
// GET /auth/discord/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	state, err := generateState()
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	// stateをCookieに保存（CSRF対策）
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10分
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	url := h.service.AuthorizeURL(state)
	http.Redirect(w, r, url, http.StatusTemporaryRedirect)
}

// Callback はDiscord OAuthコールバックを処理する。
// GET /auth/discord/callback?code=xxx&state=yyy（拒否時は?error=...）
//
// このエンドポイントの応答は常にフロントエンドへのリダイレクトであり、
// 結果コードと表示用メッセージをクエリ文字列で伝える。JSONは返さない。
// 内部エラーの詳細はログにのみ残し、リダイレクトには含めない。
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	// 1. stateの検証（CSRF対策）。Discordがerrorを返したリクエストは
	// stateを伴わないことがあるため、拒否フローはそのままサービスに渡す。
	providerError := r.URL.Query().Get("error")
	state := r.URL.Query().Get("state")
	stateCookie, cookieErr := r.Cookie(oauthStateCookie)

	clearStateCookie(w, h.config)

	if providerError == "" {
		if cookieErr != nil || stateCookie.Value == "" || stateCookie.Value != state {
			slog.Warn("oauth state mismatch", slog.String("query_state", state))
			h.redirectWithOutcome(w, r, auth.OutcomeProviderDenied)
			return
		}
	}

	// 2. ログインステートマシンの実行
	code := r.URL.Query().Get("code")
	result, err := h.service.HandleCallback(r.Context(), code, providerError)
	if err != nil {
		slog.Error("oauth callback failed", slog.String("error", err.Error()))
		h.redirectWithOutcome(w, r, auth.OutcomeExchangeFailed)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordLoginOutcome(string(result.Outcome))
	}

	// 3. 成功時のみセッションCookieを設定（HTTP Only）
	if result.Outcome == auth.OutcomeSuccess {
		http.SetCookie(w, &http.Cookie{
			Name:     sessionCookieName,
			Value:    result.Session.ID,
			Path:     "/",
			Domain:   h.config.CookieDomain,
			MaxAge:   h.config.SessionMaxAge,
			HttpOnly: true,
			Secure:   h.config.CookieSecure,
			SameSite: http.SameSiteLaxMode,
		})
	}

	h.redirectWithOutcome(w, r, result.Outcome)
}

// Logout はセッションを無効化する。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	// セッションCookieの取得
	cookie, err := r.Cookie(sessionCookieName)
	if err == nil && cookie.Value != "" {
		// セッションを無効化（行は監査証跡として残る）
		if logoutErr := h.service.Logout(r.Context(), cookie.Value); logoutErr != nil {
			slog.Error("failed to logout", slog.String("error", logoutErr.Error()))
			// ログアウト失敗してもCookieはクリアする
		}
	}

	// セッションCookieをクリア
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.config.FrontendURL, http.StatusTemporaryRedirect)
}

// Me は現在のログインユーザー情報を返す。
// GET /auth/me
//
// 未認証の場合も200で {"authenticated": false} を返す。
// 期限切れ・無効化・偽造の区別は応答に含めない。
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"authenticated": false,
			"message":       "No session found.",
		})
		return
	}

	user, err := h.service.CurrentUser(r.Context(), cookie.Value)
	if err != nil {
		if !errors.Is(err, auth.ErrUnauthenticated) {
			slog.Error("failed to get current user", slog.String("error", err.Error()))
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"authenticated": false,
			"message":       "Session expired or invalid.",
		})
		return
	}

	// 公開フィールドのみを返す
	json.NewEncoder(w).Encode(map[string]interface{}{
		"authenticated": true,
		"user": map[string]interface{}{
			"id":               user.ID,
			"discord_username": user.Username,
			"server_nickname":  user.ServerNickname,
			"discord_avatar":   user.AvatarURL,
			"status":           string(user.Status),
		},
	})
}

// outcomeRedirectParams はログイン結果をフロントエンド向けの
// クエリパラメータ（結果コードと表示用メッセージ）に変換する。
func outcomeRedirectParams(outcome auth.Outcome) url.Values {
	params := url.Values{}
	switch outcome {
	case auth.OutcomeSuccess:
		params.Set("auth", "success")
		params.Set("message", "Login successful")
	case auth.OutcomePendingApproval:
		params.Set("auth", "pending")
		params.Set("message", "Your account is pending admin approval")
	case auth.OutcomeNotInGuild:
		params.Set("error", "not_in_guild")
		params.Set("message", "You must be a member of the server to sign in")
	case auth.OutcomeAccessDenied:
		params.Set("error", "access_denied")
		params.Set("message", "Your account is not allowed to sign in")
	case auth.OutcomeProviderDenied:
		params.Set("error", "discord_auth_failed")
		params.Set("message", "Access Denied. Error connecting to Discord")
	default:
		// ExchangeFailed / ProfileFetchFailed / 内部エラー:
		// 詳細はログのみに残し、ユーザーには汎用メッセージを返す
		params.Set("error", "discord_auth_failed")
		params.Set("message", "An unexpected error occurred")
	}
	return params
}

// redirectWithOutcome はフロントエンドへ結果付きでリダイレクトする。
func (h *AuthHandler) redirectWithOutcome(w http.ResponseWriter, r *http.Request, outcome auth.Outcome) {
	redirectURL := h.config.FrontendURL + "/?" + outcomeRedirectParams(outcome).Encode()
	http.Redirect(w, r, redirectURL, http.StatusTemporaryRedirect)
}

// clearStateCookie はOAuth stateクッキーを削除する。
func clearStateCookie(w http.ResponseWriter, config AuthHandlerConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// generateState はCSRF対策用のランダムなstate値を生成する。
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
