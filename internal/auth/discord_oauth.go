package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultDiscordAuthURL  = "https://discord.com/oauth2/authorize"
	defaultDiscordTokenURL = "https://discord.com/api/oauth2/token"
	defaultDiscordUserURL  = "https://discord.com/api/users/@me"

	discordCDNBaseURL = "https://cdn.discordapp.com"
)

// UserInfo はDiscordから取得したユーザー情報を表す。
type UserInfo struct {
	DiscordID string
	Username  string
	Email     string
	AvatarURL string
}

// Provider はOAuth認証プロバイダーのインターフェース。
// トークン交換とプロフィール取得はそれぞれ1往復の外部呼び出しで、
// ローカル状態を持たない。
type Provider interface {
	// AuthorizeURL はOAuth認証URLを生成する。
	AuthorizeURL(state string) string
	// ExchangeCode は認可コードをアクセストークンに交換する。
	ExchangeCode(ctx context.Context, code string) (string, error)
	// FetchProfile はアクセストークンでユーザー情報を取得する。
	FetchProfile(ctx context.Context, accessToken string) (*UserInfo, error)
}

// ProviderMetrics は外部プロバイダー呼び出しのメトリクス記録インターフェース。
// metrics.Collectorの部分集合として定義する。
type ProviderMetrics interface {
	RecordProviderStatus(endpoint string, statusCode int)
	RecordProviderLatency(duration time.Duration)
}

// DiscordOAuthConfig はDiscord OAuthプロバイダーの設定。
type DiscordOAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// テスト用にオーバーライド可能なURL
	AuthURL  string
	TokenURL string
	UserURL  string
}

// DiscordOAuthProvider はDiscord OAuth 2.0による認証を提供する。
type DiscordOAuthProvider struct {
	config  DiscordOAuthConfig
	client  *http.Client
	metrics ProviderMetrics
}

// NewDiscordOAuthProvider はDiscordOAuthProviderを生成する。
// metricsはnilを許容する（記録なし）。
func NewDiscordOAuthProvider(config DiscordOAuthConfig, metrics ProviderMetrics) *DiscordOAuthProvider {
	if config.AuthURL == "" {
		config.AuthURL = defaultDiscordAuthURL
	}
	if config.TokenURL == "" {
		config.TokenURL = defaultDiscordTokenURL
	}
	if config.UserURL == "" {
		config.UserURL = defaultDiscordUserURL
	}
	return &DiscordOAuthProvider{
		config:  config,
		client:  &http.Client{Timeout: 10 * time.Second},
		metrics: metrics,
	}
}

// AuthorizeURL はDiscord OAuthの認証URLを生成する。
// スコープにはidentify, email, guilds.members.readを含む。
func (p *DiscordOAuthProvider) AuthorizeURL(state string) string {
	params := url.Values{
		"client_id":     {p.config.ClientID},
		"redirect_uri":  {p.config.RedirectURL},
		"response_type": {"code"},
		"scope":         {"identify email guilds.members.read"},
		"state":         {state},
		"prompt":        {"consent"},
	}
	return p.config.AuthURL + "?" + params.Encode()
}

// discordTokenResponse はDiscordのトークンエンドポイントのレスポンス。
type discordTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Scope       string `json:"scope"`
}

// discordUser はDiscordのユーザー情報エンドポイントのレスポンス。
type discordUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Avatar   string `json:"avatar"`
}

// ExchangeCode は認可コードをアクセストークンに交換する。
// 非2xxレスポンスはハードエラーとして返し、リトライしない。
func (p *DiscordOAuthProvider) ExchangeCode(ctx context.Context, code string) (string, error) {
	data := url.Values{
		"code":          {code},
		"client_id":     {p.config.ClientID},
		"client_secret": {p.config.ClientSecret},
		"redirect_uri":  {p.config.RedirectURL},
		"grant_type":    {"authorization_code"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	body, statusCode, err := p.do(req, "token")
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}

	if statusCode != http.StatusOK {
		return "", fmt.Errorf("token exchange failed with status %d: %s", statusCode, string(body))
	}

	var tokenResp discordTokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return "", fmt.Errorf("failed to parse token response: %w", err)
	}

	if tokenResp.AccessToken == "" {
		return "", fmt.Errorf("empty access token in response")
	}

	return tokenResp.AccessToken, nil
}

// FetchProfile はアクセストークンでDiscordのユーザー情報を取得する。
func (p *DiscordOAuthProvider) FetchProfile(ctx context.Context, accessToken string) (*UserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.UserURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create user info request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	body, statusCode, err := p.do(req, "user")
	if err != nil {
		return nil, fmt.Errorf("user info request failed: %w", err)
	}

	if statusCode != http.StatusOK {
		return nil, fmt.Errorf("user info fetch failed with status %d: %s", statusCode, string(body))
	}

	var user discordUser
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, fmt.Errorf("failed to parse user info response: %w", err)
	}

	if user.ID == "" {
		return nil, fmt.Errorf("empty id in user info response")
	}

	return &UserInfo{
		DiscordID: user.ID,
		Username:  user.Username,
		Email:     user.Email,
		AvatarURL: avatarURL(user.ID, user.Avatar),
	}, nil
}

// do はリクエストを実行し、ボディとステータスコードを返す。
// メトリクスが設定されている場合はレイテンシとステータスを記録する。
func (p *DiscordOAuthProvider) do(req *http.Request, endpoint string) ([]byte, int, error) {
	start := time.Now()
	resp, err := p.client.Do(req)
	if p.metrics != nil {
		p.metrics.RecordProviderLatency(time.Since(start))
	}
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if p.metrics != nil {
		p.metrics.RecordProviderStatus(endpoint, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}

	return body, resp.StatusCode, nil
}

// avatarURL はDiscord CDNのアバター画像URLを構築する。
// アバター未設定の場合は空文字列を返す。
func avatarURL(discordID, avatarHash string) string {
	if avatarHash == "" {
		return ""
	}
	return fmt.Sprintf("%s/avatars/%s/%s.png", discordCDNBaseURL, discordID, avatarHash)
}

// compile-time interface check
var _ Provider = (*DiscordOAuthProvider)(nil)
