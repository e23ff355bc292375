package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultDiscordGuildMemberURLFormat = "https://discord.com/api/users/@me/guilds/%s/member"

// Membership は対象ギルドにおけるメンバーシップ検証の結果を表す。
type Membership struct {
	// IsMember はギルドに所属し、かつロール条件（設定時）を満たすかどうか。
	IsMember bool
	// Nickname はギルド内ニックネーム。未設定・非メンバーの場合は空文字列。
	Nickname string
	// Roles はギルド内で保持するロールIDの一覧。
	Roles []string
}

// GuildVerifier は対象ギルドのメンバーシップ検証インターフェース。
type GuildVerifier interface {
	// VerifyMembership はアクセストークンの持ち主が対象ギルドに
	// 所属しているかを検証する。非メンバーはエラーではなく
	// IsMember=falseの正常な結果として返す。
	VerifyMembership(ctx context.Context, accessToken string) (*Membership, error)
}

// DiscordGuildConfig はギルドメンバーシップ検証の設定。
type DiscordGuildConfig struct {
	// GuildID は所属を要求する対象ギルドのID。
	GuildID string
	// RequiredRoleIDs が非空の場合、いずれか1つ以上のロール保持を追加条件とする。
	RequiredRoleIDs []string

	// テスト用にオーバーライド可能なURLフォーマット（%sにGuildIDが入る）
	MemberURLFormat string
}

// DiscordGuildVerifier はDiscord APIによるギルドメンバーシップ検証を提供する。
type DiscordGuildVerifier struct {
	config  DiscordGuildConfig
	client  *http.Client
	metrics ProviderMetrics
}

// NewDiscordGuildVerifier はDiscordGuildVerifierを生成する。
// metricsはnilを許容する（記録なし）。
func NewDiscordGuildVerifier(config DiscordGuildConfig, metrics ProviderMetrics) *DiscordGuildVerifier {
	if config.MemberURLFormat == "" {
		config.MemberURLFormat = defaultDiscordGuildMemberURLFormat
	}
	return &DiscordGuildVerifier{
		config:  config,
		client:  &http.Client{Timeout: 10 * time.Second},
		metrics: metrics,
	}
}

// discordGuildMember はDiscordのギルドメンバーエンドポイントのレスポンス。
type discordGuildMember struct {
	Nick  string   `json:"nick"`
	Roles []string `json:"roles"`
}

// VerifyMembership は対象ギルドのメンバーシップを検証する。
// Discordは非メンバーに404を返す。これは正常な否定結果であり、
// ハードエラーとして扱わない。
func (v *DiscordGuildVerifier) VerifyMembership(ctx context.Context, accessToken string) (*Membership, error) {
	memberURL := fmt.Sprintf(v.config.MemberURLFormat, v.config.GuildID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, memberURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create guild member request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	start := time.Now()
	resp, err := v.client.Do(req)
	if v.metrics != nil {
		v.metrics.RecordProviderLatency(time.Since(start))
	}
	if err != nil {
		return nil, fmt.Errorf("guild member request failed: %w", err)
	}
	defer resp.Body.Close()

	if v.metrics != nil {
		v.metrics.RecordProviderStatus("guild_member", resp.StatusCode)
	}

	// 非メンバーは404で返る
	if resp.StatusCode == http.StatusNotFound {
		return &Membership{IsMember: false}, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read guild member response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("guild member fetch failed with status %d: %s", resp.StatusCode, string(body))
	}

	var member discordGuildMember
	if err := json.Unmarshal(body, &member); err != nil {
		return nil, fmt.Errorf("failed to parse guild member response: %w", err)
	}

	return &Membership{
		IsMember: hasRequiredRole(v.config.RequiredRoleIDs, member.Roles),
		Nickname: member.Nick,
		Roles:    member.Roles,
	}, nil
}

// hasRequiredRole はロール条件を判定する。
// requiredが空の場合はギルド所属のみで条件を満たす。
// 非空の場合はいずれか1つ以上のロール保持を要求する。
func hasRequiredRole(required, held []string) bool {
	if len(required) == 0 {
		return true
	}
	heldSet := make(map[string]struct{}, len(held))
	for _, r := range held {
		heldSet[r] = struct{}{}
	}
	for _, r := range required {
		if _, ok := heldSet[r]; ok {
			return true
		}
	}
	return false
}

// compile-time interface check
var _ GuildVerifier = (*DiscordGuildVerifier)(nil)
