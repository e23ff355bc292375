// Package auth はDiscord OAuth認証フロー、承認ゲート、セッション管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/guildgate/internal/model"
	"github.com/hitoshi/guildgate/internal/repository"
)

// Outcome はログイン試行の結果分類を表す。
// コールバックハンドラーはこの値をフロントエンドへのリダイレクトに変換する。
type Outcome string

const (
	// OutcomeProviderDenied はDiscord側で認可が拒否された、またはコードが
	// 渡されなかったことを示す。
	OutcomeProviderDenied Outcome = "provider_denied"
	// OutcomeExchangeFailed は認可コードのトークン交換に失敗したことを示す。
	OutcomeExchangeFailed Outcome = "exchange_failed"
	// OutcomeProfileFetchFailed はプロフィール取得に失敗したことを示す。
	OutcomeProfileFetchFailed Outcome = "profile_fetch_failed"
	// OutcomeNotInGuild は対象ギルドに所属していないことを示す。
	OutcomeNotInGuild Outcome = "not_in_guild"
	// OutcomePendingApproval は管理者承認待ちであることを示す。
	OutcomePendingApproval Outcome = "pending_approval"
	// OutcomeAccessDenied は拒否またはBAN済みユーザーのログイン試行を示す。
	OutcomeAccessDenied Outcome = "access_denied"
	// OutcomeSuccess はログイン成功を示す。
	OutcomeSuccess Outcome = "success"
)

// LoginResult はログイン試行の結果を表す。
// SessionはOutcomeSuccessの場合のみ設定される。
type LoginResult struct {
	Outcome Outcome
	Session *model.Session
	User    *model.User
}

// ErrUnauthenticated はセッションが提示されない・無効・期限切れ、
// または所有者が承認済みでないことを示す。
// 存在の漏洩を避けるため、原因による区別はしない。
var ErrUnauthenticated = errors.New("unauthenticated")

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionTTL time.Duration // セッション有効期間（デフォルト: 7日）
}

// DefaultSessionTTL はセッション有効期間のデフォルト値。
const DefaultSessionTTL = 7 * 24 * time.Hour

// Service は認証に関するビジネスロジックを提供する。
// OAuth交換、ギルド検証、承認ゲート、セッション発行のステートマシンを束ねる。
type Service struct {
	provider    Provider
	guild       GuildVerifier
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	config      ServiceConfig
}

// NewService はServiceを生成する。
func NewService(
	provider Provider,
	guild GuildVerifier,
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	config ServiceConfig,
) *Service {
	if config.SessionTTL <= 0 {
		config.SessionTTL = DefaultSessionTTL
	}
	return &Service{
		provider:    provider,
		guild:       guild,
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		config:      config,
	}
}

// AuthorizeURL はOAuth認証URLを生成する。
func (s *Service) AuthorizeURL(state string) string {
	return s.provider.AuthorizeURL(state)
}

// HandleCallback はOAuthコールバックを処理し、ログイン試行の結果を返す。
//
// ステートマシン:
//  1. プロバイダーエラーまたはコード欠落 → ProviderDenied（何も変更しない）
//  2. トークン交換失敗 → ExchangeFailed
//  3. プロフィール取得失敗 → ProfileFetchFailed
//  4. ギルド非所属 → NotInGuild（ユーザー作成・更新は行わない）
//  5. discord_idで既存ユーザーを検索:
//     - 未登録: PENDINGで作成 → PendingApproval（セッションなし）。
//       同時ログインとの競合でUNIQUE制約違反になった場合は既存行を
//       再取得し、登録済みの分岐にフォールバックする。
//     - 登録済み: プロフィールに差分があれば同期（承認状態には触れない）。
//       承認状態の判定は同期後のレコードに対して行う。
//       PENDING → PendingApproval、REJECTED/BANNED → AccessDenied、
//       APPROVED → セッション発行＋last_login_at更新 → Success。
//
// ストア層の予期しないエラーはerrorとして返す。呼び出し側は安全な
// 汎用メッセージに変換し、詳細はログにのみ残す。
func (s *Service) HandleCallback(ctx context.Context, code, providerError string) (*LoginResult, error) {
	// 1. Discord側の拒否またはコード欠落
	if providerError != "" || code == "" {
		slog.Warn("provider denied authorization",
			slog.String("provider_error", providerError),
		)
		return &LoginResult{Outcome: OutcomeProviderDenied}, nil
	}

	// 2. 認可コードをアクセストークンに交換
	accessToken, err := s.provider.ExchangeCode(ctx, code)
	if err != nil {
		slog.Error("oauth code exchange failed", slog.String("error", err.Error()))
		return &LoginResult{Outcome: OutcomeExchangeFailed}, nil
	}

	// 3. プロフィール取得
	info, err := s.provider.FetchProfile(ctx, accessToken)
	if err != nil {
		slog.Error("profile fetch failed", slog.String("error", err.Error()))
		return &LoginResult{Outcome: OutcomeProfileFetchFailed}, nil
	}

	// 4. ギルドメンバーシップ検証（ユーザー検索・作成より前に行う）
	membership, err := s.guild.VerifyMembership(ctx, accessToken)
	if err != nil {
		slog.Error("guild membership verification failed", slog.String("error", err.Error()))
		return &LoginResult{Outcome: OutcomeProfileFetchFailed}, nil
	}
	if !membership.IsMember {
		slog.Info("login attempt from non-member",
			slog.String("discord_id", info.DiscordID),
		)
		return &LoginResult{Outcome: OutcomeNotInGuild}, nil
	}

	profile := model.Profile{
		Username:       info.Username,
		Email:          info.Email,
		ServerNickname: membership.Nickname,
		AvatarURL:      info.AvatarURL,
	}

	// 5. discord_idで既存ユーザーを検索
	user, err := s.userRepo.FindByDiscordID(ctx, info.DiscordID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	if user == nil {
		// 5a. 新規ユーザー: PENDINGで作成し承認待ちにする
		created, err := s.userRepo.CreatePending(ctx, &model.User{
			DiscordID:      info.DiscordID,
			Username:       profile.Username,
			Email:          profile.Email,
			ServerNickname: profile.ServerNickname,
			AvatarURL:      profile.AvatarURL,
		})
		if err == nil {
			slog.Info("new user stored pending approval",
				slog.Int64("user_id", created.ID),
				slog.String("discord_id", created.DiscordID),
			)
			return &LoginResult{Outcome: OutcomePendingApproval, User: created}, nil
		}
		if !errors.Is(err, repository.ErrDuplicateDiscordID) {
			return nil, fmt.Errorf("failed to create pending user: %w", err)
		}

		// 同時ログインの競合に敗北: 勝者の行を再取得して登録済み分岐へ
		slog.Info("concurrent registration detected, falling back to existing user",
			slog.String("discord_id", info.DiscordID),
		)
		user, err = s.userRepo.FindByDiscordID(ctx, info.DiscordID)
		if err != nil {
			return nil, fmt.Errorf("failed to re-fetch user after duplicate conflict: %w", err)
		}
		if user == nil {
			return nil, fmt.Errorf("user disappeared after duplicate conflict: %s", info.DiscordID)
		}
	}

	// 5b. 登録済みユーザー: プロフィールの差分を同期する。
	// 承認状態を問わず同期する（BAN済みユーザーの監査証跡も最新に保つ）。
	if model.ProfileChanged(user, profile) {
		if err := s.userRepo.UpdateProfile(ctx, user.ID, profile); err != nil {
			return nil, fmt.Errorf("failed to sync user profile: %w", err)
		}
		user.Username = profile.Username
		user.Email = profile.Email
		user.ServerNickname = profile.ServerNickname
		user.AvatarURL = profile.AvatarURL
	}

	// 承認状態の判定は同期後のレコードに対して行う
	switch user.Status {
	case model.ApprovalPending:
		slog.Info("login attempt from pending user", slog.Int64("user_id", user.ID))
		return &LoginResult{Outcome: OutcomePendingApproval, User: user}, nil

	case model.ApprovalRejected, model.ApprovalBanned:
		slog.Warn("login attempt from denied user",
			slog.Int64("user_id", user.ID),
			slog.String("status", string(user.Status)),
		)
		return &LoginResult{Outcome: OutcomeAccessDenied, User: user}, nil

	case model.ApprovalApproved:
		session, err := s.createSession(ctx, user.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to create session: %w", err)
		}
		if err := s.userRepo.UpdateLastLogin(ctx, user.ID); err != nil {
			return nil, fmt.Errorf("failed to update last login: %w", err)
		}
		slog.Info("user logged in",
			slog.Int64("user_id", user.ID),
			slog.String("discord_id", user.DiscordID),
		)
		return &LoginResult{Outcome: OutcomeSuccess, Session: session, User: user}, nil

	default:
		return nil, fmt.Errorf("unknown approval status: %q", user.Status)
	}
}

// CurrentUser はセッションIDから現在のユーザーを解決する。
// セッションが無効・期限切れ、または所有者が承認済みでない場合は
// ErrUnauthenticatedを返す。承認状態はリクエストごとに再チェックされ、
// セッションにキャッシュされない。
func (s *Service) CurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if sessionID == "" {
		return nil, ErrUnauthenticated
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil || !session.IsValid(time.Now()) {
		return nil, ErrUnauthenticated
	}

	user, err := s.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	// セッション行が有効でも、承認が取り消されていればアクセスさせない
	if !model.IsApproved(user) {
		return nil, ErrUnauthenticated
	}

	return user, nil
}

// Logout はセッションを無効化する。行は削除されず監査証跡として残る。
// 既に無効なセッションに対しても冪等に成功する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	existed, err := s.sessionRepo.Invalidate(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to invalidate session: %w", err)
	}

	slog.Info("user logged out", slog.Bool("session_existed", existed))
	return nil
}

// LogoutAll は指定ユーザーの全セッションを無効化する（全デバイス強制ログアウト）。
func (s *Service) LogoutAll(ctx context.Context, userID int64) (int64, error) {
	count, err := s.sessionRepo.InvalidateAllByUserID(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to invalidate user sessions: %w", err)
	}

	slog.Info("all sessions invalidated",
		slog.Int64("user_id", userID),
		slog.Int64("count", count),
	)
	return count, nil
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, userID int64) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := time.Now()
	session := &model.Session{
		ID:        sessionID,
		UserID:    userID,
		ExpiresAt: now.Add(s.config.SessionTTL),
		CreatedAt: now,
		IsActive:  true,
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する（256ビット）。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
