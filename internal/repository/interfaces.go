// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"

	"github.com/hitoshi/guildgate/internal/model"
)

// ErrDuplicateDiscordID は同一discord_idのユーザーが既に存在することを示す。
// usersテーブルのUNIQUE制約違反から検出される。
// 同時ログインの競合で発生し、呼び出し側は既存行の再取得でリカバリする。
var ErrDuplicateDiscordID = errors.New("user with this discord ID already exists")

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// CreatePending は承認待ち状態の新規ユーザーを作成する。
	// 一意性はDBのUNIQUE制約で保証され、競合時はErrDuplicateDiscordIDを返す。
	// 作成された行（採番されたID、サーバー付与のタイムスタンプ含む）を返す。
	CreatePending(ctx context.Context, user *model.User) (*model.User, error)

	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.User, error)

	// FindByDiscordID はDiscord IDでユーザーを検索する。見つからない場合はnilを返す。
	FindByDiscordID(ctx context.Context, discordID string) (*model.User, error)

	// UpdateProfile は可変フィールド（username, email, nickname, avatar）のみを更新する。
	// 承認状態には一切触れない。対象が存在しない場合はエラーを返す。
	UpdateProfile(ctx context.Context, id int64, p model.Profile) error

	// UpdateLastLogin は最終ログイン日時を現在時刻に更新する。
	UpdateLastLogin(ctx context.Context, id int64) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	// トークン衝突はUNIQUE制約違反として返る。内部不変条件の違反であり、
	// ユーザー向けエラーとして扱わない。
	Create(ctx context.Context, session *model.Session) error

	// FindByID は指定IDのセッションを取得する。見つからない場合はnilを返す。
	// 期限切れ・無効化済みの行もそのまま返し、有効性判定は呼び出し側が
	// Session.IsValidで行う。
	FindByID(ctx context.Context, id string) (*model.Session, error)

	// Invalidate はセッションを無効化する。行は削除せずis_activeをfalseにする。
	// 冪等であり、行が存在したかどうかを返す。
	Invalidate(ctx context.Context, id string) (bool, error)

	// InvalidateAllByUserID は指定ユーザーの全セッションを無効化する。
	// 無効化した件数を返す。
	InvalidateAllByUserID(ctx context.Context, userID int64) (int64, error)

	// PurgeExpired は有効期限を過ぎたセッション行を削除し、削除件数を返す。
	// 既に無効な行のみを対象とするため、他の操作と同時実行しても安全。
	PurgeExpired(ctx context.Context) (int64, error)
}
