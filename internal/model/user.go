// Package model はドメインモデルを定義する。
package model

import "time"

// ApprovalStatus はユーザーの承認状態を表す。
// 新規ユーザーはPENDINGで作成され、管理者のみがAPPROVED/REJECTEDへ遷移させる。
// BANNEDは管理者がいつでも設定できる終端状態。
type ApprovalStatus string

const (
	// ApprovalPending は管理者承認待ちの状態。
	ApprovalPending ApprovalStatus = "pending"
	// ApprovalApproved は管理者に承認済みの状態。
	ApprovalApproved ApprovalStatus = "approved"
	// ApprovalRejected は管理者に拒否された状態。
	ApprovalRejected ApprovalStatus = "rejected"
	// ApprovalBanned はBAN済みの状態。
	ApprovalBanned ApprovalStatus = "banned"
)

// User はDiscord認証で登録されたサービス利用ユーザーを表す。
// DiscordIDは作成後に変更されない外部識別子で、全ユーザー間で一意。
type User struct {
	ID             int64
	DiscordID      string
	Username       string
	ServerNickname string // 対象ギルド内のニックネーム。未設定の場合は空文字列。
	Email          string // 空文字列の場合は未取得。
	AvatarURL      string
	Status         ApprovalStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
	LastLoginAt    time.Time
}

// IsApproved は管理者承認済みかどうかを返す。
func (u *User) IsApproved() bool {
	return u.Status == ApprovalApproved
}

// IsApproved はnilセーフな承認チェック。存在しないユーザーは承認済みとみなさない。
func IsApproved(u *User) bool {
	return u != nil && u.IsApproved()
}

// Profile はDiscordから取得した最新のプロフィールスナップショットを表す。
// プロフィール同期の差分判定に使用する。
type Profile struct {
	Username       string
	Email          string
	ServerNickname string
	AvatarURL      string
}

// ProfileChanged は保存済みユーザーと最新プロフィールの差分有無を判定する。
// 永続化に依存しない純粋関数。承認状態は比較対象に含まれない。
func ProfileChanged(u *User, p Profile) bool {
	if u == nil {
		return false
	}
	return u.Username != p.Username ||
		u.Email != p.Email ||
		u.ServerNickname != p.ServerNickname ||
		u.AvatarURL != p.AvatarURL
}

// Session はユーザーのログインセッションを表す。
// IDは暗号的に安全な乱数から生成された推測不能なトークン。
// ログアウト時は行を削除せずIsActiveをfalseにする（監査証跡）。
type Session struct {
	ID        string
	UserID    int64
	ExpiresAt time.Time
	CreatedAt time.Time
	IsActive  bool
}

// IsValid はセッションが有効かどうかを返す。
// 有効の定義: IsActiveがtrueかつ現在時刻が有効期限内であること。
// セッション有効性の判定は必ずこの関数を経由する。
func (s *Session) IsValid(now time.Time) bool {
	return s.IsActive && !now.After(s.ExpiresAt)
}
