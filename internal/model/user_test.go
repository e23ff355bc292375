package model

import (
	"testing"
	"time"
)

func TestUser_IsApproved(t *testing.T) {
	tests := []struct {
		name   string
		status ApprovalStatus
		want   bool
	}{
		{"approved", ApprovalApproved, true},
		{"pending", ApprovalPending, false},
		{"rejected", ApprovalRejected, false},
		{"banned", ApprovalBanned, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := &User{Status: tt.status}
			if got := u.IsApproved(); got != tt.want {
				t.Errorf("IsApproved() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsApproved_NilUser_ReturnsFalse(t *testing.T) {
	if IsApproved(nil) {
		t.Error("nil user should never be approved")
	}
}

func TestIsApproved_ApprovedUser_ReturnsTrue(t *testing.T) {
	u := &User{Status: ApprovalApproved}
	if !IsApproved(u) {
		t.Error("approved user should be approved")
	}
}

func TestProfileChanged_NoDiff_ReturnsFalse(t *testing.T) {
	u := &User{
		Username:       "alice",
		Email:          "alice@example.com",
		ServerNickname: "Ali",
		AvatarURL:      "https://cdn.discordapp.com/avatars/1/abc.png",
	}
	p := Profile{
		Username:       "alice",
		Email:          "alice@example.com",
		ServerNickname: "Ali",
		AvatarURL:      "https://cdn.discordapp.com/avatars/1/abc.png",
	}

	if ProfileChanged(u, p) {
		t.Error("identical profile should not be reported as changed")
	}
}

func TestProfileChanged_Diff_ReturnsTrue(t *testing.T) {
	base := User{
		Username:       "alice",
		Email:          "alice@example.com",
		ServerNickname: "Ali",
		AvatarURL:      "https://cdn.discordapp.com/avatars/1/abc.png",
	}

	tests := []struct {
		name   string
		modify func(p *Profile)
	}{
		{"username changed", func(p *Profile) { p.Username = "alice2" }},
		{"email changed", func(p *Profile) { p.Email = "new@example.com" }},
		{"nickname changed", func(p *Profile) { p.ServerNickname = "Al" }},
		{"avatar changed", func(p *Profile) { p.AvatarURL = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := base
			p := Profile{
				Username:       base.Username,
				Email:          base.Email,
				ServerNickname: base.ServerNickname,
				AvatarURL:      base.AvatarURL,
			}
			tt.modify(&p)

			if !ProfileChanged(&u, p) {
				t.Error("modified profile should be reported as changed")
			}
		})
	}
}

func TestProfileChanged_NilUser_ReturnsFalse(t *testing.T) {
	if ProfileChanged(nil, Profile{Username: "alice"}) {
		t.Error("nil user should not be reported as changed")
	}
}

func TestSession_IsValid_ActiveAndNotExpired(t *testing.T) {
	now := time.Now()
	s := &Session{
		IsActive:  true,
		ExpiresAt: now.Add(time.Hour),
	}

	if !s.IsValid(now) {
		t.Error("active session within expiry should be valid")
	}
}

func TestSession_IsValid_Inactive(t *testing.T) {
	now := time.Now()
	s := &Session{
		IsActive:  false,
		ExpiresAt: now.Add(time.Hour),
	}

	if s.IsValid(now) {
		t.Error("inactive session should not be valid even before expiry")
	}
}

func TestSession_IsValid_Expired(t *testing.T) {
	now := time.Now()
	s := &Session{
		IsActive:  true,
		ExpiresAt: now.Add(-time.Second),
	}

	if s.IsValid(now) {
		t.Error("expired session should not be valid even if active")
	}
}

// 有効期限ちょうどの時刻は有効と判定される（境界を含む）
func TestSession_IsValid_ExactExpiry(t *testing.T) {
	now := time.Now()
	s := &Session{
		IsActive:  true,
		ExpiresAt: now,
	}

	if !s.IsValid(now) {
		t.Error("session should be valid exactly at its expiry time")
	}
}
