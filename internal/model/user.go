// Package model はドメインモデルを定義する。
package model

import "time"

// プロフィールの既定値。
const (
	DefaultRole = "user"
	DefaultTeam = "unassigned"
)

// Identity は認証済みの主体を表す。IDとEmailはIdentity Providerが発行し、
// アプリケーション側からは変更しない。
type Identity struct {
	ID    string
	Email string
}

// Account はIdentity Providerが保持する認証情報を表す。
type Account struct {
	ID           string
	Email        string
	PasswordHash string
	FullName     string
	CreatedAt    time.Time
}

// Identity はアカウントに対応するIdentityを返す。
func (a *Account) Identity() Identity {
	return Identity{ID: a.ID, Email: a.Email}
}

// UserProfile はアプリケーション側のユーザープロフィールを表す。
// IDはIdentityのIDと一致する（1対1）。
type UserProfile struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      *string   `json:"name"`
	Role      string    `json:"role"`
	Team      string    `json:"team"`
	CreatedAt time.Time `json:"created_at"`
}

// ProfilePatch はプロフィールの部分更新内容を表す。nilのフィールドは変更しない。
type ProfilePatch struct {
	Name *string
	Role *string
	Team *string
}

// Role はロール選択肢を表す。
type Role struct {
	ID       string `json:"id"`
	RoleName string `json:"role_name"`
}

// Session はユーザーのログインセッションを表す。
type Session struct {
	ID        string
	UserID    string
	Email     string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Identity はセッションに紐づくIdentityを返す。
func (s *Session) Identity() Identity {
	return Identity{ID: s.UserID, Email: s.Email}
}

// LoginRecord はサインイン試行の記録を表す。
type LoginRecord struct {
	ID         string
	UserID     *string
	Email      string
	LoginIP    string
	DeviceInfo string
	Success    bool
	CreatedAt  time.Time
}
