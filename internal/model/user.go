// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// OAuthのみで登録したユーザーはHashedPasswordが空になる。
type User struct {
	ID             string
	Username       string
	Email          string
	HashedPassword string
	FirstName      string
	LastName       string
	City           string
	Position       string
	GitHub         string
	LinkedIn       string
	Telegram       string
	AvatarURL      string
	CoverPhotoURL  string
	LastActive     *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// HasPassword はローカルパスワードが設定されているかを返す。
func (u *User) HasPassword() bool {
	return u.HashedPassword != ""
}

// UserSummary は一覧やネストしたレスポンスで使う最小限のユーザー情報。
type UserSummary struct {
	ID        string
	Username  string
	Email     string
	AvatarURL string
}

// ProfileUpdate はプロフィールの部分更新内容を表す。
// nilのフィールドは変更しない。
type ProfileUpdate struct {
	FirstName     *string
	LastName      *string
	City          *string
	Position      *string
	GitHub        *string
	LinkedIn      *string
	Telegram      *string
	AvatarURL     *string
	CoverPhotoURL *string
}

// Identity は外部IdPとの紐付け情報を表す。
type Identity struct {
	ID             string
	UserID         string
	Provider       string
	ProviderUserID string
	CreatedAt      time.Time
}

// 対応しているIdP
const (
	ProviderGoogle = "google"
	ProviderGitHub = "github"
)

// RevokedToken はログアウト等で失効させたアクセストークンを表す。
// ExpiresAtを過ぎたレコードはクリーンアップジョブで削除される。
type RevokedToken struct {
	JTI       string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
