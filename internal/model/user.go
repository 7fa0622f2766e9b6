// Package model はドメインモデルを定義する。
package model

import "time"

// User はノートブックの利用ユーザーを表す。
// Handleは小文字に正規化されたユニークなハンドル名。
// Pseudonymは投稿者の匿名表示名で、ハンドルを公開していないユーザーでも安定している。
type User struct {
	ID                 string
	Handle             string
	Email              string
	EmailVerified      bool
	EmailNotifications bool
	Pseudonym          string
	APIToken           string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// HasNotifiableEmail はメール通知を送ってよいユーザーかを返す。
// メールアドレスが検証済みで、かつ通知設定が有効な場合のみtrue。
func (u *User) HasNotifiableEmail() bool {
	return u != nil && u.Email != "" && u.EmailVerified && u.EmailNotifications
}

// Notification はユーザーへのアプリ内通知を表す。
type Notification struct {
	ID              string
	RecipientHandle string
	EntryID         string
	AuthorPseudonym string
	CreatedAt       time.Time
}
