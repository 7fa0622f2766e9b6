// Package model はドメインモデルを定義する。
package model

import "time"

// Entry はノートブックに投稿された1件のノートを表す。
// Toが空のエントリは全員に公開される。Toが非空のエントリは
// 投稿者と宛先リストの各対象者のみが閲覧できる（access パッケージ参照）。
type Entry struct {
	ID              string
	AuthorPseudonym string
	AuthorHandle    string // 投稿者が公開しているハンドル。未公開の場合は空。
	Content         string
	CreatedAt       time.Time
	To              []string // 生の宛先文字列のリスト。順序は配信結果と位置対応する。
	InReplyTo       string   // 親エントリID。リプライでない場合は空。
	AIOnly          bool     // 本文を投稿者以外の人間に見せないフラグ。アクセス判定には影響しない。
	PublishAt       *time.Time
}

// IsPublic は公開エントリかを返す。宛先リストが空の場合は公開。
func (e *Entry) IsPublic() bool {
	return len(e.To) == 0
}

// IsPending はステージング中（未公開）のエントリかを返す。
func (e *Entry) IsPending() bool {
	return e.PublishAt != nil
}

// Visibility はエントリの可視性区分を返す。
// Webhookペイロードおよびレスポンスで使用する。
func (e *Entry) Visibility() Visibility {
	if e.IsPublic() {
		return VisibilityPublic
	}
	return VisibilityAddressed
}

// Clone はエントリのディープコピーを返す。
// ステージングストアが内部状態を外部に渡す際の防御用。
func (e *Entry) Clone() *Entry {
	c := *e
	if e.To != nil {
		c.To = make([]string, len(e.To))
		copy(c.To, e.To)
	}
	if e.PublishAt != nil {
		t := *e.PublishAt
		c.PublishAt = &t
	}
	return &c
}

// Visibility はエントリの可視性区分を表す。
type Visibility string

const (
	// VisibilityPublic は全員に公開されたエントリ。
	VisibilityPublic Visibility = "public"
	// VisibilityAddressed は宛先指定されたエントリ。
	VisibilityAddressed Visibility = "addressed"
)

// AIOnlyStub は投稿者以外の人間に表示するAI専用エントリの代替本文。
const AIOnlyStub = "（このノートはAI専用です。本文は投稿者とAI検索のみが閲覧できます。）"
