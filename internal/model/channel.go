// Package model はドメインモデルを定義する。
package model

import "time"

// Channel は共有ノートブックのチャンネルを表す。
// エントリの宛先として #id 形式で参照される。
// メンバーシップは可変であり、チャンネル宛エントリの閲覧可否は
// 閲覧時点の購読者リストで判定される（ライブ解決）。
type Channel struct {
	ID          string // スラグ形式のチャンネルID（小文字）
	Name        string
	JoinRule    JoinRule
	OwnerHandle string
	Subscribers []Subscriber
	CreatedAt   time.Time
}

// JoinRule はチャンネルへの参加ルールを表す。
type JoinRule string

const (
	// JoinRuleOpen は誰でも参加できるチャンネル。
	JoinRuleOpen JoinRule = "open"
	// JoinRuleInvite はオーナーの招待が必要なチャンネル。
	JoinRuleInvite JoinRule = "invite"
)

// Subscriber はチャンネルの購読者を表す。
type Subscriber struct {
	Handle   string
	Role     SubscriberRole
	JoinedAt time.Time
}

// SubscriberRole はチャンネル内での購読者の役割を表す。
type SubscriberRole string

const (
	// RoleOwner はチャンネルのオーナー。
	RoleOwner SubscriberRole = "owner"
	// RoleMember は一般の購読者。
	RoleMember SubscriberRole = "member"
)

// HasSubscriber は指定ハンドルが購読者リストに含まれるかを返す。
// ハンドルは小文字正規化済みであることを前提とする。
func (c *Channel) HasSubscriber(handle string) bool {
	for _, s := range c.Subscribers {
		if s.Handle == handle {
			return true
		}
	}
	return false
}
