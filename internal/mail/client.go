// Package mail はメール送信のインターフェースとSMTP実装を提供する。
// 配信オーケストレータはClientインターフェースのみに依存し、
// テスト時はモックに差し替える。
package mail

import "context"

// Message は送信する1通のメールを表す。
// Toが複数の場合は1通のメールに全受信者を載せる（受信者同士が
// お互いを確認でき、全員に返信できるようにするため）。
type Message struct {
	From    string
	To      []string
	Subject string
	HTML    string
	CC      string // 任意。空の場合はCcヘッダーを付けない。
	ReplyTo string // 任意。空の場合はReply-Toヘッダーを付けない。
}

// Client はメール送信のインターフェース。
// 送信失敗はエラーとして返す（呼び出し元が捕捉する）。
type Client interface {
	Send(ctx context.Context, msg *Message) error
}
