// Package model はドメインモデルを定義する。
package model

import (
	"strings"
	"time"
)

// LegacyEntry は旧データモデルのエントリを表す。
// 旧モデルはアクセス制御を visibility / channel / to の3フィールドに重複して持ち、
// 本文の可視性を human_visible で表現していた。
// 新モデルではアクセスは to のみ、本文の可視性は ai_only のみで表現する。
// この型は移行（importサブコマンドおよびストレージ境界）でのみ使用する。
type LegacyEntry struct {
	ID              string     `json:"id"`
	AuthorPseudonym string     `json:"author_pseudonym"`
	AuthorHandle    string     `json:"author_handle,omitempty"`
	Content         string     `json:"content"`
	CreatedAt       time.Time  `json:"created_at"`
	To              []string   `json:"to,omitempty"`
	InReplyTo       string     `json:"in_reply_to,omitempty"`
	Visibility      string     `json:"visibility,omitempty"`    // 旧: "public" | "private"
	HumanVisible    *bool      `json:"human_visible,omitempty"` // 旧: falseでAI専用
	Channel         string     `json:"channel,omitempty"`       // 旧: 単一チャンネルフィールド
	PublishAt       *time.Time `json:"publish_at,omitempty"`
}

// Collapse は旧モデルの重複フィールドを正準表現に畳み込む。
// 変換ルール:
//   - channel が設定されていて to に同じ #channel がない場合、to の末尾に追加する。
//   - visibility=="private" かつ畳み込み後の to が空の場合、投稿者ハンドル宛にする。
//     ハンドル未公開の場合は to で非公開を表現できないため ok=false を返し、
//     呼び出し元がスキップして警告ログを出す。
//   - human_visible==false は ai_only=true に対応する。未設定はfalse（人間可視）。
//   - visibility フィールド自体は破棄する（to から導出可能）。
func (l *LegacyEntry) Collapse() (*Entry, bool) {
	to := make([]string, 0, len(l.To)+1)
	to = append(to, l.To...)

	if l.Channel != "" {
		ref := "#" + strings.ToLower(strings.TrimPrefix(l.Channel, "#"))
		found := false
		for _, d := range to {
			if strings.EqualFold(strings.TrimSpace(d), ref) {
				found = true
				break
			}
		}
		if !found {
			to = append(to, ref)
		}
	}

	if strings.EqualFold(l.Visibility, "private") && len(to) == 0 {
		if l.AuthorHandle == "" {
			// ハンドル未公開の本人限定エントリは to で表現できない
			return nil, false
		}
		to = append(to, "@"+strings.ToLower(l.AuthorHandle))
	}

	aiOnly := l.HumanVisible != nil && !*l.HumanVisible

	if len(to) == 0 {
		to = nil
	}

	return &Entry{
		ID:              l.ID,
		AuthorPseudonym: l.AuthorPseudonym,
		AuthorHandle:    strings.ToLower(l.AuthorHandle),
		Content:         l.Content,
		CreatedAt:       l.CreatedAt,
		To:              to,
		InReplyTo:       l.InReplyTo,
		AIOnly:          aiOnly,
		PublishAt:       l.PublishAt,
	}, true
}
