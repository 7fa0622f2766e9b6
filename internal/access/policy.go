// Package access はエントリの閲覧可否判定（canView）を提供する。
//
// 判定はエントリの宛先リスト（to）に対して行う。宛先リストが空の
// エントリは公開であり、誰でも閲覧できる。非空の場合、投稿者本人と
// 各宛先の対象者のみが閲覧できる。チャンネル宛先の判定は閲覧時点の
// 購読者リストに対して行う（ライブ解決）。エントリ作成時点の
// メンバーシップを固定化しない。
package access

import (
	"context"
	"strings"

	"github.com/hitoshi/notehub/internal/destination"
	"github.com/hitoshi/notehub/internal/model"
)

// ChannelLookup はチャンネル判定に必要な検索のインターフェース。
// repository.ChannelRepositoryの部分集合として定義する。
// グローバルなストアハンドルではなく、この能力だけを明示的に渡す。
type ChannelLookup interface {
	// FindByID は指定IDのチャンネルを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Channel, error)
}

// MembershipCache は1回の認可パスの間だけ有効なチャンネル所属キャッシュ。
// channelID → 当該閲覧者が購読者か、を保持する。
// フィード1ページの描画のように同じチャンネルを繰り返し判定する呼び出し元が
// 検索を1回に抑えるためのもので、呼び出し元が生成・所有し、パス終了後に捨てる。
// 閲覧者やリクエストをまたいで共有してはならない。TTLは持たず、
// 鮮度は呼び出し元のパスの寿命で決まる。
type MembershipCache map[string]bool

// NewMembershipCache は空のMembershipCacheを生成する。
func NewMembershipCache() MembershipCache {
	return make(MembershipCache)
}

// Viewer は閲覧者を表す。匿名閲覧者はゼロ値で表現する。
type Viewer struct {
	Handle   string // 閲覧者のハンドル。未ログインの場合は空。
	Email    string // 閲覧者のメールアドレス。不明の場合は空。
	IsAuthor bool   // 閲覧者がエントリの投稿者本人か。
}

// CanView は閲覧者がエントリを閲覧できるかを判定する。
// 判定順:
//  1. 投稿者本人は無条件で許可。
//  2. 宛先リストが空なら公開エントリとして無条件で許可（匿名含む）。
//  3. 宛先リストのいずれかが閲覧者に一致すれば許可。
//     @handle・旧形式の素のトークンはハンドルの大文字小文字無視の一致、
//     #channel は購読者リストにハンドルが含まれるか（cache経由）、
//     メールアドレスは大文字小文字無視の一致。
//     Webhook宛先は閲覧権限を一切与えない。
//  4. どれにも一致しなければ拒否。
//
// cacheはnilでもよい（その場合チャンネル判定ごとに検索する）。
// チャンネル検索のエラーは当該宛先を不一致として他の宛先の判定を続け、
// 最終的に不許可かつエラーありの場合のみエラーを返す。
func CanView(ctx context.Context, entry *model.Entry, viewer Viewer, channels ChannelLookup, cache MembershipCache) (bool, error) {
	if viewer.IsAuthor {
		return true, nil
	}
	if entry.IsPublic() {
		return true, nil
	}

	viewerHandle := strings.ToLower(viewer.Handle)
	viewerEmail := strings.ToLower(viewer.Email)

	var lookupErr error

	for _, d := range destination.ParseAll(entry.To) {
		switch v := d.(type) {
		case destination.Handle:
			if viewerHandle != "" && v.Name == viewerHandle {
				return true, nil
			}
		case destination.Email:
			if viewerEmail != "" && v.Address == viewerEmail {
				return true, nil
			}
		case destination.Channel:
			if viewerHandle == "" || channels == nil {
				continue
			}
			member, err := isMember(ctx, v.ID, viewerHandle, channels, cache)
			if err != nil {
				lookupErr = err
				continue
			}
			if member {
				return true, nil
			}
		case destination.Webhook:
			// Webhook宛先は配信先であって閲覧者ではない
		}
	}

	return false, lookupErr
}

// CanViewLocal はチャンネル検索を行わない同期版のcanView。
// 検索を待てない呼び出し元のための変種で、チャンネル宛先は推測せず
// 必ず不一致として扱う。チャンネル宛エントリの正確な判定が必要な
// 呼び出し元はCanViewを使用すること。
func CanViewLocal(entry *model.Entry, viewer Viewer) bool {
	if viewer.IsAuthor {
		return true
	}
	if entry.IsPublic() {
		return true
	}

	viewerHandle := strings.ToLower(viewer.Handle)
	viewerEmail := strings.ToLower(viewer.Email)

	for _, d := range destination.ParseAll(entry.To) {
		switch v := d.(type) {
		case destination.Handle:
			if viewerHandle != "" && v.Name == viewerHandle {
				return true
			}
		case destination.Email:
			if viewerEmail != "" && v.Address == viewerEmail {
				return true
			}
		}
	}

	return false
}

// isMember は閲覧者がチャンネルの購読者かを判定する。
// cacheにヒットした場合は検索せずキャッシュ値を返す。
func isMember(ctx context.Context, channelID, viewerHandle string, channels ChannelLookup, cache MembershipCache) (bool, error) {
	if cache != nil {
		if member, ok := cache[channelID]; ok {
			return member, nil
		}
	}

	ch, err := channels.FindByID(ctx, channelID)
	if err != nil {
		return false, err
	}

	member := ch != nil && ch.HasSubscriber(viewerHandle)
	if cache != nil {
		cache[channelID] = member
	}
	return member, nil
}
