// Package destination はエントリの宛先文字列のパースと解決を提供する。
// 宛先は @handle / メールアドレス / #channel / Webhook URL の4種類の
// タグ付き共用体として表現する。パースは全域的であり、どの形式にも
// 一致しない文字列はハンドル宛として扱う。
package destination

import "strings"

// Kind は宛先の種別を表す。
type Kind string

const (
	// KindHandle は @handle 形式またはプレフィックスなしのハンドル宛先。
	KindHandle Kind = "handle"
	// KindEmail はメールアドレス宛先。
	KindEmail Kind = "email"
	// KindChannel は #channel 形式のチャンネル宛先。
	KindChannel Kind = "channel"
	// KindWebhook は http(s):// 形式のWebhook宛先。
	KindWebhook Kind = "webhook"
)

// Destination はパース済みの宛先を表すタグ付き共用体。
// 実装は Handle / Email / Channel / Webhook の4つに限定される。
// Raw はパース前の元文字列を返す。配信結果は元の宛先文字列と
// 位置対応で報告されるため、変換後も元文字列を保持する。
type Destination interface {
	Kind() Kind
	Raw() string

	// sealed は本パッケージ外での実装を禁止する。
	sealed()
}

// Handle は @name 形式のハンドル宛先。Nameは小文字正規化済み。
type Handle struct {
	Name string
	raw  string
}

// Kind はKindHandleを返す。
func (h Handle) Kind() Kind { return KindHandle }
// Raw は元の宛先文字列を返す。
func (h Handle) Raw() string { return h.raw }
func (h Handle) sealed()     {}

// Email はメールアドレス宛先。Addressは小文字正規化済み。
type Email struct {
	Address string
	raw     string
}

// Kind はKindEmailを返す。
func (e Email) Kind() Kind { return KindEmail }
// Raw は元の宛先文字列を返す。
func (e Email) Raw() string { return e.raw }
func (e Email) sealed()     {}

// Channel は #id 形式のチャンネル宛先。IDは小文字正規化済み。
type Channel struct {
	ID  string
	raw string
}

// Kind はKindChannelを返す。
func (c Channel) Kind() Kind { return KindChannel }
// Raw は元の宛先文字列を返す。
func (c Channel) Raw() string { return c.raw }
func (c Channel) sealed()     {}

// Webhook は http(s):// 形式のWebhook宛先。URLは原文のまま保持する。
type Webhook struct {
	URL string
	raw string
}

// Kind はKindWebhookを返す。
func (w Webhook) Kind() Kind { return KindWebhook }
// Raw は元の宛先文字列を返す。
func (w Webhook) Raw() string { return w.raw }
func (w Webhook) sealed()     {}

// Parse は宛先文字列を1つの宛先に分類する。
// 分類は優先順で行う: 先頭# → Channel、先頭@ → Handle、
// http(s):// → Webhook、先頭以外に@を含む → Email、それ以外 → Handle。
// 前後の空白は分類前に除去する。ハンドル・メール・チャンネルIDは
// 小文字に正規化し、Webhook URLは原文のまま保持する。
func Parse(raw string) Destination {
	s := strings.TrimSpace(raw)

	switch {
	case strings.HasPrefix(s, "#"):
		return Channel{ID: strings.ToLower(strings.TrimPrefix(s, "#")), raw: raw}
	case strings.HasPrefix(s, "@"):
		return Handle{Name: strings.ToLower(strings.TrimPrefix(s, "@")), raw: raw}
	case strings.HasPrefix(s, "http://"), strings.HasPrefix(s, "https://"):
		return Webhook{URL: s, raw: raw}
	case strings.Contains(s, "@"):
		// 先頭の@は上で処理済みのため、ここに来るのはメール形式のみ
		return Email{Address: strings.ToLower(s), raw: raw}
	default:
		// プレフィックスなしのトークンは旧形式のハンドル宛先として扱う
		return Handle{Name: strings.ToLower(s), raw: raw}
	}
}

// ParseAll は宛先文字列のリストを要素ごとにパースする。
// 出力順は入力順と一致する。下流の配信結果レポートが
// 位置対応に依存するため、順序を変えてはならない。
func ParseAll(raws []string) []Destination {
	if len(raws) == 0 {
		return nil
	}
	dests := make([]Destination, len(raws))
	for i, raw := range raws {
		dests[i] = Parse(raw)
	}
	return dests
}
