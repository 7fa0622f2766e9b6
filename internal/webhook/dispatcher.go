// Package webhook はエントリ公開イベントのWebhook配信を提供する。
// ペイロードの構築とPOST送信を行い、SSRFガードを尊重する。
// リトライは行わない。リトライポリシーが必要な場合は呼び出し元が持つ。
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/notehub/internal/model"
	"github.com/hitoshi/notehub/internal/security"
)

const (
	// EventEntryPublished はWebhookペイロードのイベント名。
	// ワイヤ契約の一部であり変更してはならない。
	EventEntryPublished = "entry.published"

	// defaultUserAgent はWebhook POSTの既定User-Agent。
	defaultUserAgent = "Notehub/1.0 Webhook"
)

// Result はWebhook配信1件の結果を表す。
// 失敗は例外ではなく結果として返す。
type Result struct {
	Success bool
	Error   string // 失敗時の短い機械可読な理由（ステータスコードまたはエラーメッセージ）
}

// payload はWebhook POSTのJSONボディ。
// フィールド名と構造はワイヤ契約であり、安定を保つこと。
type payload struct {
	Event        string        `json:"event"`
	EntryID      string        `json:"entryId"`
	Author       payloadAuthor `json:"author"`
	Content      string        `json:"content"`
	Timestamp    int64         `json:"timestamp"`    // エポックミリ秒
	TimestampISO string        `json:"timestampISO"` // RFC 3339
	Visibility   string        `json:"visibility"`
	To           []string      `json:"to"`
	InReplyTo    *string       `json:"inReplyTo"`
	URL          string        `json:"url"`
}

// payloadAuthor はペイロード内の投稿者表現。
// ハンドル未公開の投稿者はhandleがnullになる。
type payloadAuthor struct {
	Handle    *string `json:"handle"`
	Pseudonym string  `json:"pseudonym"`
}

// LatencyObserver はWebhook配信レイテンシの記録インターフェース。
type LatencyObserver interface {
	RecordWebhookLatency(duration time.Duration)
}

// Dispatcher はWebhook配信を実行する。
// httpClientにはSSRFガードのNewSafeClientで生成したクライアントを渡すことを想定する。
type Dispatcher struct {
	httpClient *http.Client
	guard      security.SSRFGuardService
	observer   LatencyObserver // nil許容
	logger     *slog.Logger
}

// NewDispatcher はDispatcherの新しいインスタンスを生成する。
func NewDispatcher(httpClient *http.Client, guard security.SSRFGuardService, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		httpClient: httpClient,
		guard:      guard,
		logger:     logger,
	}
}

// SetLatencyObserver は配信レイテンシの記録先を設定する。
func (d *Dispatcher) SetLatencyObserver(observer LatencyObserver) {
	d.observer = observer
}

// Deliver はエントリ公開イベントを指定URLへPOSTする。
// 内部URLは送信せず失敗結果として返す（例外にはしない）。
// 2xx以外のHTTPステータスとネットワークエラーは短い理由付きの失敗となる。
// headersで指定された追加ヘッダーはデフォルトにマージされ、
// 同名のヘッダーは呼び出し元の値が優先される。
func (d *Dispatcher) Deliver(ctx context.Context, url string, entry *model.Entry, baseURL string, headers map[string]string) Result {
	// SSRF事前チェック: 内部宛先は黙って落とさず明示的な失敗として報告する
	if d.guard.IsInternal(url) {
		d.logger.Warn("内部URLへのWebhook配信をブロックしました",
			slog.String("entry_id", entry.ID),
		)
		return Result{Success: false, Error: model.DeliveryReasonInternalURLBlocked}
	}

	body, err := json.Marshal(buildPayload(entry, baseURL))
	if err != nil {
		return Result{Success: false, Error: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Result{Success: false, Error: err.Error()}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", defaultUserAgent)
	// 呼び出し元指定のヘッダーはデフォルトを上書きできる
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := d.httpClient.Do(req)
	if d.observer != nil {
		d.observer.RecordWebhookLatency(time.Since(start))
	}
	if err != nil {
		d.logger.Warn("Webhook配信に失敗しました",
			slog.String("entry_id", entry.ID),
			slog.String("error", err.Error()),
		)
		return Result{Success: false, Error: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		d.logger.Warn("Webhookがエラーステータスを返しました",
			slog.String("entry_id", entry.ID),
			slog.Int("http_status", resp.StatusCode),
		)
		return Result{Success: false, Error: fmt.Sprintf("HTTP %d", resp.StatusCode)}
	}

	return Result{Success: true}
}

// buildPayload はエントリからWebhookペイロードを構築する。
func buildPayload(entry *model.Entry, baseURL string) payload {
	var handle *string
	if entry.AuthorHandle != "" {
		h := entry.AuthorHandle
		handle = &h
	}

	var inReplyTo *string
	if entry.InReplyTo != "" {
		r := entry.InReplyTo
		inReplyTo = &r
	}

	to := entry.To
	if to == nil {
		to = []string{}
	}

	return payload{
		Event:   EventEntryPublished,
		EntryID: entry.ID,
		Author: payloadAuthor{
			Handle:    handle,
			Pseudonym: entry.AuthorPseudonym,
		},
		Content:      entry.Content,
		Timestamp:    entry.CreatedAt.UnixMilli(),
		TimestampISO: entry.CreatedAt.UTC().Format(time.RFC3339),
		Visibility:   string(entry.Visibility()),
		To:           to,
		InReplyTo:    inReplyTo,
		URL:          fmt.Sprintf("%s/entries/%s", baseURL, entry.ID),
	}
}
