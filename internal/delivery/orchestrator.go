// Package delivery はエントリの宛先への配信オーケストレーションを提供する。
// 宛先を種別ごとに振り分け、メール宛先を1通にまとめ、Webhookを個別に
// 配信し、宛先ごとの結果を入力順で返す。
package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/hitoshi/notehub/internal/destination"
	"github.com/hitoshi/notehub/internal/mail"
	"github.com/hitoshi/notehub/internal/model"
	"github.com/hitoshi/notehub/internal/webhook"
)

// maxWebhookConcurrency は1エントリのWebhook配信の最大並列数。
const maxWebhookConcurrency = 5

// Result は宛先1件の配信結果を表す。
// Destinationは入力のtoリストの同じ位置の生文字列と一致する。
type Result struct {
	Destination string `json:"destination"`
	Success     bool   `json:"success"`
	Error       string `json:"error,omitempty"`
}

// WebhookDeliverer はWebhook配信のインターフェース。
type WebhookDeliverer interface {
	Deliver(ctx context.Context, url string, entry *model.Entry, baseURL string, headers map[string]string) webhook.Result
}

// Notifier はアプリ内通知の記録インターフェース。
// 戻り値のboolは受信者が1日上限内だったかを示す。上限カウンターは
// 通知経路とメール一括送信で共有され、falseの受信者はメールからも除外される。
type Notifier interface {
	RecordAddressed(ctx context.Context, entry *model.Entry, recipientHandle string) (bool, error)
}

// EmailBatchObserver は同報メール宛先数の記録インターフェース。
type EmailBatchObserver interface {
	RecordEmailBatchSize(size int)
}

// Orchestrator はエントリ公開時の宛先配信を統括する。
// メールクライアントと通知サービスはnil許容（未設定として扱う）。
type Orchestrator struct {
	resolver      *destination.Resolver
	dispatcher    WebhookDeliverer
	mailClient    mail.Client
	mailFrom      string
	baseURL       string
	notifier      Notifier
	batchObserver EmailBatchObserver // nil許容
	logger        *slog.Logger
}

// NewOrchestrator はOrchestratorの新しいインスタンスを生成する。
func NewOrchestrator(
	resolver *destination.Resolver,
	dispatcher WebhookDeliverer,
	mailClient mail.Client,
	mailFrom string,
	baseURL string,
	notifier Notifier,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		resolver:   resolver,
		dispatcher: dispatcher,
		mailClient: mailClient,
		mailFrom:   mailFrom,
		baseURL:    baseURL,
		notifier:   notifier,
		logger:     logger,
	}
}

// SetEmailBatchObserver は同報メール宛先数の記録先を設定する。
func (o *Orchestrator) SetEmailBatchObserver(observer EmailBatchObserver) {
	o.batchObserver = observer
}

// Deliver はエントリを全宛先へ配信し、宛先ごとの結果を入力順で返す。
// 配信の失敗は結果として報告され、他の宛先の処理を止めない。
// メール宛先は1通にまとめて送信し、一括送信の失敗はログに記録するだけで
// 確定済みの宛先ごとの結果を覆さない。
func (o *Orchestrator) Deliver(ctx context.Context, entry *model.Entry, author *model.User) []Result {
	if len(entry.To) == 0 {
		return []Result{}
	}

	// CC/Reply-To用の投稿者メールアドレス（確認済みの場合のみ）
	authorEmail := ""
	if author != nil && author.EmailVerified && author.Email != "" {
		authorEmail = author.Email
	}

	resolved := o.resolver.Resolve(ctx, destination.ParseAll(entry.To))

	results := make([]Result, len(resolved))
	var batch []string
	var webhookIdx []int

	for i, rd := range resolved {
		raw := entry.To[i]

		switch d := rd.Destination.(type) {
		case destination.Handle:
			if rd.User == nil {
				results[i] = Result{Destination: raw, Success: false, Error: model.DeliveryReasonUserNotFound}
				continue
			}
			// 宛先指定自体は有効。メールが送れなくてもアプリ内での
			// 閲覧可否で配信済みとみなし、成功として報告する。
			results[i] = Result{Destination: raw, Success: true}
			if addr, ok := o.admitRecipient(ctx, entry, rd.User); ok {
				batch = appendAddress(batch, addr)
			}

		case destination.Email:
			if !o.mailConfigured() {
				results[i] = Result{Destination: raw, Success: false, Error: model.DeliveryReasonEmailNotConfigured}
				continue
			}
			results[i] = Result{Destination: raw, Success: true}
			if rd.User != nil {
				if addr, ok := o.admitRecipient(ctx, entry, rd.User); ok {
					batch = appendAddress(batch, addr)
				}
			} else {
				// ユーザー登録のないアドレスは宛先の文字列へそのまま送る
				batch = appendAddress(batch, d.Address)
			}

		case destination.Channel:
			// チャンネルは閲覧時にライブ解決されるため配信アクション不要
			results[i] = Result{Destination: raw, Success: true}

		case destination.Webhook:
			webhookIdx = append(webhookIdx, i)
		}
	}

	o.dispatchWebhooks(ctx, entry, resolved, webhookIdx, results)

	if len(batch) > 0 {
		o.sendBatch(ctx, entry, batch, authorEmail)
	}

	return results
}

// admitRecipient は解決済みユーザーを通知経路に通し、メール一括送信へ
// 組み入れるアドレスを返す。通知記録と1日上限の判定を1回で行う。
func (o *Orchestrator) admitRecipient(ctx context.Context, entry *model.Entry, user *model.User) (string, bool) {
	withinCap := true
	if o.notifier != nil && user.Handle != "" {
		notified, err := o.notifier.RecordAddressed(ctx, entry, user.Handle)
		if err != nil {
			o.logger.Error("アプリ内通知の記録に失敗しました",
				slog.String("entry_id", entry.ID),
				slog.String("recipient_handle", user.Handle),
				slog.String("error", err.Error()),
			)
		}
		withinCap = notified
	}

	if !withinCap || !o.mailConfigured() || !user.HasNotifiableEmail() {
		return "", false
	}

	return user.Email, true
}

// dispatchWebhooks はWebhook宛先をsemaphoreパターンで並列配信する。
// 完了順に関わらず結果は入力位置へ書き込まれる。
func (o *Orchestrator) dispatchWebhooks(ctx context.Context, entry *model.Entry, resolved []destination.Resolved, indexes []int, results []Result) {
	if len(indexes) == 0 {
		return
	}

	sem := make(chan struct{}, maxWebhookConcurrency)
	var wg sync.WaitGroup

	for _, i := range indexes {
		wg.Add(1)
		sem <- struct{}{} // semaphore取得（ブロック）

		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }() // semaphore解放

			// 1宛先の異常が他の宛先の処理を道連れにしないようにする
			defer func() {
				if r := recover(); r != nil {
					o.logger.Error("Webhook配信中にpanicが発生しました",
						slog.String("entry_id", entry.ID),
						slog.Any("panic", r),
					)
					results[i] = Result{Destination: entry.To[i], Success: false, Error: fmt.Sprintf("panic: %v", r)}
				}
			}()

			wh := resolved[i].Destination.(destination.Webhook)
			r := o.dispatcher.Deliver(ctx, wh.URL, entry, o.baseURL, nil)
			results[i] = Result{Destination: entry.To[i], Success: r.Success, Error: r.Error}
		}(i)
	}

	wg.Wait()
}

// sendBatch は一括送信対象の全アドレスへちょうど1通のメールを送る。
// CCは投稿者がtoに含まれない場合のみ付け、Reply-Toは常に投稿者とする。
// 送信失敗はログに記録するだけで、宛先ごとの結果には反映しない。
func (o *Orchestrator) sendBatch(ctx context.Context, entry *model.Entry, batch []string, authorEmail string) {
	cc := ""
	if authorEmail != "" && !containsAddress(batch, authorEmail) {
		cc = authorEmail
	}

	msg := &mail.Message{
		From:    o.mailFrom,
		To:      batch,
		Subject: fmt.Sprintf("%s さんからノートが届きました", entry.AuthorPseudonym),
		HTML:    buildMailBody(entry, o.baseURL),
		CC:      cc,
		ReplyTo: authorEmail,
	}

	if o.batchObserver != nil {
		o.batchObserver.RecordEmailBatchSize(len(batch))
	}

	if err := o.mailClient.Send(ctx, msg); err != nil {
		o.logger.Error("一括メール送信に失敗しました",
			slog.String("entry_id", entry.ID),
			slog.Int("recipient_count", len(batch)),
			slog.String("error", err.Error()),
		)
		return
	}

	o.logger.Info("一括メールを送信しました",
		slog.String("entry_id", entry.ID),
		slog.Int("recipient_count", len(batch)),
	)
}

func (o *Orchestrator) mailConfigured() bool {
	return o.mailClient != nil
}

// buildMailBody は通知メールのHTML本文を構築する。
// 本文はエントリ作成時にサニタイズ済みであることを前提とする。
func buildMailBody(entry *model.Entry, baseURL string) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("<p><strong>%s</strong> さんがあなた宛のノートを公開しました。</p>", entry.AuthorPseudonym))
	b.WriteString("<hr>")
	b.WriteString(entry.Content)
	b.WriteString("<hr>")
	b.WriteString(fmt.Sprintf(`<p><a href="%s/entries/%s">ノートを開く</a></p>`, baseURL, entry.ID))
	return b.String()
}

// appendAddress は重複を除いてアドレスを追加する（大文字小文字を無視、先勝ち）。
func appendAddress(batch []string, addr string) []string {
	if containsAddress(batch, addr) {
		return batch
	}
	return append(batch, addr)
}

func containsAddress(batch []string, addr string) bool {
	for _, a := range batch {
		if strings.EqualFold(a, addr) {
			return true
		}
	}
	return false
}
