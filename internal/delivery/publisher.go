package delivery

import (
	"context"
	"log/slog"

	"github.com/hitoshi/notehub/internal/destination"
	"github.com/hitoshi/notehub/internal/metrics"
	"github.com/hitoshi/notehub/internal/model"
)

// AuthorLookup は公開時の投稿者解決に必要なインターフェース。
// repository.UserRepositoryの部分集合として定義する。
type AuthorLookup interface {
	FindByHandle(ctx context.Context, handle string) (*model.User, error)
}

// Publisher はエントリ公開時の配信起動点。投稿者を解決して
// オーケストレーターへ委譲し、結果をメトリクスに計上する。
// APIの即時公開とスイープ昇格の両方からここを通る。
type Publisher struct {
	authors      AuthorLookup
	orchestrator *Orchestrator
	collector    metrics.MetricsCollector // nil許容
	logger       *slog.Logger
}

// NewPublisher はPublisherの新しいインスタンスを生成する。
func NewPublisher(authors AuthorLookup, orchestrator *Orchestrator, collector metrics.MetricsCollector, logger *slog.Logger) *Publisher {
	return &Publisher{
		authors:      authors,
		orchestrator: orchestrator,
		collector:    collector,
		logger:       logger,
	}
}

// Publish は公開済みエントリの配信を実行し、宛先と位置対応する結果を返す。
// 投稿者の解決に失敗しても配信は止めない（返信先なしの配信になる）。
func (p *Publisher) Publish(ctx context.Context, entry *model.Entry) []Result {
	var author *model.User
	if entry.AuthorHandle != "" {
		u, err := p.authors.FindByHandle(ctx, entry.AuthorHandle)
		if err != nil {
			p.logger.Warn("投稿者の解決に失敗しました",
				slog.String("entry_id", entry.ID),
				slog.String("author_handle", entry.AuthorHandle),
				slog.String("error", err.Error()),
			)
		}
		author = u
	}

	results := p.orchestrator.Deliver(ctx, entry, author)

	if p.collector != nil {
		p.collector.RecordEntryPublished()
		for _, r := range results {
			kind := destination.Parse(r.Destination).Kind()
			p.collector.RecordDeliveryResult(string(kind), r.Success)
		}
	}

	return results
}
