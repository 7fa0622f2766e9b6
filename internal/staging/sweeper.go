package staging

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/notehub/internal/model"
)

// Sweeper は保留バッファの定期スイープを行う。
// 固定間隔で期限到達エントリを昇格させ、昇格したエントリの配信を起動する。
type Sweeper struct {
	store   *Store
	publish func(ctx context.Context, entry *model.Entry)
	logger  *slog.Logger
}

// NewSweeper はSweeperの新しいインスタンスを生成する。
// publishは昇格したエントリごとに呼ばれる配信フック。nil許容。
func NewSweeper(store *Store, publish func(ctx context.Context, entry *model.Entry), logger *slog.Logger) *Sweeper {
	return &Sweeper{store: store, publish: publish, logger: logger}
}

// Start は指定間隔のティッカーでスイープを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Sweeper) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("公開スイープを開始しました",
		slog.Duration("interval", interval),
	)

	// 起動直後に1回実行（再起動中に期限を過ぎたエントリを救う）
	s.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("公開スイープを停止しました")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce は期限到達エントリの昇格と配信を1回実行する。
func (s *Sweeper) RunOnce(ctx context.Context) {
	start := time.Now()

	promoted := s.store.PromoteDue(ctx, time.Now())
	if len(promoted) == 0 {
		return
	}

	if s.publish != nil {
		for _, entry := range promoted {
			s.publish(ctx, entry)
		}
	}

	s.logger.Info("公開スイープが完了しました",
		slog.Int("promoted_count", len(promoted)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
}
