package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/notehub/internal/model"
)

// NotificationStore は通知レコードの永続化インターフェース。
type NotificationStore interface {
	Create(ctx context.Context, n *model.Notification) error
}

// CreationCounter は通知作成数の記録インターフェース。
type CreationCounter interface {
	RecordNotificationCreated()
}

// Service はアドレス指定されたエントリの通知記録を行う。
// 配信オーケストレータから呼ばれ、ハンドルごとの1日上限を尊重する。
type Service struct {
	store   NotificationStore
	limiter *DailyLimiter
	counter CreationCounter // nil許容
	logger  *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(store NotificationStore, limiter *DailyLimiter, logger *slog.Logger) *Service {
	return &Service{
		store:   store,
		limiter: limiter,
		logger:  logger,
	}
}

// SetCreationCounter は通知作成数の記録先を設定する。
func (s *Service) SetCreationCounter(counter CreationCounter) {
	s.counter = counter
}

// RecordAddressed はエントリの宛先となったハンドルに通知レコードを作成する。
// 戻り値のboolは受信者が1日上限内だったかを示す。上限を超えたハンドルへの
// 通知はスキップし（false, nil）、エラーにはしない。
// 1日上限のカウンターは通知経路全体で共有されるため、呼び出し元は
// このboolをメール一括送信への組み入れ判定にも使える。
// 永続化の失敗はログに記録して呼び出し元に返す（上限内なのでtrue）。
func (s *Service) RecordAddressed(ctx context.Context, entry *model.Entry, recipientHandle string) (bool, error) {
	if !s.limiter.Allow(recipientHandle) {
		s.logger.Warn("通知の1日上限に達したためスキップします",
			slog.String("recipient_handle", recipientHandle),
			slog.String("entry_id", entry.ID),
		)
		return false, nil
	}

	n := &model.Notification{
		ID:              uuid.New().String(),
		RecipientHandle: recipientHandle,
		EntryID:         entry.ID,
		AuthorPseudonym: entry.AuthorPseudonym,
		CreatedAt:       time.Now(),
	}

	if err := s.store.Create(ctx, n); err != nil {
		s.logger.Error("通知レコードの作成に失敗しました",
			slog.String("recipient_handle", recipientHandle),
			slog.String("entry_id", entry.ID),
			slog.String("error", err.Error()),
		)
		return true, fmt.Errorf("failed to create notification: %w", err)
	}

	if s.counter != nil {
		s.counter.RecordNotificationCreated()
	}

	return true, nil
}
