// Package staging はエントリの時間差公開バッファを提供する。
// 新規エントリは公開期限までメモリ上に保留され、期限到達または
// 投稿者の明示操作で耐久ストレージへ昇格する。保留中のエントリは
// 投稿者本人にのみ見える。
package staging

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/hitoshi/notehub/internal/model"
)

// EntryWriter は昇格したエントリの耐久保存インターフェース。
type EntryWriter interface {
	Insert(ctx context.Context, entry *model.Entry) error
}

// Journal は保留セットのプロセス再起動対策の永続化インターフェース。
// バッファ自体はメモリが正であり、ジャーナルは復旧用の写しにすぎない。
type Journal interface {
	Save(ctx context.Context, entry *model.Entry) error
	DeleteByID(ctx context.Context, id string) error
	ListAll(ctx context.Context) ([]*model.Entry, error)
}

// PublishCallback は昇格直後に同期的に呼ばれる公開後処理。
// panicとエラーは捕捉してログに記録され、昇格自体を失敗させない。
type PublishCallback func(ctx context.Context, entry *model.Entry)

// Store は保留中エントリの唯一の所有者。
// 保留セットへの変更はすべてStoreのメソッドを経由する。
type Store struct {
	mu      sync.Mutex
	pending map[string]*model.Entry

	writer    EntryWriter
	journal   Journal // nil許容
	onPublish PublishCallback
	logger    *slog.Logger
}

// NewStore はStoreの新しいインスタンスを生成する。
// journalはnil許容で、nilの場合は再起動で保留エントリが失われる。
func NewStore(writer EntryWriter, journal Journal, logger *slog.Logger) *Store {
	return &Store{
		pending: make(map[string]*model.Entry),
		writer:  writer,
		journal: journal,
		logger:  logger,
	}
}

// SetPublishCallback は公開後処理のコールバックを登録する。
// 昇格が始まる前（起動時）に設定すること。
func (s *Store) SetPublishCallback(fn PublishCallback) {
	s.onPublish = fn
}

// Add はエントリを保留バッファに追加する。
// PublishAtが未設定のエントリは保留できない。
func (s *Store) Add(ctx context.Context, entry *model.Entry) error {
	if entry.PublishAt == nil {
		return fmt.Errorf("entry %s has no publish deadline", entry.ID)
	}

	s.mu.Lock()
	s.pending[entry.ID] = entry.Clone()
	s.mu.Unlock()

	if s.journal != nil {
		if err := s.journal.Save(ctx, entry); err != nil {
			// メモリが正。ジャーナル書き込み失敗は復旧可能性の低下として警告に留める。
			s.logger.Warn("保留エントリのジャーナル書き込みに失敗しました",
				slog.String("entry_id", entry.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	return nil
}

// Get は保留中のエントリを返す。存在しない場合はnil。
func (s *Store) Get(id string) *model.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.pending[id]
	if !ok {
		return nil
	}
	return entry.Clone()
}

// Delete は保留中のエントリを破棄する。エントリは耐久化されずに消える。
// 存在しないIDの削除はfalseを返すだけでエラーにしない。
func (s *Store) Delete(ctx context.Context, id string) bool {
	s.mu.Lock()
	_, ok := s.pending[id]
	if ok {
		delete(s.pending, id)
	}
	s.mu.Unlock()

	if ok && s.journal != nil {
		if err := s.journal.DeleteByID(ctx, id); err != nil {
			s.logger.Warn("保留エントリのジャーナル削除に失敗しました",
				slog.String("entry_id", id),
				slog.String("error", err.Error()),
			)
		}
	}

	return ok
}

// PublishNow は保留中のエントリを期限を待たず即時昇格する。
// 保留中でないID（公開済みまたは不存在）に対してはnil, nilを返す
// 冪等な操作であり、二重公開は起きない。
func (s *Store) PublishNow(ctx context.Context, id string) (*model.Entry, error) {
	s.mu.Lock()
	entry, ok := s.pending[id]
	if !ok {
		s.mu.Unlock()
		return nil, nil
	}
	delete(s.pending, id)
	s.mu.Unlock()

	published, err := s.promote(ctx, entry)
	if err != nil {
		// 耐久保存に失敗した場合は保留に戻し、次回のスイープで再試行する
		s.mu.Lock()
		s.pending[id] = entry
		s.mu.Unlock()
		return nil, err
	}

	return published, nil
}

// PromoteDue は期限を過ぎた保留エントリをすべて昇格し、昇格した
// エントリを期限の早い順で返す。個々の昇格失敗は保留のまま残し、
// 他のエントリの昇格を止めない。
func (s *Store) PromoteDue(ctx context.Context, now time.Time) []*model.Entry {
	s.mu.Lock()
	var due []*model.Entry
	for _, entry := range s.pending {
		if !entry.PublishAt.After(now) {
			due = append(due, entry)
		}
	}
	for _, entry := range due {
		delete(s.pending, entry.ID)
	}
	s.mu.Unlock()

	// 昇格順を安定させる（期限の早い順）
	sort.Slice(due, func(i, j int) bool {
		return due[i].PublishAt.Before(*due[j].PublishAt)
	})

	var promoted []*model.Entry
	for _, entry := range due {
		published, err := s.promote(ctx, entry)
		if err != nil {
			s.logger.Error("保留エントリの昇格に失敗しました",
				slog.String("entry_id", entry.ID),
				slog.String("error", err.Error()),
			)
			s.mu.Lock()
			s.pending[entry.ID] = entry
			s.mu.Unlock()
			continue
		}
		promoted = append(promoted, published)
	}

	return promoted
}

// promote はエントリを耐久ストレージへ保存し、公開後処理を呼ぶ。
// PublishAtは耐久保存の前に取り除く。呼び出し時点でエントリは
// 保留セットから外れていること。
func (s *Store) promote(ctx context.Context, entry *model.Entry) (*model.Entry, error) {
	published := entry.Clone()
	published.PublishAt = nil

	if err := s.writer.Insert(ctx, published); err != nil {
		return nil, fmt.Errorf("failed to persist entry %s: %w", entry.ID, err)
	}

	if s.journal != nil {
		if err := s.journal.DeleteByID(ctx, entry.ID); err != nil {
			s.logger.Warn("昇格済みエントリのジャーナル削除に失敗しました",
				slog.String("entry_id", entry.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.firePublishCallback(ctx, published)

	s.logger.Info("保留エントリを公開しました",
		slog.String("entry_id", published.ID),
	)

	return published, nil
}

// firePublishCallback は公開後処理を同期実行する。
// コールバックのpanicは捕捉し、昇格処理を巻き込まない。
func (s *Store) firePublishCallback(ctx context.Context, entry *model.Entry) {
	if s.onPublish == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("公開後処理でpanicが発生しました",
				slog.String("entry_id", entry.ID),
				slog.Any("panic", r),
			)
		}
	}()

	s.onPublish(ctx, entry)
}

// ListByAuthor は指定投稿者の保留中エントリを作成日時順で返す。
// 保留中のエントリは投稿者本人にのみ見せること。
func (s *Store) ListByAuthor(pseudonym string) []*model.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	var entries []*model.Entry
	for _, entry := range s.pending {
		if entry.AuthorPseudonym == pseudonym {
			entries = append(entries, entry.Clone())
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})

	return entries
}

// Count は保留中のエントリ数を返す。メトリクス用。
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Snapshot は保留セット全体の写しを返す。
func (s *Store) Snapshot() []*model.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]*model.Entry, 0, len(s.pending))
	for _, entry := range s.pending {
		entries = append(entries, entry.Clone())
	}
	return entries
}

// Restore は保留セットをスナップショットで置き換える。
// プロセス再起動後にジャーナルから呼ぶことを想定している。
func (s *Store) Restore(entries []*model.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = make(map[string]*model.Entry, len(entries))
	for _, entry := range entries {
		if entry.PublishAt == nil {
			continue
		}
		s.pending[entry.ID] = entry.Clone()
	}
}

// RestoreFromJournal はジャーナルから保留セットを復元する。
func (s *Store) RestoreFromJournal(ctx context.Context) error {
	if s.journal == nil {
		return nil
	}

	entries, err := s.journal.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to restore staged entries: %w", err)
	}

	s.Restore(entries)

	s.logger.Info("保留エントリをジャーナルから復元しました",
		slog.Int("restored_count", s.Count()),
	)

	return nil
}
