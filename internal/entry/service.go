// Package entry はノートの作成・閲覧・削除・公開操作を提供する。
// 新規ノートはステージングバッファを経由し、期限到達または明示操作で
// 公開される。閲覧はaccessパッケージの判定に従う。
package entry

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/notehub/internal/access"
	"github.com/hitoshi/notehub/internal/delivery"
	"github.com/hitoshi/notehub/internal/model"
	"github.com/hitoshi/notehub/internal/repository"
	"github.com/hitoshi/notehub/internal/security"
	"github.com/hitoshi/notehub/internal/staging"
)

// EntryPublisher は公開直後の配信起動インターフェース。
// delivery.Publisherが実装する。
type EntryPublisher interface {
	Publish(ctx context.Context, entry *model.Entry) []delivery.Result
}

// Service はエントリ操作のアプリケーションサービス。
type Service struct {
	entries      repository.EntryRepository
	channels     access.ChannelLookup
	staged       *staging.Store
	sanitizer    security.ContentSanitizerService
	publisher    EntryPublisher // nil許容
	logger       *slog.Logger
	stagingDelay time.Duration
}

// NewService はServiceの新しいインスタンスを生成する。
// stagingDelayが0以下の場合、新規エントリは即時公開される。
func NewService(
	entries repository.EntryRepository,
	channels access.ChannelLookup,
	staged *staging.Store,
	sanitizer security.ContentSanitizerService,
	publisher EntryPublisher,
	logger *slog.Logger,
	stagingDelay time.Duration,
) *Service {
	return &Service{
		entries:      entries,
		channels:     channels,
		staged:       staged,
		sanitizer:    sanitizer,
		publisher:    publisher,
		logger:       logger,
		stagingDelay: stagingDelay,
	}
}

// CreateInput はエントリ作成の入力。
type CreateInput struct {
	Content   string
	To        []string
	InReplyTo string
	AIOnly    bool
}

// Create は新規エントリをステージングバッファへ追加する。
// 本文はサニタイズして保存する。stagingDelayが0以下の場合は即時公開する。
func (s *Service) Create(ctx context.Context, author *model.User, input CreateInput) (*model.Entry, error) {
	content := s.sanitizer.Sanitize(input.Content)
	if strings.TrimSpace(content) == "" {
		return nil, model.NewInvalidContentError()
	}

	// 空要素を除いた宛先リスト。順序は配信結果と位置対応するため保持する。
	var to []string
	for _, raw := range input.To {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		to = append(to, raw)
	}

	now := time.Now()
	e := &model.Entry{
		ID:              uuid.New().String(),
		AuthorPseudonym: author.Pseudonym,
		AuthorHandle:    author.Handle,
		Content:         content,
		CreatedAt:       now,
		To:              to,
		InReplyTo:       input.InReplyTo,
		AIOnly:          input.AIOnly,
	}

	publishAt := now.Add(s.stagingDelay)
	e.PublishAt = &publishAt

	if err := s.staged.Add(ctx, e); err != nil {
		return nil, fmt.Errorf("failed to stage entry: %w", err)
	}

	s.logger.Info("エントリをステージングしました",
		slog.String("entry_id", e.ID),
		slog.String("author_pseudonym", e.AuthorPseudonym),
		slog.Int("destination_count", len(to)),
		slog.Time("publish_at", publishAt),
	)

	// 遅延なしの構成では作成と同時に公開する
	if s.stagingDelay <= 0 {
		published, err := s.staged.PublishNow(ctx, e.ID)
		if err != nil {
			return nil, err
		}
		s.deliver(ctx, published)
		return published, nil
	}

	return e, nil
}

// Get は指定IDのエントリを閲覧者の権限で取得する。
// ステージング中のエントリは投稿者本人にのみ見え、他の閲覧者には
// 存在ごと隠す。AI専用エントリの本文は投稿者とAI閲覧以外には
// スタブに置き換える。
func (s *Service) Get(ctx context.Context, id string, viewer *model.User, aiView bool) (*model.Entry, error) {
	if e := s.staged.Get(id); e != nil {
		if viewer == nil || viewer.Pseudonym != e.AuthorPseudonym {
			return nil, model.NewEntryNotFoundError(id)
		}
		return e, nil
	}

	e, err := s.entries.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, model.NewEntryNotFoundError(id)
	}

	isAuthor := viewer != nil && viewer.Pseudonym == e.AuthorPseudonym
	v := access.Viewer{IsAuthor: isAuthor}
	if viewer != nil {
		v.Handle = viewer.Handle
		v.Email = viewer.Email
	}

	ok, err := access.CanView(ctx, e, v, s.channels, nil)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, model.NewForbiddenError()
	}

	return s.presentContent(e, isAuthor, aiView), nil
}

// Feed は閲覧者が見てよい公開済みエントリをcreated_at降順で返す。
// チャンネル所属の判定はこの1回の呼び出しの間だけキャッシュする。
func (s *Service) Feed(ctx context.Context, viewer *model.User, aiView bool, cursor time.Time, limit int) ([]*model.Entry, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	candidates, err := s.entries.ListRecent(ctx, cursor, limit)
	if err != nil {
		return nil, err
	}

	// 1認可パスぶんのチャンネル所属キャッシュ。リクエストをまたいで共有しない。
	cache := access.NewMembershipCache()

	visible := make([]*model.Entry, 0, len(candidates))
	for _, e := range candidates {
		isAuthor := viewer != nil && viewer.Pseudonym == e.AuthorPseudonym
		v := access.Viewer{IsAuthor: isAuthor}
		if viewer != nil {
			v.Handle = viewer.Handle
			v.Email = viewer.Email
		}

		ok, err := access.CanView(ctx, e, v, s.channels, cache)
		if err != nil {
			s.logger.Warn("閲覧判定に失敗したためエントリを除外します",
				slog.String("entry_id", e.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if !ok {
			continue
		}
		visible = append(visible, s.presentContent(e, isAuthor, aiView))
	}

	return visible, nil
}

// Replies は指定エントリへの返信をcreated_at昇順で返す。
// 親エントリが閲覧できない場合は返信も見えない。返信それぞれにも
// 閲覧判定を適用し、見えない返信は除外する。
func (s *Service) Replies(ctx context.Context, parentID string, viewer *model.User, aiView bool, limit int) ([]*model.Entry, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	// 親の閲覧判定はGetと同じルールに従う
	if _, err := s.Get(ctx, parentID, viewer, false); err != nil {
		return nil, err
	}

	candidates, err := s.entries.ListReplies(ctx, parentID, limit)
	if err != nil {
		return nil, err
	}

	cache := access.NewMembershipCache()

	visible := make([]*model.Entry, 0, len(candidates))
	for _, e := range candidates {
		isAuthor := viewer != nil && viewer.Pseudonym == e.AuthorPseudonym
		v := access.Viewer{IsAuthor: isAuthor}
		if viewer != nil {
			v.Handle = viewer.Handle
			v.Email = viewer.Email
		}

		ok, err := access.CanView(ctx, e, v, s.channels, cache)
		if err != nil {
			s.logger.Warn("閲覧判定に失敗したため返信を除外します",
				slog.String("entry_id", e.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if !ok {
			continue
		}
		visible = append(visible, s.presentContent(e, isAuthor, aiView))
	}

	return visible, nil
}

// Mine は投稿者本人の公開済みエントリをcreated_at降順で返す。
// ステージング中のエントリは含まない（Pending参照）。
func (s *Service) Mine(ctx context.Context, viewer *model.User, limit int) ([]*model.Entry, error) {
	if viewer == nil {
		return nil, model.NewForbiddenError()
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.entries.ListByAuthor(ctx, viewer.Pseudonym, limit)
}

// Pending は投稿者本人のステージング中エントリを返す。
func (s *Service) Pending(viewer *model.User) []*model.Entry {
	if viewer == nil {
		return nil
	}
	return s.staged.ListByAuthor(viewer.Pseudonym)
}

// PublishNow はステージング中のエントリを期限を待たず公開し、宛先と
// 位置対応する配信結果を返す。ステージング中でないID（公開済みまたは
// 不存在）に対してはnil, nil, nilを返す冪等な操作。投稿者本人以外は
// 実行できない。
func (s *Service) PublishNow(ctx context.Context, id string, viewer *model.User) (*model.Entry, []delivery.Result, error) {
	e := s.staged.Get(id)
	if e == nil {
		return nil, nil, nil
	}
	if viewer == nil || viewer.Pseudonym != e.AuthorPseudonym {
		return nil, nil, model.NewForbiddenError()
	}

	published, err := s.staged.PublishNow(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	return published, s.deliver(ctx, published), nil
}

// deliver は公開済みエントリの配信を起動する。
func (s *Service) deliver(ctx context.Context, e *model.Entry) []delivery.Result {
	if s.publisher == nil || e == nil {
		return []delivery.Result{}
	}
	return s.publisher.Publish(ctx, e)
}

// Delete はエントリを削除する。ステージング中のエントリは耐久化される
// 前に破棄され、公開済みのエントリは耐久レコードごと消える。
// いずれも投稿者本人以外は実行できない。
func (s *Service) Delete(ctx context.Context, id string, viewer *model.User) error {
	if e := s.staged.Get(id); e != nil {
		if viewer == nil || viewer.Pseudonym != e.AuthorPseudonym {
			return model.NewEntryNotFoundError(id)
		}
		s.staged.Delete(ctx, id)
		s.logger.Info("ステージング中のエントリを破棄しました",
			slog.String("entry_id", id),
		)
		return nil
	}

	e, err := s.entries.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if e == nil {
		return model.NewEntryNotFoundError(id)
	}
	if viewer == nil || viewer.Pseudonym != e.AuthorPseudonym {
		return model.NewForbiddenError()
	}

	deleted, err := s.entries.DeleteByID(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return model.NewEntryNotFoundError(id)
	}

	s.logger.Info("エントリを削除しました",
		slog.String("entry_id", id),
	)
	return nil
}

// presentContent はAI専用エントリの本文を閲覧者に応じて置き換える。
// 本文の置き換えであり、閲覧可否には影響しない。
func (s *Service) presentContent(e *model.Entry, isAuthor, aiView bool) *model.Entry {
	if !e.AIOnly || isAuthor || aiView {
		return e
	}
	stubbed := e.Clone()
	stubbed.Content = model.AIOnlyStub
	return stubbed
}
