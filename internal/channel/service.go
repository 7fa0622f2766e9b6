// Package channel はチャンネルの作成・参加・脱退を提供する。
// チャンネルはエントリの宛先として #id 形式で参照され、メンバーシップは
// 閲覧時点のライブ判定に使われる。
package channel

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/hitoshi/notehub/internal/model"
	"github.com/hitoshi/notehub/internal/repository"
)

// チャンネルIDはスラグ形式（小文字英数とハイフン、英数始まり）に限る
var channelIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,63}$`)

// Service はチャンネル操作のアプリケーションサービス。
type Service struct {
	channels repository.ChannelRepository
	logger   *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(channels repository.ChannelRepository, logger *slog.Logger) *Service {
	return &Service{channels: channels, logger: logger}
}

// Create は新規チャンネルを作成する。オーナーは最初の購読者になる。
// IDは小文字に正規化され、既存IDとの重複はエラーになる。
func (s *Service) Create(ctx context.Context, id, name string, joinRule model.JoinRule, owner *model.User) (*model.Channel, error) {
	id = strings.ToLower(strings.TrimSpace(id))
	if !channelIDPattern.MatchString(id) {
		return nil, model.NewInvalidDestinationError("チャンネルIDはスラグ形式で指定してください")
	}
	if joinRule != model.JoinRuleOpen && joinRule != model.JoinRuleInvite {
		joinRule = model.JoinRuleOpen
	}

	existing, err := s.channels.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, model.NewChannelExistsError(id)
	}

	now := time.Now()
	ch := &model.Channel{
		ID:          id,
		Name:        name,
		JoinRule:    joinRule,
		OwnerHandle: owner.Handle,
		Subscribers: []model.Subscriber{
			{Handle: owner.Handle, Role: model.RoleOwner, JoinedAt: now},
		},
		CreatedAt: now,
	}

	if err := s.channels.Create(ctx, ch); err != nil {
		return nil, err
	}

	s.logger.Info("チャンネルを作成しました",
		slog.String("channel_id", id),
		slog.String("owner_handle", owner.Handle),
		slog.String("join_rule", string(joinRule)),
	)

	return ch, nil
}

// Join はユーザーをチャンネルに参加させる。参加済みの場合は何もしない（冪等）。
// 招待制チャンネルへの自己参加は拒否される。参加した瞬間から、その
// チャンネル宛の既存エントリが閲覧可能になる。
func (s *Service) Join(ctx context.Context, channelID string, user *model.User) error {
	ch, err := s.channels.FindByID(ctx, channelID)
	if err != nil {
		return err
	}
	if ch == nil {
		return model.NewChannelNotFoundError(channelID)
	}
	if ch.HasSubscriber(user.Handle) {
		return nil
	}
	if ch.JoinRule == model.JoinRuleInvite {
		return model.NewInviteOnlyError(channelID)
	}

	sub := model.Subscriber{Handle: user.Handle, Role: model.RoleMember, JoinedAt: time.Now()}
	if err := s.channels.AddSubscriber(ctx, channelID, sub); err != nil {
		return err
	}

	s.logger.Info("チャンネルに参加しました",
		slog.String("channel_id", channelID),
		slog.String("handle", user.Handle),
	)
	return nil
}

// Invite はオーナーが指定ハンドルをチャンネルに追加する。
// 招待制チャンネルに購読者を増やす唯一の経路。参加済みの場合は冪等。
func (s *Service) Invite(ctx context.Context, channelID string, inviter *model.User, handle string) error {
	ch, err := s.channels.FindByID(ctx, channelID)
	if err != nil {
		return err
	}
	if ch == nil {
		return model.NewChannelNotFoundError(channelID)
	}
	if ch.OwnerHandle != inviter.Handle {
		return model.NewForbiddenError()
	}

	handle = strings.ToLower(strings.TrimSpace(handle))
	if ch.HasSubscriber(handle) {
		return nil
	}

	sub := model.Subscriber{Handle: handle, Role: model.RoleMember, JoinedAt: time.Now()}
	if err := s.channels.AddSubscriber(ctx, channelID, sub); err != nil {
		return err
	}

	s.logger.Info("チャンネルに招待しました",
		slog.String("channel_id", channelID),
		slog.String("inviter_handle", inviter.Handle),
		slog.String("handle", handle),
	)
	return nil
}

// Leave はユーザーをチャンネルから脱退させる。オーナーは脱退できない。
// 脱退した瞬間から、そのチャンネル宛のエントリは閲覧できなくなる。
func (s *Service) Leave(ctx context.Context, channelID string, user *model.User) error {
	ch, err := s.channels.FindByID(ctx, channelID)
	if err != nil {
		return err
	}
	if ch == nil {
		return model.NewChannelNotFoundError(channelID)
	}
	if ch.OwnerHandle == user.Handle {
		return model.NewForbiddenError()
	}

	return s.channels.RemoveSubscriber(ctx, channelID, user.Handle)
}

// Get は指定IDのチャンネルを購読者リスト付きで返す。
func (s *Service) Get(ctx context.Context, channelID string) (*model.Channel, error) {
	ch, err := s.channels.FindByID(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if ch == nil {
		return nil, model.NewChannelNotFoundError(channelID)
	}
	return ch, nil
}

// List は全チャンネルを返す。購読者リストは含まない。
func (s *Service) List(ctx context.Context) ([]*model.Channel, error) {
	return s.channels.List(ctx)
}

// ListMine はユーザーが購読中のチャンネルを参加日時順で返す。
func (s *Service) ListMine(ctx context.Context, user *model.User) ([]*model.Channel, error) {
	return s.channels.ListByHandle(ctx, user.Handle)
}
