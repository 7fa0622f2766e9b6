package destination

import (
	"context"
	"log/slog"

	"github.com/hitoshi/notehub/internal/model"
)

// UserLookup は宛先解決に必要なユーザー検索のインターフェース。
// repository.UserRepositoryの部分集合として定義する。
// 見つからない場合はエラーではなくnilを返す。
type UserLookup interface {
	// FindByHandle は小文字正規化済みハンドルでユーザーを検索する。
	FindByHandle(ctx context.Context, handle string) (*model.User, error)
	// FindByEmail は小文字正規化済みメールアドレスでユーザーを検索する。
	FindByEmail(ctx context.Context, email string) (*model.User, error)
}

// Resolved は解決済みの宛先を表す。
// HandleとEmailにはユーザー検索の結果が付与される。該当ユーザーが
// 存在しない場合 User はnilのままとなる。不在は配信段階で宛先ごとの
// 失敗として報告され、解決段階ではエラーにならない。
// ChannelとWebhookは外部状態を必要としないため素通しされる。
type Resolved struct {
	Destination
	User *model.User
}

// Resolver は宛先リストをユーザーストアと突き合わせて解決する。
type Resolver struct {
	users  UserLookup
	logger *slog.Logger
}

// NewResolver はResolverの新しいインスタンスを生成する。
func NewResolver(users UserLookup, logger *slog.Logger) *Resolver {
	return &Resolver{users: users, logger: logger}
}

// Resolve は宛先リストを解決し、入力と同じ順序で返す。
// 個々の宛先の検索エラーはその宛先の未解決として扱い、
// リスト全体の処理を中断しない。
func (r *Resolver) Resolve(ctx context.Context, dests []Destination) []Resolved {
	if len(dests) == 0 {
		return nil
	}

	resolved := make([]Resolved, len(dests))
	for i, d := range dests {
		resolved[i] = Resolved{Destination: d}

		switch v := d.(type) {
		case Handle:
			user, err := r.users.FindByHandle(ctx, v.Name)
			if err != nil {
				r.logger.Warn("ハンドルの解決に失敗しました",
					slog.String("handle", v.Name),
					slog.String("error", err.Error()),
				)
				continue
			}
			resolved[i].User = user
		case Email:
			user, err := r.users.FindByEmail(ctx, v.Address)
			if err != nil {
				r.logger.Warn("メールアドレスの解決に失敗しました",
					slog.String("error", err.Error()),
				)
				continue
			}
			resolved[i].User = user
		case Channel, Webhook:
			// 解決不要。配信段階でそのまま処理する。
		}
	}

	return resolved
}
