// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/hitoshi/notehub/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByHandle は小文字正規化済みハンドルでユーザーを検索する。見つからない場合はnilを返す。
	FindByHandle(ctx context.Context, handle string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する（大文字小文字を無視）。
	// 見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// FindByAPIToken はAPIトークンでユーザーを検索する。見つからない場合はnilを返す。
	FindByAPIToken(ctx context.Context, token string) (*model.User, error)

	// Create はユーザーを作成する。
	Create(ctx context.Context, user *model.User) error
}

// ChannelRepository はチャンネルデータの永続化インターフェース。
type ChannelRepository interface {
	// FindByID は指定IDのチャンネルを購読者リスト付きで取得する。
	// 見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Channel, error)

	// Create はチャンネルとオーナー購読者を同一トランザクションで作成する。
	Create(ctx context.Context, channel *model.Channel) error

	// AddSubscriber は購読者を追加する。既に購読済みの場合は何もしない（冪等）。
	AddSubscriber(ctx context.Context, channelID string, sub model.Subscriber) error

	// RemoveSubscriber は購読者を削除する。
	RemoveSubscriber(ctx context.Context, channelID, handle string) error

	// List は全チャンネルを作成日時順で返す。購読者リストは含まない。
	List(ctx context.Context) ([]*model.Channel, error)

	// ListByHandle は指定ハンドルが購読中のチャンネルを参加日時順で返す。
	// 購読者リストは含まない。
	ListByHandle(ctx context.Context, handle string) ([]*model.Channel, error)
}

// EntryRepository は公開済みエントリの永続化インターフェース。
// ステージング中のエントリはここを通らない（stagingパッケージ参照）。
type EntryRepository interface {
	// Insert はエントリを耐久保存する。
	Insert(ctx context.Context, entry *model.Entry) error

	// FindByID は指定IDのエントリを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Entry, error)

	// DeleteByID は指定IDのエントリを削除する。
	// 削除された場合true、存在しなかった場合falseを返す。
	DeleteByID(ctx context.Context, id string) (bool, error)

	// ListRecent はcursorより古いエントリをcreated_at降順で取得する。
	// cursorがゼロ値の場合は先頭から取得する。
	ListRecent(ctx context.Context, cursor time.Time, limit int) ([]*model.Entry, error)

	// ListByAuthor は指定投稿者のエントリをcreated_at降順で取得する。
	ListByAuthor(ctx context.Context, pseudonym string, limit int) ([]*model.Entry, error)

	// ListReplies は指定エントリへの返信をcreated_at昇順で取得する。
	ListReplies(ctx context.Context, parentID string, limit int) ([]*model.Entry, error)
}

// StagedEntryRepository はステージング中エントリのジャーナル永続化インターフェース。
// staging.Journalの実装であり、プロセス再起動時の復元にのみ使われる。
type StagedEntryRepository interface {
	// Save はステージング中エントリを冪等にUPSERTする。
	Save(ctx context.Context, entry *model.Entry) error

	// DeleteByID は指定IDのジャーナルレコードを削除する。
	DeleteByID(ctx context.Context, id string) error

	// ListAll は全ジャーナルレコードを返す。
	ListAll(ctx context.Context) ([]*model.Entry, error)
}

// NotificationRepository はアプリ内通知の永続化インターフェース。
type NotificationRepository interface {
	// Create は通知レコードを作成する。
	Create(ctx context.Context, n *model.Notification) error

	// ListByRecipient は指定ハンドル宛の通知をcreated_at降順で取得する。
	ListByRecipient(ctx context.Context, handle string, limit int) ([]*model.Notification, error)
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
