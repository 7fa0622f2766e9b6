package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/notehub/internal/model"
)

// PostgresChannelRepo はPostgreSQLを使用したチャンネルリポジトリ。
type PostgresChannelRepo struct {
	db *sql.DB
}

// NewPostgresChannelRepo はPostgresChannelRepoを生成する。
func NewPostgresChannelRepo(db *sql.DB) *PostgresChannelRepo {
	return &PostgresChannelRepo{db: db}
}

// FindByID は指定IDのチャンネルを購読者リスト付きで取得する。
// 見つからない場合はnilを返す。閲覧判定はこの購読者リストに対して
// 行われるため、常に最新の状態を読む。
func (r *PostgresChannelRepo) FindByID(ctx context.Context, id string) (*model.Channel, error) {
	channel := &model.Channel{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, join_rule, owner_handle, created_at FROM channels WHERE id = $1`,
		id,
	).Scan(&channel.ID, &channel.Name, &channel.JoinRule, &channel.OwnerHandle, &channel.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find channel: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT handle, role, joined_at FROM channel_subscribers
		 WHERE channel_id = $1 ORDER BY joined_at ASC`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list channel subscribers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var sub model.Subscriber
		if err := rows.Scan(&sub.Handle, &sub.Role, &sub.JoinedAt); err != nil {
			return nil, fmt.Errorf("failed to scan channel subscriber: %w", err)
		}
		channel.Subscribers = append(channel.Subscribers, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate channel subscribers: %w", err)
	}

	return channel, nil
}

// Create はチャンネルとオーナー購読者を同一トランザクションで作成する。
func (r *PostgresChannelRepo) Create(ctx context.Context, channel *model.Channel) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO channels (id, name, join_rule, owner_handle, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		channel.ID, channel.Name, channel.JoinRule, channel.OwnerHandle, channel.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert channel: %w", err)
	}

	for _, sub := range channel.Subscribers {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO channel_subscribers (channel_id, handle, role, joined_at)
			 VALUES ($1, $2, $3, $4)`,
			channel.ID, sub.Handle, sub.Role, sub.JoinedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert channel subscriber: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// AddSubscriber は購読者を追加する。既に購読済みの場合は何もしない（冪等）。
func (r *PostgresChannelRepo) AddSubscriber(ctx context.Context, channelID string, sub model.Subscriber) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO channel_subscribers (channel_id, handle, role, joined_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (channel_id, handle) DO NOTHING`,
		channelID, sub.Handle, sub.Role, sub.JoinedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to add channel subscriber: %w", err)
	}
	return nil
}

// RemoveSubscriber は購読者を削除する。
func (r *PostgresChannelRepo) RemoveSubscriber(ctx context.Context, channelID, handle string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM channel_subscribers WHERE channel_id = $1 AND handle = $2`,
		channelID, handle,
	)
	if err != nil {
		return fmt.Errorf("failed to remove channel subscriber: %w", err)
	}
	return nil
}

// List は全チャンネルを作成日時順で返す。購読者リストは含まない。
func (r *PostgresChannelRepo) List(ctx context.Context) ([]*model.Channel, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, join_rule, owner_handle, created_at FROM channels ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list channels: %w", err)
	}
	defer rows.Close()

	var channels []*model.Channel
	for rows.Next() {
		channel := &model.Channel{}
		if err := rows.Scan(&channel.ID, &channel.Name, &channel.JoinRule, &channel.OwnerHandle, &channel.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan channel: %w", err)
		}
		channels = append(channels, channel)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate channels: %w", err)
	}

	return channels, nil
}

// ListByHandle は指定ハンドルが購読中のチャンネルを参加日時順で返す。
// 購読者リストは含まない。
func (r *PostgresChannelRepo) ListByHandle(ctx context.Context, handle string) ([]*model.Channel, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT c.id, c.name, c.join_rule, c.owner_handle, c.created_at
		 FROM channels c
		 JOIN channel_subscribers s ON s.channel_id = c.id
		 WHERE s.handle = $1
		 ORDER BY s.joined_at ASC`,
		handle,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list channels by handle: %w", err)
	}
	defer rows.Close()

	var channels []*model.Channel
	for rows.Next() {
		channel := &model.Channel{}
		if err := rows.Scan(&channel.ID, &channel.Name, &channel.JoinRule, &channel.OwnerHandle, &channel.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan channel: %w", err)
		}
		channels = append(channels, channel)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate channels: %w", err)
	}

	return channels, nil
}

// compile-time interface check
var _ ChannelRepository = (*PostgresChannelRepo)(nil)
