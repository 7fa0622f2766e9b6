package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/notehub/internal/model"
)

// PostgresNotificationRepo はPostgreSQLを使用した通知リポジトリ。
type PostgresNotificationRepo struct {
	db *sql.DB
}

// NewPostgresNotificationRepo はPostgresNotificationRepoを生成する。
func NewPostgresNotificationRepo(db *sql.DB) *PostgresNotificationRepo {
	return &PostgresNotificationRepo{db: db}
}

// Create は通知レコードを作成する。
func (r *PostgresNotificationRepo) Create(ctx context.Context, n *model.Notification) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO notifications (id, recipient_handle, entry_id, author_pseudonym, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		n.ID, n.RecipientHandle, n.EntryID, n.AuthorPseudonym, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

// ListByRecipient は指定ハンドル宛の通知をcreated_at降順で取得する。
func (r *PostgresNotificationRepo) ListByRecipient(ctx context.Context, handle string, limit int) ([]*model.Notification, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, recipient_handle, entry_id, author_pseudonym, created_at
		 FROM notifications WHERE recipient_handle = $1 ORDER BY created_at DESC LIMIT $2`,
		handle, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*model.Notification
	for rows.Next() {
		n := &model.Notification{}
		if err := rows.Scan(&n.ID, &n.RecipientHandle, &n.EntryID, &n.AuthorPseudonym, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notifications: %w", err)
	}

	return notifications, nil
}

// compile-time interface check
var _ NotificationRepository = (*PostgresNotificationRepo)(nil)
