package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/notehub/internal/model"
)

// PostgresStagedEntryRepo はPostgreSQLを使用したステージングジャーナル。
// メモリ上の保留バッファの写しであり、プロセス再起動時の復元専用。
// 読み取りパスはここを参照しない。
type PostgresStagedEntryRepo struct {
	db *sql.DB
}

// NewPostgresStagedEntryRepo はPostgresStagedEntryRepoを生成する。
func NewPostgresStagedEntryRepo(db *sql.DB) *PostgresStagedEntryRepo {
	return &PostgresStagedEntryRepo{db: db}
}

// Save はステージング中エントリを冪等にUPSERTする。
func (r *PostgresStagedEntryRepo) Save(ctx context.Context, entry *model.Entry) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO staged_entries (id, author_pseudonym, author_handle, content, created_at, recipients, in_reply_to, ai_only, publish_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO UPDATE SET
		   content = EXCLUDED.content,
		   recipients = EXCLUDED.recipients,
		   ai_only = EXCLUDED.ai_only,
		   publish_at = EXCLUDED.publish_at`,
		entry.ID, entry.AuthorPseudonym, entry.AuthorHandle, entry.Content,
		entry.CreatedAt, pq.Array(entry.To), entry.InReplyTo, entry.AIOnly, entry.PublishAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save staged entry: %w", err)
	}
	return nil
}

// DeleteByID は指定IDのジャーナルレコードを削除する。
func (r *PostgresStagedEntryRepo) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM staged_entries WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete staged entry: %w", err)
	}
	return nil
}

// ListAll は全ジャーナルレコードを返す。
func (r *PostgresStagedEntryRepo) ListAll(ctx context.Context) ([]*model.Entry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, author_pseudonym, author_handle, content, created_at, recipients, in_reply_to, ai_only, publish_at
		 FROM staged_entries ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list staged entries: %w", err)
	}
	defer rows.Close()

	var entries []*model.Entry
	for rows.Next() {
		entry := &model.Entry{}
		err := rows.Scan(
			&entry.ID, &entry.AuthorPseudonym, &entry.AuthorHandle, &entry.Content,
			&entry.CreatedAt, pq.Array(&entry.To), &entry.InReplyTo, &entry.AIOnly, &entry.PublishAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan staged entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate staged entries: %w", err)
	}

	return entries, nil
}

// compile-time interface check
var _ StagedEntryRepository = (*PostgresStagedEntryRepo)(nil)
