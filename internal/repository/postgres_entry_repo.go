package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/notehub/internal/model"
)

// PostgresEntryRepo はPostgreSQLを使用した公開済みエントリリポジトリ。
// 宛先リストはtext[]カラムに生文字列のまま順序を保って格納する。
type PostgresEntryRepo struct {
	db *sql.DB
}

// NewPostgresEntryRepo はPostgresEntryRepoを生成する。
func NewPostgresEntryRepo(db *sql.DB) *PostgresEntryRepo {
	return &PostgresEntryRepo{db: db}
}

// Insert はエントリを耐久保存する。
func (r *PostgresEntryRepo) Insert(ctx context.Context, entry *model.Entry) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO entries (id, author_pseudonym, author_handle, content, created_at, recipients, in_reply_to, ai_only)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.ID, entry.AuthorPseudonym, entry.AuthorHandle, entry.Content,
		entry.CreatedAt, pq.Array(entry.To), entry.InReplyTo, entry.AIOnly,
	)
	if err != nil {
		return fmt.Errorf("failed to insert entry: %w", err)
	}
	return nil
}

// FindByID は指定IDのエントリを取得する。見つからない場合はnilを返す。
func (r *PostgresEntryRepo) FindByID(ctx context.Context, id string) (*model.Entry, error) {
	entry := &model.Entry{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, author_pseudonym, author_handle, content, created_at, recipients, in_reply_to, ai_only
		 FROM entries WHERE id = $1`,
		id,
	).Scan(
		&entry.ID, &entry.AuthorPseudonym, &entry.AuthorHandle, &entry.Content,
		&entry.CreatedAt, pq.Array(&entry.To), &entry.InReplyTo, &entry.AIOnly,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find entry: %w", err)
	}

	return entry, nil
}

// DeleteByID は指定IDのエントリを削除する。
// 削除された場合true、存在しなかった場合falseを返す。
func (r *PostgresEntryRepo) DeleteByID(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM entries WHERE id = $1`,
		id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete entry: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// ListRecent はcursorより古いエントリをcreated_at降順で取得する。
// cursorがゼロ値の場合は先頭から取得する。
func (r *PostgresEntryRepo) ListRecent(ctx context.Context, cursor time.Time, limit int) ([]*model.Entry, error) {
	query := `SELECT id, author_pseudonym, author_handle, content, created_at, recipients, in_reply_to, ai_only
	          FROM entries`
	args := []interface{}{}

	if !cursor.IsZero() {
		query += ` WHERE created_at < $1`
		args = append(args, cursor)
	}

	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// ListByAuthor は指定投稿者のエントリをcreated_at降順で取得する。
func (r *PostgresEntryRepo) ListByAuthor(ctx context.Context, pseudonym string, limit int) ([]*model.Entry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, author_pseudonym, author_handle, content, created_at, recipients, in_reply_to, ai_only
		 FROM entries WHERE author_pseudonym = $1 ORDER BY created_at DESC LIMIT $2`,
		pseudonym, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries by author: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// ListReplies は指定エントリへの返信をcreated_at昇順で取得する。
func (r *PostgresEntryRepo) ListReplies(ctx context.Context, parentID string, limit int) ([]*model.Entry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, author_pseudonym, author_handle, content, created_at, recipients, in_reply_to, ai_only
		 FROM entries WHERE in_reply_to = $1 ORDER BY created_at ASC LIMIT $2`,
		parentID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list replies: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]*model.Entry, error) {
	var entries []*model.Entry
	for rows.Next() {
		entry := &model.Entry{}
		err := rows.Scan(
			&entry.ID, &entry.AuthorPseudonym, &entry.AuthorHandle, &entry.Content,
			&entry.CreatedAt, pq.Array(&entry.To), &entry.InReplyTo, &entry.AIOnly,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate entries: %w", err)
	}
	return entries, nil
}

// compile-time interface check
var _ EntryRepository = (*PostgresEntryRepo)(nil)
