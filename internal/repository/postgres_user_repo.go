package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/notehub/internal/model"
)

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

const userColumns = `id, handle, email, email_verified, email_notifications, pseudonym, api_token, created_at, updated_at`

func scanUser(row *sql.Row) (*model.User, error) {
	user := &model.User{}
	err := row.Scan(
		&user.ID, &user.Handle, &user.Email, &user.EmailVerified,
		&user.EmailNotifications, &user.Pseudonym, &user.APIToken,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// FindByHandle は小文字正規化済みハンドルでユーザーを検索する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByHandle(ctx context.Context, handle string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE handle = $1`,
		handle,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to find user by handle: %w", err)
	}
	return user, nil
}

// FindByEmail はメールアドレスでユーザーを検索する（大文字小文字を無視）。
// 見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`,
		email,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	return user, nil
}

// FindByAPIToken はAPIトークンでユーザーを検索する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByAPIToken(ctx context.Context, token string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE api_token = $1`,
		token,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to find user by api token: %w", err)
	}
	return user, nil
}

// Create はユーザーを作成する。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, handle, email, email_verified, email_notifications, pseudonym, api_token, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		user.ID, user.Handle, user.Email, user.EmailVerified,
		user.EmailNotifications, user.Pseudonym, user.APIToken,
		user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
