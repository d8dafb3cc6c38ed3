package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/tasktracker/internal/model"
)

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// UpsertByGoogleSub はgoogle_subをキーにユーザーをアップサートする。
// 初回ログインで作成し、再ログインではemailとnameを最新のクレームで更新する。
func (r *PostgresUserRepo) UpsertByGoogleSub(ctx context.Context, googleSub, email, name string) (*model.User, error) {
	user := &model.User{}
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO users (google_sub, email, name, created_at)
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (google_sub)
		 DO UPDATE SET email = EXCLUDED.email, name = EXCLUDED.name
		 RETURNING id, google_sub, email, name, created_at`,
		googleSub, email, name,
	).Scan(&user.ID, &user.GoogleSub, &user.Email, &user.Name, &user.CreatedAt)

	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}

	return user, nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id int64) (*model.User, error) {
	user := &model.User{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, google_sub, email, name, created_at FROM users WHERE id = $1`,
		id,
	).Scan(&user.ID, &user.GoogleSub, &user.Email, &user.Name, &user.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}

	return user, nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
