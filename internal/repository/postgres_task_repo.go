package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/hitoshi/tasktracker/internal/model"
)

// sortColumns はソート指定からSQLカラム名への対応表。
// ここに無い指定はサービス層で既定値に正規化されるが、SQL組み立ての安全のため
// リポジトリ側でも対応表の引き当てを必須とする。
var sortColumns = map[string]string{
	"createdAt": "created_at",
	"updatedAt": "updated_at",
	"title":     "title",
}

// PostgresTaskRepo はPostgreSQLを使用したタスクリポジトリ。
type PostgresTaskRepo struct {
	db *sql.DB
}

// NewPostgresTaskRepo はPostgresTaskRepoを生成する。
func NewPostgresTaskRepo(db *sql.DB) *PostgresTaskRepo {
	return &PostgresTaskRepo{db: db}
}

// Create はタスクを作成し、採番されたIDとタイムスタンプをtaskに書き戻す。
func (r *PostgresTaskRepo) Create(ctx context.Context, task *model.Task) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO tasks (user_id, title, description, status, priority, due_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		 RETURNING id, created_at, updated_at`,
		task.UserID, task.Title, task.Description, string(task.Status), task.Priority, task.DueAt,
	).Scan(&task.ID, &task.CreatedAt, &task.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}

	return nil
}

// FindByIDAndUserID は指定ユーザーが所有するタスクを取得する。見つからない場合はnilを返す。
func (r *PostgresTaskRepo) FindByIDAndUserID(ctx context.Context, id, userID int64) (*model.Task, error) {
	task := &model.Task{}
	var status string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, description, status, priority, due_at, created_at, updated_at
		 FROM tasks WHERE id = $1 AND user_id = $2`,
		id, userID,
	).Scan(&task.ID, &task.UserID, &task.Title, &task.Description, &status,
		&task.Priority, &task.DueAt, &task.CreatedAt, &task.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find task: %w", err)
	}

	task.Status = model.TaskStatus(status)
	return task, nil
}

// Search は指定ユーザーのタスクを検索し、該当ページと総件数を返す。
// queryはタイトル・説明に対する大文字小文字を区別しない部分一致。
func (r *PostgresTaskRepo) Search(ctx context.Context, userID int64, params TaskSearchParams) ([]*model.Task, int64, error) {
	column, ok := sortColumns[params.SortBy]
	if !ok {
		column = "created_at"
	}
	direction := "DESC"
	if strings.EqualFold(params.SortDir, "asc") {
		direction = "ASC"
	}

	where := `user_id = $1
	  AND ($2 = '' OR title ILIKE '%' || $2 || '%' OR description ILIKE '%' || $2 || '%')
	  AND ($3 = '' OR status = $3)`

	var total int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tasks WHERE `+where,
		userID, params.Query, params.Status,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count tasks: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, title, description, status, priority, due_at, created_at, updated_at
		 FROM tasks WHERE `+where+`
		 ORDER BY `+column+` `+direction+`
		 LIMIT $4 OFFSET $5`,
		userID, params.Query, params.Status, params.Size, params.Page*params.Size,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to search tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*model.Task
	for rows.Next() {
		task := &model.Task{}
		var status string
		if err := rows.Scan(&task.ID, &task.UserID, &task.Title, &task.Description, &status,
			&task.Priority, &task.DueAt, &task.CreatedAt, &task.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan task: %w", err)
		}
		task.Status = model.TaskStatus(status)
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate tasks: %w", err)
	}

	return tasks, total, nil
}

// Update はタスクを更新し、updated_atを書き戻す。
func (r *PostgresTaskRepo) Update(ctx context.Context, task *model.Task) error {
	err := r.db.QueryRowContext(ctx,
		`UPDATE tasks
		 SET title = $1, description = $2, status = $3, priority = $4, due_at = $5, updated_at = NOW()
		 WHERE id = $6 AND user_id = $7
		 RETURNING updated_at`,
		task.Title, task.Description, string(task.Status), task.Priority, task.DueAt,
		task.ID, task.UserID,
	).Scan(&task.UpdatedAt)

	if err == sql.ErrNoRows {
		return fmt.Errorf("task not found: %d", task.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}

	return nil
}

// DeleteByIDAndUserID は指定ユーザーが所有するタスクを削除する。
// 削除が行われた場合はtrueを返す。
func (r *PostgresTaskRepo) DeleteByIDAndUserID(ctx context.Context, id, userID int64) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM tasks WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete task: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// compile-time interface check
var _ TaskRepository = (*PostgresTaskRepo)(nil)
