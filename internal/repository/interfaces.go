// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/tasktracker/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// UpsertByGoogleSub はGoogleのサブジェクト識別子をキーにユーザーをアップサートする。
	// 既存ユーザーの場合はemailとnameを最新の値で更新し、更新後のレコードを返す。
	UpsertByGoogleSub(ctx context.Context, googleSub, email, name string) (*model.User, error)

	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.User, error)
}

// TaskSearchParams はタスク検索の条件を表す。
// ページ・ソート項目はサービス層で正規化済みの値を渡すこと。
type TaskSearchParams struct {
	Query   string // タイトル・説明の部分一致。空の場合は条件なし
	Status  string // タスク状態の完全一致。空の場合は条件なし
	Page    int    // 0始まりのページ番号
	Size    int    // 1ページあたりの件数
	SortBy  string // createdAt / updatedAt / title
	SortDir string // asc / desc
}

// TaskRepository はタスクデータの永続化インターフェース。
// すべての操作はuserIDによる所有者スコープを必ず通す。
type TaskRepository interface {
	// Create はタスクを作成し、採番されたIDとタイムスタンプをtaskに書き戻す。
	Create(ctx context.Context, task *model.Task) error

	// FindByIDAndUserID は指定ユーザーが所有するタスクを取得する。見つからない場合はnilを返す。
	FindByIDAndUserID(ctx context.Context, id, userID int64) (*model.Task, error)

	// Search は指定ユーザーのタスクを検索し、該当ページと総件数を返す。
	Search(ctx context.Context, userID int64, params TaskSearchParams) ([]*model.Task, int64, error)

	// Update はタスクを更新し、updated_atを書き戻す。
	Update(ctx context.Context, task *model.Task) error

	// DeleteByIDAndUserID は指定ユーザーが所有するタスクを削除する。
	// 削除が行われた場合はtrueを返す。
	DeleteByIDAndUserID(ctx context.Context, id, userID int64) (bool, error)
}
