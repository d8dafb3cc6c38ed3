package model

import "time"

// TaskStatus はタスクの進行状態を表す。
type TaskStatus string

const (
	// TaskStatusTodo は未着手を示す。
	TaskStatusTodo TaskStatus = "TODO"
	// TaskStatusInProgress は作業中を示す。
	TaskStatusInProgress TaskStatus = "IN_PROGRESS"
	// TaskStatusDone は完了を示す。
	TaskStatusDone TaskStatus = "DONE"
)

// ValidTaskStatus は指定された文字列が定義済みのタスク状態かどうかを返す。
func ValidTaskStatus(s string) bool {
	switch TaskStatus(s) {
	case TaskStatusTodo, TaskStatusInProgress, TaskStatusDone:
		return true
	}
	return false
}

// Task はユーザーが管理するタスクを表す。
// UserIDによる所有者スコープを必ず通して操作する。
type Task struct {
	ID          int64
	UserID      int64
	Title       string
	Description string
	Status      TaskStatus
	Priority    string
	DueAt       *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
