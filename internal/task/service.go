// Package task はタスク管理のビジネスロジックを提供する。
package task

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hitoshi/tasktracker/internal/model"
	"github.com/hitoshi/tasktracker/internal/repository"
)

const (
	maxTitleLength       = 200
	maxDescriptionLength = 2000
	defaultPageSize      = 20
	maxPageSize          = 100
)

// allowedSortFields はソート指定に使用できるフィールドの集合。
var allowedSortFields = map[string]bool{
	"createdAt": true,
	"updatedAt": true,
	"title":     true,
}

// CreateTaskInput はタスク作成の入力。
type CreateTaskInput struct {
	Title       string
	Description string
	Status      string // 空の場合はTODO
	Priority    string
	DueAt       *time.Time
}

// UpdateTaskInput はタスク更新の入力。nilのフィールドは変更しない。
type UpdateTaskInput struct {
	Title       *string
	Description *string
	Status      *string
	Priority    *string
	DueAt       *time.Time
}

// SearchTasksInput はタスク検索の入力。正規化前の生の値を受け取る。
type SearchTasksInput struct {
	Query   string
	Status  string
	Page    int
	Size    int
	SortBy  string
	SortDir string
}

// PagedTasks はページングされた検索結果。
type PagedTasks struct {
	Content       []*model.Task
	Page          int
	Size          int
	TotalElements int64
	TotalPages    int
}

// Service はタスクに関するビジネスロジックを提供する。
type Service struct {
	taskRepo repository.TaskRepository
}

// NewService はServiceを生成する。
func NewService(taskRepo repository.TaskRepository) *Service {
	return &Service{taskRepo: taskRepo}
}

// CreateTask は指定ユーザーのタスクを作成する。
func (s *Service) CreateTask(ctx context.Context, userID int64, input CreateTaskInput) (*model.Task, error) {
	if err := validateTitle(input.Title, true); err != nil {
		return nil, err
	}
	if err := validateDescription(input.Description); err != nil {
		return nil, err
	}

	status := input.Status
	if status == "" {
		status = string(model.TaskStatusTodo)
	}
	if !model.ValidTaskStatus(status) {
		return nil, model.NewValidationError(fmt.Sprintf("status: invalid value %q", status))
	}

	task := &model.Task{
		UserID:      userID,
		Title:       strings.TrimSpace(input.Title),
		Description: input.Description,
		Status:      model.TaskStatus(status),
		Priority:    input.Priority,
		DueAt:       input.DueAt,
	}

	if err := s.taskRepo.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	return task, nil
}

// GetTask は指定ユーザーが所有するタスクを取得する。
// 他ユーザーのタスクや存在しないタスクはNOT_FOUNDとなる。
func (s *Service) GetTask(ctx context.Context, userID, taskID int64) (*model.Task, error) {
	task, err := s.taskRepo.FindByIDAndUserID(ctx, taskID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find task: %w", err)
	}
	if task == nil {
		return nil, model.NewNotFoundError("Task not found")
	}
	return task, nil
}

// SearchTasks は指定ユーザーのタスクを検索する。
// ページ・サイズ・ソート指定は不正な値を既定値に正規化してから検索する。
func (s *Service) SearchTasks(ctx context.Context, userID int64, input SearchTasksInput) (*PagedTasks, error) {
	page := input.Page
	if page < 0 {
		page = 0
	}
	size := input.Size
	if size < 1 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}

	sortBy := input.SortBy
	if !allowedSortFields[sortBy] {
		sortBy = "createdAt"
	}
	sortDir := "desc"
	if strings.EqualFold(input.SortDir, "asc") {
		sortDir = "asc"
	}

	tasks, total, err := s.taskRepo.Search(ctx, userID, repository.TaskSearchParams{
		Query:   strings.TrimSpace(input.Query),
		Status:  strings.TrimSpace(input.Status),
		Page:    page,
		Size:    size,
		SortBy:  sortBy,
		SortDir: sortDir,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search tasks: %w", err)
	}

	totalPages := int((total + int64(size) - 1) / int64(size))

	return &PagedTasks{
		Content:       tasks,
		Page:          page,
		Size:          size,
		TotalElements: total,
		TotalPages:    totalPages,
	}, nil
}

// UpdateTask は指定ユーザーが所有するタスクを部分更新する。
// nilのフィールドは現在の値を維持する。
func (s *Service) UpdateTask(ctx context.Context, userID, taskID int64, input UpdateTaskInput) (*model.Task, error) {
	task, err := s.taskRepo.FindByIDAndUserID(ctx, taskID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find task: %w", err)
	}
	if task == nil {
		return nil, model.NewNotFoundError("Task not found")
	}

	if input.Title != nil {
		if err := validateTitle(*input.Title, true); err != nil {
			return nil, err
		}
		task.Title = strings.TrimSpace(*input.Title)
	}
	if input.Description != nil {
		if err := validateDescription(*input.Description); err != nil {
			return nil, err
		}
		task.Description = *input.Description
	}
	if input.Status != nil {
		if !model.ValidTaskStatus(*input.Status) {
			return nil, model.NewValidationError(fmt.Sprintf("status: invalid value %q", *input.Status))
		}
		task.Status = model.TaskStatus(*input.Status)
	}
	if input.Priority != nil {
		task.Priority = *input.Priority
	}
	if input.DueAt != nil {
		task.DueAt = input.DueAt
	}

	if err := s.taskRepo.Update(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}

	return task, nil
}

// DeleteTask は指定ユーザーが所有するタスクを削除する。
func (s *Service) DeleteTask(ctx context.Context, userID, taskID int64) error {
	deleted, err := s.taskRepo.DeleteByIDAndUserID(ctx, taskID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	if !deleted {
		return model.NewNotFoundError("Task not found")
	}
	return nil
}

// validateTitle はタイトルの必須・長さ制約を検証する。
func validateTitle(title string, required bool) error {
	trimmed := strings.TrimSpace(title)
	if required && trimmed == "" {
		return model.NewValidationError("title: must not be blank")
	}
	if len(title) > maxTitleLength {
		return model.NewValidationError(fmt.Sprintf("title: length must be at most %d", maxTitleLength))
	}
	return nil
}

// validateDescription は説明文の長さ制約を検証する。
func validateDescription(description string) error {
	if len(description) > maxDescriptionLength {
		return model.NewValidationError(fmt.Sprintf("description: length must be at most %d", maxDescriptionLength))
	}
	return nil
}
