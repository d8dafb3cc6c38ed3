package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/tasktracker/internal/middleware"
	"github.com/hitoshi/tasktracker/internal/model"
	"github.com/hitoshi/tasktracker/internal/task"
)

// TaskServiceInterface はタスクハンドラーが必要とするサービスインターフェース。
type TaskServiceInterface interface {
	CreateTask(ctx context.Context, userID int64, input task.CreateTaskInput) (*model.Task, error)
	GetTask(ctx context.Context, userID, taskID int64) (*model.Task, error)
	SearchTasks(ctx context.Context, userID int64, input task.SearchTasksInput) (*task.PagedTasks, error)
	UpdateTask(ctx context.Context, userID, taskID int64, input task.UpdateTaskInput) (*model.Task, error)
	DeleteTask(ctx context.Context, userID, taskID int64) error
}

// TaskHandler はタスクCRUDのHTTPハンドラー。
// すべてのエンドポイントはRequireAuthの内側に配置されることを前提とする。
type TaskHandler struct {
	service TaskServiceInterface
}

// NewTaskHandler はTaskHandlerを生成する。
func NewTaskHandler(service TaskServiceInterface) *TaskHandler {
	return &TaskHandler{service: service}
}

// taskRequest はタスク作成・更新のリクエストボディ。
// 更新時はnilのフィールドを「変更なし」として扱う。
type taskRequest struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	Status      *string    `json:"status"`
	Priority    *string    `json:"priority"`
	DueAt       *time.Time `json:"dueAt"`
}

// taskResponse はタスクのレスポンスボディ。
type taskResponse struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	Priority    string     `json:"priority,omitempty"`
	DueAt       *time.Time `json:"dueAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// pagedResponse はページングされた一覧のレスポンスボディ。
type pagedResponse struct {
	Content       []taskResponse `json:"content"`
	Page          int            `json:"page"`
	Size          int            `json:"size"`
	TotalElements int64          `json:"totalElements"`
	TotalPages    int            `json:"totalPages"`
}

// CreateTask はタスクを作成する。
// POST /api/tasks
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	var req taskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewValidationError("invalid request body"))
		return
	}

	input := task.CreateTaskInput{DueAt: req.DueAt}
	if req.Title != nil {
		input.Title = *req.Title
	}
	if req.Description != nil {
		input.Description = *req.Description
	}
	if req.Status != nil {
		input.Status = *req.Status
	}
	if req.Priority != nil {
		input.Priority = *req.Priority
	}

	created, err := h.service.CreateTask(r.Context(), userID, input)
	if err != nil {
		writeTaskError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toTaskResponse(created))
}

// GetTask はタスクを1件取得する。
// GET /api/tasks/{taskId}
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	taskID, err := parseTaskID(r)
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewValidationError("taskId: must be an integer"))
		return
	}

	found, err := h.service.GetTask(r.Context(), userID, taskID)
	if err != nil {
		writeTaskError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toTaskResponse(found))
}

// ListTasks はタスクを検索し、ページングされた一覧を返す。
// GET /api/tasks?query=&status=&page=&size=&sortBy=&sortDir=
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()

	input := task.SearchTasksInput{
		Query:   q.Get("query"),
		Status:  q.Get("status"),
		Page:    parseIntOrDefault(q.Get("page"), 0),
		Size:    parseIntOrDefault(q.Get("size"), 20),
		SortBy:  q.Get("sortBy"),
		SortDir: q.Get("sortDir"),
	}

	result, err := h.service.SearchTasks(r.Context(), userID, input)
	if err != nil {
		writeTaskError(w, err)
		return
	}

	content := make([]taskResponse, 0, len(result.Content))
	for _, t := range result.Content {
		content = append(content, toTaskResponse(t))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(pagedResponse{
		Content:       content,
		Page:          result.Page,
		Size:          result.Size,
		TotalElements: result.TotalElements,
		TotalPages:    result.TotalPages,
	})
}

// UpdateTask はタスクを部分更新する。
// PUT /api/tasks/{taskId}
func (h *TaskHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	taskID, err := parseTaskID(r)
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewValidationError("taskId: must be an integer"))
		return
	}

	var req taskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewValidationError("invalid request body"))
		return
	}

	updated, err := h.service.UpdateTask(r.Context(), userID, taskID, task.UpdateTaskInput{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		Priority:    req.Priority,
		DueAt:       req.DueAt,
	})
	if err != nil {
		writeTaskError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toTaskResponse(updated))
}

// DeleteTask はタスクを削除する。
// DELETE /api/tasks/{taskId}
func (h *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	taskID, err := parseTaskID(r)
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewValidationError("taskId: must be an integer"))
		return
	}

	if err := h.service.DeleteTask(r.Context(), userID, taskID); err != nil {
		writeTaskError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// currentUserID はコンテキストから認証済みユーザーIDを取得する。
// 取得できない場合は401を書き込み、falseを返す。
func currentUserID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return 0, false
	}
	return principal.UserID, true
}

// parseTaskID はURLパラメータからタスクIDを取り出す。
func parseTaskID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "taskId"), 10, 64)
}

// parseIntOrDefault は数値クエリパラメータを解析する。空や不正な値は既定値に落とす。
func parseIntOrDefault(s string, defaultVal int) int {
	if s == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return i
}

// writeTaskError はサービス層のエラーをHTTPレスポンスに変換する。
// APIError以外のエラーは詳細をログに残し、一般的な500を返す。
func writeTaskError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case model.ErrCodeNotFound:
			middleware.WriteErrorResponse(w, http.StatusNotFound, apiErr)
		case model.ErrCodeValidationError:
			middleware.WriteErrorResponse(w, http.StatusBadRequest, apiErr)
		default:
			middleware.WriteErrorResponse(w, http.StatusInternalServerError, apiErr)
		}
		return
	}

	slog.Error("task operation failed", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// toTaskResponse はドメインモデルをレスポンスボディに変換する。
func toTaskResponse(t *model.Task) taskResponse {
	return taskResponse{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Status:      string(t.Status),
		Priority:    t.Priority,
		DueAt:       t.DueAt,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}
