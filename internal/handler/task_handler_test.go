package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/tasktracker/internal/middleware"
	"github.com/hitoshi/tasktracker/internal/model"
	"github.com/hitoshi/tasktracker/internal/task"
)

// --- モック定義 ---

type mockTaskService struct {
	createFunc func(ctx context.Context, userID int64, input task.CreateTaskInput) (*model.Task, error)
	getFunc    func(ctx context.Context, userID, taskID int64) (*model.Task, error)
	searchFunc func(ctx context.Context, userID int64, input task.SearchTasksInput) (*task.PagedTasks, error)
	updateFunc func(ctx context.Context, userID, taskID int64, input task.UpdateTaskInput) (*model.Task, error)
	deleteFunc func(ctx context.Context, userID, taskID int64) error
}

func (m *mockTaskService) CreateTask(ctx context.Context, userID int64, input task.CreateTaskInput) (*model.Task, error) {
	return m.createFunc(ctx, userID, input)
}

func (m *mockTaskService) GetTask(ctx context.Context, userID, taskID int64) (*model.Task, error) {
	return m.getFunc(ctx, userID, taskID)
}

func (m *mockTaskService) SearchTasks(ctx context.Context, userID int64, input task.SearchTasksInput) (*task.PagedTasks, error) {
	return m.searchFunc(ctx, userID, input)
}

func (m *mockTaskService) UpdateTask(ctx context.Context, userID, taskID int64, input task.UpdateTaskInput) (*model.Task, error) {
	return m.updateFunc(ctx, userID, taskID, input)
}

func (m *mockTaskService) DeleteTask(ctx context.Context, userID, taskID int64) error {
	return m.deleteFunc(ctx, userID, taskID)
}

// newTaskRouter はchiのURLパラメータ解決込みでハンドラーをマウントする。
func newTaskRouter(h *TaskHandler) chi.Router {
	r := chi.NewRouter()
	r.Post("/api/tasks", h.CreateTask)
	r.Get("/api/tasks", h.ListTasks)
	r.Get("/api/tasks/{taskId}", h.GetTask)
	r.Put("/api/tasks/{taskId}", h.UpdateTask)
	r.Delete("/api/tasks/{taskId}", h.DeleteTask)
	return r
}

func authedTaskRequest(method, target string, body string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	return req.WithContext(middleware.ContextWithPrincipal(req.Context(),
		&model.SessionPrincipal{UserID: 42, Email: "user@example.com"}))
}

func sampleTask() *model.Task {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return &model.Task{
		ID:          5,
		UserID:      42,
		Title:       "Write report",
		Description: "quarterly report",
		Status:      model.TaskStatusTodo,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// --- CreateTask のテスト ---

func TestTaskHandler_CreateTask_Success(t *testing.T) {
	var gotUserID int64
	var gotInput task.CreateTaskInput
	service := &mockTaskService{
		createFunc: func(ctx context.Context, userID int64, input task.CreateTaskInput) (*model.Task, error) {
			gotUserID = userID
			gotInput = input
			return sampleTask(), nil
		},
	}
	router := newTaskRouter(NewTaskHandler(service))

	req := authedTaskRequest(http.MethodPost, "/api/tasks",
		`{"title":"Write report","description":"quarterly report","status":"TODO"}`)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want %d", w.Result().StatusCode, http.StatusCreated)
	}
	if gotUserID != 42 {
		t.Errorf("userID = %d, want 42", gotUserID)
	}
	if gotInput.Title != "Write report" || gotInput.Status != "TODO" {
		t.Errorf("input = %+v", gotInput)
	}

	var body taskResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.ID != 5 || body.Title != "Write report" {
		t.Errorf("body = %+v", body)
	}
}

func TestTaskHandler_CreateTask_ValidationError_Returns400(t *testing.T) {
	service := &mockTaskService{
		createFunc: func(ctx context.Context, userID int64, input task.CreateTaskInput) (*model.Task, error) {
			return nil, model.NewValidationError("title: must not be blank")
		},
	}
	router := newTaskRouter(NewTaskHandler(service))

	req := authedTaskRequest(http.MethodPost, "/api/tasks", `{"title":""}`)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Result().StatusCode, http.StatusBadRequest)
	}
	if body := decodeErrorBody(t, w); body.Error != "VALIDATION_ERROR" {
		t.Errorf("error code = %q, want VALIDATION_ERROR", body.Error)
	}
}

func TestTaskHandler_CreateTask_Unauthenticated_Returns401(t *testing.T) {
	router := newTaskRouter(NewTaskHandler(&mockTaskService{}))

	req := httptest.NewRequest(http.MethodPost, "/api/tasks", strings.NewReader(`{"title":"x"}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
	}
}

// --- GetTask のテスト ---

func TestTaskHandler_GetTask_Success(t *testing.T) {
	service := &mockTaskService{
		getFunc: func(ctx context.Context, userID, taskID int64) (*model.Task, error) {
			if userID != 42 || taskID != 5 {
				t.Errorf("GetTask(%d, %d), want (42, 5)", userID, taskID)
			}
			return sampleTask(), nil
		},
	}
	router := newTaskRouter(NewTaskHandler(service))

	req := authedTaskRequest(http.MethodGet, "/api/tasks/5", "")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
}

func TestTaskHandler_GetTask_NotFound_Returns404(t *testing.T) {
	service := &mockTaskService{
		getFunc: func(ctx context.Context, userID, taskID int64) (*model.Task, error) {
			return nil, model.NewNotFoundError("Task not found")
		},
	}
	router := newTaskRouter(NewTaskHandler(service))

	req := authedTaskRequest(http.MethodGet, "/api/tasks/99", "")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Result().StatusCode, http.StatusNotFound)
	}
	if body := decodeErrorBody(t, w); body.Error != "NOT_FOUND" {
		t.Errorf("error code = %q, want NOT_FOUND", body.Error)
	}
}

func TestTaskHandler_GetTask_NonNumericID_Returns400(t *testing.T) {
	router := newTaskRouter(NewTaskHandler(&mockTaskService{}))

	req := authedTaskRequest(http.MethodGet, "/api/tasks/abc", "")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusBadRequest)
	}
}

// --- ListTasks のテスト ---

func TestTaskHandler_ListTasks_PassesQueryParams(t *testing.T) {
	var gotInput task.SearchTasksInput
	service := &mockTaskService{
		searchFunc: func(ctx context.Context, userID int64, input task.SearchTasksInput) (*task.PagedTasks, error) {
			gotInput = input
			return &task.PagedTasks{
				Content:       []*model.Task{sampleTask()},
				Page:          1,
				Size:          10,
				TotalElements: 11,
				TotalPages:    2,
			}, nil
		},
	}
	router := newTaskRouter(NewTaskHandler(service))

	req := authedTaskRequest(http.MethodGet,
		"/api/tasks?query=report&status=TODO&page=1&size=10&sortBy=title&sortDir=asc", "")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
	if gotInput.Query != "report" || gotInput.Status != "TODO" ||
		gotInput.Page != 1 || gotInput.Size != 10 ||
		gotInput.SortBy != "title" || gotInput.SortDir != "asc" {
		t.Errorf("input = %+v", gotInput)
	}

	var body pagedResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(body.Content) != 1 || body.TotalElements != 11 || body.TotalPages != 2 {
		t.Errorf("body = %+v", body)
	}
}

func TestTaskHandler_ListTasks_DefaultsForMissingParams(t *testing.T) {
	var gotInput task.SearchTasksInput
	service := &mockTaskService{
		searchFunc: func(ctx context.Context, userID int64, input task.SearchTasksInput) (*task.PagedTasks, error) {
			gotInput = input
			return &task.PagedTasks{Content: []*model.Task{}}, nil
		},
	}
	router := newTaskRouter(NewTaskHandler(service))

	req := authedTaskRequest(http.MethodGet, "/api/tasks", "")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if gotInput.Page != 0 || gotInput.Size != 20 {
		t.Errorf("input = %+v, want page=0 size=20", gotInput)
	}

	// 空の一覧はnullではなく[]としてシリアライズされる
	if !strings.Contains(w.Body.String(), `"content":[]`) {
		t.Errorf("body = %s, want empty content array", w.Body.String())
	}
}

// --- UpdateTask のテスト ---

func TestTaskHandler_UpdateTask_PartialUpdate(t *testing.T) {
	var gotInput task.UpdateTaskInput
	service := &mockTaskService{
		updateFunc: func(ctx context.Context, userID, taskID int64, input task.UpdateTaskInput) (*model.Task, error) {
			gotInput = input
			updated := sampleTask()
			updated.Status = model.TaskStatusDone
			return updated, nil
		},
	}
	router := newTaskRouter(NewTaskHandler(service))

	req := authedTaskRequest(http.MethodPut, "/api/tasks/5", `{"status":"DONE"}`)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}

	if gotInput.Status == nil || *gotInput.Status != "DONE" {
		t.Error("status should be set in update input")
	}
	if gotInput.Title != nil {
		t.Error("title must be nil for a partial update that omits it")
	}
}

func TestTaskHandler_UpdateTask_NotFound_Returns404(t *testing.T) {
	service := &mockTaskService{
		updateFunc: func(ctx context.Context, userID, taskID int64, input task.UpdateTaskInput) (*model.Task, error) {
			return nil, model.NewNotFoundError("Task not found")
		},
	}
	router := newTaskRouter(NewTaskHandler(service))

	req := authedTaskRequest(http.MethodPut, "/api/tasks/99", `{"title":"x"}`)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusNotFound)
	}
}

// --- DeleteTask のテスト ---

func TestTaskHandler_DeleteTask_Returns204(t *testing.T) {
	service := &mockTaskService{
		deleteFunc: func(ctx context.Context, userID, taskID int64) error {
			if userID != 42 || taskID != 5 {
				t.Errorf("DeleteTask(%d, %d), want (42, 5)", userID, taskID)
			}
			return nil
		},
	}
	router := newTaskRouter(NewTaskHandler(service))

	req := authedTaskRequest(http.MethodDelete, "/api/tasks/5", "")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusNoContent)
	}
}

func TestTaskHandler_DeleteTask_NotFound_Returns404(t *testing.T) {
	service := &mockTaskService{
		deleteFunc: func(ctx context.Context, userID, taskID int64) error {
			return model.NewNotFoundError("Task not found")
		},
	}
	router := newTaskRouter(NewTaskHandler(service))

	req := authedTaskRequest(http.MethodDelete, "/api/tasks/99", "")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusNotFound)
	}
}
