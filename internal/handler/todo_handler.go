package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/taskman/internal/middleware"
	"github.com/hitoshi/taskman/internal/model"
)

// TodoServiceInterface はタスクハンドラーが必要とするサービスインターフェース。
type TodoServiceInterface interface {
	// List は認証済みユーザーが所有するタスクの一覧を検索・ページネーション付きで返す。
	List(ctx context.Context, ownerID string, params model.TodoListParams) (*model.TodoPage, error)
	// Get は所有するタスクの詳細を返す。他ユーザーのタスクは未検出として扱う。
	Get(ctx context.Context, ownerID string, id int64) (*model.Todo, error)
	// Create は新しいタスクを作成する。
	Create(ctx context.Context, ownerID, title, description string, dueDate *time.Time) (*model.Todo, error)
	// Update は所有するタスクを部分更新する。
	Update(ctx context.Context, ownerID string, id int64, patch model.TodoPatch) (*model.Todo, error)
	// Delete は所有するタスクを削除する。
	Delete(ctx context.Context, ownerID string, id int64) error
}

// TodoMetrics はタスクハンドラーが記録するメトリクスのインターフェース。
type TodoMetrics interface {
	RecordTodoCreated()
}

// TodoHandler はタスク管理のHTTPハンドラー。
type TodoHandler struct {
	service TodoServiceInterface
	metrics TodoMetrics // nilの場合は記録しない
}

// NewTodoHandler はTodoHandlerを生成する。
func NewTodoHandler(service TodoServiceInterface, metrics TodoMetrics) *TodoHandler {
	return &TodoHandler{
		service: service,
		metrics: metrics,
	}
}

// --- リクエスト・レスポンス型 ---

// todoResponse はタスク1件のレスポンス。
type todoResponse struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	DueDate     *time.Time `json:"dueDate"`
	IsCompleted bool       `json:"isCompleted"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// todoListResponse はタスク一覧のレスポンス。
type todoListResponse struct {
	Todos      []todoResponse `json:"todos"`
	TotalCount int            `json:"totalCount"`
	PageNumber int            `json:"pageNumber"`
	PageSize   int            `json:"pageSize"`
	TotalPages int            `json:"totalPages"`
}

// createTodoRequest はタスク作成リクエストのボディ。
type createTodoRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	DueDate     *time.Time `json:"dueDate"`
}

// updateTodoRequest はタスク部分更新リクエストのボディ。
// JSONに存在しないフィールドは変更しない。dueDateは明示的なnullと
// フィールド省略を区別するため、カスタムUnmarshalJSONで解析する。
type updateTodoRequest struct {
	Title       *string
	Description *string
	IsCompleted *bool
	DueDate     *time.Time
	DueDateSet  bool
}

// UnmarshalJSON はdueDateの「省略」と「明示的なnull」を区別して解析する。
func (req *updateTodoRequest) UnmarshalJSON(data []byte) error {
	var aux struct {
		Title       *string         `json:"title"`
		Description *string         `json:"description"`
		IsCompleted *bool           `json:"isCompleted"`
		DueDate     json.RawMessage `json:"dueDate"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	req.Title = aux.Title
	req.Description = aux.Description
	req.IsCompleted = aux.IsCompleted

	if aux.DueDate != nil {
		req.DueDateSet = true
		if string(aux.DueDate) != "null" {
			var t time.Time
			if err := json.Unmarshal(aux.DueDate, &t); err != nil {
				return err
			}
			req.DueDate = &t
		}
	}

	return nil
}

// List はタスク一覧を取得する。
// GET /api/todos?pageNumber=1&pageSize=10&searchText=xxx
func (h *TodoHandler) List(w http.ResponseWriter, r *http.Request) {
	subject, err := middleware.SubjectFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	params := parseListParams(r)

	page, err := h.service.List(r.Context(), subject.UserID, params)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	todos := make([]todoResponse, 0, len(page.Todos))
	for _, todo := range page.Todos {
		todos = append(todos, toTodoResponse(todo))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(todoListResponse{
		Todos:      todos,
		TotalCount: page.TotalCount,
		PageNumber: page.PageNumber,
		PageSize:   page.PageSize,
		TotalPages: page.TotalPages,
	})
}

// Get はタスク詳細を取得する。
// GET /api/todos/:id
func (h *TodoHandler) Get(w http.ResponseWriter, r *http.Request) {
	subject, err := middleware.SubjectFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	id, ok := parseTodoID(w, r)
	if !ok {
		return
	}

	todo, err := h.service.Get(r.Context(), subject.UserID, id)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toTodoResponse(todo))
}

// Create は新しいタスクを作成する。
// POST /api/todos
func (h *TodoHandler) Create(w http.ResponseWriter, r *http.Request) {
	subject, err := middleware.SubjectFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req createTodoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, invalidRequestBodyError())
		return
	}

	todo, err := h.service.Create(r.Context(), subject.UserID, req.Title, req.Description, req.DueDate)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordTodoCreated()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toTodoResponse(todo))
}

// Update はタスクを部分更新する。
// PUT /api/todos/:id
func (h *TodoHandler) Update(w http.ResponseWriter, r *http.Request) {
	subject, err := middleware.SubjectFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	id, ok := parseTodoID(w, r)
	if !ok {
		return
	}

	var req updateTodoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, invalidRequestBodyError())
		return
	}

	todo, err := h.service.Update(r.Context(), subject.UserID, id, model.TodoPatch{
		Title:       req.Title,
		Description: req.Description,
		IsCompleted: req.IsCompleted,
		DueDate:     req.DueDate,
		DueDateSet:  req.DueDateSet,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toTodoResponse(todo))
}

// Delete はタスクを削除する。
// DELETE /api/todos/:id
func (h *TodoHandler) Delete(w http.ResponseWriter, r *http.Request) {
	subject, err := middleware.SubjectFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	id, ok := parseTodoID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), subject.UserID, id); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- ヘルパー関数 ---

// toTodoResponse はmodel.TodoからAPIレスポンスに変換する。
func toTodoResponse(todo *model.Todo) todoResponse {
	return todoResponse{
		ID:          todo.ID,
		Title:       todo.Title,
		Description: todo.Description,
		DueDate:     todo.DueDate,
		IsCompleted: todo.IsCompleted,
		CreatedAt:   todo.CreatedAt,
		UpdatedAt:   todo.UpdatedAt,
	}
}

// parseListParams はクエリパラメータから一覧取得条件を解析する。
// 数値として解析できない値はゼロ値のままサービス層の既定値に委ねる。
func parseListParams(r *http.Request) model.TodoListParams {
	query := r.URL.Query()

	pageNumber, _ := strconv.Atoi(query.Get("pageNumber"))
	pageSize, _ := strconv.Atoi(query.Get("pageSize"))

	return model.TodoListParams{
		PageNumber: pageNumber,
		PageSize:   pageSize,
		SearchText: query.Get("searchText"),
	}
}

// parseTodoID はURLパスからタスクIDを解析する。
// 数値として解析できないIDは存在しないタスクとして404を返す。
// エラーメッセージにはリクエストされたIDをそのまま含める。
func parseTodoID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	idStr := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		writeAPIErrorResponse(w, http.StatusNotFound, &model.APIError{
			Code:     model.ErrCodeTodoNotFound,
			Message:  fmt.Sprintf("指定されたタスクが見つかりません: %s", idStr),
			Category: "todo",
			Action:   "タスクIDを確認してください。",
		})
		return 0, false
	}
	return id, true
}
