// Package todo はタスク管理のドメインロジックを提供する。
// 全ての操作は認証済みユーザーのIDでオーナー絞り込みされ、
// 他ユーザーのタスクは存在しないものとして扱われる。
package todo

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hitoshi/taskman/internal/model"
	"github.com/hitoshi/taskman/internal/repository"
)

// Service はタスク管理のサービス層。
type Service struct {
	todoRepo repository.TodoRepository
}

// NewService はServiceを生成する。
func NewService(todoRepo repository.TodoRepository) *Service {
	return &Service{todoRepo: todoRepo}
}

// List はオーナーのタスク一覧をページネーション・検索付きで返す。
// 総件数は検索条件適用後の値であり、totalPagesと常に整合する。
func (s *Service) List(ctx context.Context, ownerID string, params model.TodoListParams) (*model.TodoPage, error) {
	params = params.Normalize()

	todos, totalCount, err := s.todoRepo.ListByOwner(ctx, ownerID, params)
	if err != nil {
		return nil, fmt.Errorf("failed to list todos: %w", err)
	}

	totalPages := (totalCount + params.PageSize - 1) / params.PageSize

	return &model.TodoPage{
		Todos:      todos,
		TotalCount: totalCount,
		PageNumber: params.PageNumber,
		PageSize:   params.PageSize,
		TotalPages: totalPages,
	}, nil
}

// Get はタスクを1件取得する。
// 存在しないIDと他ユーザーのタスクは区別されず、いずれもNotFoundになる。
func (s *Service) Get(ctx context.Context, ownerID string, id int64) (*model.Todo, error) {
	todo, err := s.todoRepo.FindByOwnerAndID(ctx, ownerID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find todo: %w", err)
	}
	if todo == nil {
		return nil, model.NewTodoNotFoundError(id)
	}

	return todo, nil
}

// Create はタスクを作成する。
// オーナーは認証済みユーザーから必ず設定され、リクエスト由来の値は受け付けない。
func (s *Service) Create(ctx context.Context, ownerID, title, description string, dueDate *time.Time) (*model.Todo, error) {
	title = strings.TrimSpace(title)

	if fields := validateTodoFields(&title, &description); len(fields) > 0 {
		return nil, model.NewValidationFailedError(fields)
	}

	todo := &model.Todo{
		OwnerID:     ownerID,
		Title:       title,
		Description: description,
		DueDate:     dueDate,
	}

	if err := s.todoRepo.Create(ctx, todo); err != nil {
		return nil, fmt.Errorf("failed to create todo: %w", err)
	}

	slog.Info("todo created",
		slog.String("user_id", ownerID),
		slog.Int64("todo_id", todo.ID),
	)

	return todo, nil
}

// Update はタスクを部分更新する。
// patchのnilフィールドは変更されず、既存の値を維持する。
// DueDateSet=true かつ DueDate=nil は期日のクリアを意味する。
// 対象が存在しない（または他ユーザーの）場合はNotFoundになる。
func (s *Service) Update(ctx context.Context, ownerID string, id int64, patch model.TodoPatch) (*model.Todo, error) {
	if fields := validateTodoFields(patch.Title, patch.Description); len(fields) > 0 {
		return nil, model.NewValidationFailedError(fields)
	}

	todo, err := s.todoRepo.FindByOwnerAndID(ctx, ownerID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find todo: %w", err)
	}
	if todo == nil {
		return nil, model.NewTodoNotFoundError(id)
	}

	if patch.Title != nil {
		todo.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.Description != nil {
		todo.Description = *patch.Description
	}
	if patch.IsCompleted != nil {
		todo.IsCompleted = *patch.IsCompleted
	}
	if patch.DueDateSet {
		todo.DueDate = patch.DueDate
	}

	found, err := s.todoRepo.Update(ctx, todo)
	if err != nil {
		return nil, fmt.Errorf("failed to update todo: %w", err)
	}
	if !found {
		// 取得と更新の間に削除された場合
		return nil, model.NewTodoNotFoundError(id)
	}

	return todo, nil
}

// Delete はタスクを削除する。削除は取り消せない。
// 対象が存在しない（または他ユーザーの）場合はNotFoundになる。
func (s *Service) Delete(ctx context.Context, ownerID string, id int64) error {
	found, err := s.todoRepo.DeleteByOwnerAndID(ctx, ownerID, id)
	if err != nil {
		return fmt.Errorf("failed to delete todo: %w", err)
	}
	if !found {
		return model.NewTodoNotFoundError(id)
	}

	slog.Info("todo deleted",
		slog.String("user_id", ownerID),
		slog.Int64("todo_id", id),
	)

	return nil
}

// validateTodoFields はタイトル・説明を検証し、フィールド単位のエラーを集約して返す。
// nilのフィールドは検証対象外（部分更新で未指定）。
func validateTodoFields(title, description *string) []model.FieldError {
	var fields []model.FieldError

	if title != nil {
		trimmed := strings.TrimSpace(*title)
		if trimmed == "" {
			fields = append(fields, model.FieldError{Field: "title", Message: "タイトルは必須です。"})
		} else if utf8.RuneCountInString(trimmed) > model.TodoTitleMaxLen {
			fields = append(fields, model.FieldError{
				Field:   "title",
				Message: fmt.Sprintf("タイトルは%d文字以内で入力してください。", model.TodoTitleMaxLen),
			})
		}
	}

	if description != nil && utf8.RuneCountInString(*description) > model.TodoDescriptionMaxLen {
		fields = append(fields, model.FieldError{
			Field:   "description",
			Message: fmt.Sprintf("説明は%d文字以内で入力してください。", model.TodoDescriptionMaxLen),
		})
	}

	return fields
}
