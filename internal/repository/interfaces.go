// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"

	"github.com/hitoshi/taskman/internal/model"
)

// ErrDuplicateEmail はメールアドレスのユニーク制約違反を表す。
// 事前チェックをすり抜けた同時登録もこのエラーで検出される。
var ErrDuplicateEmail = errors.New("email already registered")

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByEmail は指定メールアドレスのユーザーを取得する（大文字小文字は区別しない）。
	// 見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// Create はユーザーを作成する。
	// メールアドレスが既に登録されている場合はErrDuplicateEmailを返す。
	Create(ctx context.Context, user *model.User) error
}

// TodoRepository はタスクデータの永続化インターフェース。
// 全ての読み取り・変更操作はオーナーIDで絞り込まれ、
// 他ユーザーのタスクは存在しないものとして扱われる。
type TodoRepository interface {
	// Create はタスクを作成し、採番されたIDをtodo.IDに設定する。
	Create(ctx context.Context, todo *model.Todo) error

	// FindByOwnerAndID はオーナー絞り込み付きでタスクを1件取得する。
	// 他ユーザーのタスクと存在しないIDは区別されず、いずれもnilを返す。
	FindByOwnerAndID(ctx context.Context, ownerID string, id int64) (*model.Todo, error)

	// ListByOwner はオーナーのタスク一覧を検索・ページネーション付きで取得する。
	// 検索条件適用後の総件数を第2戻り値で返す。
	ListByOwner(ctx context.Context, ownerID string, params model.TodoListParams) ([]*model.Todo, int, error)

	// Update はオーナー絞り込み付きでタスクを上書き更新する。
	// 対象が存在しない（または他ユーザーの）場合はfalseを返す。
	Update(ctx context.Context, todo *model.Todo) (bool, error)

	// DeleteByOwnerAndID はオーナー絞り込み付きでタスクを削除する。
	// 対象が存在しない（または他ユーザーの）場合はfalseを返す。
	DeleteByOwnerAndID(ctx context.Context, ownerID string, id int64) (bool, error)
}
