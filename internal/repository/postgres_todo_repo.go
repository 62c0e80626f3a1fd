package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/hitoshi/taskman/internal/model"
)

// todoColumns は全タスクSELECTで共通のカラムリスト。
const todoColumns = `id, owner_id, title, description, due_date, is_completed, created_at, updated_at`

// todoOwnerScope は全タスククエリ共通のオーナー絞り込み条件。
// owner_idを$1に固定することで、絞り込み忘れをクエリ単位で防ぐ。
const todoOwnerScope = `owner_id = $1`

// todoSearchScope は検索条件。$2が空文字列の場合は全件を許可する。
// タイトルと説明のどちらかに部分一致した行を返す（大文字小文字は区別しない）。
// $2にはescapeSearchTextでLIKEメタ文字をエスケープ済みの値を渡すこと。
const todoSearchScope = `($2 = '' OR title ILIKE '%' || $2 || '%' ESCAPE '\' OR description ILIKE '%' || $2 || '%' ESCAPE '\')`

// PostgresTodoRepo はPostgreSQLを使用したタスクリポジトリ。
type PostgresTodoRepo struct {
	db *sql.DB
}

// NewPostgresTodoRepo はPostgresTodoRepoを生成する。
func NewPostgresTodoRepo(db *sql.DB) *PostgresTodoRepo {
	return &PostgresTodoRepo{db: db}
}

// Create はタスクを作成し、採番されたIDとタイムスタンプをtodoに設定する。
func (r *PostgresTodoRepo) Create(ctx context.Context, todo *model.Todo) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO todos (owner_id, title, description, due_date, is_completed)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at, updated_at`,
		todo.OwnerID, todo.Title, todo.Description, todo.DueDate, todo.IsCompleted,
	).Scan(&todo.ID, &todo.CreatedAt, &todo.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert todo: %w", err)
	}

	return nil
}

// FindByOwnerAndID はオーナー絞り込み付きでタスクを1件取得する。
// 他ユーザーのタスクと存在しないIDは区別されず、いずれもnilを返す。
func (r *PostgresTodoRepo) FindByOwnerAndID(ctx context.Context, ownerID string, id int64) (*model.Todo, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+todoColumns+` FROM todos WHERE `+todoOwnerScope+` AND id = $2`,
		ownerID, id,
	)

	todo, err := scanTodo(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find todo: %w", err)
	}

	return todo, nil
}

// ListByOwner はオーナーのタスク一覧を検索・ページネーション付きで取得する。
// 総件数は検索条件適用後に数える。件数とページ内容が常に同じ条件で一致するようにする。
// 並び順はid昇順で固定し、挿入が並行しても既存ページの順序が安定するようにする。
func (r *PostgresTodoRepo) ListByOwner(ctx context.Context, ownerID string, params model.TodoListParams) ([]*model.Todo, int, error) {
	params = params.Normalize()
	searchText := escapeSearchText(params.SearchText)

	var totalCount int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM todos WHERE `+todoOwnerScope+` AND `+todoSearchScope,
		ownerID, searchText,
	).Scan(&totalCount)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count todos: %w", err)
	}

	offset := (params.PageNumber - 1) * params.PageSize
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+todoColumns+` FROM todos
		 WHERE `+todoOwnerScope+` AND `+todoSearchScope+`
		 ORDER BY id ASC
		 LIMIT $3 OFFSET $4`,
		ownerID, searchText, params.PageSize, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list todos: %w", err)
	}
	defer rows.Close()

	todos := []*model.Todo{}
	for rows.Next() {
		todo, err := scanTodo(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan todo row: %w", err)
		}
		todos = append(todos, todo)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate todo rows: %w", err)
	}

	return todos, totalCount, nil
}

// Update はオーナー絞り込み付きでタスクを上書き更新する。
// 対象が存在しない（または他ユーザーの）場合はfalseを返す。
func (r *PostgresTodoRepo) Update(ctx context.Context, todo *model.Todo) (bool, error) {
	err := r.db.QueryRowContext(ctx,
		`UPDATE todos
		 SET title = $3, description = $4, due_date = $5, is_completed = $6, updated_at = now()
		 WHERE `+todoOwnerScope+` AND id = $2
		 RETURNING updated_at`,
		todo.OwnerID, todo.ID, todo.Title, todo.Description, todo.DueDate, todo.IsCompleted,
	).Scan(&todo.UpdatedAt)

	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to update todo: %w", err)
	}

	return true, nil
}

// DeleteByOwnerAndID はオーナー絞り込み付きでタスクを削除する。
// 対象が存在しない（または他ユーザーの）場合はfalseを返す。
func (r *PostgresTodoRepo) DeleteByOwnerAndID(ctx context.Context, ownerID string, id int64) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM todos WHERE `+todoOwnerScope+` AND id = $2`,
		ownerID, id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete todo: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// searchTextEscaper はLIKEメタ文字をリテラルとして扱うためのエスケープ。
// バックスラッシュを最初に置き、エスケープ文字自体の二重エスケープを防ぐ。
var searchTextEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeSearchText は検索文字列中のLIKEメタ文字（% _ \）をエスケープする。
// "50%"のような検索がリテラルの"50%"だけに一致するようにする。
func escapeSearchText(s string) string {
	return searchTextEscaper.Replace(s)
}

// rowScanner はsql.Rowとsql.Rowsの共通Scanインターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

// scanTodo は1行分のタスクカラムをmodel.Todoに読み込む。
func scanTodo(row rowScanner) (*model.Todo, error) {
	todo := &model.Todo{}
	var dueDate sql.NullTime

	err := row.Scan(
		&todo.ID, &todo.OwnerID, &todo.Title, &todo.Description,
		&dueDate, &todo.IsCompleted, &todo.CreatedAt, &todo.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if dueDate.Valid {
		t := dueDate.Time
		todo.DueDate = &t
	}

	return todo, nil
}

// compile-time interface check
var _ TodoRepository = (*PostgresTodoRepo)(nil)
