// Package model はドメインモデルを定義する。
package model

import "time"

// Todo はユーザーが所有するタスクを表す。
// OwnerIDは作成時に認証済みユーザーから設定され、以後変更されない。
type Todo struct {
	ID          int64
	OwnerID     string
	Title       string
	Description string
	DueDate     *time.Time
	IsCompleted bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// タイトル・説明の最大長（文字数）。DBスキーマの制約と一致させる。
const (
	TodoTitleMaxLen       = 200
	TodoDescriptionMaxLen = 1000
)

// ページネーションの既定値と上限。
const (
	DefaultPageNumber = 1
	DefaultPageSize   = 10
	MaxPageSize       = 100
)

// TodoListParams は一覧取得のページネーション・検索条件を表す。
type TodoListParams struct {
	PageNumber int
	PageSize   int
	SearchText string
}

// Normalize はページ番号・ページサイズを許容範囲にクランプした新しい値を返す。
// ゼロ値（未指定）には既定値を適用する。
func (p TodoListParams) Normalize() TodoListParams {
	if p.PageNumber < 1 {
		p.PageNumber = DefaultPageNumber
	}
	if p.PageSize < 1 {
		p.PageSize = DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		p.PageSize = MaxPageSize
	}
	return p
}

// TodoPage はオーナー絞り込み済みの一覧結果1ページを表す。
type TodoPage struct {
	Todos      []*Todo
	TotalCount int
	PageNumber int
	PageSize   int
	TotalPages int
}

// TodoPatch は部分更新の変更内容を表す。
// nilフィールドは変更しない。DueDateはDueDateSetがtrueの場合のみ反映され、
// DueDateSet=true かつ DueDate=nil は期日のクリアを意味する。
type TodoPatch struct {
	Title       *string
	Description *string
	IsCompleted *bool
	DueDate     *time.Time
	DueDateSet  bool
}
