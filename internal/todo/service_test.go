package todo

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/taskman/internal/model"
	"github.com/hitoshi/taskman/internal/repository"
)

// --- インメモリのフェイクリポジトリ ---

// fakeTodoRepo はTodoRepositoryのインメモリ実装。
// PostgresTodoRepoと同じオーナー絞り込み・検索・ページネーション意味論を再現する。
type fakeTodoRepo struct {
	todos  map[int64]*model.Todo
	nextID int64
	// 注入された場合は全操作がこのエラーを返す
	err error
}

func newFakeTodoRepo() *fakeTodoRepo {
	return &fakeTodoRepo{todos: map[int64]*model.Todo{}, nextID: 1}
}

func (f *fakeTodoRepo) Create(ctx context.Context, todo *model.Todo) error {
	if f.err != nil {
		return f.err
	}
	todo.ID = f.nextID
	f.nextID++
	now := time.Now().UTC()
	todo.CreatedAt = now
	todo.UpdatedAt = now
	stored := *todo
	f.todos[todo.ID] = &stored
	return nil
}

func (f *fakeTodoRepo) FindByOwnerAndID(ctx context.Context, ownerID string, id int64) (*model.Todo, error) {
	if f.err != nil {
		return nil, f.err
	}
	todo, ok := f.todos[id]
	if !ok || todo.OwnerID != ownerID {
		return nil, nil
	}
	copied := *todo
	return &copied, nil
}

func (f *fakeTodoRepo) ListByOwner(ctx context.Context, ownerID string, params model.TodoListParams) ([]*model.Todo, int, error) {
	if f.err != nil {
		return nil, 0, f.err
	}
	params = params.Normalize()

	matches := func(t *model.Todo) bool {
		if t.OwnerID != ownerID {
			return false
		}
		if params.SearchText == "" {
			return true
		}
		needle := strings.ToLower(params.SearchText)
		return strings.Contains(strings.ToLower(t.Title), needle) ||
			strings.Contains(strings.ToLower(t.Description), needle)
	}

	var all []*model.Todo
	for _, t := range f.todos {
		if matches(t) {
			copied := *t
			all = append(all, &copied)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	totalCount := len(all)
	start := (params.PageNumber - 1) * params.PageSize
	if start > totalCount {
		start = totalCount
	}
	end := start + params.PageSize
	if end > totalCount {
		end = totalCount
	}

	return all[start:end], totalCount, nil
}

func (f *fakeTodoRepo) Update(ctx context.Context, todo *model.Todo) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	existing, ok := f.todos[todo.ID]
	if !ok || existing.OwnerID != todo.OwnerID {
		return false, nil
	}
	todo.UpdatedAt = time.Now().UTC()
	stored := *todo
	f.todos[todo.ID] = &stored
	return true, nil
}

func (f *fakeTodoRepo) DeleteByOwnerAndID(ctx context.Context, ownerID string, id int64) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	existing, ok := f.todos[id]
	if !ok || existing.OwnerID != ownerID {
		return false, nil
	}
	delete(f.todos, id)
	return true, nil
}

var _ repository.TodoRepository = (*fakeTodoRepo)(nil)

// --- ヘルパー ---

func mustCreate(t *testing.T, svc *Service, ownerID, title, description string) *model.Todo {
	t.Helper()
	todo, err := svc.Create(context.Background(), ownerID, title, description, nil)
	if err != nil {
		t.Fatalf("Create(%q) returned error: %v", title, err)
	}
	return todo
}

func assertNotFound(t *testing.T, err error) {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeTodoNotFound {
		t.Fatalf("err = %v, want TODO_NOT_FOUND", err)
	}
}

// --- テスト ---

func TestCreate_StampsOwnerAndAssignsID(t *testing.T) {
	svc := NewService(newFakeTodoRepo())

	todo := mustCreate(t, svc, "owner-a", "Buy milk", "")

	if todo.ID == 0 {
		t.Error("expected assigned ID")
	}
	if todo.OwnerID != "owner-a" {
		t.Errorf("OwnerID = %q, want %q", todo.OwnerID, "owner-a")
	}
	if todo.IsCompleted {
		t.Error("new todo should not be completed")
	}
}

func TestCreate_InvalidInput_AggregatesFieldErrors(t *testing.T) {
	svc := NewService(newFakeTodoRepo())

	longDescription := strings.Repeat("あ", model.TodoDescriptionMaxLen+1)
	_, err := svc.Create(context.Background(), "owner-a", "  ", longDescription, nil)

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeValidationFailed {
		t.Fatalf("err = %v, want VALIDATION_FAILED", err)
	}
	if len(apiErr.Fields) != 2 {
		t.Errorf("Fields = %d errors, want 2: %+v", len(apiErr.Fields), apiErr.Fields)
	}
}

func TestCreate_TitleAtMaxLength_Succeeds(t *testing.T) {
	svc := NewService(newFakeTodoRepo())

	title := strings.Repeat("x", model.TodoTitleMaxLen)
	if _, err := svc.Create(context.Background(), "owner-a", title, "", nil); err != nil {
		t.Errorf("Create with max-length title returned error: %v", err)
	}

	tooLong := strings.Repeat("x", model.TodoTitleMaxLen+1)
	if _, err := svc.Create(context.Background(), "owner-a", tooLong, "", nil); err == nil {
		t.Error("Create with over-length title should fail")
	}
}

func TestGet_OtherOwnersTodo_IsIndistinguishableFromMissing(t *testing.T) {
	svc := NewService(newFakeTodoRepo())

	owned := mustCreate(t, svc, "owner-b", "secret task", "")

	// 他ユーザーのタスク
	_, otherErr := svc.Get(context.Background(), "owner-a", owned.ID)
	assertNotFound(t, otherErr)

	// 存在しないID
	_, missingErr := svc.Get(context.Background(), "owner-a", 99999)
	assertNotFound(t, missingErr)

	// 両者のエラーは区別できないこと
	var otherAPIErr, missingAPIErr *model.APIError
	errors.As(otherErr, &otherAPIErr)
	errors.As(missingErr, &missingAPIErr)
	if otherAPIErr.Code != missingAPIErr.Code {
		t.Error("wrong-owner and nonexistent-id must be indistinguishable")
	}
}

func TestList_ScopesToOwner(t *testing.T) {
	svc := NewService(newFakeTodoRepo())

	mustCreate(t, svc, "owner-a", "a task 1", "")
	mustCreate(t, svc, "owner-b", "b task", "")
	mustCreate(t, svc, "owner-a", "a task 2", "")

	page, err := svc.List(context.Background(), "owner-a", model.TodoListParams{})
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}

	if page.TotalCount != 2 {
		t.Errorf("TotalCount = %d, want 2", page.TotalCount)
	}
	for _, todo := range page.Todos {
		if todo.OwnerID != "owner-a" {
			t.Errorf("leaked todo %d owned by %q", todo.ID, todo.OwnerID)
		}
	}
}

func TestList_AppliesDefaults(t *testing.T) {
	svc := NewService(newFakeTodoRepo())
	mustCreate(t, svc, "owner-a", "task", "")

	page, err := svc.List(context.Background(), "owner-a", model.TodoListParams{})
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}

	if page.PageNumber != 1 {
		t.Errorf("PageNumber = %d, want 1", page.PageNumber)
	}
	if page.PageSize != 10 {
		t.Errorf("PageSize = %d, want 10", page.PageSize)
	}
}

func TestList_ClampsPageParams(t *testing.T) {
	svc := NewService(newFakeTodoRepo())
	mustCreate(t, svc, "owner-a", "task", "")

	tests := []struct {
		name           string
		params         model.TodoListParams
		wantPageNumber int
		wantPageSize   int
	}{
		{"ゼロ値は既定値", model.TodoListParams{}, 1, 10},
		{"負のページ番号は1", model.TodoListParams{PageNumber: -5, PageSize: 20}, 1, 20},
		{"上限超過のページサイズは100", model.TodoListParams{PageNumber: 2, PageSize: 500}, 2, 100},
		{"ページサイズ0は既定値", model.TodoListParams{PageNumber: 3}, 3, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := svc.List(context.Background(), "owner-a", tt.params)
			if err != nil {
				t.Fatalf("List returned error: %v", err)
			}
			if page.PageNumber != tt.wantPageNumber {
				t.Errorf("PageNumber = %d, want %d", page.PageNumber, tt.wantPageNumber)
			}
			if page.PageSize != tt.wantPageSize {
				t.Errorf("PageSize = %d, want %d", page.PageSize, tt.wantPageSize)
			}
		})
	}
}

// ページネーション不変条件: totalPages == ceil(totalCount/pageSize) であり、
// 全ページを順に連結するとオーナーのタスク全件がid昇順で重複・欠落なく再現されること。
func TestList_PaginationInvariant(t *testing.T) {
	svc := NewService(newFakeTodoRepo())

	const total = 23
	const pageSize = 5
	for i := 0; i < total; i++ {
		mustCreate(t, svc, "owner-a", "task", "")
	}
	// 他ユーザーのタスクは混入しないこと
	mustCreate(t, svc, "owner-b", "task", "")

	wantPages := (total + pageSize - 1) / pageSize

	var collected []int64
	for pageNumber := 1; pageNumber <= wantPages; pageNumber++ {
		page, err := svc.List(context.Background(), "owner-a", model.TodoListParams{
			PageNumber: pageNumber,
			PageSize:   pageSize,
		})
		if err != nil {
			t.Fatalf("List page %d returned error: %v", pageNumber, err)
		}
		if page.TotalCount != total {
			t.Errorf("page %d: TotalCount = %d, want %d", pageNumber, page.TotalCount, total)
		}
		if page.TotalPages != wantPages {
			t.Errorf("page %d: TotalPages = %d, want %d", pageNumber, page.TotalPages, wantPages)
		}
		for _, todo := range page.Todos {
			collected = append(collected, todo.ID)
		}
	}

	if len(collected) != total {
		t.Fatalf("concatenated pages yielded %d todos, want %d", len(collected), total)
	}
	for i := 1; i < len(collected); i++ {
		if collected[i] <= collected[i-1] {
			t.Fatalf("ids not strictly ascending at index %d: %v", i, collected)
		}
	}
}

// 検索は件数計算の前に適用され、totalCountがページ内容と整合すること。
func TestList_SearchFiltersBeforeCounting(t *testing.T) {
	svc := NewService(newFakeTodoRepo())

	mustCreate(t, svc, "owner-a", "Buy milk", "")
	mustCreate(t, svc, "owner-a", "Walk the dog", "")
	mustCreate(t, svc, "owner-a", "Read a book", "milk mentioned here")

	page, err := svc.List(context.Background(), "owner-a", model.TodoListParams{SearchText: "milk"})
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}

	if page.TotalCount != 2 {
		t.Errorf("TotalCount = %d, want 2 (count after search filter)", page.TotalCount)
	}
	if len(page.Todos) != 2 {
		t.Errorf("len(Todos) = %d, want 2", len(page.Todos))
	}
	if page.TotalPages != 1 {
		t.Errorf("TotalPages = %d, want 1", page.TotalPages)
	}
}

func TestList_SearchIsCaseInsensitive(t *testing.T) {
	svc := NewService(newFakeTodoRepo())

	mustCreate(t, svc, "owner-a", "Buy MILK", "")

	page, err := svc.List(context.Background(), "owner-a", model.TodoListParams{SearchText: "milk"})
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if page.TotalCount != 1 {
		t.Errorf("TotalCount = %d, want 1", page.TotalCount)
	}
}

func TestList_EmptyResult_HasZeroPages(t *testing.T) {
	svc := NewService(newFakeTodoRepo())

	page, err := svc.List(context.Background(), "owner-a", model.TodoListParams{})
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if page.TotalCount != 0 {
		t.Errorf("TotalCount = %d, want 0", page.TotalCount)
	}
	if page.TotalPages != 0 {
		t.Errorf("TotalPages = %d, want 0", page.TotalPages)
	}
	if len(page.Todos) != 0 {
		t.Errorf("len(Todos) = %d, want 0", len(page.Todos))
	}
}

// 部分更新: isCompletedのみ指定した場合、他のフィールドは変更されないこと。
func TestUpdate_PartialPatch_LeavesOtherFieldsUnchanged(t *testing.T) {
	svc := NewService(newFakeTodoRepo())

	due := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	created, err := svc.Create(context.Background(), "owner-a", "Buy milk", "2 liters", &due)
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	completed := true
	updated, err := svc.Update(context.Background(), "owner-a", created.ID, model.TodoPatch{
		IsCompleted: &completed,
	})
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}

	if !updated.IsCompleted {
		t.Error("IsCompleted should be true")
	}
	if updated.Title != "Buy milk" {
		t.Errorf("Title = %q, should be unchanged", updated.Title)
	}
	if updated.Description != "2 liters" {
		t.Errorf("Description = %q, should be unchanged", updated.Description)
	}
	if updated.DueDate == nil || !updated.DueDate.Equal(due) {
		t.Errorf("DueDate = %v, should be unchanged", updated.DueDate)
	}
}

// dueDateの明示的なnull指定は期日のクリアを意味すること。
// 未指定（DueDateSet=false）との違いが保たれること。
func TestUpdate_ExplicitNullDueDate_ClearsIt(t *testing.T) {
	svc := NewService(newFakeTodoRepo())

	due := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	created, err := svc.Create(context.Background(), "owner-a", "task", "", &due)
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	// 未指定: 期日は維持される
	title := "renamed"
	kept, err := svc.Update(context.Background(), "owner-a", created.ID, model.TodoPatch{Title: &title})
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if kept.DueDate == nil {
		t.Error("DueDate should be kept when not specified in patch")
	}

	// 明示的なクリア
	cleared, err := svc.Update(context.Background(), "owner-a", created.ID, model.TodoPatch{
		DueDate:    nil,
		DueDateSet: true,
	})
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if cleared.DueDate != nil {
		t.Errorf("DueDate = %v, want nil after explicit clear", cleared.DueDate)
	}
}

func TestUpdate_OtherOwnersTodo_ReturnsNotFound(t *testing.T) {
	svc := NewService(newFakeTodoRepo())

	owned := mustCreate(t, svc, "owner-b", "b task", "")

	completed := true
	_, err := svc.Update(context.Background(), "owner-a", owned.ID, model.TodoPatch{IsCompleted: &completed})
	assertNotFound(t, err)

	// 対象は変更されていないこと
	unchanged, getErr := svc.Get(context.Background(), "owner-b", owned.ID)
	if getErr != nil {
		t.Fatalf("Get returned error: %v", getErr)
	}
	if unchanged.IsCompleted {
		t.Error("other owner's todo must not be modified")
	}
}

func TestUpdate_InvalidPatch_ReturnsValidationError(t *testing.T) {
	svc := NewService(newFakeTodoRepo())

	created := mustCreate(t, svc, "owner-a", "task", "")

	empty := "   "
	_, err := svc.Update(context.Background(), "owner-a", created.ID, model.TodoPatch{Title: &empty})

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeValidationFailed {
		t.Fatalf("err = %v, want VALIDATION_FAILED", err)
	}
}

func TestDelete_RemovesTodo(t *testing.T) {
	svc := NewService(newFakeTodoRepo())

	created := mustCreate(t, svc, "owner-a", "to be deleted", "")

	if err := svc.Delete(context.Background(), "owner-a", created.ID); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}

	// 削除後の取得はNotFound（削除は取り消せない）
	_, err := svc.Get(context.Background(), "owner-a", created.ID)
	assertNotFound(t, err)

	// 再削除もNotFound
	assertNotFound(t, svc.Delete(context.Background(), "owner-a", created.ID))
}

func TestDelete_OtherOwnersTodo_ReturnsNotFound(t *testing.T) {
	svc := NewService(newFakeTodoRepo())

	owned := mustCreate(t, svc, "owner-b", "b task", "")

	assertNotFound(t, svc.Delete(context.Background(), "owner-a", owned.ID))

	// 対象は削除されていないこと
	if _, err := svc.Get(context.Background(), "owner-b", owned.ID); err != nil {
		t.Errorf("other owner's todo must survive: %v", err)
	}
}

func TestService_RepoFailure_PropagatesAsInternalError(t *testing.T) {
	repo := newFakeTodoRepo()
	repo.err = errors.New("connection refused")
	svc := NewService(repo)

	_, err := svc.List(context.Background(), "owner-a", model.TodoListParams{})
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		t.Errorf("store failure should not map to an APIError, got %v", apiErr)
	}
}
