// Package views holds the console's view controllers: the paginated memory
// list, project and task lists, and form validation. Controllers own their
// state and talk to the backend through small interfaces satisfied by
// *client.Client, so they can be driven from HTTP handlers, the CLI or tests.
package views

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/scrypster/xmemory/pkg/client"
	"github.com/scrypster/xmemory/pkg/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// MaxParallelDeletes bounds the concurrent delete calls of a bulk delete.
const MaxParallelDeletes = 4

// MemoryAPI is the part of the backend client a list needs.
type MemoryAPI interface {
	ListMemories(ctx context.Context, q types.ListQuery) (*types.ListResponse, error)
	DeleteMemory(ctx context.Context, id, userID string) error
}

// ListParams changes several list parameters at once. Zero values leave the
// corresponding parameter unchanged; ParentID is a pointer so it can be
// cleared explicitly.
type ListParams struct {
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
	MemoryType types.MemoryType
	ParentID   *string
}

// ListOption configures a MemoryList at construction.
type ListOption func(*MemoryList)

// WithPageSize sets the initial page size.
func WithPageSize(n int) ListOption {
	return func(l *MemoryList) {
		if n >= 1 && n <= types.MaxPageSize {
			l.query.PageSize = n
		}
	}
}

// WithSort sets the initial sort field and direction.
func WithSort(field, order string) ListOption {
	return func(l *MemoryList) {
		if validSortBy(field) && validSortOrder(order) {
			l.query.SortBy = field
			l.query.SortOrder = order
		}
	}
}

// WithParams presets list parameters without fetching. Invalid values are
// ignored, and fixed filters of project and task lists take precedence.
func WithParams(p ListParams) ListOption {
	return func(l *MemoryList) {
		if p.PageSize >= 1 && p.PageSize <= types.MaxPageSize {
			l.query.PageSize = p.PageSize
		}
		if p.Page >= 1 {
			l.query.Page = p.Page
		}
		if validSortBy(p.SortBy) {
			l.query.SortBy = p.SortBy
		}
		if validSortOrder(p.SortOrder) {
			l.query.SortOrder = p.SortOrder
		}
		if p.MemoryType.IsFilter() {
			l.query.MemoryType = p.MemoryType
		}
		if p.ParentID != nil {
			l.query.ParentID = *p.ParentID
		}
	}
}

// WithMaxParallelDeletes overrides MaxParallelDeletes.
func WithMaxParallelDeletes(n int) ListOption {
	return func(l *MemoryList) {
		if n > 0 {
			l.maxParallel = n
		}
	}
}

// MemoryList is the paginated, sortable, filterable list of a user's
// memories with a selection and bulk delete.
//
// Every parameter change issues exactly one fetch carrying all current
// parameters, and a successful fetch replaces the rows. A failed fetch keeps
// the previous rows and records the error.
type MemoryList struct {
	api         MemoryAPI
	logger      *zap.Logger
	maxParallel int

	fixedType   bool
	fixedParent bool

	mu         sync.Mutex
	query      types.ListQuery
	shown      types.ListQuery // query of the rows on screen
	rows       []types.Memory
	total      int
	totalPages int
	loaded     bool
	selected   map[string]struct{}
	order      []string
	lastErr    error
	notice     string
}

// NewMemoryList creates a list for userID with page 1, page size 10, newest
// first and no type filter. Nothing is fetched until a setter, Apply or
// Refresh is called.
func NewMemoryList(api MemoryAPI, userID string, logger *zap.Logger, opts ...ListOption) *MemoryList {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &MemoryList{
		api:         api,
		logger:      logger,
		maxParallel: MaxParallelDeletes,
		query: types.ListQuery{
			UserID:     userID,
			Page:       1,
			PageSize:   types.DefaultPageSize,
			SortBy:     types.SortByCreatedAt,
			SortOrder:  types.SortDesc,
			MemoryType: types.MemoryTypeAll,
		},
		selected: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.shown = l.query
	return l
}

// SetPage moves to page and fetches it.
func (l *MemoryList) SetPage(ctx context.Context, page int) error {
	if page < 1 {
		return invalidParam("page %d must be at least 1", page)
	}
	return l.update(ctx, func(q *types.ListQuery) bool {
		if q.Page == page {
			return false
		}
		q.Page = page
		return true
	})
}

// SetPageSize changes the page size, returns to page 1 and fetches.
func (l *MemoryList) SetPageSize(ctx context.Context, size int) error {
	if size < 1 || size > types.MaxPageSize {
		return invalidParam("page size %d must be within 1..%d", size, types.MaxPageSize)
	}
	return l.update(ctx, func(q *types.ListQuery) bool {
		if q.PageSize == size {
			return false
		}
		q.PageSize = size
		q.Page = 1
		return true
	})
}

// SetSort changes the sort field and direction and fetches. The current
// page is kept.
func (l *MemoryList) SetSort(ctx context.Context, field, order string) error {
	if !validSortBy(field) {
		return invalidParam("sort field %q must be created_at or updated_at", field)
	}
	if !validSortOrder(order) {
		return invalidParam("sort order %q must be asc or desc", order)
	}
	return l.update(ctx, func(q *types.ListQuery) bool {
		if q.SortBy == field && q.SortOrder == order {
			return false
		}
		q.SortBy = field
		q.SortOrder = order
		return true
	})
}

// SetTypeFilter restricts the list to memoryType ("all" for no filter),
// returns to page 1 and fetches.
func (l *MemoryList) SetTypeFilter(ctx context.Context, memoryType types.MemoryType) error {
	if !memoryType.IsFilter() {
		return invalidParam("unknown memory type %q", memoryType)
	}
	if l.fixedType && memoryType != l.currentType() {
		return ErrFixedFilter
	}
	return l.update(ctx, func(q *types.ListQuery) bool {
		if q.MemoryType == memoryType {
			return false
		}
		q.MemoryType = memoryType
		q.Page = 1
		return true
	})
}

// SetParent restricts the list to children of parentID ("" for none),
// returns to page 1 and fetches.
func (l *MemoryList) SetParent(ctx context.Context, parentID string) error {
	if l.fixedParent && parentID != l.currentParent() {
		return ErrFixedFilter
	}
	return l.update(ctx, func(q *types.ListQuery) bool {
		if q.ParentID == parentID {
			return false
		}
		q.ParentID = parentID
		q.Page = 1
		return true
	})
}

// Apply sets every non-zero field of p and then fetches exactly once, even
// if nothing changed. An explicit Page wins over the page reset caused by a
// page size or filter change.
func (l *MemoryList) Apply(ctx context.Context, p ListParams) error {
	if p.Page < 0 {
		return invalidParam("page %d must be at least 1", p.Page)
	}
	if p.PageSize < 0 || p.PageSize > types.MaxPageSize {
		return invalidParam("page size %d must be within 1..%d", p.PageSize, types.MaxPageSize)
	}
	if p.SortBy != "" && !validSortBy(p.SortBy) {
		return invalidParam("sort field %q must be created_at or updated_at", p.SortBy)
	}
	if p.SortOrder != "" && !validSortOrder(p.SortOrder) {
		return invalidParam("sort order %q must be asc or desc", p.SortOrder)
	}
	if p.MemoryType != "" && !p.MemoryType.IsFilter() {
		return invalidParam("unknown memory type %q", p.MemoryType)
	}
	if l.fixedType && p.MemoryType != "" && p.MemoryType != l.currentType() {
		return ErrFixedFilter
	}
	if l.fixedParent && p.ParentID != nil && *p.ParentID != l.currentParent() {
		return ErrFixedFilter
	}

	return l.update(ctx, func(q *types.ListQuery) bool {
		if p.PageSize != 0 && p.PageSize != q.PageSize {
			q.PageSize = p.PageSize
			q.Page = 1
		}
		if p.SortBy != "" {
			q.SortBy = p.SortBy
		}
		if p.SortOrder != "" {
			q.SortOrder = p.SortOrder
		}
		if p.MemoryType != "" && p.MemoryType != q.MemoryType {
			q.MemoryType = p.MemoryType
			q.Page = 1
		}
		if p.ParentID != nil && *p.ParentID != q.ParentID {
			q.ParentID = *p.ParentID
			q.Page = 1
		}
		if p.Page != 0 {
			q.Page = p.Page
		}
		return true
	})
}

// SetParams presets the query like WithParams, without fetching. Fixed
// filters are left alone.
func (l *MemoryList) SetParams(p ListParams) {
	if l.fixedType {
		p.MemoryType = ""
	}
	if l.fixedParent {
		p.ParentID = nil
	}
	l.mu.Lock()
	WithParams(p)(l)
	l.mu.Unlock()
}

// Refresh re-fetches the current page with the current parameters.
func (l *MemoryList) Refresh(ctx context.Context) error {
	return l.update(ctx, func(*types.ListQuery) bool { return true })
}

// update applies change under the lock and fetches when it reports a change.
// Setters return nil for a no-op and the fetch error otherwise.
func (l *MemoryList) update(ctx context.Context, change func(q *types.ListQuery) bool) error {
	l.mu.Lock()
	if !change(&l.query) {
		l.mu.Unlock()
		return nil
	}
	q := l.query
	l.mu.Unlock()

	return l.fetch(ctx, q)
}

// fetch loads q and applies the result. Results are applied in arrival order.
func (l *MemoryList) fetch(ctx context.Context, q types.ListQuery) error {
	resp, err := l.api.ListMemories(ctx, q)

	l.mu.Lock()
	defer l.mu.Unlock()

	if err != nil {
		l.lastErr = err
		l.logger.Error("failed to load memories",
			zap.String("user_id", q.UserID),
			zap.Int("page", q.Page),
			zap.Int("page_size", q.PageSize),
			zap.String("memory_type", string(q.MemoryType)),
			zap.Error(err))
		return err
	}

	l.rows = resp.Memories
	l.shown = q
	l.total = resp.Total
	l.totalPages = resp.TotalPages
	if l.totalPages == 0 {
		l.totalPages = types.TotalPages(resp.Total, q.PageSize)
	}
	l.loaded = true
	l.lastErr = nil
	return nil
}

// Rows returns a copy of the current rows.
func (l *MemoryList) Rows() []types.Memory {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]types.Memory, len(l.rows))
	copy(out, l.rows)
	return out
}

// Query returns the current list parameters.
func (l *MemoryList) Query() types.ListQuery {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.query
}

// Total returns the total number of matching memories.
func (l *MemoryList) Total() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}

// TotalPages returns the number of pages at the current page size.
func (l *MemoryList) TotalPages() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.totalPages
}

// Err returns the error of the last fetch, or nil if it succeeded.
func (l *MemoryList) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastErr
}

// Notice returns the transient message left by the last bulk delete.
func (l *MemoryList) Notice() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.notice
}

// ClearNotice drops the transient message.
func (l *MemoryList) ClearNotice() {
	l.mu.Lock()
	l.notice = ""
	l.mu.Unlock()
}

// RangeLabel describes the visible rows, e.g. "11-18 of 18", or "0 of 0"
// when there are none. After a failed fetch it still describes the rows
// of the last successful one.
func (l *MemoryList) RangeLabel() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.rows) == 0 {
		return fmt.Sprintf("0 of %d", l.total)
	}
	start := (l.shown.Page-1)*l.shown.PageSize + 1
	end := start + len(l.rows) - 1
	return fmt.Sprintf("%d-%d of %d", start, end, l.total)
}

// Select adds id to the selection. Selection changes never fetch.
func (l *MemoryList) Select(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.selectLocked(id)
}

// Deselect removes id from the selection.
func (l *MemoryList) Deselect(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.deselectLocked(id)
}

// Toggle flips the selection state of id.
func (l *MemoryList) Toggle(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.selected[id]; ok {
		l.deselectLocked(id)
		return
	}
	l.selectLocked(id)
}

// SelectAll selects every row of the current page.
func (l *MemoryList) SelectAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, m := range l.rows {
		l.selectLocked(m.ID)
	}
}

// ClearSelection empties the selection.
func (l *MemoryList) ClearSelection() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.selected = make(map[string]struct{})
	l.order = nil
}

// SetSelection replaces the selection with ids.
func (l *MemoryList) SetSelection(ids []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.selected = make(map[string]struct{}, len(ids))
	l.order = nil
	for _, id := range ids {
		l.selectLocked(id)
	}
}

// Selected returns the selected ids in the order they were selected.
func (l *MemoryList) Selected() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.order))
	copy(out, l.order)
	return out
}

// IsSelected reports whether id is selected.
func (l *MemoryList) IsSelected(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.selected[id]
	return ok
}

func (l *MemoryList) selectLocked(id string) {
	if id == "" {
		return
	}
	if _, ok := l.selected[id]; ok {
		return
	}
	l.selected[id] = struct{}{}
	l.order = append(l.order, id)
}

func (l *MemoryList) deselectLocked(id string) {
	if _, ok := l.selected[id]; !ok {
		return
	}
	delete(l.selected, id)
	for i, v := range l.order {
		if v == id {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
}

// DeleteSelected deletes every selected memory, one backend call per id.
//
// Without confirmation nothing is sent and ErrNotConfirmed is returned. When
// all deletes succeed the selection is cleared and the current page is
// fetched again. When any fails the selection is left intact, a notice is
// set and a *DeleteError naming the failed ids is returned. A memory that is
// already gone (404) counts as deleted.
func (l *MemoryList) DeleteSelected(ctx context.Context, confirmed bool) error {
	if !confirmed {
		return ErrNotConfirmed
	}

	ids := l.Selected()
	if len(ids) == 0 {
		return nil
	}
	userID := l.Query().UserID

	var (
		mu     sync.Mutex
		failed = make(map[string]error)
	)
	// Deletes are independent: one failure must not cancel the others, so
	// the group is used for its concurrency limit only.
	var g errgroup.Group
	g.SetLimit(l.maxParallel)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			err := l.api.DeleteMemory(ctx, id, userID)
			if err == nil || errors.Is(err, client.ErrNotFound) {
				return nil
			}
			mu.Lock()
			failed[id] = err
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if len(failed) > 0 {
		derr := &DeleteError{Failed: failed, Total: len(ids)}
		l.mu.Lock()
		l.notice = fmt.Sprintf("Failed to delete %d of %d memories", len(failed), len(ids))
		l.mu.Unlock()
		l.logger.Warn("bulk delete failed",
			zap.String("user_id", userID),
			zap.Strings("failed_ids", derr.IDs()),
			zap.Int("total", len(ids)))
		return derr
	}

	l.mu.Lock()
	l.selected = make(map[string]struct{})
	l.order = nil
	l.notice = fmt.Sprintf("Deleted %d %s", len(ids), plural(len(ids), "memory", "memories"))
	l.mu.Unlock()
	l.logger.Info("bulk delete completed", zap.String("user_id", userID), zap.Int("count", len(ids)))

	return l.Refresh(ctx)
}

// Page is a render-ready snapshot of a list. Query holds the requested
// parameters and Shown the parameters the rows were fetched with; they
// differ only after a failed fetch.
type Page struct {
	Rows       []types.Memory
	Query      types.ListQuery
	Shown      types.ListQuery
	Total      int
	TotalPages int
	RangeLabel string
	Selected   map[string]bool
	Loaded     bool
	Notice     string
	Err        error
}

// HasPrev reports whether a previous page exists.
func (p Page) HasPrev() bool { return p.Shown.Page > 1 }

// HasNext reports whether a following page exists.
func (p Page) HasNext() bool { return p.Shown.Page < p.TotalPages }

// PrevPage returns the previous page number.
func (p Page) PrevPage() int { return p.Shown.Page - 1 }

// NextPage returns the following page number.
func (p Page) NextPage() int { return p.Shown.Page + 1 }

// Snapshot returns the list state for rendering.
func (l *MemoryList) Snapshot() Page {
	label := l.RangeLabel()

	l.mu.Lock()
	defer l.mu.Unlock()
	rows := make([]types.Memory, len(l.rows))
	copy(rows, l.rows)
	sel := make(map[string]bool, len(l.selected))
	for id := range l.selected {
		sel[id] = true
	}
	return Page{
		Rows:       rows,
		Query:      l.query,
		Shown:      l.shown,
		Total:      l.total,
		TotalPages: l.totalPages,
		RangeLabel: label,
		Selected:   sel,
		Loaded:     l.loaded,
		Notice:     l.notice,
		Err:        l.lastErr,
	}
}

func (l *MemoryList) currentType() types.MemoryType {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.query.MemoryType
}

func (l *MemoryList) currentParent() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.query.ParentID
}

func validSortBy(s string) bool {
	return s == types.SortByCreatedAt || s == types.SortByUpdatedAt
}

func validSortOrder(s string) bool {
	return s == types.SortAsc || s == types.SortDesc
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
