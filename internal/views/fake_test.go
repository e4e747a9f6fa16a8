package views_test

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/scrypster/xmemory/pkg/client"
	"github.com/scrypster/xmemory/pkg/types"
)

// fakeBackend is an in-memory MemoryAPI/ProjectAPI that records every call.
type fakeBackend struct {
	mu        sync.Mutex
	memories  []types.Memory
	queries   []types.ListQuery
	deletes   []string
	listErr   error
	deleteErr map[string]error
	// total overrides the computed total when non-zero.
	total int
}

func newFakeBackend(n int, memoryType types.MemoryType) *fakeBackend {
	f := &fakeBackend{deleteErr: make(map[string]error)}
	for i := 1; i <= n; i++ {
		f.memories = append(f.memories, types.Memory{
			ID:         fmt.Sprintf("m%02d", i),
			UserID:     "alice",
			Content:    fmt.Sprintf("memory %d", i),
			MemoryType: memoryType,
		})
	}
	return f
}

func (f *fakeBackend) ListMemories(_ context.Context, q types.ListQuery) (*types.ListResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	if f.listErr != nil {
		return nil, f.listErr
	}

	var matched []types.Memory
	for _, m := range f.memories {
		if q.MemoryType != types.MemoryTypeAll && m.MemoryType != q.MemoryType {
			continue
		}
		if q.ParentID != "" && m.ParentID != q.ParentID {
			continue
		}
		matched = append(matched, m)
	}
	if q.SortOrder == types.SortDesc {
		sort.SliceStable(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })
	}

	total := len(matched)
	if f.total != 0 {
		total = f.total
	}
	start := (q.Page - 1) * q.PageSize
	if start > len(matched) {
		start = len(matched)
	}
	end := start + q.PageSize
	if end > len(matched) {
		end = len(matched)
	}
	page := append([]types.Memory{}, matched[start:end]...)
	return &types.ListResponse{
		Memories:   page,
		Total:      total,
		Page:       q.Page,
		PageSize:   q.PageSize,
		TotalPages: types.TotalPages(total, q.PageSize),
	}, nil
}

func (f *fakeBackend) DeleteMemory(_ context.Context, id, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, id)
	if err := f.deleteErr[id]; err != nil {
		return err
	}
	for i, m := range f.memories {
		if m.ID == id {
			f.memories = append(f.memories[:i], f.memories[i+1:]...)
			return nil
		}
	}
	return &client.APIError{StatusCode: http.StatusNotFound, Message: "Memory not found"}
}

func (f *fakeBackend) GetMemory(_ context.Context, id string) (*types.Memory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.memories {
		if m.ID == id {
			m := m
			return &m, nil
		}
	}
	return nil, &client.APIError{StatusCode: http.StatusNotFound}
}

func (f *fakeBackend) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

func (f *fakeBackend) lastQuery() types.ListQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queries[len(f.queries)-1]
}

func (f *fakeBackend) deleted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]string{}, f.deletes...)
	sort.Strings(out)
	return out
}
