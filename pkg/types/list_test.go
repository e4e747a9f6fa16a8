package types_test

import (
	"testing"

	"github.com/scrypster/xmemory/pkg/types"
	"github.com/stretchr/testify/assert"
)

func TestListQuery_Normalize(t *testing.T) {
	q := types.ListQuery{Page: -3, PageSize: 500, SortBy: "title", SortOrder: "up"}
	q.Normalize()

	assert.Equal(t, 1, q.Page)
	assert.Equal(t, types.MaxPageSize, q.PageSize)
	assert.Equal(t, types.SortByCreatedAt, q.SortBy)
	assert.Equal(t, types.SortDesc, q.SortOrder)
	assert.Equal(t, types.MemoryTypeAll, q.MemoryType)
}

func TestListQuery_NormalizeKeepsValidValues(t *testing.T) {
	q := types.ListQuery{Page: 2, PageSize: 25, SortBy: "updated_at", SortOrder: "asc", MemoryType: types.MemoryTypeDiary}
	q.Normalize()

	assert.Equal(t, types.ListQuery{Page: 2, PageSize: 25, SortBy: "updated_at", SortOrder: "asc", MemoryType: types.MemoryTypeDiary}, q)
}

func TestTotalPages(t *testing.T) {
	assert.Equal(t, 0, types.TotalPages(0, 10))
	assert.Equal(t, 1, types.TotalPages(10, 10))
	assert.Equal(t, 2, types.TotalPages(18, 10))
	assert.Equal(t, 0, types.TotalPages(18, 0))
}

func TestUpdateMemoryRequest_IsEmpty(t *testing.T) {
	assert.True(t, types.UpdateMemoryRequest{}.IsEmpty())
	status := "Done"
	assert.False(t, types.UpdateMemoryRequest{Summary: &status}.IsEmpty())
}
