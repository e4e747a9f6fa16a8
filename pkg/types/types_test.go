package types_test

import (
	"testing"

	"github.com/scrypster/xmemory/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryTypes_OrderAndCount(t *testing.T) {
	got := types.MemoryTypes()
	require.Len(t, got, 10)
	assert.Equal(t, types.MemoryTypeRaw, got[0])
	assert.Equal(t, types.MemoryTypeArchived, got[9])

	// Mutating the copy must not affect later calls.
	got[0] = "bogus"
	assert.Equal(t, types.MemoryTypeRaw, types.MemoryTypes()[0])
}

func TestFilterOptions_StartsWithAll(t *testing.T) {
	opts := types.FilterOptions()
	require.Len(t, opts, 11)
	assert.Equal(t, types.MemoryTypeAll, opts[0])
}

func TestMemoryType_Validity(t *testing.T) {
	assert.True(t, types.MemoryTypeTask.IsValid())
	assert.False(t, types.MemoryTypeAll.IsValid(), "all is a filter, not a storable type")
	assert.True(t, types.MemoryTypeAll.IsFilter())
	assert.False(t, types.MemoryType("note").IsFilter())
}

func TestParseMemoryType(t *testing.T) {
	tests := []struct {
		in      string
		want    types.MemoryType
		wantErr bool
	}{
		{"", types.MemoryTypeAll, false},
		{"all", types.MemoryTypeAll, false},
		{"weekly", types.MemoryTypeWeekly, false},
		{"WEEKLY", "", true},
		{"note", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := types.ParseMemoryType(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMemoryType_Label(t *testing.T) {
	assert.Equal(t, "Quarterly report", types.MemoryTypeQuarterly.Label())
	assert.Equal(t, "custom", types.MemoryType("custom").Label())
}
