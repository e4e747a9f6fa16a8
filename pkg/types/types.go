// Package types defines the data structures shared by the XMemory console:
// memories, their type tags, task statuses and the list/search envelopes
// exchanged with the XMemory backend.
package types

import "fmt"

// MemoryType is the type tag carried by every memory.
type MemoryType string

// Memory type constants, in the order the backend declares them.
const (
	MemoryTypeRaw       MemoryType = "raw"
	MemoryTypeInsight   MemoryType = "insight"
	MemoryTypeProject   MemoryType = "project"
	MemoryTypeTask      MemoryType = "task"
	MemoryTypeDiary     MemoryType = "diary"
	MemoryTypeWeekly    MemoryType = "weekly"
	MemoryTypeMonthly   MemoryType = "monthly"
	MemoryTypeQuarterly MemoryType = "quarterly"
	MemoryTypeYearly    MemoryType = "yearly"
	MemoryTypeArchived  MemoryType = "archived"

	// MemoryTypeAll is the filter value meaning "no type filter". It is never
	// sent to the backend and never stored on a memory.
	MemoryTypeAll MemoryType = "all"
)

var memoryTypes = []MemoryType{
	MemoryTypeRaw,
	MemoryTypeInsight,
	MemoryTypeProject,
	MemoryTypeTask,
	MemoryTypeDiary,
	MemoryTypeWeekly,
	MemoryTypeMonthly,
	MemoryTypeQuarterly,
	MemoryTypeYearly,
	MemoryTypeArchived,
}

var memoryTypeLabels = map[MemoryType]string{
	MemoryTypeRaw:       "Raw",
	MemoryTypeInsight:   "Insight",
	MemoryTypeProject:   "Project",
	MemoryTypeTask:      "Task",
	MemoryTypeDiary:     "Diary",
	MemoryTypeWeekly:    "Weekly report",
	MemoryTypeMonthly:   "Monthly report",
	MemoryTypeQuarterly: "Quarterly report",
	MemoryTypeYearly:    "Yearly report",
	MemoryTypeArchived:  "Archived",
	MemoryTypeAll:       "All",
}

// MemoryTypes returns every storable memory type in declaration order.
// The returned slice is a copy and may be modified by the caller.
func MemoryTypes() []MemoryType {
	out := make([]MemoryType, len(memoryTypes))
	copy(out, memoryTypes)
	return out
}

// FilterOptions returns the type filter choices for list views: "all"
// followed by every storable type.
func FilterOptions() []MemoryType {
	return append([]MemoryType{MemoryTypeAll}, memoryTypes...)
}

// IsValid reports whether t is a storable memory type.
func (t MemoryType) IsValid() bool {
	for _, v := range memoryTypes {
		if v == t {
			return true
		}
	}
	return false
}

// IsFilter reports whether t may be used as a list filter ("all" included).
func (t MemoryType) IsFilter() bool {
	return t == MemoryTypeAll || t.IsValid()
}

// Label returns the display name for t, falling back to the raw value.
func (t MemoryType) Label() string {
	if l, ok := memoryTypeLabels[t]; ok {
		return l
	}
	return string(t)
}

func (t MemoryType) String() string { return string(t) }

// ParseMemoryType converts s into a MemoryType usable as a filter.
// An empty string is treated as "all".
func ParseMemoryType(s string) (MemoryType, error) {
	if s == "" {
		return MemoryTypeAll, nil
	}
	t := MemoryType(s)
	if !t.IsFilter() {
		return "", fmt.Errorf("types: unknown memory type %q", s)
	}
	return t, nil
}
