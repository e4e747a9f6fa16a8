package types

import (
	"strings"
	"time"
)

// Memory is a single user-owned record as returned by the XMemory backend.
// Projects and tasks are memories whose MemoryType is "project" or "task";
// a task points at its project through ParentID and keeps its status label
// in Summary.
type Memory struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	Title      string     `json:"title,omitempty"`
	Content    string     `json:"content"`
	Summary    string     `json:"summary,omitempty"`
	MemoryType MemoryType `json:"memory_type"`
	Tags       []string   `json:"tags"`
	ParentID   string     `json:"parent_id,omitempty"`
	RelatedIDs []string   `json:"related_ids,omitempty"`

	// Timestamps are kept as sent by the backend (ISO-8601, sometimes without
	// a zone). Use Created and Updated to get parsed values.
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// timestampLayouts are tried in order when parsing backend timestamps.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	FormTimeLayout,
}

// FormTimeLayout is the layout used by creation forms for an explicit
// created_at value.
const FormTimeLayout = "2006-01-02 15:04:05"

// ParseTimestamp parses a backend timestamp. Timestamps without a zone are
// interpreted as UTC.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Created returns the parsed creation time, or the zero time if absent.
func (m *Memory) Created() time.Time {
	t, _ := ParseTimestamp(m.CreatedAt)
	return t
}

// Updated returns the parsed update time and whether it differs from the
// creation time.
func (m *Memory) Updated() (time.Time, bool) {
	t, ok := ParseTimestamp(m.UpdatedAt)
	if !ok {
		return time.Time{}, false
	}
	return t, !t.Equal(m.Created())
}

// DisplayTitle returns the title, or fallback when the memory has none.
func (m *Memory) DisplayTitle(fallback string) string {
	if strings.TrimSpace(m.Title) == "" {
		return fallback
	}
	return m.Title
}

// IsProject reports whether m is a project.
func (m *Memory) IsProject() bool { return m.MemoryType == MemoryTypeProject }

// IsTask reports whether m is a task.
func (m *Memory) IsTask() bool { return m.MemoryType == MemoryTypeTask }

// TaskStatus returns the status label of a task. Unknown or missing values
// are returned as-is so the caller can render them.
func (m *Memory) TaskStatus() TaskStatus {
	return TaskStatus(m.Summary)
}

// ParseTags splits a comma separated tag string, trimming blanks and
// dropping duplicates while preserving order.
func ParseTags(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	seen := make(map[string]bool)
	var tags []string
	for _, part := range strings.Split(s, ",") {
		tag := strings.TrimSpace(part)
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		tags = append(tags, tag)
	}
	return tags
}
