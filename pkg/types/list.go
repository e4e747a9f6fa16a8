package types

// Sort fields accepted by the backend list endpoint.
const (
	SortByCreatedAt = "created_at"
	SortByUpdatedAt = "updated_at"

	SortAsc  = "asc"
	SortDesc = "desc"
)

// Page size bounds enforced by the backend.
const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// ListQuery carries every parameter of GET /memories/.
type ListQuery struct {
	UserID     string
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
	MemoryType MemoryType
	ParentID   string
}

// Normalize applies the backend defaults to unset fields.
func (q *ListQuery) Normalize() {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = DefaultPageSize
	}
	if q.PageSize > MaxPageSize {
		q.PageSize = MaxPageSize
	}
	if q.SortBy != SortByCreatedAt && q.SortBy != SortByUpdatedAt {
		q.SortBy = SortByCreatedAt
	}
	if q.SortOrder != SortAsc && q.SortOrder != SortDesc {
		q.SortOrder = SortDesc
	}
	if q.MemoryType == "" {
		q.MemoryType = MemoryTypeAll
	}
}

// ListResponse is the paginated envelope returned by GET /memories/.
type ListResponse struct {
	Memories   []Memory `json:"memories"`
	Total      int      `json:"total"`
	Page       int      `json:"page"`
	PageSize   int      `json:"page_size"`
	TotalPages int      `json:"total_pages"`
}

// TotalPages computes ceil(total/pageSize), returning 0 for a non-positive
// page size.
func TotalPages(total, pageSize int) int {
	if pageSize <= 0 {
		return 0
	}
	pages := total / pageSize
	if total%pageSize > 0 {
		pages++
	}
	return pages
}

// CreateMemoryRequest is the body of POST /memories/.
type CreateMemoryRequest struct {
	UserID     string     `json:"user_id"`
	Title      string     `json:"title,omitempty"`
	Content    string     `json:"content"`
	Summary    string     `json:"summary,omitempty"`
	Tags       []string   `json:"tags,omitempty"`
	MemoryType MemoryType `json:"memory_type,omitempty"`
	ParentID   string     `json:"parent_id,omitempty"`
	CreatedAt  string     `json:"created_at,omitempty"`
}

// UpdateMemoryRequest is the body of PUT /memories/{id}. Nil fields are
// omitted so the backend leaves them unchanged.
type UpdateMemoryRequest struct {
	Content    *string   `json:"content,omitempty"`
	Title      *string   `json:"title,omitempty"`
	Tags       *[]string `json:"tags,omitempty"`
	Summary    *string   `json:"summary,omitempty"`
	ParentID   *string   `json:"parent_id,omitempty"`
	RelatedIDs *[]string `json:"related_ids,omitempty"`
}

// IsEmpty reports whether the request would change nothing.
func (r UpdateMemoryRequest) IsEmpty() bool {
	return r.Content == nil && r.Title == nil && r.Tags == nil &&
		r.Summary == nil && r.ParentID == nil && r.RelatedIDs == nil
}

// DeleteResponse is the body returned by DELETE /memories/{id}.
type DeleteResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// SearchResponse is the body returned by GET /memories/search.
type SearchResponse struct {
	Memories []Memory `json:"memories"`
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is the body returned by POST /auth/login.
type LoginResponse struct {
	SessionID string `json:"session_id"`
}
