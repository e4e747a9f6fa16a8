package handlers

import (
	"github.com/scrypster/xmemory/internal/views"
	"github.com/scrypster/xmemory/pkg/types"
)

// ErrorResponse is the standard error response format for JSON endpoints.
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// HealthResponse is the response format for GET /api/health.
type HealthResponse struct {
	Status       string `json:"status"`
	Version      string `json:"version"`
	Backend      string `json:"backend"`
	Breaker      string `json:"breaker"`
	LiveSessions int    `json:"live_sessions"`
}

// pageData is what every template receives. Data holds the page specific
// struct below.
type pageData struct {
	Active bool
	UserID string
	Notice string
	Error  string
	Data   interface{}
}

type loginPage struct {
	Username string
	Expired  bool
	Errors   *views.ValidationError
}

type createPage struct {
	Form   views.CreateMemoryForm
	Types  []types.MemoryType
	Errors *views.ValidationError
}

type memoriesPage struct {
	Page      views.Page
	Filters   []types.MemoryType
	PageSizes []int
}

type memoryPage struct {
	Memory *types.Memory
	Form   views.EditMemoryForm
	Errors *views.ValidationError
}

type searchPage struct {
	Query    string
	Searched bool
	Results  []types.Memory
	Errors   *views.ValidationError
}

type projectsPage struct {
	Page   views.Page
	Form   views.ProjectForm
	Errors *views.ValidationError
}

type projectPage struct {
	Project    *types.Memory
	Tasks      []types.Memory
	TasksError string
	Statuses   []types.TaskStatus
	Form       views.TaskForm
	Errors     *views.ValidationError
}

type errorPage struct {
	Heading string
	Message string
}

// pageSizes offered by the list views.
var pageSizes = []int{10, 20, 50, 100}
