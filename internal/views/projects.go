package views

import (
	"context"
	"fmt"

	"github.com/scrypster/xmemory/pkg/client"
	"github.com/scrypster/xmemory/pkg/types"
	"go.uber.org/zap"
)

// ProjectAPI is the part of the backend client the project views need.
type ProjectAPI interface {
	MemoryAPI
	GetMemory(ctx context.Context, id string) (*types.Memory, error)
}

// NewProjectList creates a MemoryList whose type filter is fixed to
// "project". Changing the filter returns ErrFixedFilter.
func NewProjectList(api MemoryAPI, userID string, logger *zap.Logger, opts ...ListOption) *MemoryList {
	l := NewMemoryList(api, userID, logger, opts...)
	l.query.MemoryType = types.MemoryTypeProject
	l.fixedType = true
	return l
}

// TaskList lists the tasks of one project. All tasks are loaded on a single
// page, oldest first, and shown grouped by status.
type TaskList struct {
	*MemoryList
}

// NewTaskList creates the task list of the project parentID.
func NewTaskList(api MemoryAPI, userID, parentID string, logger *zap.Logger, opts ...ListOption) *TaskList {
	opts = append([]ListOption{
		WithPageSize(types.MaxPageSize),
		WithSort(types.SortByCreatedAt, types.SortAsc),
	}, opts...)
	l := NewMemoryList(api, userID, logger, opts...)
	l.query.MemoryType = types.MemoryTypeTask
	l.query.ParentID = parentID
	l.fixedType = true
	l.fixedParent = true
	return &TaskList{MemoryList: l}
}

// ProjectID returns the id of the project the tasks belong to.
func (t *TaskList) ProjectID() string {
	return t.Query().ParentID
}

// Tasks returns the rows ordered To Do, In Progress, Done, Deleted, then
// tasks without a status.
func (t *TaskList) Tasks() []types.Memory {
	rows := t.Rows()
	types.SortTasksByStatus(rows)
	return rows
}

// ProjectDetail is a project with its task list.
type ProjectDetail struct {
	Project *types.Memory
	Tasks   *TaskList
}

// LoadProjectDetail fetches the project and its tasks. A missing project,
// or a memory that is not a project, yields ErrNotFound. A failed task fetch
// is kept on the task list; only an expired session aborts the load.
func LoadProjectDetail(ctx context.Context, api ProjectAPI, userID, projectID string, logger *zap.Logger) (*ProjectDetail, error) {
	project, err := api.GetMemory(ctx, projectID)
	if err != nil {
		if client.IsNotFound(err) {
			return nil, fmt.Errorf("%w: project %s", ErrNotFound, projectID)
		}
		return nil, err
	}
	if !project.IsProject() {
		return nil, fmt.Errorf("%w: %s is not a project", ErrNotFound, projectID)
	}

	tasks := NewTaskList(api, userID, projectID, logger)
	if err := tasks.Refresh(ctx); err != nil && client.IsUnauthorized(err) {
		return nil, err
	}
	return &ProjectDetail{Project: project, Tasks: tasks}, nil
}
