package handlers

import (
	"errors"
	"net/http"

	"github.com/scrypster/xmemory/internal/session"
	"github.com/scrypster/xmemory/internal/views"
	"github.com/scrypster/xmemory/pkg/client"
	"github.com/scrypster/xmemory/pkg/types"
	"go.uber.org/zap"
)

func (c *Console) renderProjects(w http.ResponseWriter, r *http.Request, status int, list *views.MemoryList, data projectsPage, errMsg string) {
	data.Page = list.Snapshot()
	pd := c.page(w, r, data)
	if errMsg != "" {
		pd.Error = errMsg
	}
	c.renderer.Render(w, status, "projects", pd)
}

// ListProjects handles GET /projects.
func (c *Console) ListProjects(w http.ResponseWriter, r *http.Request) {
	st := c.projectList(SessionFromContext(r.Context()))
	st.mu.Lock()
	defer st.mu.Unlock()

	list := st.list
	list.ClearNotice()
	err := list.Apply(r.Context(), c.listParams(r, ""))
	if err != nil && !isTransient(err) {
		c.handleError(w, r, err)
		return
	}
	errMsg := ""
	if err != nil {
		errMsg = "Projects could not be loaded. " + userMessage(err)
	}
	c.renderProjects(w, r, http.StatusOK, list, projectsPage{}, errMsg)
}

// CreateProject handles POST /projects.
func (c *Console) CreateProject(w http.ResponseWriter, r *http.Request) {
	s := SessionFromContext(r.Context())
	api := c.clientFor(s)
	form := views.ProjectForm{
		UserID:  s.UserID(),
		Title:   r.PostFormValue("title"),
		Content: r.PostFormValue("content"),
	}

	project, err := form.Submit(r.Context(), api)
	var verr *views.ValidationError
	switch {
	case err == nil:
		c.notifyChanged(s, 1)
		target := "/projects"
		if project.ID != "" {
			target = "/projects/" + project.ID
		}
		redirectWithFlash(w, r, target, "Project created.")
	case errors.As(err, &verr):
		st := c.projectList(s)
		st.mu.Lock()
		defer st.mu.Unlock()
		if lerr := st.list.Refresh(r.Context()); lerr != nil && !isTransient(lerr) {
			c.handleError(w, r, lerr)
			return
		}
		c.renderProjects(w, r, http.StatusUnprocessableEntity, st.list, projectsPage{Form: form, Errors: verr}, "")
	default:
		c.handleError(w, r, err)
	}
}

// ShowProject handles GET /projects/{id}. A missing project redirects to
// the project list.
func (c *Console) ShowProject(w http.ResponseWriter, r *http.Request) {
	s := SessionFromContext(r.Context())
	c.showProject(w, r, s, http.StatusOK, views.TaskForm{}, nil)
}

func (c *Console) showProject(w http.ResponseWriter, r *http.Request, s *session.Session, status int, form views.TaskForm, verr *views.ValidationError) {
	detail, err := views.LoadProjectDetail(r.Context(), c.clientFor(s), s.UserID(), extractID(r, "id"), c.logger)
	if errors.Is(err, views.ErrNotFound) {
		redirectWithFlash(w, r, "/projects", "That project no longer exists.")
		return
	}
	if err != nil {
		c.handleError(w, r, err)
		return
	}

	data := projectPage{
		Project:  detail.Project,
		Tasks:    detail.Tasks.Tasks(),
		Statuses: types.TaskStatuses(),
		Form:     form,
		Errors:   verr,
	}
	if terr := detail.Tasks.Err(); terr != nil {
		data.TasksError = userMessage(terr)
	}
	c.renderer.Render(w, status, "project", c.page(w, r, data))
}

// DeleteProject handles POST /projects/{id}/delete.
func (c *Console) DeleteProject(w http.ResponseWriter, r *http.Request) {
	if r.PostFormValue("confirm") != "yes" {
		redirectWithFlash(w, r, "/projects/"+extractID(r, "id"), "Deletion was not confirmed.")
		return
	}
	s := SessionFromContext(r.Context())
	if !c.deleteMemory(w, r, s, extractID(r, "id")) {
		return
	}
	redirectWithFlash(w, r, "/projects", "Project deleted.")
}

// CreateTask handles POST /projects/{id}/tasks.
func (c *Console) CreateTask(w http.ResponseWriter, r *http.Request) {
	s := SessionFromContext(r.Context())
	projectID := extractID(r, "id")
	form := views.TaskForm{
		UserID:    s.UserID(),
		ProjectID: projectID,
		Title:     r.PostFormValue("title"),
		Content:   r.PostFormValue("content"),
		Status:    r.PostFormValue("status"),
	}

	_, err := form.Submit(r.Context(), c.clientFor(s))
	var verr *views.ValidationError
	switch {
	case err == nil:
		c.notifyChanged(s, 1)
		redirectWithFlash(w, r, "/projects/"+projectID, "Task added.")
	case errors.As(err, &verr):
		c.showProject(w, r, s, http.StatusUnprocessableEntity, form, verr)
	default:
		c.handleError(w, r, err)
	}
}

// UpdateTask handles POST /projects/{id}/tasks/{taskID}.
func (c *Console) UpdateTask(w http.ResponseWriter, r *http.Request) {
	s := SessionFromContext(r.Context())
	projectID := extractID(r, "id")
	form := views.TaskForm{
		UserID:    s.UserID(),
		ProjectID: projectID,
		Title:     r.PostFormValue("title"),
		Content:   r.PostFormValue("content"),
		Status:    r.PostFormValue("status"),
	}

	_, err := form.SubmitUpdate(r.Context(), c.clientFor(s), extractID(r, "taskID"))
	var verr *views.ValidationError
	switch {
	case err == nil:
		c.notifyChanged(s, 1)
		redirectWithFlash(w, r, "/projects/"+projectID, "Task updated.")
	case errors.As(err, &verr):
		c.showProject(w, r, s, http.StatusUnprocessableEntity, form, verr)
	default:
		c.handleError(w, r, err)
	}
}

// DeleteTask handles POST /projects/{id}/tasks/{taskID}/delete.
func (c *Console) DeleteTask(w http.ResponseWriter, r *http.Request) {
	projectID := extractID(r, "id")
	if r.PostFormValue("confirm") != "yes" {
		redirectWithFlash(w, r, "/projects/"+projectID, "Deletion was not confirmed.")
		return
	}
	s := SessionFromContext(r.Context())
	if !c.deleteMemory(w, r, s, extractID(r, "taskID")) {
		return
	}
	redirectWithFlash(w, r, "/projects/"+projectID, "Task deleted.")
}

// deleteMemory deletes id and reports whether the handler should continue.
// A memory that is already gone counts as deleted.
func (c *Console) deleteMemory(w http.ResponseWriter, r *http.Request, s *session.Session, id string) bool {
	err := c.clientFor(s).DeleteMemory(r.Context(), id, s.UserID())
	if err != nil && !client.IsNotFound(err) {
		c.logger.Warn("delete failed", zap.String("id", id), zap.Error(err))
		c.handleError(w, r, err)
		return false
	}
	c.notifyChanged(s, 1)
	return true
}
