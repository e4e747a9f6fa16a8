package handlers

import (
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/scrypster/xmemory/internal/session"
	"github.com/scrypster/xmemory/internal/views"
	"github.com/scrypster/xmemory/pkg/types"
)

// CreatePage handles GET /, the memory creation form.
func (c *Console) CreatePage(w http.ResponseWriter, r *http.Request) {
	s := SessionFromContext(r.Context())
	form := views.CreateMemoryForm{UserID: s.UserID(), MemoryType: string(types.MemoryTypeRaw)}
	c.renderer.Render(w, http.StatusOK, "create", c.page(w, r, createPage{Form: form, Types: types.MemoryTypes()}))
}

// CreateMemory handles POST /memories.
func (c *Console) CreateMemory(w http.ResponseWriter, r *http.Request) {
	s := SessionFromContext(r.Context())
	form := views.CreateMemoryForm{
		UserID:     s.UserID(),
		Title:      r.PostFormValue("title"),
		Content:    r.PostFormValue("content"),
		Tags:       r.PostFormValue("tags"),
		MemoryType: r.PostFormValue("memory_type"),
		CreatedAt:  r.PostFormValue("created_at"),
	}

	_, err := form.Submit(r.Context(), c.clientFor(s))
	var verr *views.ValidationError
	switch {
	case err == nil:
		c.notifyChanged(s, 1)
		redirectWithFlash(w, r, "/", "Memory saved.")
	case errors.As(err, &verr):
		c.renderer.Render(w, http.StatusUnprocessableEntity, "create",
			c.page(w, r, createPage{Form: form, Types: types.MemoryTypes(), Errors: verr}))
	default:
		c.handleError(w, r, err)
	}
}

// listParams reads the list parameters of a request. Missing parameters
// take their defaults, so every request names the whole list state.
func (c *Console) listParams(r *http.Request, defaultType types.MemoryType) views.ListParams {
	get := r.FormValue
	p := views.ListParams{
		Page:       parseInt(get("page"), 1),
		PageSize:   parseInt(get("page_size"), c.cfg.UI.PageSize),
		SortBy:     get("sort_by"),
		SortOrder:  get("sort_order"),
		MemoryType: types.MemoryType(get("memory_type")),
	}
	if p.Page == 0 {
		p.Page = 1
	}
	if p.SortBy == "" {
		p.SortBy = types.SortByCreatedAt
	}
	if p.SortOrder == "" {
		p.SortOrder = types.SortDesc
	}
	if p.MemoryType == "" {
		p.MemoryType = defaultType
	}
	return p
}

// listState is the list a console session last looked at, kept so a failed
// fetch can still show the rows of the previous one. Handlers hold mu until
// the page is rendered.
type listState struct {
	mu   sync.Mutex
	list *views.MemoryList
}

const (
	memoriesState = "memories"
	projectsState = "projects"
)

func (c *Console) memoryList(s *session.Session) *listState {
	return s.Value(memoriesState, func() interface{} {
		return &listState{list: views.NewMemoryList(c.clientFor(s), s.UserID(), c.logger, views.WithPageSize(c.cfg.UI.PageSize))}
	}).(*listState)
}

func (c *Console) projectList(s *session.Session) *listState {
	return s.Value(projectsState, func() interface{} {
		return &listState{list: views.NewProjectList(c.clientFor(s), s.UserID(), c.logger, views.WithPageSize(c.cfg.UI.PageSize))}
	}).(*listState)
}

func (c *Console) renderList(w http.ResponseWriter, r *http.Request, status int, list *views.MemoryList, errMsg string) {
	pd := c.page(w, r, memoriesPage{
		Page:      list.Snapshot(),
		Filters:   types.FilterOptions(),
		PageSizes: pageSizes,
	})
	if n := list.Notice(); n != "" {
		pd.Notice = n
	}
	if errMsg != "" {
		pd.Error = errMsg
	}
	c.renderer.Render(w, status, "memories", pd)
}

// ListMemories handles GET /memories. A failed fetch keeps the rows the
// session saw last and reports the error above them.
func (c *Console) ListMemories(w http.ResponseWriter, r *http.Request) {
	st := c.memoryList(SessionFromContext(r.Context()))
	st.mu.Lock()
	defer st.mu.Unlock()

	list := st.list
	list.ClearNotice()
	list.ClearSelection()
	err := list.Apply(r.Context(), c.listParams(r, types.MemoryTypeAll))
	if err != nil && !isTransient(err) {
		c.handleError(w, r, err)
		return
	}

	errMsg := ""
	if err != nil {
		errMsg = "Memories could not be loaded. " + userMessage(err)
	}
	c.renderList(w, r, http.StatusOK, list, errMsg)
}

// DeleteMemories handles POST /memories/delete. The page is rendered in
// place so the selection survives a failed or unconfirmed delete.
func (c *Console) DeleteMemories(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		c.renderError(w, r, http.StatusBadRequest, "Bad request", "The form could not be read.")
		return
	}
	s := SessionFromContext(r.Context())

	st := c.memoryList(s)
	st.mu.Lock()
	defer st.mu.Unlock()

	list := st.list
	list.ClearNotice()
	list.SetParams(c.listParams(r, types.MemoryTypeAll))
	list.SetSelection(r.PostForm["id"])
	selected := len(list.Selected())

	err := list.DeleteSelected(r.Context(), r.PostFormValue("confirm") == "yes")
	var derr *views.DeleteError
	switch {
	case err == nil:
		if selected > 0 {
			c.notifyChanged(s, selected)
		}
		if selected == 0 {
			// Nothing was selected, so nothing was fetched yet.
			_ = list.Refresh(r.Context())
		}
		c.renderList(w, r, http.StatusOK, list, "")

	case errors.Is(err, views.ErrNotConfirmed):
		if rerr := list.Refresh(r.Context()); rerr != nil && !isTransient(rerr) {
			c.handleError(w, r, rerr)
			return
		}
		c.renderList(w, r, http.StatusUnprocessableEntity, list, "Tick \"Confirm deletion\" to delete the selected memories.")

	case errors.As(err, &derr):
		if derr.Total > len(derr.Failed) {
			c.notifyChanged(s, derr.Total-len(derr.Failed))
		}
		for _, cause := range derr.Failed {
			if !isTransient(cause) {
				c.handleError(w, r, cause)
				return
			}
		}
		_ = list.Refresh(r.Context())
		c.renderList(w, r, http.StatusBadGateway, list, "Some memories could not be deleted: "+strings.Join(derr.IDs(), ", "))

	default:
		// The deletes succeeded but the refetch failed.
		c.notifyChanged(s, selected)
		if !isTransient(err) {
			c.handleError(w, r, err)
			return
		}
		c.renderList(w, r, http.StatusOK, list, "Memories could not be reloaded. "+userMessage(err))
	}
}

// ShowMemory handles GET /memories/{id}.
func (c *Console) ShowMemory(w http.ResponseWriter, r *http.Request) {
	s := SessionFromContext(r.Context())
	mem, err := c.clientFor(s).GetMemory(r.Context(), extractID(r, "id"))
	if err != nil {
		c.handleError(w, r, err)
		return
	}
	form := views.EditMemoryForm{Title: mem.Title, Content: mem.Content, Tags: strings.Join(mem.Tags, ", ")}
	c.renderer.Render(w, http.StatusOK, "memory", c.page(w, r, memoryPage{Memory: mem, Form: form}))
}

// UpdateMemory handles POST /memories/{id}.
func (c *Console) UpdateMemory(w http.ResponseWriter, r *http.Request) {
	s := SessionFromContext(r.Context())
	api := c.clientFor(s)
	id := extractID(r, "id")
	form := views.EditMemoryForm{
		Title:   r.PostFormValue("title"),
		Content: r.PostFormValue("content"),
		Tags:    r.PostFormValue("tags"),
	}

	_, err := form.Submit(r.Context(), api, id, s.UserID())
	var verr *views.ValidationError
	switch {
	case err == nil:
		c.notifyChanged(s, 1)
		redirectWithFlash(w, r, "/memories/"+id, "Memory updated.")
	case errors.As(err, &verr):
		mem, gerr := api.GetMemory(r.Context(), id)
		if gerr != nil {
			c.handleError(w, r, gerr)
			return
		}
		c.renderer.Render(w, http.StatusUnprocessableEntity, "memory",
			c.page(w, r, memoryPage{Memory: mem, Form: form, Errors: verr}))
	default:
		c.handleError(w, r, err)
	}
}
