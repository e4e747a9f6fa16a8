package handlers

import (
	"errors"
	"net/http"

	"github.com/scrypster/xmemory/internal/views"
	"go.uber.org/zap"
)

// Search handles GET /search?query=. Without a query parameter the
// empty search form is shown.
func (c *Console) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if !q.Has("query") {
		c.renderer.Render(w, http.StatusOK, "search", c.page(w, r, searchPage{}))
		return
	}

	s := SessionFromContext(r.Context())
	form := views.SearchForm{
		UserID: s.UserID(),
		Query:  q.Get("query"),
		Size:   parseInt(q.Get("size"), 0),
	}
	results, err := form.Submit(r.Context(), c.clientFor(s))

	data := searchPage{Query: form.Query}
	var verr *views.ValidationError
	switch {
	case err == nil:
		data.Searched = true
		data.Results = results
		c.renderer.Render(w, http.StatusOK, "search", c.page(w, r, data))
	case errors.As(err, &verr):
		data.Errors = verr
		c.renderer.Render(w, http.StatusUnprocessableEntity, "search", c.page(w, r, data))
	case isTransient(err):
		pd := c.page(w, r, data)
		pd.Error = "Search failed. " + userMessage(err)
		c.logger.Warn("search failed", zap.Error(err))
		c.renderer.Render(w, http.StatusBadGateway, "search", pd)
	default:
		c.handleError(w, r, err)
	}
}
