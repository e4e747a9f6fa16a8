package handlers

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"net/url"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/scrypster/xmemory/pkg/types"
	"github.com/scrypster/xmemory/web/templates"
	"go.uber.org/zap"
)

// Renderer executes the embedded page templates inside the shared layout.
type Renderer struct {
	pages  map[string]*template.Template
	logger *zap.Logger
}

var templateFuncs = template.FuncMap{
	"formatTime": func(t time.Time) string {
		if t.IsZero() {
			return "-"
		}
		return t.Local().Format("2006-01-02 15:04")
	},
	"updatedAt": func(m *types.Memory) string {
		t, changed := m.Updated()
		if !changed {
			return ""
		}
		return t.Local().Format("2006-01-02 15:04")
	},
	"truncate": func(s string, n int) string {
		if utf8.RuneCountInString(s) <= n {
			return s
		}
		r := []rune(s)
		return string(r[:n]) + "…"
	},
	"statusClass": func(s types.TaskStatus) string {
		switch s {
		case types.TaskToDo:
			return "status-todo"
		case types.TaskInProgress:
			return "status-in-progress"
		case types.TaskDone:
			return "status-done"
		case types.TaskDeleted:
			return "status-deleted"
		}
		return ""
	},
	"pageURL": pageURL,
}

// NewRenderer parses every page of fsys together with layout.html.
// A nil fsys uses the embedded templates.
func NewRenderer(fsys fs.FS, logger *zap.Logger) (*Renderer, error) {
	if fsys == nil {
		fsys = templates.FS
	}
	names, err := fs.Glob(fsys, "*.html")
	if err != nil {
		return nil, err
	}

	r := &Renderer{pages: make(map[string]*template.Template), logger: logger}
	for _, name := range names {
		if name == "layout.html" {
			continue
		}
		t, err := template.New(name).Funcs(templateFuncs).ParseFS(fsys, "layout.html", name)
		if err != nil {
			return nil, fmt.Errorf("handlers: failed to parse template %s: %w", name, err)
		}
		r.pages[name[:len(name)-len(".html")]] = t
	}
	return r, nil
}

// Render writes page with status. Output is buffered so a template error
// still produces a clean 500.
func (r *Renderer) Render(w http.ResponseWriter, status int, page string, data pageData) {
	t, ok := r.pages[page]
	if !ok {
		r.logger.Error("unknown template", zap.String("page", page))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		r.logger.Error("failed to render template", zap.String("page", page), zap.Error(err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// pageURL builds the link to page of a list with the parameters of q.
func pageURL(path string, q types.ListQuery, page int) string {
	v := listValues(q)
	v.Set("page", strconv.Itoa(page))
	return path + "?" + v.Encode()
}

// listValues encodes the list parameters of q as query values.
func listValues(q types.ListQuery) url.Values {
	v := url.Values{}
	v.Set("page", strconv.Itoa(q.Page))
	v.Set("page_size", strconv.Itoa(q.PageSize))
	v.Set("sort_by", q.SortBy)
	v.Set("sort_order", q.SortOrder)
	if q.MemoryType != "" && q.MemoryType != types.MemoryTypeAll {
		v.Set("memory_type", string(q.MemoryType))
	}
	return v
}
