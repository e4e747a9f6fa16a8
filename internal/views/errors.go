package views

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrInvalidParams is returned by list setters for out-of-range values.
	// No fetch is issued.
	ErrInvalidParams = errors.New("views: invalid list parameters")

	// ErrFixedFilter is returned when changing a filter a list was created with.
	ErrFixedFilter = errors.New("views: filter is fixed for this list")

	// ErrNotConfirmed is returned by DeleteSelected without confirmation.
	ErrNotConfirmed = errors.New("views: deletion not confirmed")

	// ErrNotFound is returned when a requested project does not exist.
	ErrNotFound = errors.New("views: not found")
)

// ValidationError carries per-field messages of a rejected form.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+e.Fields[name])
	}
	return "views: validation failed: " + strings.Join(parts, ", ")
}

// Field returns the message for name, or "".
func (e *ValidationError) Field(name string) string {
	if e == nil {
		return ""
	}
	return e.Fields[name]
}

// DeleteError reports the ids a bulk delete could not remove.
type DeleteError struct {
	Failed map[string]error
	Total  int
}

func (e *DeleteError) Error() string {
	ids := e.IDs()
	return fmt.Sprintf("views: failed to delete %d of %d memories: %s", len(ids), e.Total, strings.Join(ids, ", "))
}

// IDs returns the failed ids in sorted order.
func (e *DeleteError) IDs() []string {
	ids := make([]string, 0, len(e.Failed))
	for id := range e.Failed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Unwrap exposes the per-id causes to errors.Is and errors.As.
func (e *DeleteError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failed))
	for _, id := range e.IDs() {
		errs = append(errs, e.Failed[id])
	}
	return errs
}

func invalidParam(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidParams, fmt.Sprintf(format, args...))
}
