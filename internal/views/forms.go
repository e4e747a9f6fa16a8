package views

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/scrypster/xmemory/pkg/types"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report fields under their form names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})

	_ = v.RegisterValidation("memorytype", func(fl validator.FieldLevel) bool {
		return types.MemoryType(fl.Field().String()).IsValid()
	})
	_ = v.RegisterValidation("taskstatus", func(fl validator.FieldLevel) bool {
		return types.TaskStatus(fl.Field().String()).IsValid()
	})
	_ = v.RegisterValidation("formtime", func(fl validator.FieldLevel) bool {
		_, ok := types.ParseTimestamp(fl.Field().String())
		return ok
	})
	return v
}

// validateForm runs the struct tags of form and converts failures into a
// *ValidationError.
func validateForm(form interface{}) error {
	err := validate.Struct(form)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &ValidationError{Fields: make(map[string]string, len(verrs))}
	for _, fe := range verrs {
		out.Fields[fe.Field()] = fieldMessage(fe)
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "memorytype":
		return "is not a known memory type"
	case "taskstatus":
		return "must be To Do, In Progress or Done"
	case "formtime":
		return "must look like " + types.FormTimeLayout
	default:
		return "is invalid"
	}
}

// MemoryCreator creates memories.
type MemoryCreator interface {
	CreateMemory(ctx context.Context, req types.CreateMemoryRequest) (*types.Memory, error)
}

// MemoryUpdater updates memories.
type MemoryUpdater interface {
	UpdateMemory(ctx context.Context, id, userID string, req types.UpdateMemoryRequest) (*types.Memory, error)
}

// Searcher searches memories.
type Searcher interface {
	SearchMemories(ctx context.Context, userID, query string, size int) ([]types.Memory, error)
}

// Authenticator logs a user in.
type Authenticator interface {
	Login(ctx context.Context, username, password string) error
}

// CreateMemoryForm is the memory creation form.
type CreateMemoryForm struct {
	UserID     string `form:"user_id" validate:"required"`
	Title      string `form:"title" validate:"max=200"`
	Content    string `form:"content" validate:"required"`
	Tags       string `form:"tags"`
	MemoryType string `form:"memory_type" validate:"omitempty,memorytype"`
	CreatedAt  string `form:"created_at" validate:"omitempty,formtime"`
}

// Validate trims the fields and checks them.
func (f *CreateMemoryForm) Validate() error {
	f.UserID = strings.TrimSpace(f.UserID)
	f.Title = strings.TrimSpace(f.Title)
	f.Content = strings.TrimSpace(f.Content)
	f.CreatedAt = strings.TrimSpace(f.CreatedAt)
	return validateForm(f)
}

// Request builds the backend request. Call Validate first.
func (f *CreateMemoryForm) Request() types.CreateMemoryRequest {
	memoryType := types.MemoryType(f.MemoryType)
	if memoryType == "" {
		memoryType = types.MemoryTypeRaw
	}
	return types.CreateMemoryRequest{
		UserID:     f.UserID,
		Title:      f.Title,
		Content:    f.Content,
		Tags:       types.ParseTags(f.Tags),
		MemoryType: memoryType,
		CreatedAt:  f.CreatedAt,
	}
}

// Reset clears the per-memory fields and keeps the user id and type so the
// next memory can be entered straight away.
func (f *CreateMemoryForm) Reset() {
	f.Title = ""
	f.Content = ""
	f.Tags = ""
	f.CreatedAt = ""
}

// Submit validates the form and creates the memory. Nothing is sent when
// validation fails. On success the form is reset.
func (f *CreateMemoryForm) Submit(ctx context.Context, api MemoryCreator) (*types.Memory, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	mem, err := api.CreateMemory(ctx, f.Request())
	if err != nil {
		return nil, err
	}
	f.Reset()
	return mem, nil
}

// EditMemoryForm updates content, title and tags of an existing memory.
type EditMemoryForm struct {
	Title   string `form:"title" validate:"max=200"`
	Content string `form:"content" validate:"required"`
	Tags    string `form:"tags"`
}

func (f *EditMemoryForm) Validate() error {
	f.Title = strings.TrimSpace(f.Title)
	f.Content = strings.TrimSpace(f.Content)
	return validateForm(f)
}

// Request builds the partial update. Every field is sent so clearing the
// title or tags takes effect.
func (f *EditMemoryForm) Request() types.UpdateMemoryRequest {
	title, content := f.Title, f.Content
	tags := types.ParseTags(f.Tags)
	if tags == nil {
		tags = []string{}
	}
	return types.UpdateMemoryRequest{Title: &title, Content: &content, Tags: &tags}
}

func (f *EditMemoryForm) Submit(ctx context.Context, api MemoryUpdater, id, userID string) (*types.Memory, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return api.UpdateMemory(ctx, id, userID, f.Request())
}

// SearchForm is the search box.
type SearchForm struct {
	UserID string `form:"user_id" validate:"required"`
	Query  string `form:"query" validate:"required"`
	Size   int    `form:"size" validate:"omitempty,min=1,max=100"`
}

func (f *SearchForm) Validate() error {
	f.UserID = strings.TrimSpace(f.UserID)
	f.Query = strings.TrimSpace(f.Query)
	return validateForm(f)
}

func (f *SearchForm) Submit(ctx context.Context, api Searcher) ([]types.Memory, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return api.SearchMemories(ctx, f.UserID, f.Query, f.Size)
}

// ProjectForm creates a project.
type ProjectForm struct {
	UserID  string `form:"user_id" validate:"required"`
	Title   string `form:"title" validate:"required,max=200"`
	Content string `form:"content" validate:"required"`
}

func (f *ProjectForm) Validate() error {
	f.UserID = strings.TrimSpace(f.UserID)
	f.Title = strings.TrimSpace(f.Title)
	f.Content = strings.TrimSpace(f.Content)
	return validateForm(f)
}

func (f *ProjectForm) Submit(ctx context.Context, api MemoryCreator) (*types.Memory, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return api.CreateMemory(ctx, types.CreateMemoryRequest{
		UserID:     f.UserID,
		Title:      f.Title,
		Content:    f.Content,
		MemoryType: types.MemoryTypeProject,
	})
}

// TaskForm creates or edits a task of a project. The status is stored in
// the task's summary.
type TaskForm struct {
	UserID    string `form:"user_id" validate:"required"`
	ProjectID string `form:"project_id" validate:"required"`
	Title     string `form:"title" validate:"required,max=200"`
	Content   string `form:"content" validate:"required"`
	Status    string `form:"status" validate:"omitempty,taskstatus"`
}

func (f *TaskForm) Validate() error {
	f.UserID = strings.TrimSpace(f.UserID)
	f.Title = strings.TrimSpace(f.Title)
	f.Content = strings.TrimSpace(f.Content)
	return validateForm(f)
}

func (f *TaskForm) status() string {
	if f.Status == "" {
		return string(types.TaskToDo)
	}
	return f.Status
}

// Submit creates the task. A task without a status starts as To Do.
func (f *TaskForm) Submit(ctx context.Context, api MemoryCreator) (*types.Memory, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return api.CreateMemory(ctx, types.CreateMemoryRequest{
		UserID:     f.UserID,
		Title:      f.Title,
		Content:    f.Content,
		Summary:    f.status(),
		MemoryType: types.MemoryTypeTask,
		ParentID:   f.ProjectID,
	})
}

// SubmitUpdate edits the task taskID.
func (f *TaskForm) SubmitUpdate(ctx context.Context, api MemoryUpdater, taskID string) (*types.Memory, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	title, content, status := f.Title, f.Content, f.status()
	return api.UpdateMemory(ctx, taskID, f.UserID, types.UpdateMemoryRequest{
		Title:   &title,
		Content: &content,
		Summary: &status,
	})
}

// LoginForm is the login form.
type LoginForm struct {
	Username string `form:"username" validate:"required"`
	Password string `form:"password" validate:"required"`
}

func (f *LoginForm) Validate() error {
	f.Username = strings.TrimSpace(f.Username)
	return validateForm(f)
}

func (f *LoginForm) Submit(ctx context.Context, api Authenticator) error {
	if err := f.Validate(); err != nil {
		return err
	}
	return api.Login(ctx, f.Username, f.Password)
}
