package types

import "sort"

// TaskStatus is the workflow label of a task.
type TaskStatus string

const (
	TaskToDo       TaskStatus = "To Do"
	TaskInProgress TaskStatus = "In Progress"
	TaskDone       TaskStatus = "Done"

	// TaskDeleted is only rendered; it is never offered in forms.
	TaskDeleted TaskStatus = "Deleted"
)

// TaskStatuses returns the statuses a user may assign to a task.
func TaskStatuses() []TaskStatus {
	return []TaskStatus{TaskToDo, TaskInProgress, TaskDone}
}

// IsValid reports whether s may be assigned through a form.
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskToDo, TaskInProgress, TaskDone:
		return true
	}
	return false
}

// rank orders statuses for display; unset and unknown statuses go last.
func (s TaskStatus) rank() int {
	switch s {
	case TaskToDo:
		return 0
	case TaskInProgress:
		return 1
	case TaskDone:
		return 2
	case TaskDeleted:
		return 3
	case "":
		return 4
	default:
		return 5
	}
}

// SortTasksByStatus orders tasks To Do, In Progress, Done, Deleted, then
// tasks without a status. The sort is stable so the backend order is kept
// within each status.
func SortTasksByStatus(tasks []Memory) {
	sort.SliceStable(tasks, func(i, j int) bool {
		return tasks[i].TaskStatus().rank() < tasks[j].TaskStatus().rank()
	})
}
