package testutils

import "cmp"

// Task is a value type used by the dataflow tests: tasks are identified by ID and carry a mutable
// payload, so that replacing a task exercises the replace-equal paths.
type Task struct {
	ID       int
	Title    string
	Priority int
	Done     bool
}

var (
	// TestTasks is a small fixture set with distinct ids and priorities.
	TestTasks = []Task{
		{ID: 1, Title: "write the design", Priority: 3},
		{ID: 2, Title: "review the treap", Priority: 1},
		{ID: 3, Title: "benchmark commits", Priority: 5},
		{ID: 4, Title: "fix the pager", Priority: 2, Done: true},
	}
)

// ByID orders tasks by id.
func ByID(a, b Task) int { return cmp.Compare(a.ID, b.ID) }

// ByPriority orders tasks by priority, breaking ties by id.
func ByPriority(a, b Task) int {
	if c := cmp.Compare(a.Priority, b.Priority); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// TaskKey is the consolidation key of a task.
func TaskKey(t Task) any { return t.ID }

// Ints orders integers in ascending order.
func Ints(a, b int) int { return cmp.Compare(a, b) }
