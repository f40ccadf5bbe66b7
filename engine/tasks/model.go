package tasks

import "time"

// Task status columns on the dev board.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusReview     Status = "review"
	StatusCompleted  Status = "completed"
)

// ValidStatuses is the set of recognised columns.
var ValidStatuses = map[Status]bool{
	StatusTodo: true, StatusInProgress: true, StatusReview: true, StatusCompleted: true,
}

// orderStep is the gap left between appended tasks so later drops can land
// between neighbours on a midpoint without reindexing the column.
const orderStep = 1000

// Task is one card on the board. Order sorts ascending within a column.
type Task struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Status      Status    `json:"status"`
	Order       float64   `json:"order"`
	CreatedAt   time.Time `json:"createdAt"`
	CreatedBy   string    `json:"createdBy"`
	ClaimedBy   string    `json:"claimedBy,omitempty"`
}

// Comment is a discussion entry on a task, ordered oldest first.
type Comment struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"taskId"`
	Author    string    `json:"author"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}

func taskFromProps(props map[string]any) Task {
	t := Task{
		ID:          propString(props, "id"),
		Title:       propString(props, "title"),
		Description: propString(props, "description"),
		Status:      Status(propString(props, "status")),
		CreatedBy:   propString(props, "createdBy"),
		ClaimedBy:   propString(props, "claimedBy"),
	}
	switch v := props["order"].(type) {
	case float64:
		t.Order = v
	case int64:
		t.Order = float64(v)
	}
	t.CreatedAt, _ = props["createdAt"].(time.Time)
	return t
}

func commentFromProps(props map[string]any) Comment {
	c := Comment{
		ID:     propString(props, "id"),
		TaskID: propString(props, "taskId"),
		Author: propString(props, "author"),
		Body:   propString(props, "body"),
	}
	c.CreatedAt, _ = props["createdAt"].(time.Time)
	return c
}

func propString(props map[string]any, key string) string {
	s, _ := props[key].(string)
	return s
}
