package model

import (
	"fmt"
	"strings"
	"time"
)

// Status is the completion state of a task.
type Status string

// Task status values. Both states are reachable from each other indefinitely.
const (
	StatusOpen      Status = "open"
	StatusCompleted Status = "completed"
)

// ParseStatus validates s as a Status. Surrounding whitespace and case are ignored.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("invalid status %q", s)
	}
	return st, nil
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusOpen || s == StatusCompleted
}

// Toggle returns the opposite status. Unknown values toggle to completed,
// since the only non-completed state is open.
func (s Status) Toggle() Status {
	if s == StatusCompleted {
		return StatusOpen
	}
	return StatusCompleted
}

// Task is a single personal task embedded in its owner's collection.
type Task struct {
	// ID is generated at creation and never changes.
	ID string `json:"_id" bson:"_id" db:"id"`

	// Title is required and never blank.
	Title string `json:"title" bson:"title" db:"title"`

	Description string `json:"description" bson:"description" db:"description"`

	// DueDate is stored as the client sent it; see ParseDueDate.
	DueDate string `json:"dueDate" bson:"dueDate" db:"due_date"`

	Status Status `json:"status" bson:"status" db:"status"`

	// Reminded flips to true once a reminder has been dispatched and is
	// never reset by update or toggle.
	Reminded bool `json:"reminded" bson:"reminded" db:"reminded"`
}

// Toggled returns a copy of t with its status flipped and every other field untouched.
func (t Task) Toggled() Task {
	t.Status = t.Status.Toggle()
	return t
}

// TaskInput carries the client-supplied fields for a new task.
type TaskInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	DueDate     string `json:"dueDate"`
	Status      string `json:"status"`
}

// TaskPatch carries the fields of an update. Nil fields keep their stored
// value. ID and Reminded cannot be patched.
type TaskPatch struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	DueDate     *string `json:"dueDate,omitempty"`
	Status      *Status `json:"status,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p TaskPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.DueDate == nil && p.Status == nil
}

// Apply returns t with the patch's non-nil fields copied over it.
func (p TaskPatch) Apply(t Task) Task {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.DueDate != nil {
		t.DueDate = *p.DueDate
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	return t
}

// dueDateLayouts lists the accepted due date formats, most specific first.
var dueDateLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseDueDate converts a stored due date string into a point in time.
// RFC 3339 values carry their own offset; the remaining layouts are read in
// loc, and a bare date means midnight in loc. A nil loc means UTC.
func ParseDueDate(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty due date")
	}
	if loc == nil {
		loc = time.UTC
	}

	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	for _, layout := range dueDateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized due date %q", s)
}

// UserTaskCollection is the per-user aggregate: one per email, tasks in
// creation order.
type UserTaskCollection struct {
	Email string `json:"email" bson:"email"`
	Tasks []Task `json:"tasks" bson:"tasks"`
}

// Find returns the task with the given id, or false.
func (c *UserTaskCollection) Find(id string) (Task, bool) {
	for _, t := range c.Tasks {
		if t.ID == id {
			return t, true
		}
	}
	return Task{}, false
}
