package models

import (
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle stage of a task.
type Status string

const (
	StatusNew        Status = "new"
	StatusPending    Status = "pending"
	StatusAccepted   Status = "accepted"
	StatusInProgress Status = "in progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusRejected   Status = "rejected"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{
	StatusNew,
	StatusPending,
	StatusAccepted,
	StatusInProgress,
	StatusCompleted,
	StatusFailed,
	StatusRejected,
}

// ParseStatus normalizes s (case-insensitive, surrounding whitespace ignored)
// into one of the known statuses.
func ParseStatus(s string) (Status, error) {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case StatusNew:
		return StatusNew, nil
	case StatusPending:
		return StatusPending, nil
	case StatusAccepted:
		return StatusAccepted, nil
	case StatusInProgress:
		return StatusInProgress, nil
	case StatusCompleted:
		return StatusCompleted, nil
	case StatusFailed:
		return StatusFailed, nil
	case StatusRejected:
		return StatusRejected, nil
	default:
		return "", fmt.Errorf("unknown status: %q", s)
	}
}

// IsTerminal reports whether no further transition is expected from s.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// Valid reports whether s is already in canonical form.
func (s Status) Valid() bool {
	for _, v := range Statuses {
		if v == s {
			return true
		}
	}
	return false
}

// Priority of a task.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh}

// ParsePriority is case-insensitive. An empty string yields PriorityMedium.
func ParsePriority(s string) (Priority, error) {
	switch Priority(strings.ToLower(strings.TrimSpace(s))) {
	case "", PriorityMedium:
		return PriorityMedium, nil
	case PriorityLow:
		return PriorityLow, nil
	case PriorityHigh:
		return PriorityHigh, nil
	default:
		return "", fmt.Errorf("unknown priority: %q", s)
	}
}

type Task struct {
	ID          string     `db:"id" json:"id"`
	Title       string     `db:"title" json:"title"`
	Description string     `db:"description" json:"description"`
	AssignedTo  string     `db:"assigned_to" json:"assignedTo"`
	CreatedBy   string     `db:"created_by" json:"createdBy"`
	Status      Status     `db:"status" json:"status"`
	Priority    Priority   `db:"priority" json:"priority"`
	Category    string     `db:"category" json:"category"`
	DueDate     *time.Time `db:"due_date" json:"dueDate,omitempty"`
	Version     int        `db:"version" json:"version"`
	CreatedAt   time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updatedAt"`
}

// TaskDraft carries caller-supplied fields for a new task. Status is accepted
// so that it can be ignored explicitly.
type TaskDraft struct {
	Title       string
	Description string
	AssigneeID  string
	Status      string
	Priority    string
	Category    string
	DueDate     *time.Time
}

// StatusCounts maps every status to the number of tasks in it.
type StatusCounts map[Status]int

// Total sums all counts.
func (c StatusCounts) Total() int {
	total := 0
	for _, n := range c {
		total += n
	}
	return total
}
