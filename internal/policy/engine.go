// Package policy decides who may create, view, transition and delete tasks.
//
// Every function here is pure: it inspects the requester and a task snapshot
// and returns a verdict. Persisting the result is the caller's job.
package policy

import (
	"fmt"
	"strings"

	"github.com/gurkanbulca/taskassign/internal/models"
)

// Requester is the resolved identity behind a request.
type Requester struct {
	ID   string
	Role models.Role
}

// Anonymous reports whether r carries no usable identity.
func (r Requester) Anonymous() bool {
	if r.ID == "" {
		return true
	}
	switch r.Role {
	case models.RoleAdmin, models.RoleEmployee:
		return false
	default:
		return true
	}
}

func (r Requester) IsAdmin() bool {
	return !r.Anonymous() && r.Role == models.RoleAdmin
}

// Owns reports whether r is an employee assigned to t.
func (r Requester) Owns(t *models.Task) bool {
	return !r.Anonymous() && r.Role == models.RoleEmployee && t != nil && t.AssignedTo == r.ID
}

// Policy holds the tunable parts of the transition rules.
type Policy struct {
	// EnforceTerminal rejects employee transitions out of completed and failed.
	// Admins may always reopen.
	EnforceTerminal bool
	// EmployeeStatuses restricts which statuses an assignee may set. Nil allows all.
	EmployeeStatuses []models.Status
}

// DefaultPolicy enforces terminal states and lets assignees set any status.
func DefaultPolicy() Policy {
	return Policy{EnforceTerminal: true}
}

// ParseStatusList parses a comma separated list of statuses. An empty input
// yields nil.
func ParseStatusList(s string) ([]models.Status, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var out []models.Status
	for _, part := range strings.Split(s, ",") {
		st, err := models.ParseStatus(part)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

type Engine struct {
	policy Policy
}

func NewEngine(p Policy) *Engine {
	return &Engine{policy: p}
}

func (e *Engine) Policy() Policy {
	return e.policy
}

// AuthorizeTransition decides whether req may move task to requested and
// returns the canonical status to persist.
func (e *Engine) AuthorizeTransition(req Requester, task *models.Task, requested string) (models.Status, error) {
	if req.Anonymous() {
		return "", ErrAccessDenied
	}
	if task == nil {
		return "", ErrNotFound
	}

	// non-owners are denied whatever status they ask for
	if !req.IsAdmin() && !req.Owns(task) {
		return "", ErrAccessDenied
	}

	next, err := models.ParseStatus(requested)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, requested)
	}
	if req.IsAdmin() {
		return next, nil
	}

	if e.policy.EnforceTerminal && task.Status.IsTerminal() {
		return "", fmt.Errorf("%w: %s", ErrTerminalState, task.Status)
	}
	if !e.employeeMaySet(next) {
		return "", fmt.Errorf("%w: employees may not set status %q", ErrAccessDenied, next)
	}
	return next, nil
}

func (e *Engine) employeeMaySet(s models.Status) bool {
	if e.policy.EmployeeStatuses == nil {
		return true
	}
	for _, allowed := range e.policy.EmployeeStatuses {
		if allowed == s {
			return true
		}
	}
	return false
}

// AuthorizeCreate checks that req is an admin and assignee an employee, then
// builds the initial record. Status is always new regardless of draft.Status.
func (e *Engine) AuthorizeCreate(req Requester, assignee *models.User, draft models.TaskDraft) (*models.Task, error) {
	if !req.IsAdmin() {
		return nil, ErrAccessDenied
	}
	if assignee == nil || assignee.Role != models.RoleEmployee {
		return nil, ErrInvalidAssignee
	}

	priority, err := models.ParsePriority(draft.Priority)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPriority, draft.Priority)
	}

	return &models.Task{
		Title:       strings.TrimSpace(draft.Title),
		Description: strings.TrimSpace(draft.Description),
		AssignedTo:  assignee.ID,
		CreatedBy:   req.ID,
		Status:      models.StatusNew,
		Priority:    priority,
		Category:    strings.TrimSpace(draft.Category),
		DueDate:     draft.DueDate,
	}, nil
}

func (e *Engine) AuthorizeDelete(req Requester) error {
	if !req.IsAdmin() {
		return ErrAccessDenied
	}
	return nil
}

// AuthorizeView allows admins and the assignee to read a single task.
func (e *Engine) AuthorizeView(req Requester, task *models.Task) error {
	if req.Anonymous() {
		return ErrAccessDenied
	}
	if task == nil {
		return ErrNotFound
	}
	if req.IsAdmin() || req.Owns(task) {
		return nil
	}
	return ErrAccessDenied
}

// AuthorizeListAll guards the unrestricted task listing.
func (e *Engine) AuthorizeListAll(req Requester) error {
	if !req.IsAdmin() {
		return ErrAccessDenied
	}
	return nil
}

// AuthorizeListUsers guards the employee directory.
func (e *Engine) AuthorizeListUsers(req Requester) error {
	return e.AuthorizeListAll(req)
}
