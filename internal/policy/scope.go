package policy

import "github.com/gurkanbulca/taskassign/internal/models"

// Scope describes the subset of tasks a requester may list.
type Scope struct {
	// All is set for unrestricted visibility.
	All bool
	// AssigneeID restricts results to one assignee when All is false.
	AssigneeID string
}

// Matches reports whether t falls inside the scope.
func (s Scope) Matches(t *models.Task) bool {
	if t == nil {
		return false
	}
	return s.All || t.AssignedTo == s.AssigneeID
}

// Key is a stable identifier for the scope, used for cache keys.
func (s Scope) Key() string {
	if s.All {
		return "all"
	}
	return "user:" + s.AssigneeID
}

// Scope returns the tasks visible to req: everything for admins, their own
// assignments for employees.
func (e *Engine) Scope(req Requester) (Scope, error) {
	if req.Anonymous() {
		return Scope{}, ErrAccessDenied
	}
	switch req.Role {
	case models.RoleAdmin:
		return Scope{All: true}, nil
	case models.RoleEmployee:
		return Scope{AssigneeID: req.ID}, nil
	default:
		return Scope{}, ErrAccessDenied
	}
}

// ScopeForUser returns the scope for listing userID's assignments. Employees
// may only ask for themselves.
func (e *Engine) ScopeForUser(req Requester, userID string) (Scope, error) {
	if req.Anonymous() {
		return Scope{}, ErrAccessDenied
	}
	if userID == "" {
		return Scope{}, ErrNotFound
	}
	if req.IsAdmin() || req.ID == userID {
		return Scope{AssigneeID: userID}, nil
	}
	return Scope{}, ErrAccessDenied
}
