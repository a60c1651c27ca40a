package policy

import "errors"

var (
	// ErrAccessDenied means the requester is neither allowed by role nor by ownership.
	ErrAccessDenied = errors.New("access denied")
	// ErrInvalidStatus means the requested status is not one of the known statuses.
	ErrInvalidStatus = errors.New("invalid status")
	// ErrInvalidAssignee means the assignee is missing or is not an employee.
	ErrInvalidAssignee = errors.New("assigned user not found or is not an employee")
	// ErrInvalidPriority means the requested priority is not low, medium or high.
	ErrInvalidPriority = errors.New("invalid priority")
	// ErrNotFound means the referenced task or user does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredential means authentication failed upstream.
	ErrInvalidCredential = errors.New("invalid credentials")
	// ErrTerminalState is returned for transitions out of completed or failed
	// when the policy treats them as terminal. It matches ErrAccessDenied too.
	ErrTerminalState = &terminalError{}
)

type terminalError struct{}

func (e *terminalError) Error() string { return "task is in a terminal state" }

func (e *terminalError) Is(target error) bool {
	return target == ErrAccessDenied
}
