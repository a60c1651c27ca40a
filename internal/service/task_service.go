// internal/service/task_service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/gurkanbulca/taskassign/internal/cache"
	"github.com/gurkanbulca/taskassign/internal/models"
	"github.com/gurkanbulca/taskassign/internal/policy"
	"github.com/gurkanbulca/taskassign/internal/repository"
	"github.com/gurkanbulca/taskassign/pkg/email"
)

const (
	defaultPageSize = 100
	maxPageSize     = 500
)

// Actions reported to subscribers after a mutation.
const (
	ActionCreated       = "created"
	ActionStatusChanged = "status_changed"
	ActionDeleted       = "deleted"
)

// TaskStore persists tasks.
type TaskStore interface {
	Create(ctx context.Context, t *models.Task) error
	GetByID(ctx context.Context, id string) (*models.Task, error)
	List(ctx context.Context, f repository.ListFilter) ([]*models.Task, int, error)
	UpdateStatus(ctx context.Context, id string, status models.Status, expectedVersion int) (*models.Task, error)
	Delete(ctx context.Context, id string) error
	CountByStatus(ctx context.Context, assigneeID *string) (models.StatusCounts, error)
}

// UserLookup resolves assignees and task creators.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// Notifier is told about every committed task mutation.
type Notifier interface {
	TaskChanged(action string, task *models.Task)
}

type TaskService struct {
	tasks          TaskStore
	users          UserLookup
	engine         *policy.Engine
	cache          cache.Store
	notifier       Notifier
	mailer         email.EmailService
	securityLogger *SecurityLogger
	logger         *slog.Logger
	sf             singleflight.Group
}

// NewTaskService wires the task use cases. cache, notifier and mailer may be nil.
func NewTaskService(
	tasks TaskStore,
	users UserLookup,
	engine *policy.Engine,
	store cache.Store,
	notifier Notifier,
	mailer email.EmailService,
	securityLogger *SecurityLogger,
	logger *slog.Logger,
) *TaskService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskService{
		tasks:          tasks,
		users:          users,
		engine:         engine,
		cache:          store,
		notifier:       notifier,
		mailer:         mailer,
		securityLogger: securityLogger,
		logger:         logger,
	}
}

// CreateTaskInput carries the caller's fields for a new task. Status is
// accepted but always replaced by new.
type CreateTaskInput struct {
	Title       string
	Description string
	AssignedTo  string
	Status      string
	Priority    string
	Category    string
	DueDate     *time.Time
}

// ListQuery narrows and pages a task listing.
type ListQuery struct {
	Status    string
	Priority  string
	Category  string
	SortBy    string
	SortOrder string
	Limit     int
	Offset    int
}

// TaskList is one page of tasks.
type TaskList struct {
	Tasks []*models.Task `json:"tasks"`
	Total int            `json:"total"`
}

// Create assigns a new task to an employee. Admins only.
func (s *TaskService) Create(ctx context.Context, req policy.Requester, in CreateTaskInput) (*models.Task, error) {
	var assignee *models.User
	if req.IsAdmin() {
		var err error
		if assignee, err = s.lookupAssignee(ctx, in.AssignedTo); err != nil {
			return nil, err
		}
	}

	task, err := s.engine.AuthorizeCreate(req, assignee, models.TaskDraft{
		Title:       in.Title,
		Description: in.Description,
		AssigneeID:  in.AssignedTo,
		Status:      in.Status,
		Priority:    in.Priority,
		Category:    in.Category,
		DueDate:     in.DueDate,
	})
	if err != nil {
		s.denied(ctx, "create task", err)
		return nil, err
	}

	var missing []string
	if task.Title == "" {
		missing = append(missing, "title")
	}
	if task.Category == "" {
		missing = append(missing, "category")
	}
	if task.DueDate == nil {
		missing = append(missing, "dueDate")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing %s", ErrInvalidInput, strings.Join(missing, ", "))
	}

	if err := s.tasks.Create(ctx, task); err != nil {
		if errors.Is(err, repository.ErrForeignKey) {
			return nil, policy.ErrInvalidAssignee
		}
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	s.changed(ctx, ActionCreated, task)

	if s.mailer != nil {
		if err := s.mailer.SendTaskAssigned(ctx, assignee, task); err != nil {
			s.logger.Warn("failed to send assignment email", "task_id", task.ID, "error", err)
		}
	}
	return task, nil
}

// lookupAssignee returns nil without error when id names no user.
func (s *TaskService) lookupAssignee(ctx context.Context, id string) (*models.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load assignee: %w", err)
	}
	return u, nil
}

// ListAll lists every task. Admins only.
func (s *TaskService) ListAll(ctx context.Context, req policy.Requester, q ListQuery) (*TaskList, error) {
	if err := s.engine.AuthorizeListAll(req); err != nil {
		s.denied(ctx, "list all tasks", err)
		return nil, err
	}
	return s.list(ctx, policy.Scope{All: true}, q)
}

// ListForUser lists the tasks assigned to userID. Employees may only list
// their own.
func (s *TaskService) ListForUser(ctx context.Context, req policy.Requester, userID string, q ListQuery) (*TaskList, error) {
	scope, err := s.engine.ScopeForUser(req, userID)
	if err != nil {
		s.denied(ctx, "list tasks of user "+userID, err)
		return nil, err
	}
	if _, err := uuid.Parse(userID); err != nil {
		return nil, fmt.Errorf("%w: malformed user id", ErrInvalidInput)
	}
	return s.list(ctx, scope, q)
}

func (s *TaskService) list(ctx context.Context, scope policy.Scope, q ListQuery) (*TaskList, error) {
	filter, err := q.filter()
	if err != nil {
		return nil, err
	}
	if !scope.All {
		id := scope.AssigneeID
		filter.AssigneeID = &id
	}

	variant := q.variant(filter)
	key := func(gen int64) string { return cache.TaskListKey(scope.Key(), gen, variant...) }
	var out TaskList
	err = s.cached(ctx, scope.Key(), key, &out, func() (interface{}, error) {
		tasks, total, err := s.tasks.List(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("failed to list tasks: %w", err)
		}
		return &TaskList{Tasks: tasks, Total: total}, nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Get returns one task to an admin or its assignee.
func (s *TaskService) Get(ctx context.Context, req policy.Requester, id string) (*models.Task, error) {
	if req.Anonymous() {
		return nil, policy.ErrAccessDenied
	}
	task, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.engine.AuthorizeView(req, task); err != nil {
		s.denied(ctx, "view task "+id, err)
		return nil, err
	}
	return task, nil
}

// UpdateStatus moves a task to status. When expectedVersion is set it must
// match the stored version; either way the write only succeeds if nobody
// changed the task since it was read.
func (s *TaskService) UpdateStatus(ctx context.Context, req policy.Requester, id, status string, expectedVersion *int) (*models.Task, error) {
	var task *models.Task
	if !req.Anonymous() {
		var err error
		task, err = s.load(ctx, id)
		if err != nil && !errors.Is(err, policy.ErrNotFound) {
			return nil, err
		}
	}

	next, err := s.engine.AuthorizeTransition(req, task, status)
	if err != nil {
		s.denied(ctx, "update status of task "+id, err)
		return nil, err
	}

	if expectedVersion != nil && *expectedVersion != task.Version {
		return nil, fmt.Errorf("%w: task is at version %d", ErrConflict, task.Version)
	}

	previous := task.Status
	updated, err := s.tasks.UpdateStatus(ctx, task.ID, next, task.Version)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrVersionConflict):
			return nil, fmt.Errorf("%w: %v", ErrConflict, err)
		case errors.Is(err, repository.ErrNotFound):
			return nil, policy.ErrNotFound
		}
		return nil, fmt.Errorf("failed to update task status: %w", err)
	}

	s.changed(ctx, ActionStatusChanged, updated)
	s.mailStatusChange(ctx, req, updated, previous)
	return updated, nil
}

// mailStatusChange tells the other party: the creator when the assignee acts,
// the assignee when an admin acts.
func (s *TaskService) mailStatusChange(ctx context.Context, req policy.Requester, task *models.Task, previous models.Status) {
	if s.mailer == nil || previous == task.Status {
		return
	}
	recipientID := task.AssignedTo
	if req.ID == task.AssignedTo {
		recipientID = task.CreatedBy
	}
	if recipientID == "" || recipientID == req.ID {
		return
	}

	recipient, err := s.users.GetByID(ctx, recipientID)
	if err != nil {
		s.logger.Warn("status email recipient lookup failed", "user_id", recipientID, "error", err)
		return
	}
	if err := s.mailer.SendTaskStatusChanged(ctx, recipient, task, previous); err != nil {
		s.logger.Warn("failed to send status email", "task_id", task.ID, "error", err)
	}
}

// Delete removes a task. Admins only.
func (s *TaskService) Delete(ctx context.Context, req policy.Requester, id string) error {
	if err := s.engine.AuthorizeDelete(req); err != nil {
		s.denied(ctx, "delete task "+id, err)
		return err
	}

	task, err := s.load(ctx, id)
	if err != nil {
		return err
	}

	if err := s.tasks.Delete(ctx, task.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return policy.ErrNotFound
		}
		return fmt.Errorf("failed to delete task: %w", err)
	}

	s.changed(ctx, ActionDeleted, task)
	s.securityLogger.LogTaskDeleted(ctx, task.ID, task.Title)
	return nil
}

// Stats counts tasks per status within the requester's scope.
func (s *TaskService) Stats(ctx context.Context, req policy.Requester) (models.StatusCounts, error) {
	scope, err := s.engine.Scope(req)
	if err != nil {
		return nil, err
	}

	var counts models.StatusCounts
	key := func(gen int64) string { return cache.StatsKey(scope.Key(), gen) }
	err = s.cached(ctx, scope.Key(), key, &counts, func() (interface{}, error) {
		var assignee *string
		if !scope.All {
			assignee = &scope.AssigneeID
		}
		c, err := s.tasks.CountByStatus(ctx, assignee)
		if err != nil {
			return nil, fmt.Errorf("failed to count tasks: %w", err)
		}
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

func (s *TaskService) load(ctx context.Context, id string) (*models.Task, error) {
	task, err := s.tasks.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, policy.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return task, nil
}

// cached reads the entry for scope into dest, or runs load once per key
// across concurrent callers and stores the result. The scope's generation is
// read before load so a write that commits mid-load retires this entry. Cache
// errors only cost a database read.
func (s *TaskService) cached(ctx context.Context, scope string, keyFor func(gen int64) string, dest interface{}, load func() (interface{}, error)) error {
	var val interface{}
	var err error

	if s.cache == nil {
		val, err = load()
	} else if gen, genErr := s.cache.Generation(ctx, scope); genErr != nil {
		s.logger.Warn("cache generation read failed", "scope", scope, "error", genErr)
		val, err = load()
	} else {
		key := keyFor(gen)
		found, getErr := s.cache.Get(ctx, key, dest)
		if getErr != nil {
			s.logger.Warn("cache read failed", "key", key, "error", getErr)
		}
		if found {
			return nil
		}

		val, err, _ = s.sf.Do(key, func() (interface{}, error) {
			v, err := load()
			if err != nil {
				return nil, err
			}
			if err := s.cache.Set(ctx, key, v); err != nil {
				s.logger.Warn("cache write failed", "key", key, "error", err)
			}
			return v, nil
		})
	}
	if err != nil {
		return err
	}

	switch d := dest.(type) {
	case *TaskList:
		*d = *val.(*TaskList)
	case *models.StatusCounts:
		*d = val.(models.StatusCounts)
	default:
		return fmt.Errorf("unsupported cache destination %T", dest)
	}
	return nil
}

// changed invalidates cached views of task and notifies subscribers.
func (s *TaskService) changed(ctx context.Context, action string, task *models.Task) {
	if s.cache != nil {
		if err := cache.InvalidateTask(ctx, s.cache, task.AssignedTo); err != nil {
			s.logger.Warn("cache invalidation failed", "task_id", task.ID, "error", err)
		}
	}
	if s.notifier != nil {
		s.notifier.TaskChanged(action, task)
	}
	s.logger.Info("task changed", "action", action, "task_id", task.ID, "assignee", task.AssignedTo, "status", task.Status)
}

func (s *TaskService) denied(ctx context.Context, action string, err error) {
	if errors.Is(err, policy.ErrAccessDenied) {
		s.securityLogger.LogAccessDenied(ctx, action, err)
	}
}

func (q ListQuery) filter() (repository.ListFilter, error) {
	f := repository.ListFilter{
		Category:  strings.TrimSpace(q.Category),
		SortOrder: strings.ToLower(q.SortOrder),
		Limit:     q.Limit,
		Offset:    q.Offset,
	}

	if q.Status != "" {
		st, err := models.ParseStatus(q.Status)
		if err != nil {
			return f, fmt.Errorf("%w: %q", policy.ErrInvalidStatus, q.Status)
		}
		f.Status = &st
	}
	if q.Priority != "" {
		p, err := models.ParsePriority(q.Priority)
		if err != nil {
			return f, fmt.Errorf("%w: %q", policy.ErrInvalidPriority, q.Priority)
		}
		f.Priority = &p
	}

	switch q.SortBy {
	case "", "created_at", "updated_at", "due_date", "priority":
		f.SortBy = q.SortBy
	default:
		return f, fmt.Errorf("%w: cannot sort by %q", ErrInvalidInput, q.SortBy)
	}

	if f.Limit <= 0 {
		f.Limit = defaultPageSize
	}
	if f.Limit > maxPageSize {
		f.Limit = maxPageSize
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f, nil
}

// variant renders the normalized filter as cache key parts.
func (q ListQuery) variant(f repository.ListFilter) []string {
	var parts []string
	if f.Status != nil {
		parts = append(parts, "status="+string(*f.Status))
	}
	if f.Priority != nil {
		parts = append(parts, "priority="+string(*f.Priority))
	}
	if f.Category != "" {
		parts = append(parts, "category="+url.QueryEscape(f.Category))
	}
	if f.SortBy != "" {
		parts = append(parts, "sort="+f.SortBy+":"+f.SortOrder)
	}
	parts = append(parts, "page="+strconv.Itoa(f.Offset)+"+"+strconv.Itoa(f.Limit))
	return parts
}
