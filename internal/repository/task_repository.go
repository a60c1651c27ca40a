// internal/repository/task_repository.go
package repository

import (
	"context"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/gurkanbulca/taskassign/internal/models"
)

const tasksTable = "tasks"

var taskColumns = []string{
	"id", "title", "description", "assigned_to", "created_by", "status",
	"priority", "category", "due_date", "version", "created_at", "updated_at",
}

type TaskRepository struct {
	store
}

func NewTaskRepository(db *sqlx.DB) *TaskRepository {
	return &TaskRepository{store: newStore(db)}
}

// Create inserts t, assigning its ID, version and timestamps.
func (r *TaskRepository) Create(ctx context.Context, t *models.Task) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	t.Version = 1
	t.CreatedAt = now
	t.UpdatedAt = now

	insert := r.builder.Insert(tasksTable).
		Columns(taskColumns...).
		Values(
			t.ID, t.Title, t.Description, t.AssignedTo, t.CreatedBy, string(t.Status),
			string(t.Priority), t.Category, t.DueDate, t.Version, t.CreatedAt, t.UpdatedAt,
		)

	if _, err := r.exec(ctx, r.db, insert); err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

func (r *TaskRepository) GetByID(ctx context.Context, id string) (*models.Task, error) {
	return r.getByID(ctx, r.db, id)
}

func (r *TaskRepository) getByID(ctx context.Context, q querier, id string) (*models.Task, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}

	sel := r.builder.Select(taskColumns...).
		From(entsql.Table(tasksTable)).
		Where(entsql.EQ("id", id))

	var t models.Task
	if err := r.get(ctx, q, &t, sel); err != nil {
		return nil, err
	}
	return &t, nil
}

// List returns the matching page of tasks and the total number of matches.
func (r *TaskRepository) List(ctx context.Context, filter ListFilter) ([]*models.Task, int, error) {
	preds, err := filter.predicates()
	if err != nil {
		return nil, 0, err
	}

	count := r.builder.Select(entsql.Count("*")).From(entsql.Table(tasksTable))
	if len(preds) > 0 {
		count = count.Where(entsql.And(preds...))
	}
	var total int
	if err := r.get(ctx, r.db, &total, count); err != nil {
		return nil, 0, fmt.Errorf("count tasks: %w", err)
	}

	sel := r.builder.Select(taskColumns...).From(entsql.Table(tasksTable))
	if len(preds) > 0 {
		sel = sel.Where(entsql.And(preds...))
	}

	// Apply sorting
	switch filter.SortBy {
	case "due_date", "updated_at", "created_at":
		if filter.SortOrder == "asc" {
			sel = sel.OrderBy(entsql.Asc(filter.SortBy))
		} else {
			sel = sel.OrderBy(entsql.Desc(filter.SortBy))
		}
	case "priority":
		sel = sel.OrderExpr(entsql.ExprP(
			"CASE priority WHEN 'high' THEN 1 WHEN 'medium' THEN 2 WHEN 'low' THEN 3 END",
		))
	default:
		sel = sel.OrderBy(entsql.Desc("created_at"))
	}
	// tie-breaker keeps pagination stable
	sel = sel.OrderBy(entsql.Asc("id"))

	// Apply pagination
	if filter.Limit > 0 {
		sel = sel.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		sel = sel.Offset(filter.Offset)
	}

	tasks := []*models.Task{}
	if err := r.selectAll(ctx, r.db, &tasks, sel); err != nil {
		return nil, 0, fmt.Errorf("query tasks: %w", err)
	}
	return tasks, total, nil
}

// UpdateStatus writes status only if the stored version still equals
// expectedVersion, then returns the updated row.
func (r *TaskRepository) UpdateStatus(ctx context.Context, id string, status models.Status, expectedVersion int) (*models.Task, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}

	update := r.builder.Update(tasksTable).
		Set("status", string(status)).
		Set("version", expectedVersion+1).
		Set("updated_at", time.Now().UTC()).
		Where(entsql.And(
			entsql.EQ("id", id),
			entsql.EQ("version", expectedVersion),
		))

	n, err := r.exec(ctx, tx, update)
	if err != nil {
		return nil, rollback(tx, fmt.Errorf("update task %s: %w", id, err))
	}

	t, err := r.getByID(ctx, tx, id)
	if err != nil {
		return nil, rollback(tx, err)
	}
	if n == 0 {
		return nil, rollback(tx, fmt.Errorf("%w: task %s is at version %d", ErrVersionConflict, id, t.Version))
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return t, nil
}

func (r *TaskRepository) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}

	n, err := r.exec(ctx, r.db, r.builder.Delete(tasksTable).Where(entsql.EQ("id", id)))
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountByStatus returns per-status counts, optionally restricted to one assignee.
// Every known status is present in the result, zero or not.
func (r *TaskRepository) CountByStatus(ctx context.Context, assigneeID *string) (models.StatusCounts, error) {
	sel := r.builder.Select("status", entsql.As(entsql.Count("*"), "count")).
		From(entsql.Table(tasksTable)).
		GroupBy("status")
	if assigneeID != nil {
		sel = sel.Where(entsql.EQ("assigned_to", *assigneeID))
	}

	var rows []struct {
		Status models.Status `db:"status"`
		Count  int           `db:"count"`
	}
	if err := r.selectAll(ctx, r.db, &rows, sel); err != nil {
		return nil, fmt.Errorf("count tasks by status: %w", err)
	}

	counts := make(models.StatusCounts, len(models.Statuses))
	for _, s := range models.Statuses {
		counts[s] = 0
	}
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// Types for repository input
type ListFilter struct {
	AssigneeID *string
	Status     *models.Status
	Priority   *models.Priority
	Category   string
	DueBefore  *time.Time
	SortBy     string
	SortOrder  string
	Limit      int
	Offset     int
}

func (f ListFilter) predicates() ([]*entsql.Predicate, error) {
	var preds []*entsql.Predicate

	if f.AssigneeID != nil {
		if _, err := uuid.Parse(*f.AssigneeID); err != nil {
			return nil, fmt.Errorf("invalid assignee ID: %w", err)
		}
		preds = append(preds, entsql.EQ("assigned_to", *f.AssigneeID))
	}
	if f.Status != nil {
		preds = append(preds, entsql.EQ("status", string(*f.Status)))
	}
	if f.Priority != nil {
		preds = append(preds, entsql.EQ("priority", string(*f.Priority)))
	}
	if f.Category != "" {
		preds = append(preds, entsql.EQ("category", f.Category))
	}
	if f.DueBefore != nil {
		preds = append(preds, entsql.LT("due_date", *f.DueBefore))
	}
	return preds, nil
}
