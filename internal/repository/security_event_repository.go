// internal/repository/security_event_repository.go
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

const securityEventsTable = "security_events"

var securityEventColumns = []string{
	"id", "user_id", "event_type", "severity", "description", "ip_address", "user_agent", "created_at",
}

type SecurityEventRepository struct {
	store
}

func NewSecurityEventRepository(db *sqlx.DB) *SecurityEventRepository {
	return &SecurityEventRepository{store: newStore(db)}
}

func (r *SecurityEventRepository) Create(ctx context.Context, e *models.SecurityEvent) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	insert := r.builder.Insert(securityEventsTable).
		Columns(securityEventColumns...).
		Values(e.ID, e.UserID, e.EventType, e.Severity, e.Description, e.IPAddress, e.UserAgent, e.CreatedAt)

	if _, err := r.exec(ctx, r.db, insert); err != nil {
		return fmt.Errorf("insert security event: %w", err)
	}
	return nil
}

// EventFilter narrows a security event listing.
type EventFilter struct {
	UserID    string
	EventType string
	Severity  string
	FromDate  time.Time
	ToDate    time.Time
	Limit     int
	Offset    int
}

// List returns events newest first together with the total match count.
func (r *SecurityEventRepository) List(ctx context.Context, f EventFilter) ([]*models.SecurityEvent, int, error) {
	var preds []*entsql.Predicate
	if f.UserID != "" {
		preds = append(preds, entsql.EQ("user_id", f.UserID))
	}
	if f.EventType != "" {
		preds = append(preds, entsql.EQ("event_type", f.EventType))
	}
	if f.Severity != "" {
		preds = append(preds, entsql.EQ("severity", f.Severity))
	}
	if !f.FromDate.IsZero() {
		preds = append(preds, entsql.GTE("created_at", f.FromDate))
	}
	if !f.ToDate.IsZero() {
		preds = append(preds, entsql.LTE("created_at", f.ToDate))
	}

	count := r.builder.Select(entsql.Count("*")).From(entsql.Table(securityEventsTable))
	sel := r.builder.Select(securityEventColumns...).From(entsql.Table(securityEventsTable))
	if len(preds) > 0 {
		count = count.Where(entsql.And(preds...))
		sel = sel.Where(entsql.And(preds...))
	}

	var total int
	if err := r.get(ctx, r.db, &total, count); err != nil {
		return nil, 0, fmt.Errorf("count security events: %w", err)
	}

	sel = sel.OrderBy(entsql.Desc("created_at"), entsql.Asc("id"))
	if f.Limit > 0 {
		sel = sel.Limit(f.Limit)
	}
	if f.Offset > 0 {
		sel = sel.Offset(f.Offset)
	}

	events := []*models.SecurityEvent{}
	if err := r.selectAll(ctx, r.db, &events, sel); err != nil {
		return nil, 0, fmt.Errorf("query security events: %w", err)
	}
	return events, total, nil
}

// DeleteOlderThan prunes events created before cutoff.
func (r *SecurityEventRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	n, err := r.exec(ctx, r.db, r.builder.Delete(securityEventsTable).Where(entsql.LT("created_at", cutoff)))
	if err != nil {
		return 0, fmt.Errorf("prune security events: %w", err)
	}
	return n, nil
}
