// internal/service/security_service.go
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/gurkanbulca/taskassign/internal/models"
	"github.com/gurkanbulca/taskassign/internal/policy"
	"github.com/gurkanbulca/taskassign/internal/repository"
	"github.com/gurkanbulca/taskassign/pkg/security"
)

// EventStore persists security events.
type EventStore interface {
	Create(ctx context.Context, e *models.SecurityEvent) error
	List(ctx context.Context, f repository.EventFilter) ([]*models.SecurityEvent, int, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// SecurityService handles security event logging and retrieval
type SecurityService struct {
	events EventStore
}

func NewSecurityService(events EventStore) *SecurityService {
	return &SecurityService{events: events}
}

// LogSecurityEvent validates and stores one event. An empty severity falls
// back to the event type's default.
func (s *SecurityService) LogSecurityEvent(ctx context.Context, req *LogSecurityEventRequest) error {
	eventType, err := security.ParseEventType(req.EventType)
	if err != nil {
		return fmt.Errorf("invalid event type: %w", err)
	}

	severity := security.DefaultSeverity(eventType)
	if req.Severity != "" {
		if severity, err = security.ParseSeverity(req.Severity); err != nil {
			return fmt.Errorf("invalid severity: %w", err)
		}
	}

	e := &models.SecurityEvent{
		EventType:   string(eventType),
		Severity:    string(severity),
		Description: req.Description,
		IPAddress:   req.IPAddress,
		UserAgent:   req.UserAgent,
	}
	if req.UserID != "" {
		uid := req.UserID
		e.UserID = &uid
	}

	if err := s.events.Create(ctx, e); err != nil {
		return fmt.Errorf("failed to save security event: %w", err)
	}
	return nil
}

// LogUserSecurityEvent is a convenience method for logging user-specific events
func (s *SecurityService) LogUserSecurityEvent(ctx context.Context, userID, eventType, description, severity, ipAddress, userAgent string) error {
	return s.LogSecurityEvent(ctx, &LogSecurityEventRequest{
		UserID:      userID,
		EventType:   eventType,
		Description: description,
		Severity:    severity,
		IPAddress:   ipAddress,
		UserAgent:   userAgent,
	})
}

// LogSystemSecurityEvent is a convenience method for logging events without a known user
func (s *SecurityService) LogSystemSecurityEvent(ctx context.Context, eventType, description, severity, ipAddress, userAgent string) error {
	return s.LogUserSecurityEvent(ctx, "", eventType, description, severity, ipAddress, userAgent)
}

// GetSecurityEvents retrieves security events with filtering. Admins only.
func (s *SecurityService) GetSecurityEvents(ctx context.Context, requester policy.Requester, req *GetSecurityEventsRequest) (*GetSecurityEventsResponse, error) {
	if !requester.IsAdmin() {
		return nil, policy.ErrAccessDenied
	}

	if req.EventType != "" && !security.IsValidEventType(req.EventType) {
		return nil, fmt.Errorf("%w: unknown event type %q", ErrInvalidInput, req.EventType)
	}
	if req.Severity != "" && !security.IsValidSeverity(req.Severity) {
		return nil, fmt.Errorf("%w: unknown severity %q", ErrInvalidInput, req.Severity)
	}

	limit := req.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	events, total, err := s.events.List(ctx, repository.EventFilter{
		UserID:    req.UserID,
		EventType: req.EventType,
		Severity:  req.Severity,
		FromDate:  req.FromDate,
		ToDate:    req.ToDate,
		Limit:     limit,
		Offset:    req.Offset,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get security events: %w", err)
	}

	return &GetSecurityEventsResponse{Events: events, TotalCount: total}, nil
}

// PruneEvents deletes events older than retention.
func (s *SecurityService) PruneEvents(ctx context.Context, retention time.Duration) (int64, error) {
	return s.events.DeleteOlderThan(ctx, time.Now().UTC().Add(-retention))
}

// LogSecurityEventRequest represents a request to log a security event
type LogSecurityEventRequest struct {
	UserID      string
	EventType   string
	Description string
	Severity    string
	IPAddress   string
	UserAgent   string
}

// GetSecurityEventsRequest represents a request to get security events
type GetSecurityEventsRequest struct {
	UserID    string
	EventType string
	Severity  string
	FromDate  time.Time
	ToDate    time.Time
	Limit     int
	Offset    int
}

// GetSecurityEventsResponse represents the response from getting security events
type GetSecurityEventsResponse struct {
	Events     []*models.SecurityEvent `json:"events"`
	TotalCount int                     `json:"total_count"`
}
