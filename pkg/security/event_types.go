// pkg/security/event_types.go
package security

import "fmt"

// EventType identifies what happened in a security event.
type EventType string

const (
	EventTypeRegistration   EventType = "registration"
	EventTypeLoginSuccess   EventType = "login_success"
	EventTypeLoginFailed    EventType = "login_failed"
	EventTypeAccountLocked  EventType = "account_locked"
	EventTypeTokenRefreshed EventType = "token_refreshed"
	EventTypeLogout         EventType = "logout"
	EventTypeAccessDenied   EventType = "access_denied"
	EventTypeTaskDeleted    EventType = "task_deleted"
	EventTypeRateLimited    EventType = "rate_limited"
)

// Severity of a security event.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ParseEventType validates a raw event type string.
func ParseEventType(eventType string) (EventType, error) {
	switch t := EventType(eventType); t {
	case EventTypeRegistration,
		EventTypeLoginSuccess,
		EventTypeLoginFailed,
		EventTypeAccountLocked,
		EventTypeTokenRefreshed,
		EventTypeLogout,
		EventTypeAccessDenied,
		EventTypeTaskDeleted,
		EventTypeRateLimited:
		return t, nil
	default:
		return "", fmt.Errorf("unknown event type: %s", eventType)
	}
}

// ParseSeverity validates a raw severity string.
func ParseSeverity(severity string) (Severity, error) {
	switch s := Severity(severity); s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return s, nil
	default:
		return "", fmt.Errorf("unknown severity: %s", severity)
	}
}

// DefaultSeverity is used when an event is logged without an explicit severity.
func DefaultSeverity(t EventType) Severity {
	switch t {
	case EventTypeAccountLocked:
		return SeverityHigh
	case EventTypeLoginFailed, EventTypeAccessDenied, EventTypeRateLimited:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// ValidEventTypes returns all valid event types
func ValidEventTypes() []EventType {
	return []EventType{
		EventTypeRegistration,
		EventTypeLoginSuccess,
		EventTypeLoginFailed,
		EventTypeAccountLocked,
		EventTypeTokenRefreshed,
		EventTypeLogout,
		EventTypeAccessDenied,
		EventTypeTaskDeleted,
		EventTypeRateLimited,
	}
}

// IsValidEventType checks if the event type string is valid
func IsValidEventType(eventType string) bool {
	_, err := ParseEventType(eventType)
	return err == nil
}

// IsValidSeverity checks if the severity string is valid
func IsValidSeverity(severity string) bool {
	_, err := ParseSeverity(severity)
	return err == nil
}
