package models

import "time"

type SecurityEvent struct {
	ID          string    `db:"id" json:"id"`
	UserID      *string   `db:"user_id" json:"userId,omitempty"`
	EventType   string    `db:"event_type" json:"eventType"`
	Severity    string    `db:"severity" json:"severity"`
	Description string    `db:"description" json:"description"`
	IPAddress   string    `db:"ip_address" json:"ipAddress,omitempty"`
	UserAgent   string    `db:"user_agent" json:"userAgent,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}
