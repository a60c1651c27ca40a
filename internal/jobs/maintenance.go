package jobs

import (
	"context"
	"time"
)

// TokenCleaner drops refresh tokens past their expiry.
type TokenCleaner interface {
	CleanupExpiredTokens(ctx context.Context) (int64, error)
}

// EventPruner deletes security events older than a retention window.
type EventPruner interface {
	PruneEvents(ctx context.Context, retention time.Duration) (int64, error)
}

func TokenCleanupJob(schedule string, c TokenCleaner) Job {
	return Job{
		Name:     "refresh-token-cleanup",
		Schedule: schedule,
		Timeout:  time.Minute,
		Run:      c.CleanupExpiredTokens,
	}
}

func EventPruneJob(schedule string, retention time.Duration, p EventPruner) Job {
	return Job{
		Name:     "security-event-prune",
		Schedule: schedule,
		Timeout:  5 * time.Minute,
		Run: func(ctx context.Context) (int64, error) {
			return p.PruneEvents(ctx, retention)
		},
	}
}
