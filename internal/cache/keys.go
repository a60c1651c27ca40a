package cache

import (
	"context"
	"fmt"
	"strings"
)

// Key layout:
//
//	gen:<scope>                         invalidation generation, no TTL
//	tasks:<scope>:g<gen>:<variant>      one filtered listing
//	stats:<scope>:g<gen>                status counts
//
// A scope is "all" or "user:<id>". Readers fetch the generation before
// loading from the database, so a load that raced with an invalidation is
// written under a generation nobody reads any more.

// GenerationKey is the counter bumped whenever scope's data changes.
func GenerationKey(scope string) string {
	return "gen:" + scope
}

// TaskListKey is the cache key for one filtered listing within a scope.
func TaskListKey(scope string, gen int64, variant ...string) string {
	v := strings.Join(variant, "|")
	if v == "" {
		v = "-"
	}
	return fmt.Sprintf("tasks:%s:g%d:%s", scope, gen, v)
}

// StatsKey is the cache key for a scope's status counts.
func StatsKey(scope string, gen int64) string {
	return fmt.Sprintf("stats:%s:g%d", scope, gen)
}

// InvalidateTask retires every entry that may contain tasks assigned to
// assigneeID: admin listings, the assignee's listings and both stats entries.
// The generation bump is what readers rely on; the deletes only free memory.
func InvalidateTask(ctx context.Context, s Store, assigneeID string) error {
	user := "user:" + assigneeID
	if err := s.Advance(ctx, "all", user); err != nil {
		return err
	}
	for _, pattern := range []string{
		"tasks:all:*",
		"tasks:" + user + ":*",
		"stats:all:*",
		"stats:" + user + ":*",
	} {
		if err := s.DeletePattern(ctx, pattern); err != nil {
			return err
		}
	}
	return nil
}
