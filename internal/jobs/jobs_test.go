package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCleaner struct {
	calls atomic.Int32
	err   error
}

func (f *fakeCleaner) CleanupExpiredTokens(ctx context.Context) (int64, error) {
	f.calls.Add(1)
	return 3, f.err
}

type fakePruner struct {
	retention time.Duration
}

func (f *fakePruner) PruneEvents(ctx context.Context, retention time.Duration) (int64, error) {
	f.retention = retention
	return 0, nil
}

func TestScheduler_AddRejectsBadSchedule(t *testing.T) {
	s := NewScheduler(nil)
	_, err := s.Add(TokenCleanupJob("every now and then", &fakeCleaner{}))
	assert.Error(t, err)
}

func TestScheduler_Execute(t *testing.T) {
	s := NewScheduler(nil)

	c := &fakeCleaner{err: errors.New("db down")}
	s.execute(TokenCleanupJob("@every 1h", c))
	assert.EqualValues(t, 1, c.calls.Load())

	p := &fakePruner{}
	s.execute(EventPruneJob("@daily", 30*24*time.Hour, p))
	assert.Equal(t, 30*24*time.Hour, p.retention)
}

func TestScheduler_RunsOnSchedule(t *testing.T) {
	s := NewScheduler(nil)
	c := &fakeCleaner{}

	_, err := s.Add(TokenCleanupJob("@every 1s", c))
	require.NoError(t, err)

	s.Start()
	assert.Eventually(t, func() bool { return c.calls.Load() > 0 }, 3*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Stop(ctx))
}
