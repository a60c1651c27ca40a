package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gurkanbulca/taskassign/internal/models"
)

type fakeConn struct {
	mu     sync.Mutex
	msgs   [][]byte
	closed bool
}

func (f *fakeConn) WriteMessage(_ int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, data)
	return nil
}

func (f *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) events() []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Event, 0, len(f.msgs))
	for _, m := range f.msgs {
		var ev Event
		if err := json.Unmarshal(m, &ev); err == nil {
			out = append(out, ev)
		}
	}
	return out
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func startHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	h := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(func() {
		cancel()
		h.Wait()
	})
	return h, cancel
}

func TestHub_RoutesByRoleAndAssignee(t *testing.T) {
	h, _ := startHub(t)
	ctx := context.Background()

	admin := &fakeConn{}
	emp1 := &fakeConn{}
	emp2 := &fakeConn{}
	require.True(t, h.Register(ctx, &Client{ID: "a", UserID: "admin-1", Role: models.RoleAdmin, Conn: admin}))
	require.True(t, h.Register(ctx, &Client{ID: "e1", UserID: "emp-1", Role: models.RoleEmployee, Conn: emp1}))
	require.True(t, h.Register(ctx, &Client{ID: "e2", UserID: "emp-2", Role: models.RoleEmployee, Conn: emp2}))

	h.TaskChanged("status_updated", &models.Task{ID: "t1", AssignedTo: "emp-1"})

	require.Eventually(t, func() bool {
		return len(admin.events()) == 1 && len(emp1.events()) == 1
	}, time.Second, 5*time.Millisecond)

	ev := emp1.events()[0]
	assert.Equal(t, EventTasksInvalidated, ev.Type)
	assert.Equal(t, "status_updated", ev.Action)
	assert.Equal(t, "t1", ev.TaskID)
	assert.False(t, ev.At.IsZero())
	assert.Empty(t, emp2.events())
}

func TestHub_UnregisterAndShutdown(t *testing.T) {
	h, cancel := startHub(t)
	ctx := context.Background()

	gone := &fakeConn{}
	stays := &fakeConn{}
	c := &Client{ID: "gone", UserID: "admin-1", Role: models.RoleAdmin, Conn: gone}
	require.True(t, h.Register(ctx, c))
	require.True(t, h.Register(ctx, &Client{ID: "stays", UserID: "admin-2", Role: models.RoleAdmin, Conn: stays}))
	h.Unregister(c)

	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	// the writer closes the socket once its client is gone
	require.Eventually(t, gone.isClosed, time.Second, 5*time.Millisecond)
	assert.False(t, stays.isClosed())

	cancel()
	h.Wait()
	require.Eventually(t, stays.isClosed, time.Second, 5*time.Millisecond)
	assert.False(t, h.Register(ctx, &Client{ID: "late", Conn: &fakeConn{}}))
}

// stalledConn blocks every write until it is closed.
type stalledConn struct {
	once    sync.Once
	closed  chan struct{}
	writing chan struct{}
}

func newStalledConn() *stalledConn {
	return &stalledConn{closed: make(chan struct{}), writing: make(chan struct{}, 1)}
}

func (s *stalledConn) WriteMessage(int, []byte) error {
	select {
	case s.writing <- struct{}{}:
	default:
	}
	<-s.closed
	return errors.New("connection closed")
}

func (s *stalledConn) SetWriteDeadline(time.Time) error { return nil }

func (s *stalledConn) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

func TestHub_StalledClientDoesNotBlockOthers(t *testing.T) {
	h, _ := startHub(t)
	ctx := context.Background()

	stuck := newStalledConn()
	healthy := &fakeConn{}
	require.True(t, h.Register(ctx, &Client{ID: "stuck", UserID: "admin-1", Role: models.RoleAdmin, Conn: stuck}))
	require.True(t, h.Register(ctx, &Client{ID: "ok", UserID: "admin-2", Role: models.RoleAdmin, Conn: healthy}))

	h.TaskChanged("created", &models.Task{ID: "t1", AssignedTo: "emp-1"})
	select {
	case <-stuck.writing:
	case <-time.After(time.Second):
		t.Fatal("stalled client never received a write")
	}
	// more than the stalled client's queue can hold
	for i := 0; i < clientBuffer+4; i++ {
		h.TaskChanged("status_changed", &models.Task{ID: "t1", AssignedTo: "emp-1"})
		time.Sleep(time.Millisecond)
	}

	regCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	assert.True(t, h.Register(regCtx, &Client{ID: "late", UserID: "admin-3", Role: models.RoleAdmin, Conn: &fakeConn{}}))

	require.Eventually(t, func() bool { return len(healthy.events()) >= 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "created", healthy.events()[0].Action)
}

type failingConn struct {
	fakeConn
}

func (f *failingConn) WriteMessage(int, []byte) error {
	return errors.New("broken pipe")
}

func TestHub_FailedWriteUnregistersClient(t *testing.T) {
	h, _ := startHub(t)
	ctx := context.Background()

	broken := &failingConn{}
	require.True(t, h.Register(ctx, &Client{ID: "broken", UserID: "admin-1", Role: models.RoleAdmin, Conn: broken}))
	require.Equal(t, 1, h.ClientCount())

	h.TaskChanged("created", &models.Task{ID: "t1", AssignedTo: "emp-1"})

	require.Eventually(t, func() bool { return h.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
	assert.True(t, broken.isClosed())
}

func TestHub_StopsDeliveringAfterExpiry(t *testing.T) {
	h := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	now := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	var clock sync.Mutex
	h.now = func() time.Time {
		clock.Lock()
		defer clock.Unlock()
		return now
	}
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(func() {
		cancel()
		h.Wait()
	})

	conn := &fakeConn{}
	require.True(t, h.Register(ctx, &Client{
		ID: "c", UserID: "emp-1", Role: models.RoleEmployee, Conn: conn,
		ExpiresAt: now.Add(time.Minute),
	}))

	h.TaskChanged("created", &models.Task{ID: "t1", AssignedTo: "emp-1"})
	require.Eventually(t, func() bool { return len(conn.events()) == 1 }, time.Second, 5*time.Millisecond)

	clock.Lock()
	now = now.Add(time.Minute)
	clock.Unlock()

	h.TaskChanged("status_changed", &models.Task{ID: "t1", AssignedTo: "emp-1"})
	require.Eventually(t, func() bool { return h.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, conn.isClosed, time.Second, 5*time.Millisecond)
	assert.Len(t, conn.events(), 1)
}
