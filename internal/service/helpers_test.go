package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gurkanbulca/taskassign/internal/cache"
	"github.com/gurkanbulca/taskassign/internal/config"
	"github.com/gurkanbulca/taskassign/internal/database"
	"github.com/gurkanbulca/taskassign/internal/models"
	"github.com/gurkanbulca/taskassign/internal/policy"
	"github.com/gurkanbulca/taskassign/internal/repository"
	"github.com/gurkanbulca/taskassign/pkg/auth"
	"github.com/gurkanbulca/taskassign/pkg/email"
)

// TestHelpers provides common test utilities
type TestHelpers struct {
	t               *testing.T
	users           *repository.UserRepository
	tasks           *repository.TaskRepository
	events          *repository.SecurityEventRepository
	passwordManager *auth.PasswordManager
	tokenManager    *auth.TokenManager
	logger          *slog.Logger
}

func NewTestHelpers(t *testing.T) *TestHelpers {
	db := database.NewTestDB(t)
	return &TestHelpers{
		t:               t,
		users:           repository.NewUserRepository(db),
		tasks:           repository.NewTaskRepository(db),
		events:          repository.NewSecurityEventRepository(db),
		passwordManager: auth.NewPasswordManager(auth.WithCost(4)),
		tokenManager:    auth.NewTokenManager("access-secret", "refresh-secret", time.Hour, 24*time.Hour),
		logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// CreateUser stores a user with password "secret1".
func (h *TestHelpers) CreateUser(email string, role models.Role) *models.User {
	hash, err := h.passwordManager.HashPassword("secret1")
	require.NoError(h.t, err)

	u := &models.User{Email: email, PasswordHash: hash, Role: role}
	require.NoError(h.t, h.users.Create(context.Background(), u))
	return u
}

func (h *TestHelpers) CreateAdmin(email string) *models.User {
	return h.CreateUser(email, models.RoleAdmin)
}

func (h *TestHelpers) CreateEmployee(email string) *models.User {
	return h.CreateUser(email, models.RoleEmployee)
}

// CreateTask stores a task assigned to assignee in the given status.
func (h *TestHelpers) CreateTask(title string, assignee, creator *models.User, status models.Status) *models.Task {
	due := time.Now().Add(48 * time.Hour).UTC().Truncate(time.Second)
	task := &models.Task{
		Title:      title,
		AssignedTo: assignee.ID,
		CreatedBy:  creator.ID,
		Status:     status,
		Priority:   models.PriorityMedium,
		Category:   "Development",
		DueDate:    &due,
	}
	require.NoError(h.t, h.tasks.Create(context.Background(), task))
	return task
}

func (h *TestHelpers) SecurityConfig() config.SecurityConfig {
	return config.SecurityConfig{
		MaxLoginAttempts:       3,
		AccountLockoutDuration: 15 * time.Minute,
		PasswordMinLength:      6,
		BcryptCost:             4,
		AllowAdminRegistration: true,
	}
}

func (h *TestHelpers) SecurityLogger() *SecurityLogger {
	return NewSecurityLogger(NewSecurityService(h.events), h.logger)
}

func (h *TestHelpers) AuthService() *AuthService {
	return NewAuthService(h.users, h.tokenManager, h.passwordManager, h.SecurityLogger(), h.SecurityConfig(), h.logger)
}

// TaskService wires a task service with an in-memory cache and the
// returned recording notifier and mock mailer.
func (h *TestHelpers) TaskService(p policy.Policy) (*TaskService, *recordingNotifier, *email.MockEmailService, *cache.MemoryCache) {
	n := &recordingNotifier{}
	m := email.NewMockEmailService()
	c := cache.NewMemoryCache(time.Minute)
	svc := NewTaskService(h.tasks, h.users, policy.NewEngine(p), c, n, m, h.SecurityLogger(), h.logger)
	return svc, n, m, c
}

// EventsOfType returns stored security events of one type.
func (h *TestHelpers) EventsOfType(eventType string) []*models.SecurityEvent {
	events, _, err := h.events.List(context.Background(), repository.EventFilter{EventType: eventType})
	require.NoError(h.t, err)
	return events
}

func requester(u *models.User) policy.Requester {
	return policy.Requester{ID: u.ID, Role: u.Role}
}

type notification struct {
	Action string
	TaskID string
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notification
}

func (r *recordingNotifier) TaskChanged(action string, task *models.Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, notification{Action: action, TaskID: task.ID})
}

func (r *recordingNotifier) all() []notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notification(nil), r.events...)
}
