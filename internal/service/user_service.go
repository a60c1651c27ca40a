package service

import (
	"context"
	"fmt"

	"github.com/gurkanbulca/taskassign/internal/models"
	"github.com/gurkanbulca/taskassign/internal/policy"
)

// UserService exposes the employee directory used when assigning tasks.
type UserService struct {
	users          UserStore
	engine         *policy.Engine
	securityLogger *SecurityLogger
}

func NewUserService(users UserStore, engine *policy.Engine, securityLogger *SecurityLogger) *UserService {
	return &UserService{users: users, engine: engine, securityLogger: securityLogger}
}

// ListEmployees returns every employee ordered by email. Admins only.
func (s *UserService) ListEmployees(ctx context.Context, req policy.Requester) ([]*models.User, error) {
	if err := s.engine.AuthorizeListUsers(req); err != nil {
		s.securityLogger.LogAccessDenied(ctx, "list employees", err)
		return nil, err
	}

	users, err := s.users.ListByRole(ctx, models.RoleEmployee)
	if err != nil {
		return nil, fmt.Errorf("failed to list employees: %w", err)
	}
	return users, nil
}
