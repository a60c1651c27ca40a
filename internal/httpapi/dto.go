package httpapi

import (
	"time"

	"github.com/gurkanbulca/taskassign/internal/models"
	"github.com/gurkanbulca/taskassign/internal/service"
)

type registerRequest struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,max=72"`
	Role     string `json:"role" validate:"omitempty,role"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type logoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type tokenResponse struct {
	AccessToken      string       `json:"accessToken"`
	RefreshToken     string       `json:"refreshToken"`
	TokenType        string       `json:"tokenType"`
	ExpiresIn        int64        `json:"expiresIn"`
	RefreshExpiresAt time.Time    `json:"refreshExpiresAt"`
	User             *models.User `json:"user"`
}

func newTokenResponse(res *service.LoginResult) tokenResponse {
	return tokenResponse{
		AccessToken:      res.Tokens.AccessToken,
		RefreshToken:     res.Tokens.RefreshToken,
		TokenType:        "Bearer",
		ExpiresIn:        res.Tokens.ExpiresIn,
		RefreshExpiresAt: res.Tokens.RefreshExpiresAt,
		User:             res.User,
	}
}

// createTaskRequest mirrors the task form. Status is accepted and ignored;
// new tasks always start as new. DueDate takes a date or an RFC 3339 time.
type createTaskRequest struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"max=2000"`
	AssignedTo  string `json:"assignedTo" validate:"required"`
	Status      string `json:"status"`
	Priority    string `json:"priority" validate:"omitempty,priority"`
	Category    string `json:"category" validate:"required,max=100"`
	DueDate     string `json:"dueDate" validate:"required"`
}

type updateStatusRequest struct {
	Status  string `json:"status" validate:"required"`
	Version *int   `json:"version" validate:"omitempty,min=1"`
}

type statsResponse struct {
	Stats models.StatusCounts `json:"stats"`
	Total int                 `json:"total"`
}

type usersResponse struct {
	Users []*models.User `json:"users"`
}

var dueDateLayouts = []string{time.RFC3339, "2006-01-02"}

func parseDueDate(s string) (time.Time, bool) {
	for _, layout := range dueDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
