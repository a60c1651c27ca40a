package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/gurkanbulca/taskassign/internal/models"
)

// APIClient talks to the REST API with fiber's HTTP agent.
type APIClient struct {
	baseURL string
	token   string
	timeout time.Duration
}

func NewAPIClient(baseURL, token string) *APIClient {
	return &APIClient{baseURL: baseURL, token: token, timeout: 15 * time.Second}
}

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Code    string `json:"error"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s (HTTP %d)", e.Code, e.Message, e.Status)
}

type loginResponse struct {
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
	User         *models.User `json:"user"`
}

type taskList struct {
	Tasks []*models.Task `json:"tasks"`
	Total int            `json:"total"`
}

type statsResponse struct {
	Stats models.StatusCounts `json:"stats"`
	Total int                 `json:"total"`
}

func (c *APIClient) do(method, path string, body, out interface{}) error {
	a := fiber.AcquireAgent()
	req := a.Request()
	req.Header.SetMethod(method)
	req.SetRequestURI(c.baseURL + path)
	if body != nil {
		a.JSON(body)
	}
	if c.token != "" {
		a.Set(fiber.HeaderAuthorization, "Bearer "+c.token)
	}
	a.Timeout(c.timeout)

	if err := a.Parse(); err != nil {
		fiber.ReleaseAgent(a)
		return fmt.Errorf("build request: %w", err)
	}

	status, data, errs := a.Bytes()
	if len(errs) > 0 {
		return fmt.Errorf("%s %s: %w", method, path, errors.Join(errs...))
	}

	if status >= 300 {
		apiErr := &APIError{Status: status}
		if err := json.Unmarshal(data, apiErr); err != nil || apiErr.Code == "" {
			apiErr.Code = "http_error"
			apiErr.Message = string(data)
		}
		return apiErr
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *APIClient) Login(email, password string) (*loginResponse, error) {
	var out loginResponse
	err := c.do(fiber.MethodPost, "/api/login", fiber.Map{"email": email, "password": password}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *APIClient) Me() (*models.User, error) {
	var u models.User
	if err := c.do(fiber.MethodGet, "/api/me", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *APIClient) ListTasks(status string) (*taskList, error) {
	var out taskList
	if err := c.do(fiber.MethodGet, "/api/tasks"+statusQuery(status), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *APIClient) ListUserTasks(userID, status string) (*taskList, error) {
	var out taskList
	path := "/api/tasks/user/" + url.PathEscape(userID) + statusQuery(status)
	if err := c.do(fiber.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *APIClient) Stats() (*statsResponse, error) {
	var out statsResponse
	if err := c.do(fiber.MethodGet, "/api/tasks/stats", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *APIClient) CreateTask(req fiber.Map) (*models.Task, error) {
	var t models.Task
	if err := c.do(fiber.MethodPost, "/api/tasks", req, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *APIClient) UpdateStatus(taskID, status string, version int) (*models.Task, error) {
	body := fiber.Map{"status": status}
	if version > 0 {
		body["version"] = version
	}
	var t models.Task
	if err := c.do(fiber.MethodPatch, "/api/tasks/"+url.PathEscape(taskID)+"/status", body, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *APIClient) DeleteTask(taskID string) error {
	return c.do(fiber.MethodDelete, "/api/tasks/"+url.PathEscape(taskID), nil, nil)
}

func (c *APIClient) Employees() ([]*models.User, error) {
	var out struct {
		Users []*models.User `json:"users"`
	}
	if err := c.do(fiber.MethodGet, "/api/users", nil, &out); err != nil {
		return nil, err
	}
	return out.Users, nil
}

func statusQuery(status string) string {
	if status == "" {
		return ""
	}
	return "?" + url.Values{"status": {status}}.Encode()
}
